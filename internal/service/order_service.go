package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-backend/internal/broker"
	"commerce-backend/internal/models"
	"commerce-backend/internal/redisclient"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// OrderService handles the checkout workflow and order queries
type OrderService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger

	orderNumberMaxAttempts int
	idempotencyTTL         time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	orderNumberMaxAttempts int,
	idempotencyTTL time.Duration,
) *OrderService {
	if orderNumberMaxAttempts < 1 {
		orderNumberMaxAttempts = 1
	}
	return &OrderService{
		store:                  store,
		redis:                  redis,
		eventPublisher:         eventPublisher,
		logger:                 util.GetLogger(),
		orderNumberMaxAttempts: orderNumberMaxAttempts,
		idempotencyTTL:         idempotencyTTL,
	}
}

// CheckoutRequest represents a request to place an order
type CheckoutRequest struct {
	Items           []CheckoutItem `json:"items" binding:"required,min=1"`
	ShippingName    string         `json:"shipping_name" binding:"required"`
	ShippingAddress string         `json:"shipping_address" binding:"required"`
	ShippingPhone   string         `json:"shipping_phone"`
	PaymentMethod   string         `json:"payment_method" binding:"required"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
}

// CheckoutItem represents one requested order line. UnitPrice is the price
// the client was quoted; when non-zero it is validated against the catalog,
// but the total is always computed from catalog prices.
type CheckoutItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
	UnitPrice int64 `json:"unit_price,omitempty"`
}

// CheckoutResponse represents the response after placing an order
type CheckoutResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TxID        string `json:"tx_id"`
	TotalAmount int64  `json:"total_amount"`
	Status      string `json:"status"`
}

// Checkout converts the caller's requested lines into an order, payment
// record, stock decrement, status history entry and cart clear, all inside
// a single database transaction. Any failure rolls back every write.
func (s *OrderService) Checkout(ctx context.Context, userID int64, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if userID <= 0 {
		return nil, ErrUnauthorized
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrBadRequest)
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrBadRequest)
		}
	}

	if req.IdempotencyKey != "" && s.redis != nil {
		claimed, err := s.redis.ClaimIdempotencyKey(ctx, req.IdempotencyKey, s.idempotencyTTL)
		if err != nil {
			s.logger.Warn("Idempotency check unavailable, proceeding",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		} else if !claimed {
			return nil, ErrDuplicateRequest
		}
	}

	var (
		resp       *CheckoutResponse
		eventItems []models.OrderItemData
		productIDs []int64
		err        error
	)

	// The order number has a store-level UNIQUE constraint; on the unlikely
	// collision the whole transaction is retried with a fresh number.
	for attempt := 0; attempt < s.orderNumberMaxAttempts; attempt++ {
		resp, eventItems, productIDs, err = s.checkoutTx(ctx, userID, req)
		if isOrderNumberCollision(err) {
			s.logger.Warn("Order number collision, retrying",
				zap.Int("attempt", attempt+1))
			continue
		}
		break
	}

	if err != nil {
		if req.IdempotencyKey != "" && s.redis != nil {
			if relErr := s.redis.ReleaseIdempotencyKey(ctx, req.IdempotencyKey); relErr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.Error(relErr))
			}
		}
		switch {
		case errors.Is(err, ErrInsufficientStock):
			util.StockConflictsTotal.Inc()
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, ErrBadRequest):
			util.CheckoutFailedTotal.WithLabelValues("invalid_items").Inc()
		default:
			util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", resp.OrderID),
		zap.String("order_number", resp.OrderNumber),
		zap.Int64("total_amount", resp.TotalAmount))

	if s.redis != nil {
		if err := s.redis.InvalidateProducts(ctx, productIDs...); err != nil {
			s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
		}
	}

	if s.eventPublisher != nil {
		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: time.Now(),
			},
			OrderID:     resp.OrderID,
			OrderNumber: resp.OrderNumber,
			UserID:      userID,
			TotalAmount: resp.TotalAmount,
			Items:       eventItems,
		}
		if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
		}
	}

	return resp, nil
}

// checkoutTx runs one attempt of the checkout workflow inside a transaction
func (s *OrderService) checkoutTx(ctx context.Context, userID int64, req *CheckoutRequest) (*CheckoutResponse, []models.OrderItemData, []int64, error) {
	var (
		resp       *CheckoutResponse
		eventItems []models.OrderItemData
		productIDs []int64
	)

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		products, err := s.loadRequestedProducts(ctx, tx, req.Items)
		if err != nil {
			return err
		}

		var totalAmount int64
		for _, item := range req.Items {
			product := products[item.ProductID]
			if item.UnitPrice != 0 && item.UnitPrice != product.Price {
				return fmt.Errorf("%w: product %d quoted at %d, catalog price %d",
					ErrPriceMismatch, item.ProductID, item.UnitPrice, product.Price)
			}
			totalAmount += product.Price * int64(item.Quantity)
		}

		order := &models.Order{
			UserID:          userID,
			OrderNumber:     generateOrderNumber(),
			TotalAmount:     totalAmount,
			Status:          models.OrderStatusPending,
			ShippingName:    req.ShippingName,
			ShippingAddress: req.ShippingAddress,
			ShippingPhone:   req.ShippingPhone,
			PaymentMethod:   req.PaymentMethod,
		}
		if err := s.store.InsertOrder(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		eventItems = make([]models.OrderItemData, 0, len(req.Items))
		productIDs = make([]int64, 0, len(req.Items))
		for _, item := range req.Items {
			product := products[item.ProductID]
			orderItem := &models.OrderItem{
				OrderID:   order.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: product.Price,
			}
			if err := s.store.InsertOrderItem(ctx, tx, orderItem); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}

			if err := s.store.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, store.ErrInsufficientStock) {
					return fmt.Errorf("%w: product %d", ErrInsufficientStock, item.ProductID)
				}
				return err
			}

			eventItems = append(eventItems, models.OrderItemData{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: product.Price,
			})
			productIDs = append(productIDs, item.ProductID)
		}

		transaction := &models.Transaction{
			OrderID:       order.ID,
			TxID:          generateTransactionID(),
			Amount:        totalAmount,
			PaymentMethod: req.PaymentMethod,
			Status:        models.TransactionStatusCompleted,
		}
		if err := s.store.InsertTransaction(ctx, tx, transaction); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		if err := s.store.InsertStatusHistory(ctx, tx, order.ID, models.OrderStatusPending, "Order placed"); err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}

		if err := s.store.ClearCartItemsByUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		resp = &CheckoutResponse{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			TxID:        transaction.TxID,
			TotalAmount: totalAmount,
			Status:      models.OrderStatusPending,
		}
		return nil
	})

	return resp, eventItems, productIDs, err
}

// loadRequestedProducts loads every referenced product and fails the whole
// checkout when any line references a missing one
func (s *OrderService) loadRequestedProducts(ctx context.Context, tx *sqlx.Tx, items []CheckoutItem) (map[int64]*models.Product, error) {
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, tx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, item := range items {
		if _, ok := productMap[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrProductMissing, item.ProductID)
		}
	}

	return productMap, nil
}

// GetOrder retrieves an order with its items, status history and payment.
// Non-admin callers only see their own orders.
func (s *OrderService) GetOrder(ctx context.Context, userID int64, isAdmin bool, orderID int64) (*models.OrderDetail, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.GetStatusHistory(ctx, orderID)
	if err != nil {
		return nil, err
	}

	transaction, err := s.store.GetTransaction(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &models.OrderDetail{
		Order:         *order,
		Items:         items,
		StatusHistory: history,
		Transaction:   transaction,
	}, nil
}

// ListOrders retrieves the caller's orders with items and derived status
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.OrderSummary, error) {
	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, orders)
}

// ListAllOrders retrieves every order, admin only
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.OrderSummary, error) {
	orders, err := s.store.GetAllOrders(ctx)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, orders)
}

func (s *OrderService) summarize(ctx context.Context, orders []models.Order) ([]models.OrderSummary, error) {
	summaries := make([]models.OrderSummary, 0, len(orders))
	for _, order := range orders {
		items, err := s.store.GetOrderItemsByOrderID(ctx, order.ID)
		if err != nil {
			return nil, err
		}

		derived, err := s.store.GetLatestStatus(ctx, order.ID)
		if errors.Is(err, sql.ErrNoRows) {
			derived = order.Status
		} else if err != nil {
			return nil, err
		}

		summaries = append(summaries, models.OrderSummary{
			Order:         order,
			Items:         items,
			DerivedStatus: derived,
		})
	}
	return summaries, nil
}

func generateOrderNumber() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102150405"), suffix)
}

func generateTransactionID() string {
	return fmt.Sprintf("TXN-%s", strings.ToUpper(uuid.New().String()[:8]))
}

func isOrderNumberCollision(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == "orders_order_number_key"
	}
	return false
}
