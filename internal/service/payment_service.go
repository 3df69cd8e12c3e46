package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commerce-backend/internal/broker"
	"commerce-backend/internal/models"
	"commerce-backend/internal/redisclient"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PaymentService records payments and issues refunds. Payment is synchronous
// in this model: a recorded transaction is immediately "completed".
type PaymentService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store *store.Store, redis *redisclient.Client, eventPublisher *broker.EventPublisher) *PaymentService {
	return &PaymentService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// ProcessPaymentRequest represents a payment recording request
type ProcessPaymentRequest struct {
	PaymentMethod  string          `json:"payment_method" binding:"required"`
	PaymentDetails json.RawMessage `json:"payment_details,omitempty"`
}

// ProcessPayment records the payment for an order the caller owns. The amount
// is taken from the order, never from the caller. At most one transaction may
// exist per order; a second attempt is rejected.
func (ps *PaymentService) ProcessPayment(ctx context.Context, userID, orderID int64, req *ProcessPaymentRequest) (string, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ProcessPayment")
	defer span.End()

	if userID <= 0 {
		return "", ErrUnauthorized
	}

	var (
		txID   string
		amount int64
	)

	err := ps.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := ps.store.GetUserOrderForUpdate(ctx, tx, userID, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if err != nil {
			return err
		}

		existing, err := ps.store.GetTransactionByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrPaymentProcessed
		}

		transaction := &models.Transaction{
			OrderID:       orderID,
			TxID:          generateTransactionID(),
			Amount:        order.TotalAmount,
			PaymentMethod: req.PaymentMethod,
			Status:        models.TransactionStatusCompleted,
			Details:       req.PaymentDetails,
		}
		if err := ps.store.InsertTransaction(ctx, tx, transaction); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		if err := ps.store.UpdateOrderStatus(ctx, tx, orderID, models.OrderStatusProcessing); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if err := ps.store.InsertStatusHistory(ctx, tx, orderID, models.OrderStatusProcessing,
			fmt.Sprintf("Payment received via %s", req.PaymentMethod)); err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}

		txID = transaction.TxID
		amount = transaction.Amount
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrPaymentProcessed) {
			util.PaymentConflictsTotal.Inc()
		}
		return "", err
	}

	util.PaymentsRecordedTotal.Inc()
	ps.logger.Info("Payment recorded",
		zap.Int64("order_id", orderID),
		zap.String("tx_id", txID),
		zap.Int64("amount", amount))

	if ps.eventPublisher != nil {
		event := &models.PaymentRecordedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentRecorded,
				Timestamp: time.Now(),
			},
			OrderID: orderID,
			TxID:    txID,
			Amount:  amount,
		}
		if err := ps.eventPublisher.PublishPaymentRecorded(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentRecorded event", zap.Error(err))
		}
	}

	return txID, nil
}

// RefundRequest represents a refund request. Amount defaults to the full
// transaction amount; it is recorded for audit only and does not prorate
// the stock restore.
type RefundRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Refund reverses a completed transaction: marks it refunded, moves the
// order to refunded with an audit entry, and restores the full stock of
// every order item. A transaction can only be refunded once, and its order
// must still hold the stock: a cancelled order already restocked on
// cancellation, so refunding it again would inflate inventory.
func (ps *PaymentService) Refund(ctx context.Context, txID string, req *RefundRequest) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.Refund")
	defer span.End()

	var (
		orderID    int64
		amount     int64
		productIDs []int64
	)

	err := ps.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		transaction, err := ps.store.GetTransactionForUpdate(ctx, tx, txID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
		}
		if err != nil {
			return err
		}

		if transaction.Status == models.TransactionStatusRefunded {
			return ErrAlreadyRefunded
		}

		order, err := ps.store.GetOrderForUpdate(ctx, tx, transaction.OrderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case models.OrderStatusCancelled, models.OrderStatusRefunded:
			return fmt.Errorf("%w: cannot refund %s order %d", ErrIllegalTransition, order.Status, order.ID)
		}

		orderID = transaction.OrderID
		amount = req.Amount
		if amount == 0 {
			amount = transaction.Amount
		}

		if err := ps.store.UpdateTransactionStatus(ctx, tx, transaction.ID, models.TransactionStatusRefunded); err != nil {
			return fmt.Errorf("failed to update transaction status: %w", err)
		}

		if err := ps.store.UpdateOrderStatus(ctx, tx, orderID, models.OrderStatusRefunded); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		notes := fmt.Sprintf("Refunded %d", amount)
		if req.Reason != "" {
			notes = fmt.Sprintf("Refunded %d: %s", amount, req.Reason)
		}
		if err := ps.store.InsertStatusHistory(ctx, tx, orderID, models.OrderStatusRefunded, notes); err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}

		items, err := ps.store.GetOrderItems(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("failed to get order items: %w", err)
		}
		for _, item := range items {
			if err := ps.store.IncrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("failed to restore stock: %w", err)
			}
			productIDs = append(productIDs, item.ProductID)
		}

		return nil
	})

	if err != nil {
		return err
	}

	util.RefundsIssuedTotal.Inc()
	ps.logger.Info("Refund issued",
		zap.String("tx_id", txID),
		zap.Int64("order_id", orderID),
		zap.Int64("amount", amount))

	if ps.redis != nil {
		if err := ps.redis.InvalidateProducts(ctx, productIDs...); err != nil {
			ps.logger.Warn("Failed to invalidate product cache", zap.Error(err))
		}
	}

	if ps.eventPublisher != nil {
		event := &models.RefundIssuedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRefundIssued,
				Timestamp: time.Now(),
			},
			OrderID:    orderID,
			TxID:       txID,
			Amount:     amount,
			Reason:     req.Reason,
			ProductIDs: productIDs,
		}
		if err := ps.eventPublisher.PublishRefundIssued(ctx, event); err != nil {
			ps.logger.Error("Failed to publish RefundIssued event", zap.Error(err))
		}
	}

	return nil
}
