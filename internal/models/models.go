package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Product represents a product in the catalog. Stock mutations are always
// relative increments/decrements; the absolute value is only set at creation.
type Product struct {
	ID        int64          `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Category  string         `db:"category" json:"category"`
	Price     int64          `db:"price" json:"price"`
	Stock     int            `db:"stock" json:"stock"`
	Features  pq.StringArray `db:"features" json:"features"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Cart is owned by exactly one user and persists across checkouts.
type Cart struct {
	ID     int64 `db:"id" json:"id"`
	UserID int64 `db:"user_id" json:"user_id"`
}

// CartItem is unique per (cart, product) pair.
type CartItem struct {
	ID        int64 `db:"id" json:"id"`
	CartID    int64 `db:"cart_id" json:"cart_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// CartItemDetail is a cart item joined with its catalog row.
type CartItemDetail struct {
	ProductID int64  `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Price     int64  `db:"price" json:"price"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// Order identifies one checkout event.
type Order struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	OrderNumber     string    `db:"order_number" json:"order_number"`
	TotalAmount     int64     `db:"total_amount" json:"total_amount"`
	Status          string    `db:"status" json:"status"`
	ShippingName    string    `db:"shipping_name" json:"shipping_name"`
	ShippingAddress string    `db:"shipping_address" json:"shipping_address"`
	ShippingPhone   string    `db:"shipping_phone" json:"shipping_phone"`
	PaymentMethod   string    `db:"payment_method" json:"payment_method"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is a price snapshot taken at checkout, immutable after creation.
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Transaction is a payment record tied to exactly one order.
type Transaction struct {
	ID            int64           `db:"id" json:"id"`
	OrderID       int64           `db:"order_id" json:"order_id"`
	TxID          string          `db:"tx_id" json:"tx_id"`
	Amount        int64           `db:"amount" json:"amount"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Status        string          `db:"status" json:"status"`
	Details       json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// StatusHistory is an append-only audit entry for an order.
type StatusHistory struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Status    string    `db:"status" json:"status"`
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusRefunded  = "refunded"
)

// OrderDetail bundles an order with everything hanging off it.
type OrderDetail struct {
	Order         Order           `json:"order"`
	Items         []OrderItem     `json:"items"`
	StatusHistory []StatusHistory `json:"status_history"`
	Transaction   *Transaction    `json:"transaction,omitempty"`
}

// OrderSummary is an order with its items and the status derived from the
// most recent history entry. DerivedStatus must always match Order.Status.
type OrderSummary struct {
	Order         Order       `json:"order"`
	Items         []OrderItem `json:"items"`
	DerivedStatus string      `json:"current_status"`
}
