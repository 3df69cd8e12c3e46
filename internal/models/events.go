package models

import "time"

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypePaymentRecorded    = "PAYMENT_RECORDED"
	EventTypeRefundIssued       = "REFUND_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after a checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after a status transition commits.
// RestockedProductIDs is set when the transition returned stock to inventory.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID             int64   `json:"order_id"`
	FromStatus          string  `json:"from_status"`
	ToStatus            string  `json:"to_status"`
	RestockedProductIDs []int64 `json:"restocked_product_ids,omitempty"`
}

// PaymentRecordedEvent published after a payment is recorded
type PaymentRecordedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	TxID    string `json:"tx_id"`
	Amount  int64  `json:"amount"`
}

// RefundIssuedEvent published after a refund commits
type RefundIssuedEvent struct {
	BaseEvent
	OrderID    int64   `json:"order_id"`
	TxID       string  `json:"tx_id"`
	Amount     int64   `json:"amount"`
	Reason     string  `json:"reason"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
