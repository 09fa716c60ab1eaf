package models

import "time"

// Event types
const (
	EventTypeOrderSettled     = "ORDER_SETTLED"
	EventTypeSettlementFailed = "SETTLEMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderSettledEvent is published after a settlement commits. Consumers use
// it to refresh caches and downstream read models; it is informational and
// never part of the settlement transaction itself.
type OrderSettledEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	Total      Cents           `json:"total"`
	PaymentRef string          `json:"payment_ref"`
	Lines      []OrderItemData `json:"lines"`
}

// SettlementFailedEvent is published when a settlement rolls back, for
// reporting only. Stock has already been restored by the rollback.
type SettlementFailedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// OrderItemData represents line data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice Cents `json:"unit_price"`
}
