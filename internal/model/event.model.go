package model

import "time"

type EventType string

const (
	EventPaymentCompleted        EventType = "payment.completed"
	EventPaymentFailed           EventType = "payment.failed"
	EventSettlementStatusChanged EventType = "settlement.status_changed"
	EventPayoutStatusChanged     EventType = "payout.status_changed"
	EventBookingStatusChanged    EventType = "booking.status_changed"
)

// Event is a fire-and-forget notification about a committed change.
type Event struct {
	Type        EventType `json:"type"`
	EntityType  string    `json:"entity_type"`
	EntityID    int64     `json:"entity_id"`
	BookingID   int64     `json:"booking_id,omitempty"`
	TransportID int64     `json:"transport_id,omitempty"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
