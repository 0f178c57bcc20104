package model

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending             BookingStatus = "PENDING"
	BookingStatusQuoted              BookingStatus = "QUOTED"
	BookingStatusConfirmed           BookingStatus = "CONFIRMED"
	BookingStatusInProgress          BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted           BookingStatus = "COMPLETED"
	BookingStatusConfirmedByCustomer BookingStatus = "CONFIRMED_BY_CUSTOMER"
	BookingStatusCancelled           BookingStatus = "CANCELLED"
)

var bookingOrdinal = map[BookingStatus]int{
	BookingStatusPending:             0,
	BookingStatusQuoted:              1,
	BookingStatusConfirmed:           2,
	BookingStatusInProgress:          3,
	BookingStatusCompleted:           4,
	BookingStatusConfirmedByCustomer: 5,
	BookingStatusCancelled:           6,
}

// Ordinal is the position of the status in the lifecycle, -1 when unknown.
func (s BookingStatus) Ordinal() int {
	if o, ok := bookingOrdinal[s]; ok {
		return o
	}
	return -1
}

func (s BookingStatus) Valid() bool { return s.Ordinal() >= 0 }

func (s BookingStatus) Terminal() bool {
	return s == BookingStatusConfirmedByCustomer || s == BookingStatusCancelled
}

// generic update path; later states move only through dedicated operations.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending: {BookingStatusQuoted, BookingStatusCancelled},
	BookingStatusQuoted:  {BookingStatusConfirmed, BookingStatusCancelled},
}

func AllowedBookingTransitions(from BookingStatus) []BookingStatus {
	return bookingTransitions[from]
}

// ValidateBookingTransition checks a move through the generic status update path.
func ValidateBookingTransition(from, to BookingStatus) error {
	if !to.Valid() {
		return NewValidationError(CodeInvalidStatus, "unknown booking status %q", to)
	}
	if from == BookingStatusCompleted {
		return NewStateError(CodeInvalidTransition, "booking is COMPLETED; only customer confirmation may change it")
	}
	if from == BookingStatusCancelled {
		if to == BookingStatusCancelled {
			return nil
		}
		return NewStateError(CodeInvalidTransition, "booking is CANCELLED and cannot move to %s", to)
	}
	for _, allowed := range bookingTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return NewStateError(CodeInvalidTransition, "booking cannot move from %s to %s", from, to)
}

// ValidateBookingAdvance guards the dedicated operations (payment, job, confirmation).
func ValidateBookingAdvance(from, to BookingStatus) error {
	if from == BookingStatusCancelled {
		return NewStateError(CodeInvalidTransition, "booking is CANCELLED")
	}
	if to == BookingStatusCancelled || to.Ordinal() <= from.Ordinal() {
		return NewStateError(CodeInvalidTransition, "booking cannot advance from %s to %s", from, to)
	}
	return nil
}

type ActorRole string

const (
	ActorCustomer  ActorRole = "CUSTOMER"
	ActorTransport ActorRole = "TRANSPORT"
	ActorManager   ActorRole = "MANAGER"
	ActorSystem    ActorRole = "SYSTEM"
)

type Actor struct {
	ID   int64     `json:"id"`
	Role ActorRole `json:"role"`
}

var SystemActor = Actor{Role: ActorSystem}

type Booking struct {
	ID                  int64         `json:"id"`
	CustomerID          int64         `json:"customer_id"`
	TransportID         *int64        `json:"transport_id,omitempty"`
	Status              BookingStatus `json:"status"`
	FinalPrice          *int64        `json:"final_price,omitempty"`
	DepositPercentBps   *int64        `json:"deposit_percent_bps,omitempty"`
	AcceptedQuotationID *int64        `json:"accepted_quotation_id,omitempty"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty"`
	ActualEndAt         *time.Time    `json:"actual_end_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

type BookingStatusHistory struct {
	ID        int64          `json:"id"`
	BookingID int64          `json:"booking_id"`
	OldStatus *BookingStatus `json:"old_status,omitempty"`
	NewStatus BookingStatus  `json:"new_status"`
	ActorID   int64          `json:"actor_id"`
	ActorRole ActorRole      `json:"actor_role"`
	Reason    string         `json:"reason,omitempty"`
	ChangedAt time.Time      `json:"changed_at"`
}

type Contract struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	SignedAt  time.Time `json:"signed_at"`
}

type IncidentStatus string

const (
	IncidentReported           IncidentStatus = "REPORTED"
	IncidentUnderInvestigation IncidentStatus = "UNDER_INVESTIGATION"
	IncidentResolved           IncidentStatus = "RESOLVED"
	IncidentDismissed          IncidentStatus = "DISMISSED"
)

// OpenIncidentStatuses block settlement.
var OpenIncidentStatuses = []IncidentStatus{IncidentReported, IncidentUnderInvestigation}

type Incident struct {
	ID          int64          `json:"id"`
	BookingID   int64          `json:"booking_id"`
	Status      IncidentStatus `json:"status"`
	Description string         `json:"description"`
	ReportedBy  int64          `json:"reported_by"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type AcceptQuotationRequest struct {
	BookingID   int64
	QuotationID int64
	TransportID int64
	FinalPrice  int64
	Actor       Actor
}

func (r AcceptQuotationRequest) Validate() error {
	if r.BookingID == 0 {
		return NewValidationError(CodeValidationFailed, "booking_id is required")
	}
	if r.QuotationID == 0 {
		return NewValidationError(CodeValidationFailed, "quotation_id is required")
	}
	if r.TransportID == 0 {
		return NewValidationError(CodeValidationFailed, "transport_id is required")
	}
	if r.FinalPrice <= 0 {
		return NewValidationError(CodeMissingPrice, "final price must be positive")
	}
	return nil
}
