package model

import "time"

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

func (s PayoutStatus) Terminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

func ValidatePayoutTransition(from, to PayoutStatus) error {
	if from.Terminal() {
		return NewStateError(CodeTerminalState, "payout is %s and can no longer change", from)
	}
	for _, allowed := range payoutTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return NewStateError(CodeInvalidTransition, "payout cannot move from %s to %s", from, to)
}

type BankDetails struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

type BankAccount struct {
	ID          int64 `json:"id"`
	TransportID int64 `json:"transport_id"`
	BankDetails
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Payout struct {
	ID                   int64         `json:"id"`
	TransportID          int64         `json:"transport_id"`
	PayoutNumber         string        `json:"payout_number"`
	TotalAmount          int64         `json:"total_amount"`
	ItemCount            int           `json:"item_count"`
	Status               PayoutStatus  `json:"status"`
	BankDetails          *BankDetails  `json:"bank_details,omitempty"`
	TransactionReference *string       `json:"transaction_reference,omitempty"`
	FailureReason        *string       `json:"failure_reason,omitempty"`
	ProcessedAt          *time.Time    `json:"processed_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	Items                []*PayoutItem `json:"items,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

type PayoutItem struct {
	ID           int64     `json:"id"`
	PayoutID     int64     `json:"payout_id"`
	SettlementID int64     `json:"settlement_id"`
	BookingID    int64     `json:"booking_id"`
	Amount       int64     `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// PayoutStatusUpdate is the only input that mutates a payout after creation.
// Retryable matters only for FAILED.
type PayoutStatusUpdate struct {
	PayoutID             int64
	Status               PayoutStatus
	FailureReason        string
	TransactionReference string
	Retryable            bool
}

// DispatchResult is what the payout gateway reports back.
type DispatchResult struct {
	Success        bool
	TransactionRef string
	Reason         string
	Retryable      bool
}

// PayoutFilter narrows ListPayouts. CreatedFrom is inclusive, CreatedTo exclusive.
type PayoutFilter struct {
	TransportID *int64
	Statuses    []PayoutStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// SweepSummary reports one auto-sweep pass.
type SweepSummary struct {
	Transports    int     `json:"transports"`
	BatchesIssued int     `json:"batches_issued"`
	BelowMinimum  int     `json:"below_minimum"`
	Failed        int     `json:"failed"`
	PayoutIDs     []int64 `json:"payout_ids"`
}
