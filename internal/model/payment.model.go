package model

import (
	"strings"
	"time"
)

type PaymentType string

const (
	PaymentTypeDeposit          PaymentType = "DEPOSIT"
	PaymentTypeRemainingPayment PaymentType = "REMAINING_PAYMENT"
	PaymentTypeTip              PaymentType = "TIP"
	PaymentTypeRefund           PaymentType = "REFUND"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodPayOS        PaymentMethod = "PAYOS"
	PaymentMethodVNPay        PaymentMethod = "VNPAY"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodPayOS, PaymentMethodVNPay:
		return true
	}
	return false
}

// Online methods go through a payment gateway and accrue a gateway fee.
func (m PaymentMethod) Online() bool {
	return m == PaymentMethodPayOS || m == PaymentMethodVNPay
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Confirmable() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

type Payment struct {
	ID             int64         `json:"id"`
	BookingID      int64         `json:"booking_id"`
	Type           PaymentType   `json:"type"`
	Method         PaymentMethod `json:"method"`
	Amount         int64         `json:"amount"`
	TipAmount      int64         `json:"tip_amount"`
	Status         PaymentStatus `json:"status"`
	IdempotencyKey string        `json:"idempotency_key"`
	OrderCode      *string       `json:"order_code,omitempty"`
	TransactionID  *string       `json:"transaction_id,omitempty"`
	ConfirmedBy    *int64        `json:"confirmed_by,omitempty"`
	FailureReason  *string       `json:"failure_reason,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type InitializePaymentRequest struct {
	BookingID      int64
	Type           PaymentType
	Method         PaymentMethod
	Amount         int64
	TipAmount      int64
	IdempotencyKey string
}

func (r InitializePaymentRequest) Validate() error {
	if r.BookingID == 0 {
		return NewValidationError(CodeValidationFailed, "booking_id is required")
	}
	if r.Amount <= 0 {
		return NewValidationError(CodeInvalidAmount, "amount must be positive, got %d", r.Amount)
	}
	if r.TipAmount < 0 || r.TipAmount > r.Amount {
		return NewValidationError(CodeInvalidAmount, "tip %d must be between 0 and the amount %d", r.TipAmount, r.Amount)
	}
	if !r.Method.Valid() {
		return NewValidationError(CodeValidationFailed, "unsupported payment method %q", r.Method)
	}
	switch r.Type {
	case PaymentTypeDeposit, PaymentTypeRemainingPayment, PaymentTypeTip:
	default:
		return NewValidationError(CodeValidationFailed, "unsupported payment type %q", r.Type)
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return NewValidationError(CodeValidationFailed, "idempotency key is required")
	}
	return nil
}

// InitiationResult is returned by deposit and remaining payment initiation.
// AlreadyPaid is an expected outcome, not an error.
type InitiationResult struct {
	Payment     *Payment `json:"payment,omitempty"`
	AlreadyPaid bool     `json:"already_paid"`
	Replayed    bool     `json:"replayed"`
}

type ConfirmPaymentRequest struct {
	PaymentID     int64
	TransactionID string
	ConfirmedBy   *int64
}

type GatewayConfirmation struct {
	OrderCode  string
	PaidAmount int64
	Reference  string
}

func (c GatewayConfirmation) Validate() error {
	if c.OrderCode == "" {
		return NewValidationError(CodeValidationFailed, "order code is required")
	}
	if c.PaidAmount <= 0 {
		return NewValidationError(CodeInvalidAmount, "paid amount must be positive, got %d", c.PaidAmount)
	}
	return nil
}
