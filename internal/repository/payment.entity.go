package repository

import (
	"time"

	"github.com/home-express/finance-core/internal/model"
)

type PaymentEntity struct {
	ID             int64      `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	BookingID      int64      `db:"booking_id"      gorm:"column:booking_id;not null;index;uniqueIndex:ux_payment_idempotency,priority:1"`
	Type           string     `db:"type"            gorm:"column:type;not null"`
	Method         string     `db:"method"          gorm:"column:method;not null"`
	Amount         int64      `db:"amount"          gorm:"column:amount;not null"`
	TipAmount      int64      `db:"tip_amount"      gorm:"column:tip_amount;not null;default:0"`
	Status         string     `db:"status"          gorm:"column:status;not null;index"`
	IdempotencyKey string     `db:"idempotency_key" gorm:"column:idempotency_key;not null;uniqueIndex:ux_payment_idempotency,priority:2"`
	OrderCode      *string    `db:"order_code"      gorm:"column:order_code;uniqueIndex"`
	TransactionID  *string    `db:"transaction_id"  gorm:"column:transaction_id"`
	ConfirmedBy    *int64     `db:"confirmed_by"    gorm:"column:confirmed_by"`
	FailureReason  *string    `db:"failure_reason"  gorm:"column:failure_reason"`
	PaidAt         *time.Time `db:"paid_at"         gorm:"column:paid_at"`
	CreatedAt      time.Time  `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `db:"updated_at"      gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentEntity) TableName() string {
	return "payments"
}

func toPaymentEntity(m *model.Payment) *PaymentEntity {
	if m == nil {
		return nil
	}
	return &PaymentEntity{
		ID:             m.ID,
		BookingID:      m.BookingID,
		Type:           string(m.Type),
		Method:         string(m.Method),
		Amount:         m.Amount,
		TipAmount:      m.TipAmount,
		Status:         string(m.Status),
		IdempotencyKey: m.IdempotencyKey,
		OrderCode:      m.OrderCode,
		TransactionID:  m.TransactionID,
		ConfirmedBy:    m.ConfirmedBy,
		FailureReason:  m.FailureReason,
		PaidAt:         m.PaidAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toPaymentModel(e *PaymentEntity) *model.Payment {
	if e == nil {
		return nil
	}
	return &model.Payment{
		ID:             e.ID,
		BookingID:      e.BookingID,
		Type:           model.PaymentType(e.Type),
		Method:         model.PaymentMethod(e.Method),
		Amount:         e.Amount,
		TipAmount:      e.TipAmount,
		Status:         model.PaymentStatus(e.Status),
		IdempotencyKey: e.IdempotencyKey,
		OrderCode:      e.OrderCode,
		TransactionID:  e.TransactionID,
		ConfirmedBy:    e.ConfirmedBy,
		FailureReason:  e.FailureReason,
		PaidAt:         e.PaidAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toPaymentModels(entities []*PaymentEntity) []*model.Payment {
	if entities == nil {
		return nil
	}
	models := make([]*model.Payment, len(entities))
	for i, e := range entities {
		models[i] = toPaymentModel(e)
	}
	return models
}
