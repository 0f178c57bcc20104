package repository

import (
	"time"

	"github.com/home-express/finance-core/internal/model"
)

type PayoutEntity struct {
	ID                   int64               `db:"id"                    gorm:"primaryKey;autoIncrement;column:id"`
	TransportID          int64               `db:"transport_id"          gorm:"column:transport_id;not null;index"`
	PayoutNumber         string              `db:"payout_number"         gorm:"column:payout_number;not null;uniqueIndex"`
	TotalAmount          int64               `db:"total_amount"          gorm:"column:total_amount;not null"`
	ItemCount            int                 `db:"item_count"            gorm:"column:item_count;not null"`
	Status               string              `db:"status"                gorm:"column:status;not null;index"`
	BankDetails          *model.BankDetails  `db:"bank_details"          gorm:"column:bank_details;type:text;serializer:json"`
	TransactionReference *string             `db:"transaction_reference" gorm:"column:transaction_reference"`
	FailureReason        *string             `db:"failure_reason"        gorm:"column:failure_reason"`
	ProcessedAt          *time.Time          `db:"processed_at"          gorm:"column:processed_at"`
	CompletedAt          *time.Time          `db:"completed_at"          gorm:"column:completed_at"`
	Items                []*PayoutItemEntity `gorm:"foreignKey:PayoutID;references:ID"`
	CreatedAt            time.Time           `db:"created_at"            gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `db:"updated_at"            gorm:"column:updated_at;autoUpdateTime"`
}

func (PayoutEntity) TableName() string {
	return "transport_payouts"
}

type PayoutItemEntity struct {
	ID           int64     `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	PayoutID     int64     `db:"payout_id"     gorm:"column:payout_id;not null;index"`
	SettlementID int64     `db:"settlement_id" gorm:"column:settlement_id;not null;index"`
	BookingID    int64     `db:"booking_id"    gorm:"column:booking_id;not null"`
	Amount       int64     `db:"amount"        gorm:"column:amount;not null"`
	CreatedAt    time.Time `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
}

func (PayoutItemEntity) TableName() string {
	return "transport_payout_items"
}

func toPayoutEntity(m *model.Payout) *PayoutEntity {
	if m == nil {
		return nil
	}
	e := &PayoutEntity{
		ID:                   m.ID,
		TransportID:          m.TransportID,
		PayoutNumber:         m.PayoutNumber,
		TotalAmount:          m.TotalAmount,
		ItemCount:            m.ItemCount,
		Status:               string(m.Status),
		BankDetails:          m.BankDetails,
		TransactionReference: m.TransactionReference,
		FailureReason:        m.FailureReason,
		ProcessedAt:          m.ProcessedAt,
		CompletedAt:          m.CompletedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	for _, it := range m.Items {
		e.Items = append(e.Items, &PayoutItemEntity{
			ID:           it.ID,
			PayoutID:     it.PayoutID,
			SettlementID: it.SettlementID,
			BookingID:    it.BookingID,
			Amount:       it.Amount,
		})
	}
	return e
}

func toPayoutModel(e *PayoutEntity) *model.Payout {
	if e == nil {
		return nil
	}
	m := &model.Payout{
		ID:                   e.ID,
		TransportID:          e.TransportID,
		PayoutNumber:         e.PayoutNumber,
		TotalAmount:          e.TotalAmount,
		ItemCount:            e.ItemCount,
		Status:               model.PayoutStatus(e.Status),
		BankDetails:          e.BankDetails,
		TransactionReference: e.TransactionReference,
		FailureReason:        e.FailureReason,
		ProcessedAt:          e.ProcessedAt,
		CompletedAt:          e.CompletedAt,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
	for _, it := range e.Items {
		m.Items = append(m.Items, &model.PayoutItem{
			ID:           it.ID,
			PayoutID:     it.PayoutID,
			SettlementID: it.SettlementID,
			BookingID:    it.BookingID,
			Amount:       it.Amount,
			CreatedAt:    it.CreatedAt,
		})
	}
	return m
}
