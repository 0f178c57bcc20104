package repository

import (
	"time"

	"github.com/home-express/finance-core/internal/model"
)

type SettlementEntity struct {
	ID                int64      `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	BookingID         int64      `db:"booking_id"          gorm:"column:booking_id;not null;uniqueIndex"`
	TransportID       int64      `db:"transport_id"        gorm:"column:transport_id;not null;index:ix_settlement_claim,priority:1"`
	AgreedPrice       int64      `db:"agreed_price"        gorm:"column:agreed_price;not null"`
	DepositPaid       int64      `db:"deposit_paid"        gorm:"column:deposit_paid;not null;default:0"`
	RemainingPaid     int64      `db:"remaining_paid"      gorm:"column:remaining_paid;not null;default:0"`
	TipPaid           int64      `db:"tip_paid"            gorm:"column:tip_paid;not null;default:0"`
	TotalCollected    int64      `db:"total_collected"     gorm:"column:total_collected;not null;default:0"`
	GatewayFee        int64      `db:"gateway_fee"         gorm:"column:gateway_fee;not null;default:0"`
	CommissionRateBps int64      `db:"commission_rate_bps" gorm:"column:commission_rate_bps;not null"`
	PlatformFee       int64      `db:"platform_fee"        gorm:"column:platform_fee;not null;default:0"`
	Adjustment        int64      `db:"adjustment"          gorm:"column:adjustment;not null;default:0"`
	NetToTransport    int64      `db:"net_to_transport"    gorm:"column:net_to_transport;not null;default:0"`
	NetState          string     `db:"net_state"           gorm:"column:net_state;not null"`
	CollectionMode    string     `db:"collection_mode"     gorm:"column:collection_mode"`
	Status            string     `db:"status"              gorm:"column:status;not null;index:ix_settlement_claim,priority:2"`
	ReadyAt           *time.Time `db:"ready_at"            gorm:"column:ready_at"`
	PaidAt            *time.Time `db:"paid_at"             gorm:"column:paid_at"`
	PayoutID          *int64     `db:"payout_id"           gorm:"column:payout_id;index"`
	OnHoldReason      *string    `db:"on_hold_reason"      gorm:"column:on_hold_reason"`
	PayoutAttempts    int        `db:"payout_attempts"     gorm:"column:payout_attempts;not null;default:0"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `db:"updated_at"          gorm:"column:updated_at;autoUpdateTime"`
}

func (SettlementEntity) TableName() string {
	return "booking_settlements"
}

func toSettlementEntity(m *model.Settlement) *SettlementEntity {
	if m == nil {
		return nil
	}
	netState := m.NetState
	if netState == "" {
		netState = model.NetNotComputed
	}
	return &SettlementEntity{
		ID:                m.ID,
		BookingID:         m.BookingID,
		TransportID:       m.TransportID,
		AgreedPrice:       m.AgreedPrice,
		DepositPaid:       m.DepositPaid,
		RemainingPaid:     m.RemainingPaid,
		TipPaid:           m.TipPaid,
		TotalCollected:    m.TotalCollected,
		GatewayFee:        m.GatewayFee,
		CommissionRateBps: m.CommissionRateBps,
		PlatformFee:       m.PlatformFee,
		Adjustment:        m.Adjustment,
		NetToTransport:    m.NetToTransport,
		NetState:          string(netState),
		CollectionMode:    string(m.CollectionMode),
		Status:            string(m.Status),
		ReadyAt:           m.ReadyAt,
		PaidAt:            m.PaidAt,
		PayoutID:          m.PayoutID,
		OnHoldReason:      m.OnHoldReason,
		PayoutAttempts:    m.PayoutAttempts,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toSettlementModel(e *SettlementEntity) *model.Settlement {
	if e == nil {
		return nil
	}
	return &model.Settlement{
		ID:                e.ID,
		BookingID:         e.BookingID,
		TransportID:       e.TransportID,
		AgreedPrice:       e.AgreedPrice,
		DepositPaid:       e.DepositPaid,
		RemainingPaid:     e.RemainingPaid,
		TipPaid:           e.TipPaid,
		TotalCollected:    e.TotalCollected,
		GatewayFee:        e.GatewayFee,
		CommissionRateBps: e.CommissionRateBps,
		PlatformFee:       e.PlatformFee,
		Adjustment:        e.Adjustment,
		NetToTransport:    e.NetToTransport,
		NetState:          model.NetState(e.NetState),
		CollectionMode:    model.CollectionMode(e.CollectionMode),
		Status:            model.SettlementStatus(e.Status),
		ReadyAt:           e.ReadyAt,
		PaidAt:            e.PaidAt,
		PayoutID:          e.PayoutID,
		OnHoldReason:      e.OnHoldReason,
		PayoutAttempts:    e.PayoutAttempts,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toSettlementModels(entities []*SettlementEntity) []*model.Settlement {
	models := make([]*model.Settlement, len(entities))
	for i, e := range entities {
		models[i] = toSettlementModel(e)
	}
	return models
}
