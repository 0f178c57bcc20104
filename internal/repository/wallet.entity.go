package repository

import (
	"time"

	"github.com/home-express/finance-core/internal/model"
)

type WalletEntity struct {
	ID                int64      `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	TransportID       int64      `db:"transport_id"        gorm:"column:transport_id;not null;uniqueIndex"`
	CurrentBalance    int64      `db:"current_balance"     gorm:"column:current_balance;not null;default:0"`
	TotalEarned       int64      `db:"total_earned"        gorm:"column:total_earned;not null;default:0"`
	TotalWithdrawn    int64      `db:"total_withdrawn"     gorm:"column:total_withdrawn;not null;default:0"`
	LastTransactionAt *time.Time `db:"last_transaction_at" gorm:"column:last_transaction_at"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `db:"updated_at"          gorm:"column:updated_at;autoUpdateTime"`
}

func (WalletEntity) TableName() string {
	return "transport_wallets"
}

// WalletTransactionEntity rows are never updated or deleted.
type WalletTransactionEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	WalletID      int64     `db:"wallet_id"      gorm:"column:wallet_id;not null;index"`
	Type          string    `db:"type"           gorm:"column:type;not null;uniqueIndex:ux_wallet_tx_reference,priority:3"`
	ReferenceType string    `db:"reference_type" gorm:"column:reference_type;not null;uniqueIndex:ux_wallet_tx_reference,priority:1"`
	ReferenceID   int64     `db:"reference_id"   gorm:"column:reference_id;not null;uniqueIndex:ux_wallet_tx_reference,priority:2"`
	Amount        int64     `db:"amount"         gorm:"column:amount;not null"`
	BalanceAfter  int64     `db:"balance_after"  gorm:"column:balance_after;not null"`
	Note          string    `db:"note"           gorm:"column:note"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (WalletTransactionEntity) TableName() string {
	return "transport_wallet_transactions"
}

func toWalletModel(e *WalletEntity) *model.Wallet {
	return &model.Wallet{
		ID:                e.ID,
		TransportID:       e.TransportID,
		CurrentBalance:    e.CurrentBalance,
		TotalEarned:       e.TotalEarned,
		TotalWithdrawn:    e.TotalWithdrawn,
		LastTransactionAt: e.LastTransactionAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toWalletTransactionModel(e *WalletTransactionEntity) *model.WalletTransaction {
	return &model.WalletTransaction{
		ID:            e.ID,
		WalletID:      e.WalletID,
		Type:          model.WalletTransactionType(e.Type),
		ReferenceType: model.ReferenceType(e.ReferenceType),
		ReferenceID:   e.ReferenceID,
		Amount:        e.Amount,
		BalanceAfter:  e.BalanceAfter,
		Note:          e.Note,
		CreatedAt:     e.CreatedAt,
	}
}
