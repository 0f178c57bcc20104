package repository

import (
	"time"

	"github.com/home-express/finance-core/internal/model"
)

type CommissionRateEntity struct {
	TransportID int64     `db:"transport_id" gorm:"primaryKey;autoIncrement:false;column:transport_id"`
	RateBps     int64     `db:"rate_bps"     gorm:"column:rate_bps;not null"`
	UpdatedAt   time.Time `db:"updated_at"   gorm:"column:updated_at;autoUpdateTime"`
}

func (CommissionRateEntity) TableName() string {
	return "transport_commission_rates"
}

type BankAccountEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	TransportID   int64     `db:"transport_id"   gorm:"column:transport_id;not null;uniqueIndex"`
	BankCode      string    `db:"bank_code"      gorm:"column:bank_code;not null"`
	BankName      string    `db:"bank_name"      gorm:"column:bank_name"`
	AccountNumber string    `db:"account_number" gorm:"column:account_number;not null"`
	AccountHolder string    `db:"account_holder" gorm:"column:account_holder;not null"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `db:"updated_at"     gorm:"column:updated_at;autoUpdateTime"`
}

func (BankAccountEntity) TableName() string {
	return "transport_bank_accounts"
}

func toBankAccountModel(e *BankAccountEntity) *model.BankAccount {
	return &model.BankAccount{
		ID:          e.ID,
		TransportID: e.TransportID,
		BankDetails: model.BankDetails{
			BankCode:      e.BankCode,
			BankName:      e.BankName,
			AccountNumber: e.AccountNumber,
			AccountHolder: e.AccountHolder,
		},
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
