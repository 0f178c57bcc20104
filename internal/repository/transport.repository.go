package repository

import (
	"context"
	"errors"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBankAccountNotFound = errors.New("bank account not found")

// TransportRepository holds the per-transport financial settings.
type TransportRepository struct {
	*pg.DB
}

func NewTransportRepository(db *pg.DB) *TransportRepository {
	return &TransportRepository{
		db,
	}
}

// CommissionRate returns the stored rate and false when the transport has none.
func (r *TransportRepository) CommissionRate(ctx context.Context, transportID int64) (int64, bool, error) {
	var entity CommissionRateEntity
	err := r.Read(ctx).Where("transport_id = ?", transportID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return entity.RateBps, true, nil
}

func (r *TransportRepository) SetCommissionRate(ctx context.Context, transportID, rateBps int64) error {
	entity := &CommissionRateEntity{TransportID: transportID, RateBps: rateBps}
	return r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transport_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate_bps", "updated_at"}),
	}).Create(entity).Error
}

func (r *TransportRepository) BankAccount(ctx context.Context, transportID int64) (*model.BankAccount, error) {
	var entity BankAccountEntity
	err := r.Read(ctx).Where("transport_id = ?", transportID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBankAccountNotFound
		}
		return nil, err
	}
	return toBankAccountModel(&entity), nil
}

func (r *TransportRepository) UpsertBankAccount(ctx context.Context, transportID int64, details model.BankDetails) (*model.BankAccount, error) {
	entity := &BankAccountEntity{
		TransportID:   transportID,
		BankCode:      details.BankCode,
		BankName:      details.BankName,
		AccountNumber: details.AccountNumber,
		AccountHolder: details.AccountHolder,
	}
	err := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transport_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"bank_code", "bank_name", "account_number", "account_holder", "updated_at"}),
	}).Create(entity).Error
	if err != nil {
		return nil, err
	}
	return r.BankAccount(ctx, transportID)
}
