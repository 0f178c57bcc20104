package repository

import (
	"context"
	"errors"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrLedgerEntryNotFound  = errors.New("ledger entry not found")
	ErrDuplicateLedgerEntry = errors.New("ledger entry already exists for reference")
)

type WalletRepository struct {
	*pg.DB
}

func NewWalletRepository(db *pg.DB) *WalletRepository {
	return &WalletRepository{
		db,
	}
}

func (r *WalletRepository) FindByTransportID(ctx context.Context, transportID int64) (*model.Wallet, error) {
	var entity WalletEntity
	if err := r.Read(ctx).Where("transport_id = ?", transportID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return toWalletModel(&entity), nil
}

// GetOrCreateForUpdate returns the transport's wallet locked for the current
// transaction, creating an empty one on first use.
func (r *WalletRepository) GetOrCreateForUpdate(ctx context.Context, transportID int64) (*model.Wallet, error) {
	var entity WalletEntity
	err := r.ForUpdate(ctx).Where("transport_id = ?", transportID).First(&entity).Error
	if err == nil {
		return toWalletModel(&entity), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	entity = WalletEntity{TransportID: transportID}
	if err := r.Write(ctx).Create(&entity).Error; err != nil {
		return nil, err
	}
	return toWalletModel(&entity), nil
}

func (r *WalletRepository) UpdateBalance(ctx context.Context, w *model.Wallet) error {
	result := r.Write(ctx).Model(&WalletEntity{}).
		Where("id = ?", w.ID).
		Updates(map[string]any{
			"current_balance":     w.CurrentBalance,
			"total_earned":        w.TotalEarned,
			"total_withdrawn":     w.TotalWithdrawn,
			"last_transaction_at": w.LastTransactionAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *WalletRepository) FindEntry(ctx context.Context, refType model.ReferenceType, refID int64, txType model.WalletTransactionType) (*model.WalletTransaction, error) {
	var entity WalletTransactionEntity
	err := r.Read(ctx).
		Where("reference_type = ? AND reference_id = ? AND type = ?", string(refType), refID, string(txType)).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, err
	}
	return toWalletTransactionModel(&entity), nil
}

func (r *WalletRepository) CreateEntry(ctx context.Context, tx *model.WalletTransaction) (*model.WalletTransaction, error) {
	entity := &WalletTransactionEntity{
		WalletID:      tx.WalletID,
		Type:          string(tx.Type),
		ReferenceType: string(tx.ReferenceType),
		ReferenceID:   tx.ReferenceID,
		Amount:        tx.Amount,
		BalanceAfter:  tx.BalanceAfter,
		Note:          tx.Note,
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateLedgerEntry
		}
		return nil, err
	}
	return toWalletTransactionModel(entity), nil
}

func (r *WalletRepository) ListEntries(ctx context.Context, walletID int64, limit, offset int) ([]*model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var entities []*WalletTransactionEntity
	err := r.Read(ctx).
		Where("wallet_id = ?", walletID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.WalletTransaction, len(entities))
	for i, e := range entities {
		out[i] = toWalletTransactionModel(e)
	}
	return out, nil
}

// LedgerSum replays the wallet's ledger.
func (r *WalletRepository) LedgerSum(ctx context.Context, walletID int64) (sum int64, count int64, err error) {
	var row struct {
		Sum   int64
		Count int64
	}
	err = r.Read(ctx).Model(&WalletTransactionEntity{}).
		Select("COALESCE(SUM(amount), 0) AS sum, COUNT(*) AS count").
		Where("wallet_id = ?", walletID).
		Scan(&row).Error
	return row.Sum, row.Count, err
}

func (r *WalletRepository) EntryRefs(ctx context.Context, walletID int64) ([]model.LedgerRef, error) {
	var entities []*WalletTransactionEntity
	err := r.Read(ctx).
		Select("reference_type", "reference_id", "type").
		Where("wallet_id = ?", walletID).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	refs := make([]model.LedgerRef, len(entities))
	for i, e := range entities {
		refs[i] = model.LedgerRef{
			ReferenceType: model.ReferenceType(e.ReferenceType),
			ReferenceID:   e.ReferenceID,
			Type:          model.WalletTransactionType(e.Type),
		}
	}
	return refs, nil
}

func (r *WalletRepository) ListWallets(ctx context.Context) ([]*model.Wallet, error) {
	var entities []*WalletEntity
	if err := r.Read(ctx).Order("transport_id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Wallet, len(entities))
	for i, e := range entities {
		out[i] = toWalletModel(e)
	}
	return out, nil
}
