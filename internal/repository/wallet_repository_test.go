package repository

import (
	"context"
	"testing"

	"github.com/home-express/finance-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletRepository_GetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.FindByTransportID(ctx, 1)
	assert.ErrorIs(t, err, ErrWalletNotFound)

	w1, err := repo.GetOrCreateForUpdate(ctx, 1)
	require.NoError(t, err)
	w2, err := repo.GetOrCreateForUpdate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)
	assert.Zero(t, w2.CurrentBalance)
}

func TestWalletRepository_Entries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	w, err := repo.GetOrCreateForUpdate(ctx, 1)
	require.NoError(t, err)

	_, err = repo.CreateEntry(ctx, &model.WalletTransaction{
		WalletID: w.ID, Type: model.WalletTxSettlementCredit, ReferenceType: model.ReferenceSettlement, ReferenceID: 11,
		Amount: 900_000, BalanceAfter: 900_000,
	})
	require.NoError(t, err)

	t.Run("duplicate reference is rejected", func(t *testing.T) {
		_, err := repo.CreateEntry(ctx, &model.WalletTransaction{
			WalletID: w.ID, Type: model.WalletTxSettlementCredit, ReferenceType: model.ReferenceSettlement, ReferenceID: 11,
			Amount: 900_000, BalanceAfter: 1_800_000,
		})
		assert.ErrorIs(t, err, ErrDuplicateLedgerEntry)
	})

	_, err = repo.CreateEntry(ctx, &model.WalletTransaction{
		WalletID: w.ID, Type: model.WalletTxPayoutDebit, ReferenceType: model.ReferencePayout, ReferenceID: 3,
		Amount: -400_000, BalanceAfter: 500_000,
	})
	require.NoError(t, err)

	found, err := repo.FindEntry(ctx, model.ReferenceSettlement, 11, model.WalletTxSettlementCredit)
	require.NoError(t, err)
	assert.Equal(t, int64(900_000), found.Amount)

	_, err = repo.FindEntry(ctx, model.ReferencePayout, 3, model.WalletTxReversal)
	assert.ErrorIs(t, err, ErrLedgerEntryNotFound)

	sum, count, err := repo.LedgerSum(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), sum)
	assert.Equal(t, int64(2), count)

	entries, err := repo.ListEntries(ctx, w.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.WalletTxPayoutDebit, entries[0].Type)

	refs, err := repo.EntryRefs(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestWalletRepository_LedgerSumEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)

	sum, count, err := repo.LedgerSum(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, sum)
	assert.Zero(t, count)
}
