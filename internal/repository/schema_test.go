package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/home-express/finance-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const migrationsDir = "../../migrations"

func TestMigratedSchema_HasEveryEntityColumn(t *testing.T) {
	db := OpenMigratedTestDB(t, migrationsDir)
	gdb := db.Write(context.Background())

	for _, e := range Entities() {
		stmt := &gorm.Statement{DB: gdb}
		require.NoError(t, stmt.Parse(e))
		require.True(t, gdb.Migrator().HasTable(e), stmt.Schema.Table)
		for _, f := range stmt.Schema.Fields {
			if f.DBName == "" {
				continue
			}
			assert.True(t, gdb.Migrator().HasColumn(e, f.DBName), "%s.%s", stmt.Schema.Table, f.DBName)
		}
	}
}

func TestMigratedSchema_LedgerSigns(t *testing.T) {
	db := OpenMigratedTestDB(t, migrationsDir)
	repo := NewWalletRepository(db)
	ctx := context.Background()
	w, err := repo.GetOrCreateForUpdate(ctx, 7)
	require.NoError(t, err)

	entry := func(ref int64, typ model.WalletTransactionType, amount, after int64) error {
		_, err := repo.CreateEntry(ctx, &model.WalletTransaction{
			WalletID: w.ID, Type: typ, ReferenceType: model.ReferencePayout, ReferenceID: ref,
			Amount: amount, BalanceAfter: after,
		})
		return err
	}

	require.NoError(t, entry(1, model.WalletTxSettlementCredit, 900_000, 900_000))
	require.NoError(t, entry(2, model.WalletTxPayoutDebit, -900_000, 0))
	require.NoError(t, entry(2, model.WalletTxReversal, 900_000, 900_000))

	assert.Error(t, entry(3, model.WalletTxPayoutDebit, 100, 0), "debits are stored negative")
	assert.Error(t, entry(4, model.WalletTxSettlementCredit, -100, 0), "credits are stored positive")
	assert.Error(t, entry(5, model.WalletTxAdjustmentCredit, 0, 0))

	sum, count, err := repo.LedgerSum(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900_000), sum)
	assert.Equal(t, int64(3), count)
}

func TestMigratedSchema_LedgerIsAppendOnly(t *testing.T) {
	db := OpenMigratedTestDB(t, migrationsDir)
	repo := NewWalletRepository(db)
	ctx := context.Background()
	w, err := repo.GetOrCreateForUpdate(ctx, 7)
	require.NoError(t, err)
	tx, err := repo.CreateEntry(ctx, &model.WalletTransaction{
		WalletID: w.ID, Type: model.WalletTxSettlementCredit, ReferenceType: model.ReferenceSettlement, ReferenceID: 1,
		Amount: 500_000, BalanceAfter: 500_000,
	})
	require.NoError(t, err)

	gdb := db.Write(ctx)
	err = gdb.Model(&WalletTransactionEntity{}).Where("id = ?", tx.ID).Update("amount", 1).Error
	assert.ErrorContains(t, err, "append-only")
	err = gdb.Delete(&WalletTransactionEntity{}, tx.ID).Error
	assert.ErrorContains(t, err, "append-only")
}

func TestMigratedSchema_PaymentColumnsFitEveryType(t *testing.T) {
	db := OpenMigratedTestDB(t, migrationsDir)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	for _, typ := range []model.PaymentType{
		model.PaymentTypeDeposit, model.PaymentTypeRemainingPayment, model.PaymentTypeTip, model.PaymentTypeRefund,
	} {
		_, err := repo.Create(ctx, &model.Payment{
			BookingID: 1, Type: typ, Method: model.PaymentMethodBankTransfer, Amount: 700_000,
			Status: model.PaymentStatusProcessing, IdempotencyKey: "key-" + string(typ),
		})
		require.NoError(t, err, typ)
	}

	_, err := repo.Create(ctx, &model.Payment{
		BookingID: 1, Type: model.PaymentType(strings.Repeat("X", 33)), Method: model.PaymentMethodCash,
		Amount: 1, Status: model.PaymentStatusPending, IdempotencyKey: "too-long",
	})
	assert.Error(t, err, "column lengths are enforced")
}
