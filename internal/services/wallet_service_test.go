package services

import (
	"context"
	"testing"

	"github.com/home-express/finance-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settlementCredit(settlementID, amount int64) model.LedgerEntryRequest {
	return model.LedgerEntryRequest{
		TransportID:   testTransportID,
		Type:          model.WalletTxSettlementCredit,
		ReferenceType: model.ReferenceSettlement,
		ReferenceID:   settlementID,
		Amount:        amount,
	}
}

func TestWalletService_CreditIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.walletSvc.Credit(ctx, settlementCredit(1, 900_000))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(900_000), first.Transaction.BalanceAfter)

	second, err := env.walletSvc.Credit(ctx, settlementCredit(1, 900_000))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	w, err := env.walletSvc.GetWallet(ctx, testTransportID)
	require.NoError(t, err)
	assert.Equal(t, int64(900_000), w.CurrentBalance)
	assert.Equal(t, int64(900_000), w.TotalEarned)
}

func TestWalletService_DebitChecksBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.walletSvc.Credit(ctx, settlementCredit(1, 100_000))
	require.NoError(t, err)

	_, err = env.walletSvc.Debit(ctx, model.LedgerEntryRequest{
		TransportID:   testTransportID,
		Type:          model.WalletTxPayoutDebit,
		ReferenceType: model.ReferencePayout,
		ReferenceID:   1,
		Amount:        100_001,
	})
	assert.True(t, model.HasCode(err, model.CodeInsufficientBalance))
	assert.Equal(t, int64(100_000), env.balance(t, testTransportID))

	res, err := env.walletSvc.Debit(ctx, model.LedgerEntryRequest{
		TransportID:   testTransportID,
		Type:          model.WalletTxPayoutDebit,
		ReferenceType: model.ReferencePayout,
		ReferenceID:   1,
		Amount:        60_000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-60_000), res.Transaction.Amount)
	assert.Equal(t, int64(40_000), res.Wallet.CurrentBalance)
	assert.Equal(t, int64(60_000), res.Wallet.TotalWithdrawn)
}

func TestWalletService_RejectsWrongDirection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.walletSvc.Debit(ctx, settlementCredit(1, 10))
	assert.True(t, model.IsValidation(err))

	_, err = env.walletSvc.Credit(ctx, model.LedgerEntryRequest{
		TransportID: testTransportID, Type: model.WalletTxPayoutDebit,
		ReferenceType: model.ReferencePayout, ReferenceID: 1, Amount: 10,
	})
	assert.True(t, model.IsValidation(err))

	_, err = env.walletSvc.Credit(ctx, settlementCredit(1, 0))
	assert.True(t, model.HasCode(err, model.CodeInvalidAmount))
}

func TestWalletService_ReconcileHealthy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.readySettlement(t, 1, testTransportID, 900_000)
	env.readySettlement(t, 2, testTransportID, 400_000)
	_, err := env.walletSvc.Adjust(ctx, testTransportID, 1, 700_000, "goodwill")
	require.NoError(t, err)

	report, err := env.walletSvc.Reconcile(ctx, testTransportID)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, int64(2_000_000), report.LedgerBalance)
	assert.Equal(t, report.StoredBalance, report.LedgerBalance)
	assert.Equal(t, 3, report.EntryCount)

	entries, err := env.walletSvc.ListTransactions(ctx, testTransportID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, model.WalletTxAdjustmentCredit, entries[0].Type)
}

func TestWalletService_ReconcileFlagsMissingCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.readySettlement(t, 1, testTransportID, 500_000)
	st := env.readySettlement(t, 2, testTransportID, 300_000)
	// a READY settlement without its credit
	_, err := env.settlements.Create(ctx, &model.Settlement{
		BookingID: 3, TransportID: testTransportID, NetToTransport: 200_000, NetState: model.NetPositive,
		Status: model.SettlementStatusReady, ReadyAt: st.ReadyAt,
	})
	require.NoError(t, err)

	reports, err := env.walletSvc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].BalanceMatches)
	assert.False(t, reports[0].Healthy())
	require.Len(t, reports[0].MissingEntries, 1)
	assert.Equal(t, model.WalletTxSettlementCredit, reports[0].MissingEntries[0].Type)
}

func TestWalletService_GetWalletNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.walletSvc.GetWallet(context.Background(), 404)
	assert.True(t, model.IsNotFound(err))
}
