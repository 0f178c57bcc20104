package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// twoReadySettlements seeds 900,000 and 400,000 READY settlements on a wallet holding 2,000,000.
func twoReadySettlements(t *testing.T, env *testEnv) (*model.Settlement, *model.Settlement) {
	t.Helper()
	a := env.readySettlement(t, 1, testTransportID, 900_000)
	b := env.readySettlement(t, 2, testTransportID, 400_000)
	_, err := env.walletSvc.Adjust(context.Background(), testTransportID, 1, 700_000, "opening balance")
	require.NoError(t, err)
	return a, b
}

func TestPayoutService_CreateBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := twoReadySettlements(t, env)
	_, err := env.transports.UpsertBankAccount(ctx, testTransportID, model.BankDetails{
		BankCode: "VCB", BankName: "Vietcombank", AccountNumber: "0011", AccountHolder: "NGUYEN VAN A",
	})
	require.NoError(t, err)

	payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusPending, payout.Status)
	assert.Equal(t, int64(1_300_000), payout.TotalAmount)
	assert.Equal(t, 2, payout.ItemCount)
	assert.Regexp(t, `^PO-7-\d{14}$`, payout.PayoutNumber)
	require.NotNil(t, payout.BankDetails)
	assert.Equal(t, "0011", payout.BankDetails.AccountNumber)

	stored, err := env.payoutSvc.GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	var sum int64
	for _, item := range stored.Items {
		sum += item.Amount
	}
	assert.Equal(t, stored.TotalAmount, sum)

	for _, id := range []int64{a.BookingID, b.BookingID} {
		st, err := env.settlementSvc.GetByBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.SettlementStatusInPayout, st.Status)
		require.NotNil(t, st.PayoutID)
		assert.Equal(t, payout.ID, *st.PayoutID)
	}
	assert.Equal(t, int64(700_000), env.balance(t, testTransportID))

	_, err = env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	assert.True(t, model.HasCode(err, model.CodeNothingToPayout))
}

func TestPayoutService_CreateBatchRefusesShortWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.readySettlement(t, 1, testTransportID, 900_000)
	// READY but never credited
	now := time.Now().UTC()
	orphan, err := env.settlements.Create(ctx, &model.Settlement{
		BookingID: 2, TransportID: testTransportID, NetToTransport: 400_000, NetState: model.NetPositive,
		Status: model.SettlementStatusReady, ReadyAt: &now,
	})
	require.NoError(t, err)

	_, err = env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	assert.True(t, model.HasCode(err, model.CodeInsufficientBalance))

	st, err := env.settlementSvc.GetByBooking(ctx, orphan.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusReady, st.Status)
	assert.Nil(t, st.PayoutID)
	assert.Equal(t, int64(900_000), env.balance(t, testTransportID))

	list, err := env.payoutSvc.ListPayouts(ctx, model.PayoutFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPayoutService_RetryableFailureReleasesSettlements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := twoReadySettlements(t, env)

	payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)

	failed, err := env.payoutSvc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{
		PayoutID: payout.ID, Status: model.PayoutStatusFailed, FailureReason: "bank timeout", Retryable: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, failed.Status)
	assert.Equal(t, "bank timeout", *failed.FailureReason)

	for _, id := range []int64{a.BookingID, b.BookingID} {
		st, err := env.settlementSvc.GetByBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.SettlementStatusReady, st.Status)
		assert.Nil(t, st.PayoutID)
		assert.Equal(t, 1, st.PayoutAttempts)
	}
	assert.Equal(t, int64(2_000_000), env.balance(t, testTransportID))

	reversed, err := env.walletSvc.HasEntry(ctx, model.ReferencePayout, payout.ID, model.WalletTxReversal)
	require.NoError(t, err)
	assert.True(t, reversed)

	// the released settlements can be batched again
	again, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_300_000), again.TotalAmount)
	assert.NotEqual(t, payout.PayoutNumber, again.PayoutNumber)

	report, err := env.walletSvc.Reconcile(ctx, testTransportID)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
}

func TestPayoutService_NonRetryableFailureHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := twoReadySettlements(t, env)

	payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)
	_, err = env.payoutSvc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{PayoutID: payout.ID, Status: model.PayoutStatusFailed})
	require.NoError(t, err)

	st, err := env.settlementSvc.GetByBooking(ctx, a.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusOnHold, st.Status)
	require.NotNil(t, st.OnHoldReason)
	assert.Equal(t, env.cfg.PayoutDefaultFailure, *st.OnHoldReason)
	assert.Nil(t, st.PayoutID)
	assert.Equal(t, int64(2_000_000), env.balance(t, testTransportID))

	// a repeated FAILED is a no-op, COMPLETED after FAILED is refused
	_, err = env.payoutSvc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{PayoutID: payout.ID, Status: model.PayoutStatusFailed})
	require.NoError(t, err)
	_, err = env.payoutSvc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{PayoutID: payout.ID, Status: model.PayoutStatusCompleted})
	assert.True(t, model.HasCode(err, model.CodeTerminalState))
	assert.Equal(t, int64(2_000_000), env.balance(t, testTransportID))
}

func TestPayoutService_RetryLimitHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.cfg.PayoutMaxRetries = 2
	env.payoutSvc.maxRetries = 2
	st := env.readySettlement(t, 1, testTransportID, 500_000)

	for attempt := 1; attempt <= 2; attempt++ {
		payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
		require.NoError(t, err, "attempt %d", attempt)
		_, err = env.payoutSvc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{
			PayoutID: payout.ID, Status: model.PayoutStatusFailed, FailureReason: "bank busy", Retryable: true,
		})
		require.NoError(t, err)
	}

	held, err := env.settlementSvc.GetByBooking(ctx, st.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusOnHold, held.Status)
	assert.Equal(t, "payout retry limit reached: bank busy", *held.OnHoldReason)
	assert.Equal(t, 2, held.PayoutAttempts)

	_, err = env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	assert.True(t, model.HasCode(err, model.CodeNothingToPayout))
}

func TestPayoutService_CompleteMarksPaidWithoutSecondDebit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := twoReadySettlements(t, env)

	payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)

	done, err := env.payoutSvc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{
		PayoutID: payout.ID, Status: model.PayoutStatusCompleted, TransactionReference: "BANK-77",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.NotNil(t, done.ProcessedAt)
	assert.Equal(t, "BANK-77", *done.TransactionReference)

	_, err = env.payoutSvc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{PayoutID: payout.ID, Status: model.PayoutStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(700_000), env.balance(t, testTransportID))

	for _, id := range []int64{a.BookingID, b.BookingID} {
		st, err := env.settlementSvc.GetByBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.SettlementStatusPaid, st.Status)
		assert.NotNil(t, st.PaidAt)
	}

	w, err := env.walletSvc.GetWallet(ctx, testTransportID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_300_000), w.TotalWithdrawn)
}

func TestPayoutService_ProcessDispatchSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	twoReadySettlements(t, env)
	payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)

	env.bank.On("Dispatch", mock.Anything, mock.MatchedBy(func(p *model.Payout) bool {
		return p.ID == payout.ID && len(p.Items) == 2
	})).Return(model.DispatchResult{Success: true, TransactionRef: "TRX-1"}, nil).Once()

	processing, err := env.payoutSvc.ProcessPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusProcessing, processing.Status)
	assert.Equal(t, "TRX-1", *processing.TransactionReference)

	// a reference is already known, nothing is dispatched again
	again, err := env.payoutSvc.ProcessPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusProcessing, again.Status)
	env.bank.AssertExpectations(t)
}

func TestPayoutService_ProcessDispatchRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := twoReadySettlements(t, env)
	payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)

	env.bank.On("Dispatch", mock.Anything, mock.Anything).
		Return(model.DispatchResult{Reason: "account closed"}, nil).Once()

	res, err := env.payoutSvc.ProcessPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, res.Status)
	assert.Equal(t, "account closed", *res.FailureReason)

	st, err := env.settlementSvc.GetByBooking(ctx, a.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusOnHold, st.Status)
	assert.Equal(t, int64(2_000_000), env.balance(t, testTransportID))
}

func TestPayoutService_ProcessDispatchErrorIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := twoReadySettlements(t, env)
	payout, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
	require.NoError(t, err)

	env.bank.On("Dispatch", mock.Anything, mock.Anything).
		Return(model.DispatchResult{}, errors.New("connection reset")).Once()

	res, err := env.payoutSvc.ProcessPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, res.Status)

	st, err := env.settlementSvc.GetByBooking(ctx, a.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusReady, st.Status)
	assert.Nil(t, st.PayoutID)
}

func TestPayoutService_PayoutNumberSuffix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fixed := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	env.payoutSvc.now = func() time.Time { return fixed }

	numbers := make([]string, 0, 3)
	for i := int64(1); i <= 3; i++ {
		env.readySettlement(t, i, testTransportID, 100_000)
		p, err := env.payoutSvc.CreatePayoutBatch(ctx, testTransportID)
		require.NoError(t, err)
		numbers = append(numbers, p.PayoutNumber)
	}
	assert.Equal(t, []string{"PO-7-20261019083000", "PO-7-20261019083000-1", "PO-7-20261019083000-2"}, numbers)
}

func TestPayoutService_UpdateRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.payoutSvc.UpdatePayoutStatus(context.Background(), model.PayoutStatusUpdate{PayoutID: 1, Status: model.PayoutStatusPending})
	assert.True(t, model.IsValidation(err))
	_, err = env.payoutSvc.UpdatePayoutStatus(context.Background(), model.PayoutStatusUpdate{PayoutID: 404, Status: model.PayoutStatusFailed})
	assert.True(t, model.IsNotFound(err))
}

func TestPayoutService_AutoSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.readySettlement(t, 1, testTransportID, 600_000)
	env.readySettlement(t, 2, 8, 100_000)

	env.bank.On("Dispatch", mock.Anything, mock.Anything).
		Return(model.DispatchResult{Success: true, TransactionRef: "SWEEP-1"}, nil).Once()

	summary, err := env.payoutSvc.AutoSweep(ctx, env.cfg.AutoSweepMinBalanceVND)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Transports)
	assert.Equal(t, 1, summary.BatchesIssued)
	assert.Equal(t, 1, summary.BelowMinimum)
	require.Len(t, summary.PayoutIDs, 1)

	p, err := env.payoutSvc.GetPayout(ctx, summary.PayoutIDs[0])
	require.NoError(t, err)
	assert.Equal(t, testTransportID, p.TransportID)
	assert.Equal(t, model.PayoutStatusProcessing, p.Status)
	env.bank.AssertExpectations(t)
}
