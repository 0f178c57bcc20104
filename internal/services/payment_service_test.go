package services

import (
	"context"
	"errors"
	"testing"

	"github.com/home-express/finance-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentService_CashDepositCompletesAndConfirmsBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	res, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "")
	require.NoError(t, err)
	assert.False(t, res.AlreadyPaid)
	assert.False(t, res.Replayed)
	assert.Equal(t, model.PaymentStatusCompleted, res.Payment.Status)
	assert.Equal(t, int64(300_000), res.Payment.Amount)
	assert.NotNil(t, res.Payment.PaidAt)
	assert.Nil(t, res.Payment.OrderCode)

	booking, err := env.bookingSvc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, booking.Status)

	st, err := env.settlementSvc.GetByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), st.DepositPaid)
	assert.Equal(t, testTransportID, st.TransportID)
	assert.Equal(t, 1, env.notifier.count(model.EventPaymentCompleted))
}

func TestPaymentService_DepositWithoutContractSkipsAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.bookingSvc.CreateBooking(ctx, customer.ID)
	require.NoError(t, err)
	_, err = env.bookingSvc.AcceptQuotation(ctx, model.AcceptQuotationRequest{
		BookingID: b.ID, QuotationID: 1, TransportID: testTransportID, FinalPrice: 1_000_000, Actor: customer,
	})
	require.NoError(t, err)

	res, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, res.Payment.Status)

	booking, err := env.bookingSvc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusQuoted, booking.Status)
}

func TestPaymentService_MissingPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.bookingSvc.CreateBooking(ctx, customer.ID)
	require.NoError(t, err)

	_, err = env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "")
	assert.True(t, model.HasCode(err, model.CodeMissingPrice))

	_, err = env.paymentSvc.InitiateDeposit(ctx, 404, model.PaymentMethodCash, "")
	assert.True(t, model.IsNotFound(err))

	_, err = env.paymentSvc.InitiateDeposit(ctx, b.ID, "CHEQUE", "")
	assert.True(t, model.IsValidation(err))
}

func TestPaymentService_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	first, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodBankTransfer, "deposit-key")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, first.Payment.Status)

	second, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodBankTransfer, "deposit-key")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)

	all, err := env.paymentSvc.ListBookingPayments(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPaymentService_InitializePaymentReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)
	req := model.InitializePaymentRequest{
		BookingID: b.ID, Type: model.PaymentTypeTip, Method: model.PaymentMethodCash,
		Amount: 20_000, IdempotencyKey: "tip-1",
	}

	first, err := env.paymentSvc.InitializePayment(ctx, req)
	require.NoError(t, err)
	second, err := env.paymentSvc.InitializePayment(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)

	req.Amount = 0
	_, err = env.paymentSvc.InitializePayment(ctx, req)
	assert.True(t, model.HasCode(err, model.CodeInvalidAmount))
}

func TestPaymentService_AlreadyPaidIsNotAnError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	paid, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "a")
	require.NoError(t, err)

	res, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodBankTransfer, "b")
	require.NoError(t, err)
	assert.True(t, res.AlreadyPaid)
	assert.Equal(t, paid.Payment.ID, res.Payment.ID)

	all, err := env.paymentSvc.ListBookingPayments(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPaymentService_ConfirmTwiceCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	transport := model.Actor{ID: testTransportID, Role: model.ActorTransport}
	b := env.quotedBooking(t, 1_000_000)

	_, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "")
	require.NoError(t, err)
	_, err = env.bookingSvc.StartJob(ctx, b.ID, transport)
	require.NoError(t, err)
	_, err = env.bookingSvc.CompleteJob(ctx, b.ID, transport)
	require.NoError(t, err)

	res, err := env.paymentSvc.InitiateRemainingPayment(ctx, b.ID, model.PaymentMethodBankTransfer, 0, "rem")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusPending, res.Payment.Status)
	assert.Equal(t, int64(700_000), res.Payment.Amount)

	confirmedBy := int64(1)
	first, err := env.paymentSvc.ConfirmPayment(ctx, model.ConfirmPaymentRequest{PaymentID: res.Payment.ID, TransactionID: "FT-1", ConfirmedBy: &confirmedBy})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, first.Status)
	assert.Equal(t, "FT-1", *first.TransactionID)

	_, err = env.bookingSvc.ConfirmCompletion(ctx, b.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(900_000), env.balance(t, testTransportID))

	second, err := env.paymentSvc.ConfirmPayment(ctx, model.ConfirmPaymentRequest{PaymentID: res.Payment.ID, TransactionID: "FT-2"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, second.Status)
	assert.Equal(t, "FT-1", *second.TransactionID)
	assert.Equal(t, first.PaidAt.Unix(), second.PaidAt.Unix())
	assert.Equal(t, int64(900_000), env.balance(t, testTransportID))
	assert.Equal(t, 2, env.notifier.count(model.EventPaymentCompleted))
}

func TestPaymentService_GatewayConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	res, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodPayOS, "payos-1")
	require.NoError(t, err)
	require.NotNil(t, res.Payment.OrderCode)
	code := *res.Payment.OrderCode

	_, err = env.paymentSvc.ConfirmGatewayPayment(ctx, model.GatewayConfirmation{OrderCode: code, PaidAmount: 299_999, Reference: "R1"})
	assert.True(t, model.HasCode(err, model.CodeAmountMismatch))
	p, err := env.paymentSvc.GetPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, p.Status)

	p, err = env.paymentSvc.ConfirmGatewayPayment(ctx, model.GatewayConfirmation{OrderCode: code, PaidAmount: 300_000, Reference: "R1"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "R1", *p.TransactionID)

	// a late webhook with a different amount is still a replay
	p, err = env.paymentSvc.ConfirmGatewayPayment(ctx, model.GatewayConfirmation{OrderCode: code, PaidAmount: 1, Reference: "R2"})
	require.NoError(t, err)
	assert.Equal(t, "R1", *p.TransactionID)

	_, err = env.paymentSvc.ConfirmGatewayPayment(ctx, model.GatewayConfirmation{OrderCode: "nope", PaidAmount: 1})
	assert.True(t, model.IsNotFound(err))
}

func TestPaymentService_ConfirmFailedPaymentRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	res, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodBankTransfer, "")
	require.NoError(t, err)
	_, err = env.bookingSvc.Cancel(ctx, b.ID, customer, "")
	require.NoError(t, err)

	_, err = env.paymentSvc.ConfirmPayment(ctx, model.ConfirmPaymentRequest{PaymentID: res.Payment.ID})
	assert.True(t, model.HasCode(err, model.CodeInvalidStatus))

	_, err = env.paymentSvc.ConfirmPayment(ctx, model.ConfirmPaymentRequest{PaymentID: 404})
	assert.True(t, model.IsNotFound(err))
}

func TestPaymentService_RemainingWithTip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	_, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "")
	require.NoError(t, err)
	res, err := env.paymentSvc.InitiateRemainingPayment(ctx, b.ID, model.PaymentMethodCash, 50_000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(750_000), res.Payment.Amount)
	assert.Equal(t, int64(50_000), res.Payment.TipAmount)

	st, err := env.settlementSvc.GetByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700_000), st.RemainingPaid)
	assert.Equal(t, int64(50_000), st.TipPaid)
	assert.Equal(t, int64(1_050_000), st.TotalCollected)
	assert.Equal(t, int64(950_000), st.NetToTransport)

	_, err = env.paymentSvc.InitiateRemainingPayment(ctx, b.ID, model.PaymentMethodCash, -1, "")
	assert.True(t, model.HasCode(err, model.CodeInvalidAmount))
}

func TestPaymentService_DepositPercentIsSnapshotted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_001)

	dep, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "")
	require.NoError(t, err)
	assert.Equal(t, int64(300_001), dep.Payment.Amount)

	env.bookingSvc.depositBps = 5000
	rem, err := env.paymentSvc.InitiateRemainingPayment(ctx, b.ID, model.PaymentMethodCash, 0, "")
	require.NoError(t, err)
	assert.Equal(t, int64(700_000), rem.Payment.Amount)
	assert.Equal(t, int64(1_000_001), dep.Payment.Amount+rem.Payment.Amount)
}

func TestPaymentService_CashCompletionFailureLeavesNoPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	effects := env.paymentSvc.effects
	env.paymentSvc.effects = append([]completionEffect{{
		name:  "settlement_store",
		apply: func(context.Context, *model.Payment) error { return errors.New("settlement store down") },
	}}, effects...)

	_, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "k1")
	require.Error(t, err)
	all, err := env.paymentSvc.ListBookingPayments(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, env.notifier.count(model.EventPaymentCompleted))

	env.paymentSvc.effects = effects
	res, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "k1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, model.PaymentStatusCompleted, res.Payment.Status)

	all, err = env.paymentSvc.ListBookingPayments(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.PaymentStatusCompleted, all[0].Status)
	assert.Equal(t, 1, env.notifier.count(model.EventPaymentCompleted))
}

func TestPaymentService_ReplayCompletesPendingCash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	pending, err := env.paymentSvc.InitializePayment(ctx, model.InitializePaymentRequest{
		BookingID: b.ID, Type: model.PaymentTypeDeposit, Method: model.PaymentMethodCash,
		Amount: 300_000, IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusPending, pending.Payment.Status)

	res, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "k1")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, pending.Payment.ID, res.Payment.ID)
	assert.Equal(t, model.PaymentStatusCompleted, res.Payment.Status)

	st, err := env.settlementSvc.GetByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), st.DepositPaid)
}

func TestPaymentService_KeylessRetryReusesOpenPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.quotedBooking(t, 1_000_000)

	first, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodPayOS, "")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodPayOS, "")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, *first.Payment.OrderCode, *second.Payment.OrderCode)

	// another method is another attempt
	other, err := env.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodBankTransfer, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Payment.ID, other.Payment.ID)

	all, err := env.paymentSvc.ListBookingPayments(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
