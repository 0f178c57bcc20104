package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/pkg/pg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTransportID int64 = 7

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e model.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) count(t model.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == t {
			c++
		}
	}
	return c
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, payout *model.Payout) (model.DispatchResult, error) {
	args := m.Called(ctx, payout)
	return args.Get(0).(model.DispatchResult), args.Error(1)
}

type testEnv struct {
	db       *pg.DB
	cfg      *config.Config
	notifier *recordingNotifier
	bank     *MockDispatcher

	bookings    *repository.BookingRepository
	payments    *repository.PaymentRepository
	settlements *repository.SettlementRepository
	wallets     *repository.WalletRepository
	payouts     *repository.PayoutRepository
	transports  *repository.TransportRepository

	commission    *CommissionService
	walletSvc     *WalletService
	settlementSvc *SettlementService
	bookingSvc    *BookingService
	paymentSvc    *PaymentService
	payoutSvc     *PayoutService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvOn(t, repository.OpenTestDB(t))
}

func newTestEnvOn(t *testing.T, db *pg.DB) *testEnv {
	t.Helper()
	cfg := config.Default()

	env := &testEnv{
		db:          db,
		cfg:         cfg,
		notifier:    &recordingNotifier{},
		bank:        new(MockDispatcher),
		bookings:    repository.NewBookingRepository(db),
		payments:    repository.NewPaymentRepository(db),
		settlements: repository.NewSettlementRepository(db),
		wallets:     repository.NewWalletRepository(db),
		payouts:     repository.NewPayoutRepository(db),
		transports:  repository.NewTransportRepository(db),
	}
	env.commission = NewCommissionService(env.transports, cfg)
	env.walletSvc = NewWalletService(db, env.wallets, NewLedgerSources(env.settlements, env.payouts))
	env.settlementSvc = NewSettlementService(db, env.bookings, env.payments, env.settlements, env.commission, env.walletSvc, env.notifier, cfg)
	env.bookingSvc = NewBookingService(db, env.bookings, env.payments, env.settlementSvc, env.notifier, cfg)
	env.paymentSvc = NewPaymentService(db, env.payments, env.bookingSvc, env.settlementSvc, env.commission, env.notifier)
	env.payoutSvc = NewPayoutService(db, env.payouts, env.settlements, env.transports, env.walletSvc, env.bank, env.notifier, cfg)
	return env
}

var customer = model.Actor{ID: 100, Role: model.ActorCustomer}

// quotedBooking returns a QUOTED booking with an accepted price and a signed contract.
func (e *testEnv) quotedBooking(t *testing.T, price int64) *model.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := e.bookingSvc.CreateBooking(ctx, customer.ID)
	require.NoError(t, err)
	b, err = e.bookingSvc.AcceptQuotation(ctx, model.AcceptQuotationRequest{
		BookingID:   b.ID,
		QuotationID: 900 + b.ID,
		TransportID: testTransportID,
		FinalPrice:  price,
		Actor:       customer,
	})
	require.NoError(t, err)
	_, err = e.bookingSvc.SignContract(ctx, b.ID)
	require.NoError(t, err)
	return b
}

// completedBooking walks a booking through a CASH deposit, the job, and a CASH remaining payment.
func (e *testEnv) completedBooking(t *testing.T, price int64) *model.Booking {
	t.Helper()
	ctx := context.Background()
	b := e.quotedBooking(t, price)

	_, err := e.paymentSvc.InitiateDeposit(ctx, b.ID, model.PaymentMethodCash, "")
	require.NoError(t, err)
	_, err = e.bookingSvc.StartJob(ctx, b.ID, model.Actor{ID: testTransportID, Role: model.ActorTransport})
	require.NoError(t, err)
	_, err = e.bookingSvc.CompleteJob(ctx, b.ID, model.Actor{ID: testTransportID, Role: model.ActorTransport})
	require.NoError(t, err)
	_, err = e.paymentSvc.InitiateRemainingPayment(ctx, b.ID, model.PaymentMethodCash, 0, "")
	require.NoError(t, err)

	b, err = e.bookingSvc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	return b
}

// readySettlement stores a READY settlement and credits its net amount, bypassing the booking flow.
func (e *testEnv) readySettlement(t *testing.T, bookingID, transportID, net int64) *model.Settlement {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	st, err := e.settlements.Create(ctx, &model.Settlement{
		BookingID:      bookingID,
		TransportID:    transportID,
		AgreedPrice:    net,
		TotalCollected: net,
		NetToTransport: net,
		NetState:       model.NetStateOf(net),
		CollectionMode: model.CollectionModeAllCash,
		Status:         model.SettlementStatusReady,
		ReadyAt:        &now,
	})
	require.NoError(t, err)
	_, err = e.walletSvc.Credit(ctx, model.LedgerEntryRequest{
		TransportID:   transportID,
		Type:          model.WalletTxSettlementCredit,
		ReferenceType: model.ReferenceSettlement,
		ReferenceID:   st.ID,
		Amount:        net,
	})
	require.NoError(t, err)
	return st
}

func (e *testEnv) balance(t *testing.T, transportID int64) int64 {
	t.Helper()
	w, err := e.walletSvc.GetWallet(context.Background(), transportID)
	if model.IsNotFound(err) {
		return 0
	}
	require.NoError(t, err)
	return w.CurrentBalance
}
