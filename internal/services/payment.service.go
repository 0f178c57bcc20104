package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/prom"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) (*model.Payment, error)
	FindByID(ctx context.Context, id int64) (*model.Payment, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Payment, error)
	FindByOrderCode(ctx context.Context, orderCode string) (*model.Payment, error)
	FindByOrderCodeForUpdate(ctx context.Context, orderCode string) (*model.Payment, error)
	FindByIdempotencyKey(ctx context.Context, bookingID int64, key string) (*model.Payment, error)
	ListByBooking(ctx context.Context, bookingID int64, statuses ...model.PaymentStatus) ([]*model.Payment, error)
	Update(ctx context.Context, payment *model.Payment) error
}

// PaymentBookings is the part of the booking state machine payments drive.
type PaymentBookings interface {
	GetBooking(ctx context.Context, bookingID int64) (*model.Booking, error)
	LockBooking(ctx context.Context, bookingID int64) (*model.Booking, error)
	DepositPercent(ctx context.Context, bookingID int64) (int64, error)
	AdvanceOnDeposit(ctx context.Context, bookingID int64) (bool, error)
}

type BreakdownRefresher interface {
	RefreshBreakdown(ctx context.Context, bookingID int64) (*model.Settlement, error)
}

// completionEffect runs inside the transaction that marks a payment COMPLETED.
// Each effect must be safe to run again for the same payment.
type completionEffect struct {
	name  string
	apply func(ctx context.Context, p *model.Payment) error
}

type PaymentService struct {
	uow         unitOfWork
	payments    PaymentRepository
	bookings    PaymentBookings
	settlements BreakdownRefresher
	commission  *CommissionService
	effects     []completionEffect
	now         func() time.Time
}

func NewPaymentService(tx Transactor, payments PaymentRepository, bookings PaymentBookings,
	settlements BreakdownRefresher, commission *CommissionService, notifier Notifier) *PaymentService {
	s := &PaymentService{
		uow:         newUnitOfWork(tx, notifier),
		payments:    payments,
		bookings:    bookings,
		settlements: settlements,
		commission:  commission,
		now:         time.Now,
	}
	s.effects = []completionEffect{
		{name: "settlement_breakdown", apply: s.refreshSettlement},
		{name: "booking_advance", apply: s.advanceBooking},
	}
	return s
}

// InitializePayment creates a PENDING payment, or returns the one already
// recorded under the same idempotency key for the booking.
func (s *PaymentService) InitializePayment(ctx context.Context, req model.InitializePaymentRequest) (*model.InitiationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.payments.FindByIdempotencyKey(ctx, req.BookingID, req.IdempotencyKey); err == nil {
		logger.Info("payment replayed", "payment_id", existing.ID, "booking_id", req.BookingID, "idempotency_key", req.IdempotencyKey)
		return &model.InitiationResult{Payment: existing, Replayed: true}, nil
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, fmt.Errorf("find payment by idempotency key: %w", err)
	}

	booking, err := s.bookings.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == model.BookingStatusCancelled {
		return nil, model.NewStateError(model.CodeInvalidStatus, "booking %d is CANCELLED", booking.ID)
	}

	payment := &model.Payment{
		BookingID:      req.BookingID,
		Type:           req.Type,
		Method:         req.Method,
		Amount:         req.Amount,
		TipAmount:      req.TipAmount,
		Status:         model.PaymentStatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.Method.Online() {
		code := uuid.NewString()
		payment.OrderCode = &code
	}

	created, err := s.payments.Create(ctx, payment)
	if errors.Is(err, repository.ErrDuplicatePayment) {
		existing, err := s.payments.FindByIdempotencyKey(ctx, req.BookingID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("reload replayed payment: %w", err)
		}
		return &model.InitiationResult{Payment: existing, Replayed: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	logger.Info("payment initialized",
		"payment_id", created.ID, "booking_id", created.BookingID,
		"type", created.Type, "method", created.Method, "amount", created.Amount)
	return &model.InitiationResult{Payment: created}, nil
}

// InitiateDeposit charges the deposit percentage of the final price. CASH completes at once.
func (s *PaymentService) InitiateDeposit(ctx context.Context, bookingID int64, method model.PaymentMethod, idempotencyKey string) (*model.InitiationResult, error) {
	return s.initiate(ctx, bookingID, model.PaymentTypeDeposit, method, 0, idempotencyKey)
}

// InitiateRemainingPayment charges what the deposit left of the final price, plus the tip.
func (s *PaymentService) InitiateRemainingPayment(ctx context.Context, bookingID int64, method model.PaymentMethod, tip int64, idempotencyKey string) (*model.InitiationResult, error) {
	if tip < 0 {
		return nil, model.NewValidationError(model.CodeInvalidAmount, "tip must not be negative, got %d", tip)
	}
	return s.initiate(ctx, bookingID, model.PaymentTypeRemainingPayment, method, tip, idempotencyKey)
}

func (s *PaymentService) initiate(ctx context.Context, bookingID int64, paymentType model.PaymentType,
	method model.PaymentMethod, tip int64, idempotencyKey string) (*model.InitiationResult, error) {
	if !method.Valid() {
		return nil, model.NewValidationError(model.CodeValidationFailed, "unsupported payment method %q", method)
	}
	if idempotencyKey == "" {
		// a key-less retry resumes the open attempt instead of opening another one
		open, err := s.openOfType(ctx, bookingID, paymentType, method)
		if err != nil {
			return nil, err
		}
		if open != nil {
			return s.completeCash(ctx, &model.InitiationResult{Payment: open, Replayed: true})
		}
		idempotencyKey = uuid.NewString()
	}

	if existing, err := s.payments.FindByIdempotencyKey(ctx, bookingID, idempotencyKey); err == nil {
		return s.completeCash(ctx, &model.InitiationResult{Payment: existing, Replayed: true})
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, fmt.Errorf("find payment by idempotency key: %w", err)
	}

	if paid, err := s.completedOfType(ctx, bookingID, paymentType); err != nil {
		return nil, err
	} else if paid != nil {
		logger.Info("payment already completed", "booking_id", bookingID, "type", paymentType, "payment_id", paid.ID)
		return &model.InitiationResult{Payment: paid, AlreadyPaid: true}, nil
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.FinalPrice == nil || *booking.FinalPrice <= 0 {
		return nil, model.NewValidationError(model.CodeMissingPrice, "booking %d has no accepted final price", bookingID)
	}
	bps, err := s.bookings.DepositPercent(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	price := *booking.FinalPrice
	var amount int64
	switch paymentType {
	case model.PaymentTypeDeposit:
		amount = DepositAmount(price, bps)
		if amount <= 0 {
			return nil, model.NewValidationError(model.CodeInvalidAmount, "deposit for booking %d is not positive (%d)", bookingID, amount)
		}
	default:
		amount = RemainingAmount(price, bps, tip)
		if amount <= 0 {
			return nil, model.NewValidationError(model.CodeInvalidAmount, "remaining payment for booking %d is not positive (%d)", bookingID, amount)
		}
	}

	req := model.InitializePaymentRequest{
		BookingID:      bookingID,
		Type:           paymentType,
		Method:         method,
		Amount:         amount,
		TipAmount:      tip,
		IdempotencyKey: idempotencyKey,
	}
	if method != model.PaymentMethodCash {
		return s.InitializePayment(ctx, req)
	}

	// CASH is created and completed in one transaction, so a failed
	// completion leaves no PENDING row behind.
	var result *model.InitiationResult
	err = s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		if result, err = s.InitializePayment(ctx, req); err != nil {
			return err
		}
		result, err = s.completeCash(ctx, result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// completeCash confirms a CASH payment that is still PENDING. Other payments
// are returned untouched.
func (s *PaymentService) completeCash(ctx context.Context, result *model.InitiationResult) (*model.InitiationResult, error) {
	p := result.Payment
	if p.Method != model.PaymentMethodCash || p.Status != model.PaymentStatusPending {
		return result, nil
	}
	completed, err := s.ConfirmPayment(ctx, model.ConfirmPaymentRequest{PaymentID: p.ID})
	if err != nil {
		return nil, err
	}
	result.Payment = completed
	return result, nil
}

// openOfType returns the latest PENDING or PROCESSING payment of the given
// type and method, or nil.
func (s *PaymentService) openOfType(ctx context.Context, bookingID int64, paymentType model.PaymentType, method model.PaymentMethod) (*model.Payment, error) {
	open, err := s.payments.ListByBooking(ctx, bookingID, model.PaymentStatusPending, model.PaymentStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("list open payments: %w", err)
	}
	for i := len(open) - 1; i >= 0; i-- {
		if open[i].Type == paymentType && open[i].Method == method {
			return open[i], nil
		}
	}
	return nil, nil
}

func (s *PaymentService) completedOfType(ctx context.Context, bookingID int64, paymentType model.PaymentType) (*model.Payment, error) {
	completed, err := s.payments.ListByBooking(ctx, bookingID, model.PaymentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list completed payments: %w", err)
	}
	for _, p := range completed {
		if p.Type == paymentType {
			return p, nil
		}
	}
	return nil, nil
}

// ConfirmPayment completes a PENDING or PROCESSING payment. A COMPLETED one is returned as is.
func (s *PaymentService) ConfirmPayment(ctx context.Context, req model.ConfirmPaymentRequest) (*model.Payment, error) {
	current, err := s.payments.FindByID(ctx, req.PaymentID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, model.NewNotFoundError("payment", req.PaymentID)
	}
	if err != nil {
		return nil, err
	}

	var payment *model.Payment
	err = s.uow.run(ctx, func(ctx context.Context) error {
		if _, err := s.bookings.LockBooking(ctx, current.BookingID); err != nil {
			return err
		}
		var err error
		payment, err = s.payments.FindByIDForUpdate(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentStatusCompleted {
			return nil
		}
		if !payment.Status.Confirmable() {
			return model.NewStateError(model.CodeInvalidStatus, "payment %d is %s and cannot be confirmed", payment.ID, payment.Status)
		}
		return s.markCompleted(ctx, payment, req.TransactionID, req.ConfirmedBy)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ConfirmGatewayPayment handles a gateway webhook. The paid amount must match exactly.
func (s *PaymentService) ConfirmGatewayPayment(ctx context.Context, conf model.GatewayConfirmation) (*model.Payment, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	current, err := s.payments.FindByOrderCode(ctx, conf.OrderCode)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, model.NewNotFoundError("payment with order code", conf.OrderCode)
	}
	if err != nil {
		return nil, err
	}

	var payment *model.Payment
	err = s.uow.run(ctx, func(ctx context.Context) error {
		if _, err := s.bookings.LockBooking(ctx, current.BookingID); err != nil {
			return err
		}
		var err error
		payment, err = s.payments.FindByOrderCodeForUpdate(ctx, conf.OrderCode)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentStatusCompleted {
			return nil
		}
		if !payment.Status.Confirmable() {
			return model.NewStateError(model.CodeInvalidStatus, "payment %d is %s and cannot be confirmed", payment.ID, payment.Status)
		}
		if conf.PaidAmount != payment.Amount {
			return model.NewValidationError(model.CodeAmountMismatch,
				"paid amount %d does not match payment amount %d", conf.PaidAmount, payment.Amount)
		}
		return s.markCompleted(ctx, payment, conf.Reference, nil)
	})
	if err != nil {
		if model.HasCode(err, model.CodeAmountMismatch) {
			logger.Warn("gateway amount mismatch", "order_code", conf.OrderCode, "paid_amount", conf.PaidAmount, "error", err)
		}
		return nil, err
	}
	return payment, nil
}

// markCompleted is the single completion path; effects run in order in the caller's transaction.
func (s *PaymentService) markCompleted(ctx context.Context, p *model.Payment, transactionID string, confirmedBy *int64) error {
	now := s.now().UTC()
	p.Status = model.PaymentStatusCompleted
	p.PaidAt = &now
	p.FailureReason = nil
	if transactionID != "" {
		p.TransactionID = &transactionID
	}
	if confirmedBy != nil {
		p.ConfirmedBy = confirmedBy
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	for _, effect := range s.effects {
		if err := effect.apply(ctx, p); err != nil {
			return fmt.Errorf("completion effect %s: %w", effect.name, err)
		}
	}

	prom.PaymentCompleted(string(p.Method), string(p.Type), p.Amount)
	logger.Info("payment completed",
		"payment_id", p.ID, "booking_id", p.BookingID, "type", p.Type,
		"method", p.Method, "amount", p.Amount, "tip", p.TipAmount)
	emit(ctx, model.Event{
		Type:       model.EventPaymentCompleted,
		EntityType: "payment",
		EntityID:   p.ID,
		BookingID:  p.BookingID,
		Status:     string(p.Status),
		Amount:     p.Amount,
		OccurredAt: now,
	})
	return nil
}

func (s *PaymentService) refreshSettlement(ctx context.Context, p *model.Payment) error {
	_, err := s.settlements.RefreshBreakdown(ctx, p.BookingID)
	return err
}

func (s *PaymentService) advanceBooking(ctx context.Context, p *model.Payment) error {
	if p.Type != model.PaymentTypeDeposit {
		return nil
	}
	_, err := s.bookings.AdvanceOnDeposit(ctx, p.BookingID)
	return err
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID int64) (*model.Payment, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, model.NewNotFoundError("payment", paymentID)
	}
	return p, err
}

func (s *PaymentService) ListBookingPayments(ctx context.Context, bookingID int64) ([]*model.Payment, error) {
	if _, err := s.bookings.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.payments.ListByBooking(ctx, bookingID)
}
