package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/prom"
)

type BookingReader interface {
	FindByID(ctx context.Context, id int64) (*model.Booking, error)
	HasContract(ctx context.Context, bookingID int64) (bool, error)
	CountOpenIncidents(ctx context.Context, bookingID int64) (int64, error)
}

type PaymentLister interface {
	ListByBooking(ctx context.Context, bookingID int64, statuses ...model.PaymentStatus) ([]*model.Payment, error)
}

type SettlementRepository interface {
	Create(ctx context.Context, s *model.Settlement) (*model.Settlement, error)
	FindByBookingID(ctx context.Context, bookingID int64) (*model.Settlement, error)
	FindByBookingIDForUpdate(ctx context.Context, bookingID int64) (*model.Settlement, error)
	Update(ctx context.Context, s *model.Settlement) error
	ListAutoSettleCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*model.Settlement, error)
}

type Ledger interface {
	Credit(ctx context.Context, req model.LedgerEntryRequest) (*model.LedgerResult, error)
}

// SettlementAudit compares the stored net amount with the formula.
type SettlementAudit struct {
	Settlement         *model.Settlement `json:"settlement"`
	RecomputedNet      int64             `json:"recomputed_net"`
	RecomputedPlatform int64             `json:"recomputed_platform_fee"`
	Matches            bool              `json:"matches"`
}

type SettlementService struct {
	uow             unitOfWork
	bookings        BookingReader
	payments        PaymentLister
	settlements     SettlementRepository
	commission      *CommissionService
	ledger          Ledger
	autoSettleAfter time.Duration
	batchLimit      int
	now             func() time.Time
}

func NewSettlementService(tx Transactor, bookings BookingReader, payments PaymentLister, settlements SettlementRepository,
	commission *CommissionService, ledger Ledger, notifier Notifier, cfg *config.Config) *SettlementService {
	return &SettlementService{
		uow:             newUnitOfWork(tx, notifier),
		bookings:        bookings,
		payments:        payments,
		settlements:     settlements,
		commission:      commission,
		ledger:          ledger,
		autoSettleAfter: cfg.AutoSettleAfter,
		batchLimit:      cfg.SchedulerBatchLimit,
		now:             time.Now,
	}
}

// CheckEligibility evaluates every payout condition and keeps all failing reasons.
func (s *SettlementService) CheckEligibility(ctx context.Context, bookingID int64) (*model.EligibilityResult, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, bookingLookupError(err, bookingID)
	}

	result := &model.EligibilityResult{BookingID: bookingID, Eligible: true}

	if booking.Status != model.BookingStatusCompleted && booking.Status != model.BookingStatusConfirmedByCustomer {
		result.Fail(fmt.Sprintf("booking status is %s, expected COMPLETED or CONFIRMED_BY_CUSTOMER", booking.Status))
	}

	hasContract, err := s.bookings.HasContract(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("check contract: %w", err)
	}
	if !hasContract {
		result.Fail("booking has no signed contract")
	}

	payments, err := s.payments.ListByBooking(ctx, bookingID, model.PaymentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	result.TotalCollected = s.commission.Breakdown(payments).TotalCollected

	if booking.FinalPrice == nil {
		result.Fail("booking has no agreed price")
	} else {
		result.AgreedPrice = *booking.FinalPrice
		if result.TotalCollected < result.AgreedPrice {
			result.Fail(fmt.Sprintf("total collected %d is below agreed price %d", result.TotalCollected, result.AgreedPrice))
		}
	}

	open, err := s.bookings.CountOpenIncidents(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}
	result.OpenIncidents = open
	if open > 0 {
		result.Fail(fmt.Sprintf("%d open incident(s)", open))
	}

	return result, nil
}

// RefreshBreakdown recomputes the settlement figures from the COMPLETED payments,
// creating the settlement on first use. Figures are frozen once the wallet was credited.
func (s *SettlementService) RefreshBreakdown(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	var st *model.Settlement
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.refresh(ctx, bookingID)
		return err
	})
	return st, err
}

func (s *SettlementService) refresh(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, bookingLookupError(err, bookingID)
	}
	if booking.TransportID == nil || booking.FinalPrice == nil {
		logger.Warn("settlement breakdown skipped, booking has no transport or price", "booking_id", bookingID)
		return nil, nil
	}

	st, err := s.settlements.FindByBookingIDForUpdate(ctx, bookingID)
	switch {
	case errors.Is(err, repository.ErrSettlementNotFound):
		rate, err := s.commission.RateFor(ctx, *booking.TransportID)
		if err != nil {
			return nil, err
		}
		st, err = s.settlements.Create(ctx, &model.Settlement{
			BookingID:         bookingID,
			TransportID:       *booking.TransportID,
			AgreedPrice:       *booking.FinalPrice,
			CommissionRateBps: rate,
			NetState:          model.NetNotComputed,
			CollectionMode:    model.CollectionModeAllCash,
			Status:            model.SettlementStatusPending,
		})
		if err != nil {
			return nil, fmt.Errorf("create settlement: %w", err)
		}
		logger.Info("settlement created", "booking_id", bookingID, "settlement_id", st.ID, "commission_rate_bps", rate)
	case err != nil:
		return nil, fmt.Errorf("load settlement: %w", err)
	}

	if !st.Open() {
		logger.Debug("settlement figures frozen", "settlement_id", st.ID, "status", st.Status)
		return st, nil
	}

	payments, err := s.payments.ListByBooking(ctx, bookingID, model.PaymentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	b := s.commission.Breakdown(payments)
	st.AgreedPrice = *booking.FinalPrice
	st.DepositPaid = b.DepositPaid
	st.RemainingPaid = b.RemainingPaid
	st.TipPaid = b.TipPaid
	st.TotalCollected = b.TotalCollected
	st.GatewayFee = b.GatewayFee
	st.CollectionMode = b.CollectionMode
	st.ApplyFees()

	if err := s.settlements.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("update settlement: %w", err)
	}
	logger.Info("settlement breakdown refreshed",
		"settlement_id", st.ID, "booking_id", bookingID,
		"total_collected", st.TotalCollected, "gateway_fee", st.GatewayFee,
		"platform_fee", st.PlatformFee, "net_to_transport", st.NetToTransport,
		"collection_mode", st.CollectionMode)
	return st, nil
}

// ProcessSettlement moves an eligible settlement to READY and credits the wallet.
// Open incidents put it ON_HOLD; the hold is committed and the call still fails.
func (s *SettlementService) ProcessSettlement(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	var (
		st      *model.Settlement
		holdErr error
	)
	err := s.uow.run(ctx, func(ctx context.Context) error {
		elig, err := s.CheckEligibility(ctx, bookingID)
		if err != nil {
			return err
		}

		st, err = s.settlements.FindByBookingIDForUpdate(ctx, bookingID)
		if errors.Is(err, repository.ErrSettlementNotFound) {
			if !elig.Eligible {
				return notEligible(elig)
			}
			st, err = s.refresh(ctx, bookingID)
			if err == nil && st == nil {
				return notEligible(elig)
			}
		}
		if err != nil {
			return fmt.Errorf("load settlement: %w", err)
		}

		switch st.Status {
		case model.SettlementStatusReady, model.SettlementStatusInPayout, model.SettlementStatusPaid:
			logger.Info("settlement already processed", "settlement_id", st.ID, "status", st.Status)
			return nil
		case model.SettlementStatusCancelled:
			return model.NewStateError(model.CodeTerminalState, "settlement of booking %d is CANCELLED", bookingID)
		}

		if !elig.Eligible {
			if elig.OpenIncidents == 0 {
				return notEligible(elig)
			}
			reason := strings.Join(elig.Reasons, "; ")
			if err := s.hold(ctx, st, reason); err != nil {
				return err
			}
			holdErr = &model.BusinessError{Kind: model.KindState, Code: model.CodeOpenIncidents, Message: reason}
			return nil
		}

		if _, err := s.refresh(ctx, bookingID); err != nil {
			return err
		}
		st, err = s.settlements.FindByBookingIDForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("reload settlement: %w", err)
		}
		return s.markReady(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, holdErr
}

func (s *SettlementService) markReady(ctx context.Context, st *model.Settlement) error {
	now := s.now().UTC()
	st.ReadyAt = &now
	st.OnHoldReason = nil
	if err := transitionSettlement(ctx, s.settlements, st, model.SettlementStatusReady, ""); err != nil {
		return err
	}

	if st.NetToTransport <= 0 {
		logger.Warn("settlement ready without positive net, wallet not credited",
			"settlement_id", st.ID, "net_to_transport", st.NetToTransport, "net_state", st.NetState)
		return nil
	}
	_, err := s.ledger.Credit(ctx, model.LedgerEntryRequest{
		TransportID:   st.TransportID,
		Type:          model.WalletTxSettlementCredit,
		ReferenceType: model.ReferenceSettlement,
		ReferenceID:   st.ID,
		Amount:        st.NetToTransport,
		Note:          fmt.Sprintf("settlement of booking %d", st.BookingID),
	})
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

func (s *SettlementService) hold(ctx context.Context, st *model.Settlement, reason string) error {
	st.OnHoldReason = &reason
	if st.Status == model.SettlementStatusOnHold {
		return s.settlements.Update(ctx, st)
	}
	return transitionSettlement(ctx, s.settlements, st, model.SettlementStatusOnHold, reason)
}

// HoldSettlement puts a PENDING or READY settlement on hold by hand.
func (s *SettlementService) HoldSettlement(ctx context.Context, bookingID int64, reason string) (*model.Settlement, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, model.NewValidationError(model.CodeValidationFailed, "hold reason is required")
	}
	var st *model.Settlement
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.lockByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if st.Status == model.SettlementStatusOnHold {
			st.OnHoldReason = &reason
			return s.settlements.Update(ctx, st)
		}
		if st.Status == model.SettlementStatusReady && st.PayoutID != nil {
			return model.NewStateError(model.CodeInvalidTransition, "settlement %d is claimed by payout %d", st.ID, *st.PayoutID)
		}
		return s.hold(ctx, st, reason)
	})
	return st, err
}

// ReleaseHold sends an ON_HOLD settlement to READY when eligible, else back to PENDING.
func (s *SettlementService) ReleaseHold(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	var st *model.Settlement
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.lockByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if st.Status != model.SettlementStatusOnHold {
			return model.NewStateError(model.CodeInvalidStatus, "settlement %d is %s, not ON_HOLD", st.ID, st.Status)
		}

		elig, err := s.CheckEligibility(ctx, bookingID)
		if err != nil {
			return err
		}
		if !elig.Eligible {
			st.OnHoldReason = nil
			return transitionSettlement(ctx, s.settlements, st, model.SettlementStatusPending, strings.Join(elig.Reasons, "; "))
		}
		refreshed, err := s.refresh(ctx, bookingID)
		if err != nil {
			return err
		}
		if refreshed != nil {
			st = refreshed
		}
		st.PayoutAttempts = 0
		return s.markReady(ctx, st)
	})
	return st, err
}

// CancelForBooking cancels a PENDING or ON_HOLD settlement. A booking without one is fine.
func (s *SettlementService) CancelForBooking(ctx context.Context, bookingID int64, reason string) error {
	return s.uow.run(ctx, func(ctx context.Context) error {
		st, err := s.settlements.FindByBookingIDForUpdate(ctx, bookingID)
		if errors.Is(err, repository.ErrSettlementNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if st.Status == model.SettlementStatusCancelled {
			return nil
		}
		return transitionSettlement(ctx, s.settlements, st, model.SettlementStatusCancelled, reason)
	})
}

// ApplyAdjustment sets the manual deduction of a settlement that is not READY yet.
func (s *SettlementService) ApplyAdjustment(ctx context.Context, bookingID, adjustment int64) (*model.Settlement, error) {
	var st *model.Settlement
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.lockByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !st.Open() {
			return model.NewStateError(model.CodeInvalidStatus, "settlement %d is %s and was credited already", st.ID, st.Status)
		}
		st.Adjustment = adjustment
		st.ApplyFees()
		return s.settlements.Update(ctx, st)
	})
	return st, err
}

func (s *SettlementService) GetByBooking(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	st, err := s.settlements.FindByBookingID(ctx, bookingID)
	if errors.Is(err, repository.ErrSettlementNotFound) {
		return nil, model.NewNotFoundError("settlement of booking", bookingID)
	}
	return st, err
}

// Audit recomputes the fee formulas from the stored fields.
func (s *SettlementService) Audit(ctx context.Context, bookingID int64) (*SettlementAudit, error) {
	st, err := s.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	platform := model.PlatformFee(st.AgreedPrice, st.CommissionRateBps)
	net := st.Recompute()
	return &SettlementAudit{
		Settlement:         st,
		RecomputedNet:      net,
		RecomputedPlatform: platform,
		Matches:            net == st.NetToTransport && platform == st.PlatformFee,
	}, nil
}

// AutoSettle processes every settlement whose booking was confirmed by the
// customer, or completed more than autoSettleAfter ago.
func (s *SettlementService) AutoSettle(ctx context.Context, now time.Time) (*model.AutoSettleSummary, error) {
	cutoff := now.Add(-s.autoSettleAfter).UTC()
	candidates, err := s.settlements.ListAutoSettleCandidates(ctx, cutoff, s.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("list auto-settle candidates: %w", err)
	}

	summary := &model.AutoSettleSummary{Scanned: len(candidates)}
	for _, c := range candidates {
		_, err := s.ProcessSettlement(ctx, c.BookingID)
		switch {
		case err == nil:
			summary.Settled++
		case model.HasCode(err, model.CodeOpenIncidents):
			summary.Held++
		case model.IsBusinessError(err):
			summary.Skipped++
			logger.Debug("auto-settle skipped booking", "booking_id", c.BookingID, "reason", err.Error())
		default:
			summary.Failed++
			logger.Error("auto-settle failed", "booking_id", c.BookingID, "error", err)
		}
	}

	logger.Info("auto-settle finished",
		"scanned", summary.Scanned, "settled", summary.Settled,
		"held", summary.Held, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (s *SettlementService) lockByBooking(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	st, err := s.settlements.FindByBookingIDForUpdate(ctx, bookingID)
	if errors.Is(err, repository.ErrSettlementNotFound) {
		return nil, model.NewNotFoundError("settlement of booking", bookingID)
	}
	return st, err
}

type settlementUpdater interface {
	Update(ctx context.Context, s *model.Settlement) error
}

// transitionSettlement validates, persists and announces a settlement status change.
func transitionSettlement(ctx context.Context, repo settlementUpdater, st *model.Settlement, to model.SettlementStatus, reason string) error {
	from := st.Status
	if err := model.ValidateSettlementTransition(from, to); err != nil {
		return err
	}
	st.Status = to
	if err := repo.Update(ctx, st); err != nil {
		st.Status = from
		return fmt.Errorf("update settlement status: %w", err)
	}

	prom.SettlementTransition(string(from), string(to))
	logger.Info("settlement status changed",
		"settlement_id", st.ID, "booking_id", st.BookingID, "transport_id", st.TransportID,
		"from", from, "to", to, "net_to_transport", st.NetToTransport, "reason", reason)
	emit(ctx, model.Event{
		Type:        model.EventSettlementStatusChanged,
		EntityType:  "settlement",
		EntityID:    st.ID,
		BookingID:   st.BookingID,
		TransportID: st.TransportID,
		Status:      string(to),
		Amount:      st.NetToTransport,
		Reason:      reason,
	})
	return nil
}

func notEligible(elig *model.EligibilityResult) error {
	return &model.BusinessError{
		Kind:    model.KindState,
		Code:    model.CodeNotEligible,
		Message: "booking is not eligible for settlement: " + strings.Join(elig.Reasons, "; "),
	}
}

func bookingLookupError(err error, bookingID int64) error {
	if errors.Is(err, repository.ErrBookingNotFound) {
		return model.NewNotFoundError("booking", bookingID)
	}
	return fmt.Errorf("load booking: %w", err)
}
