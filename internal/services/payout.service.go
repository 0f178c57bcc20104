package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/prom"
)

const payoutNumberLayout = "20060102150405"

type PayoutRepository interface {
	Create(ctx context.Context, payout *model.Payout) (*model.Payout, error)
	PayoutNumberExists(ctx context.Context, number string) (bool, error)
	FindByID(ctx context.Context, id int64) (*model.Payout, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Payout, error)
	Update(ctx context.Context, payout *model.Payout) error
	List(ctx context.Context, filter model.PayoutFilter) ([]*model.Payout, error)
}

type PayoutSettlementRepository interface {
	ListClaimable(ctx context.Context, transportID int64) ([]*model.Settlement, error)
	ListByPayoutID(ctx context.Context, payoutID int64) ([]*model.Settlement, error)
	ReadyTotals(ctx context.Context) ([]repository.TransportReadyTotal, error)
	Update(ctx context.Context, s *model.Settlement) error
}

type BankAccountReader interface {
	BankAccount(ctx context.Context, transportID int64) (*model.BankAccount, error)
}

type PayoutLedger interface {
	Credit(ctx context.Context, req model.LedgerEntryRequest) (*model.LedgerResult, error)
	Debit(ctx context.Context, req model.LedgerEntryRequest) (*model.LedgerResult, error)
	HasEntry(ctx context.Context, refType model.ReferenceType, refID int64, txType model.WalletTransactionType) (bool, error)
}

// Dispatcher sends a payout to the bank. An error means the outcome is unknown
// and is handled as a retryable failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, payout *model.Payout) (model.DispatchResult, error)
}

type PayoutService struct {
	uow            unitOfWork
	payouts        PayoutRepository
	settlements    PayoutSettlementRepository
	banks          BankAccountReader
	ledger         PayoutLedger
	dispatcher     Dispatcher
	maxRetries     int
	defaultFailure string
	now            func() time.Time
}

func NewPayoutService(tx Transactor, payouts PayoutRepository, settlements PayoutSettlementRepository, banks BankAccountReader,
	ledger PayoutLedger, dispatcher Dispatcher, notifier Notifier, cfg *config.Config) *PayoutService {
	return &PayoutService{
		uow:            newUnitOfWork(tx, notifier),
		payouts:        payouts,
		settlements:    settlements,
		banks:          banks,
		ledger:         ledger,
		dispatcher:     dispatcher,
		maxRetries:     cfg.PayoutMaxRetries,
		defaultFailure: cfg.PayoutDefaultFailure,
		now:            time.Now,
	}
}

// CreatePayoutBatch claims every READY, unclaimed, positive settlement of the
// transport into one PENDING payout and debits the wallet for the total.
// Either all settlements are claimed or none.
func (s *PayoutService) CreatePayoutBatch(ctx context.Context, transportID int64) (*model.Payout, error) {
	var payout *model.Payout
	err := s.uow.run(ctx, func(ctx context.Context) error {
		claimable, err := s.settlements.ListClaimable(ctx, transportID)
		if err != nil {
			return fmt.Errorf("list claimable settlements: %w", err)
		}
		if len(claimable) == 0 {
			return model.NewStateError(model.CodeNothingToPayout, "transport %d has no READY settlements to pay out", transportID)
		}

		var total int64
		items := make([]*model.PayoutItem, 0, len(claimable))
		for _, st := range claimable {
			total += st.NetToTransport
			items = append(items, &model.PayoutItem{
				SettlementID: st.ID,
				BookingID:    st.BookingID,
				Amount:       st.NetToTransport,
			})
		}

		details, err := s.bankDetails(ctx, transportID)
		if err != nil {
			return err
		}
		number, err := s.payoutNumber(ctx, transportID)
		if err != nil {
			return err
		}

		payout, err = s.payouts.Create(ctx, &model.Payout{
			TransportID:  transportID,
			PayoutNumber: number,
			TotalAmount:  total,
			ItemCount:    len(items),
			Status:       model.PayoutStatusPending,
			BankDetails:  details,
			Items:        items,
		})
		if err != nil {
			return fmt.Errorf("create payout: %w", err)
		}

		for _, st := range claimable {
			st.PayoutID = &payout.ID
			if err := transitionSettlement(ctx, s.settlements, st, model.SettlementStatusInPayout, "claimed by "+number); err != nil {
				return err
			}
		}

		_, err = s.ledger.Debit(ctx, model.LedgerEntryRequest{
			TransportID:   transportID,
			Type:          model.WalletTxPayoutDebit,
			ReferenceType: model.ReferencePayout,
			ReferenceID:   payout.ID,
			Amount:        total,
			Note:          number,
		})
		if err != nil {
			return err
		}

		s.announce(ctx, payout, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	prom.PayoutBatchAmount(payout.TotalAmount)
	logger.Info("payout batch created",
		"payout_id", payout.ID, "payout_number", payout.PayoutNumber,
		"transport_id", transportID, "items", payout.ItemCount, "total_amount", payout.TotalAmount)
	return payout, nil
}

func (s *PayoutService) bankDetails(ctx context.Context, transportID int64) (*model.BankDetails, error) {
	account, err := s.banks.BankAccount(ctx, transportID)
	if errors.Is(err, repository.ErrBankAccountNotFound) {
		logger.Warn("transport has no bank account, payout created without bank details", "transport_id", transportID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bank account: %w", err)
	}
	details := account.BankDetails
	return &details, nil
}

// payoutNumber is PO-{transportId}-{timestamp}, suffixed -1, -2, ... on collision.
func (s *PayoutService) payoutNumber(ctx context.Context, transportID int64) (string, error) {
	base := fmt.Sprintf("PO-%d-%s", transportID, s.now().UTC().Format(payoutNumberLayout))
	candidate := base
	for i := 1; ; i++ {
		exists, err := s.payouts.PayoutNumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check payout number: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// UpdatePayoutStatus is the only mutator of a payout after creation.
func (s *PayoutService) UpdatePayoutStatus(ctx context.Context, upd model.PayoutStatusUpdate) (*model.Payout, error) {
	switch upd.Status {
	case model.PayoutStatusProcessing:
		return s.process(ctx, upd)
	case model.PayoutStatusCompleted:
		return s.settle(ctx, upd.PayoutID, func(ctx context.Context, p *model.Payout) error {
			return s.complete(ctx, p, upd.TransactionReference)
		})
	case model.PayoutStatusFailed:
		return s.settle(ctx, upd.PayoutID, func(ctx context.Context, p *model.Payout) error {
			return s.fail(ctx, p, upd.FailureReason, upd.Retryable)
		})
	default:
		return nil, model.NewValidationError(model.CodeInvalidStatus, "payout status cannot be set to %q", upd.Status)
	}
}

// ProcessPayout moves a PENDING payout to PROCESSING, which dispatches it.
func (s *PayoutService) ProcessPayout(ctx context.Context, payoutID int64) (*model.Payout, error) {
	return s.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{PayoutID: payoutID, Status: model.PayoutStatusProcessing})
}

// settle applies a terminal status. Repeating the status the payout already has is a no-op.
func (s *PayoutService) settle(ctx context.Context, payoutID int64, apply func(ctx context.Context, p *model.Payout) error) (*model.Payout, error) {
	var payout *model.Payout
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		payout, err = s.lock(ctx, payoutID)
		if err != nil {
			return err
		}
		return apply(ctx, payout)
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *PayoutService) process(ctx context.Context, upd model.PayoutStatusUpdate) (*model.Payout, error) {
	var (
		payout   *model.Payout
		dispatch bool
	)
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		payout, err = s.lock(ctx, upd.PayoutID)
		if err != nil {
			return err
		}
		if payout.Status != model.PayoutStatusProcessing {
			if err := model.ValidatePayoutTransition(payout.Status, model.PayoutStatusProcessing); err != nil {
				return err
			}
			from := payout.Status
			now := s.now().UTC()
			payout.Status = model.PayoutStatusProcessing
			payout.ProcessedAt = &now
			if upd.TransactionReference != "" {
				ref := upd.TransactionReference
				payout.TransactionReference = &ref
			}
			if err := s.payouts.Update(ctx, payout); err != nil {
				return fmt.Errorf("update payout: %w", err)
			}
			logger.Info("payout status changed", "payout_id", payout.ID, "from", from, "to", payout.Status)
			s.announce(ctx, payout, "")
		}
		dispatch = payout.TransactionReference == nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !dispatch {
		return payout, nil
	}

	result := s.dispatch(ctx, payout)
	return s.settle(ctx, payout.ID, func(ctx context.Context, p *model.Payout) error {
		if p.Status != model.PayoutStatusProcessing {
			logger.Warn("payout changed during dispatch, result ignored", "payout_id", p.ID, "status", p.Status)
			return nil
		}
		if !result.Success {
			return s.fail(ctx, p, result.Reason, result.Retryable)
		}
		if result.TransactionRef != "" {
			ref := result.TransactionRef
			p.TransactionReference = &ref
			if err := s.payouts.Update(ctx, p); err != nil {
				return fmt.Errorf("store transaction reference: %w", err)
			}
		}
		logger.Info("payout dispatched", "payout_id", p.ID, "transaction_ref", result.TransactionRef)
		return nil
	})
}

func (s *PayoutService) dispatch(ctx context.Context, payout *model.Payout) model.DispatchResult {
	if s.dispatcher == nil {
		return model.DispatchResult{Reason: "no payout dispatcher configured", Retryable: true}
	}
	result, err := s.dispatcher.Dispatch(ctx, payout)
	if err != nil {
		logger.Error("payout dispatch error", "payout_id", payout.ID, "error", err)
		return model.DispatchResult{Reason: err.Error(), Retryable: true}
	}
	if !result.Success {
		logger.Warn("payout rejected by gateway", "payout_id", payout.ID, "reason", result.Reason, "retryable", result.Retryable)
	}
	return result
}

func (s *PayoutService) complete(ctx context.Context, p *model.Payout, reference string) error {
	if p.Status == model.PayoutStatusCompleted {
		return nil
	}
	if err := model.ValidatePayoutTransition(p.Status, model.PayoutStatusCompleted); err != nil {
		return err
	}

	now := s.now().UTC()
	from := p.Status
	p.Status = model.PayoutStatusCompleted
	if p.ProcessedAt == nil {
		p.ProcessedAt = &now
	}
	p.CompletedAt = &now
	if reference != "" {
		p.TransactionReference = &reference
	}
	if err := s.payouts.Update(ctx, p); err != nil {
		return fmt.Errorf("update payout: %w", err)
	}

	// no-op when the batch debit is already on the ledger
	if _, err := s.ledger.Debit(ctx, s.debitRequest(p)); err != nil {
		return err
	}

	settlements, err := s.settlements.ListByPayoutID(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list payout settlements: %w", err)
	}
	for _, st := range settlements {
		st.PaidAt = &now
		if err := transitionSettlement(ctx, s.settlements, st, model.SettlementStatusPaid, "paid by "+p.PayoutNumber); err != nil {
			return err
		}
	}

	logger.Info("payout status changed", "payout_id", p.ID, "from", from, "to", p.Status, "settlements", len(settlements))
	s.announce(ctx, p, "")
	return nil
}

// fail marks the payout FAILED, reverses its debit and releases its settlements:
// back to READY while retries remain, otherwise ON_HOLD.
func (s *PayoutService) fail(ctx context.Context, p *model.Payout, reason string, retryable bool) error {
	if p.Status == model.PayoutStatusFailed {
		return nil
	}
	if err := model.ValidatePayoutTransition(p.Status, model.PayoutStatusFailed); err != nil {
		return err
	}
	if reason == "" {
		reason = s.defaultFailure
	}

	now := s.now().UTC()
	from := p.Status
	p.Status = model.PayoutStatusFailed
	p.FailureReason = &reason
	if p.ProcessedAt == nil {
		p.ProcessedAt = &now
	}
	if err := s.payouts.Update(ctx, p); err != nil {
		return fmt.Errorf("update payout: %w", err)
	}

	debited, err := s.ledger.HasEntry(ctx, model.ReferencePayout, p.ID, model.WalletTxPayoutDebit)
	if err != nil {
		return fmt.Errorf("check payout debit: %w", err)
	}
	if debited {
		_, err := s.ledger.Credit(ctx, model.LedgerEntryRequest{
			TransportID:   p.TransportID,
			Type:          model.WalletTxReversal,
			ReferenceType: model.ReferencePayout,
			ReferenceID:   p.ID,
			Amount:        p.TotalAmount,
			Note:          "reversal of " + p.PayoutNumber + ": " + reason,
		})
		if err != nil {
			return err
		}
	}

	settlements, err := s.settlements.ListByPayoutID(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list payout settlements: %w", err)
	}
	for _, st := range settlements {
		st.PayoutID = nil
		st.PayoutAttempts++
		if retryable && (s.maxRetries <= 0 || st.PayoutAttempts < s.maxRetries) {
			if err := transitionSettlement(ctx, s.settlements, st, model.SettlementStatusReady, reason); err != nil {
				return err
			}
			continue
		}
		hold := reason
		if retryable {
			hold = "payout retry limit reached: " + reason
		}
		st.OnHoldReason = &hold
		if err := transitionSettlement(ctx, s.settlements, st, model.SettlementStatusOnHold, hold); err != nil {
			return err
		}
	}

	logger.Warn("payout failed",
		"payout_id", p.ID, "from", from, "reason", reason, "retryable", retryable,
		"settlements", len(settlements), "reversed", debited)
	s.announce(ctx, p, reason)
	return nil
}

func (s *PayoutService) debitRequest(p *model.Payout) model.LedgerEntryRequest {
	return model.LedgerEntryRequest{
		TransportID:   p.TransportID,
		Type:          model.WalletTxPayoutDebit,
		ReferenceType: model.ReferencePayout,
		ReferenceID:   p.ID,
		Amount:        p.TotalAmount,
		Note:          p.PayoutNumber,
	}
}

func (s *PayoutService) announce(ctx context.Context, p *model.Payout, reason string) {
	prom.PayoutStatus(string(p.Status))
	emit(ctx, model.Event{
		Type:        model.EventPayoutStatusChanged,
		EntityType:  "payout",
		EntityID:    p.ID,
		TransportID: p.TransportID,
		Status:      string(p.Status),
		Amount:      p.TotalAmount,
		Reason:      reason,
	})
}

func (s *PayoutService) lock(ctx context.Context, payoutID int64) (*model.Payout, error) {
	p, err := s.payouts.FindByIDForUpdate(ctx, payoutID)
	if errors.Is(err, repository.ErrPayoutNotFound) {
		return nil, model.NewNotFoundError("payout", payoutID)
	}
	return p, err
}

func (s *PayoutService) GetPayout(ctx context.Context, payoutID int64) (*model.Payout, error) {
	p, err := s.payouts.FindByID(ctx, payoutID)
	if errors.Is(err, repository.ErrPayoutNotFound) {
		return nil, model.NewNotFoundError("payout", payoutID)
	}
	return p, err
}

func (s *PayoutService) ListPayouts(ctx context.Context, filter model.PayoutFilter) ([]*model.Payout, error) {
	return s.payouts.List(ctx, filter)
}

// AutoSweep issues a batch for every transport whose claimable total reaches
// minBalance, then dispatches it. Small totals wait for the next sweep.
func (s *PayoutService) AutoSweep(ctx context.Context, minBalance int64) (*model.SweepSummary, error) {
	totals, err := s.settlements.ReadyTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum ready settlements: %w", err)
	}

	summary := &model.SweepSummary{Transports: len(totals)}
	for _, t := range totals {
		if t.Total < minBalance {
			summary.BelowMinimum++
			logger.Debug("sweep skipped transport below minimum", "transport_id", t.TransportID, "total", t.Total, "min", minBalance)
			continue
		}

		payout, err := s.CreatePayoutBatch(ctx, t.TransportID)
		if err != nil {
			summary.Failed++
			logger.Error("sweep could not create payout", "transport_id", t.TransportID, "error", err)
			continue
		}
		summary.BatchesIssued++
		summary.PayoutIDs = append(summary.PayoutIDs, payout.ID)

		if s.dispatcher == nil {
			continue
		}
		if _, err := s.ProcessPayout(ctx, payout.ID); err != nil {
			logger.Error("sweep could not dispatch payout", "payout_id", payout.ID, "error", err)
		}
	}

	logger.Info("auto-sweep finished",
		"transports", summary.Transports, "batches", summary.BatchesIssued,
		"below_minimum", summary.BelowMinimum, "failed", summary.Failed)
	return summary, nil
}
