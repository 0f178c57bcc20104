package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/prom"
)

type WalletRepository interface {
	FindByTransportID(ctx context.Context, transportID int64) (*model.Wallet, error)
	GetOrCreateForUpdate(ctx context.Context, transportID int64) (*model.Wallet, error)
	UpdateBalance(ctx context.Context, w *model.Wallet) error
	FindEntry(ctx context.Context, refType model.ReferenceType, refID int64, txType model.WalletTransactionType) (*model.WalletTransaction, error)
	CreateEntry(ctx context.Context, tx *model.WalletTransaction) (*model.WalletTransaction, error)
	ListEntries(ctx context.Context, walletID int64, limit, offset int) ([]*model.WalletTransaction, error)
	LedgerSum(ctx context.Context, walletID int64) (int64, int64, error)
	EntryRefs(ctx context.Context, walletID int64) ([]model.LedgerRef, error)
	ListWallets(ctx context.Context) ([]*model.Wallet, error)
}

// LedgerSources lists what should have left a trace in a transport's ledger.
type LedgerSources interface {
	SettlementsOf(ctx context.Context, transportID int64) ([]*model.Settlement, error)
	PayoutsOf(ctx context.Context, transportID int64) ([]*model.Payout, error)
}

// WalletService is the only writer of wallet balances.
type WalletService struct {
	uow     unitOfWork
	wallets WalletRepository
	sources LedgerSources
	now     func() time.Time
}

func NewWalletService(tx Transactor, wallets WalletRepository, sources LedgerSources) *WalletService {
	return &WalletService{
		uow:     newUnitOfWork(tx, nil),
		wallets: wallets,
		sources: sources,
		now:     time.Now,
	}
}

// Credit appends a credit entry. A second call for the same reference is a no-op.
func (s *WalletService) Credit(ctx context.Context, req model.LedgerEntryRequest) (*model.LedgerResult, error) {
	if !req.Type.IsCredit() {
		return nil, model.NewValidationError(model.CodeValidationFailed, "%s is not a credit", req.Type)
	}
	return s.apply(ctx, req)
}

// Debit appends a payout debit. It never takes the balance below zero.
func (s *WalletService) Debit(ctx context.Context, req model.LedgerEntryRequest) (*model.LedgerResult, error) {
	if req.Type != model.WalletTxPayoutDebit {
		return nil, model.NewValidationError(model.CodeValidationFailed, "%s is not a debit", req.Type)
	}
	return s.apply(ctx, req)
}

func (s *WalletService) apply(ctx context.Context, req model.LedgerEntryRequest) (*model.LedgerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *model.LedgerResult
	err := s.uow.run(ctx, func(ctx context.Context) error {
		// the wallet row lock serializes concurrent writers before the reference check
		wallet, err := s.wallets.GetOrCreateForUpdate(ctx, req.TransportID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}

		existing, err := s.wallets.FindEntry(ctx, req.ReferenceType, req.ReferenceID, req.Type)
		if err == nil {
			logger.Info("ledger entry already written, skipping",
				"transport_id", req.TransportID, "type", req.Type,
				"reference_type", req.ReferenceType, "reference_id", req.ReferenceID)
			result = &model.LedgerResult{Transaction: existing, Wallet: wallet, Duplicate: true}
			return nil
		}
		if !errors.Is(err, repository.ErrLedgerEntryNotFound) {
			return fmt.Errorf("check ledger reference: %w", err)
		}

		if !req.Type.IsCredit() && wallet.CurrentBalance < req.Amount {
			return model.NewStateError(model.CodeInsufficientBalance,
				"wallet balance %d is below debit amount %d", wallet.CurrentBalance, req.Amount)
		}

		now := s.now().UTC()
		signed := req.Type.Sign() * req.Amount
		wallet.CurrentBalance += signed
		switch req.Type {
		case model.WalletTxSettlementCredit, model.WalletTxAdjustmentCredit:
			wallet.TotalEarned += req.Amount
		case model.WalletTxPayoutDebit:
			wallet.TotalWithdrawn += req.Amount
		case model.WalletTxReversal:
			wallet.TotalWithdrawn -= req.Amount
		}
		wallet.LastTransactionAt = &now

		entry, err := s.wallets.CreateEntry(ctx, &model.WalletTransaction{
			WalletID:      wallet.ID,
			Type:          req.Type,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			Amount:        signed,
			BalanceAfter:  wallet.CurrentBalance,
			Note:          req.Note,
		})
		if err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		if err := s.wallets.UpdateBalance(ctx, wallet); err != nil {
			return fmt.Errorf("update wallet balance: %w", err)
		}

		result = &model.LedgerResult{Transaction: entry, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		prom.LedgerEntry(string(req.Type))
		logger.Info("ledger entry written",
			"transport_id", req.TransportID, "wallet_id", result.Wallet.ID, "type", req.Type,
			"reference_type", req.ReferenceType, "reference_id", req.ReferenceID,
			"amount", result.Transaction.Amount, "balance_after", result.Transaction.BalanceAfter)
	}
	return result, nil
}

// Adjust credits a manual adjustment identified by adjustmentID.
func (s *WalletService) Adjust(ctx context.Context, transportID, adjustmentID, amount int64, note string) (*model.LedgerResult, error) {
	return s.Credit(ctx, model.LedgerEntryRequest{
		TransportID:   transportID,
		Type:          model.WalletTxAdjustmentCredit,
		ReferenceType: model.ReferenceAdjustment,
		ReferenceID:   adjustmentID,
		Amount:        amount,
		Note:          note,
	})
}

func (s *WalletService) HasEntry(ctx context.Context, refType model.ReferenceType, refID int64, txType model.WalletTransactionType) (bool, error) {
	_, err := s.wallets.FindEntry(ctx, refType, refID, txType)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrLedgerEntryNotFound) {
		return false, nil
	}
	return false, err
}

func (s *WalletService) GetWallet(ctx context.Context, transportID int64) (*model.Wallet, error) {
	w, err := s.wallets.FindByTransportID(ctx, transportID)
	if errors.Is(err, repository.ErrWalletNotFound) {
		return nil, model.NewNotFoundError("wallet of transport", transportID)
	}
	return w, err
}

func (s *WalletService) ListTransactions(ctx context.Context, transportID int64, limit, offset int) ([]*model.WalletTransaction, error) {
	w, err := s.GetWallet(ctx, transportID)
	if err != nil {
		return nil, err
	}
	return s.wallets.ListEntries(ctx, w.ID, limit, offset)
}

// Reconcile replays the wallet's ledger and checks that every settlement and
// payout that moved money left its entries. It never writes.
func (s *WalletService) Reconcile(ctx context.Context, transportID int64) (*model.ReconciliationReport, error) {
	w, err := s.GetWallet(ctx, transportID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, w)
}

func (s *WalletService) reconcile(ctx context.Context, w *model.Wallet) (*model.ReconciliationReport, error) {
	sum, count, err := s.wallets.LedgerSum(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("ledger sum: %w", err)
	}
	refs, err := s.wallets.EntryRefs(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("ledger refs: %w", err)
	}
	have := make(map[model.LedgerRef]struct{}, len(refs))
	for _, r := range refs {
		have[r] = struct{}{}
	}

	var expected []model.LedgerRef
	settlements, err := s.sources.SettlementsOf(ctx, w.TransportID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	for _, st := range settlements {
		// a settlement that ever reached READY with a positive net was credited
		if st.ReadyAt != nil && st.NetToTransport > 0 {
			expected = append(expected, model.LedgerRef{ReferenceType: model.ReferenceSettlement, ReferenceID: st.ID, Type: model.WalletTxSettlementCredit})
		}
	}
	payouts, err := s.sources.PayoutsOf(ctx, w.TransportID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	for _, p := range payouts {
		expected = append(expected, model.LedgerRef{ReferenceType: model.ReferencePayout, ReferenceID: p.ID, Type: model.WalletTxPayoutDebit})
		if p.Status == model.PayoutStatusFailed {
			expected = append(expected, model.LedgerRef{ReferenceType: model.ReferencePayout, ReferenceID: p.ID, Type: model.WalletTxReversal})
		}
	}

	report := &model.ReconciliationReport{
		TransportID:    w.TransportID,
		WalletID:       w.ID,
		StoredBalance:  w.CurrentBalance,
		LedgerBalance:  sum,
		EntryCount:     int(count),
		BalanceMatches: sum == w.CurrentBalance,
		CheckedAt:      s.now().UTC(),
	}
	for _, ref := range expected {
		if _, ok := have[ref]; !ok {
			report.MissingEntries = append(report.MissingEntries, ref)
		}
	}

	if !report.Healthy() {
		logger.Warn("wallet reconciliation mismatch",
			"transport_id", w.TransportID, "stored_balance", w.CurrentBalance,
			"ledger_balance", sum, "missing_entries", len(report.MissingEntries))
	}
	return report, nil
}

func (s *WalletService) ReconcileAll(ctx context.Context) ([]*model.ReconciliationReport, error) {
	wallets, err := s.wallets.ListWallets(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*model.ReconciliationReport, 0, len(wallets))
	for _, w := range wallets {
		r, err := s.reconcile(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("reconcile transport %d: %w", w.TransportID, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

type settlementLister interface {
	ListByTransport(ctx context.Context, transportID int64, statuses ...model.SettlementStatus) ([]*model.Settlement, error)
}

type payoutLister interface {
	ListByTransport(ctx context.Context, transportID int64) ([]*model.Payout, error)
}

type repositoryLedgerSources struct {
	settlements settlementLister
	payouts     payoutLister
}

// NewLedgerSources adapts the settlement and payout repositories for reconciliation.
func NewLedgerSources(settlements settlementLister, payouts payoutLister) LedgerSources {
	return repositoryLedgerSources{settlements: settlements, payouts: payouts}
}

func (r repositoryLedgerSources) SettlementsOf(ctx context.Context, transportID int64) ([]*model.Settlement, error) {
	return r.settlements.ListByTransport(ctx, transportID)
}

func (r repositoryLedgerSources) PayoutsOf(ctx context.Context, transportID int64) ([]*model.Payout, error) {
	return r.payouts.ListByTransport(ctx, transportID)
}
