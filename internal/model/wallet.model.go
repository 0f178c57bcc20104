package model

import "time"

type WalletTransactionType string

const (
	WalletTxSettlementCredit WalletTransactionType = "SETTLEMENT_CREDIT"
	WalletTxPayoutDebit      WalletTransactionType = "PAYOUT_DEBIT"
	WalletTxAdjustmentCredit WalletTransactionType = "ADJUSTMENT_CREDIT"
	WalletTxReversal         WalletTransactionType = "REVERSAL"
)

// Sign is +1 for entries that raise the balance and -1 for debits.
func (t WalletTransactionType) Sign() int64 {
	if t == WalletTxPayoutDebit {
		return -1
	}
	return 1
}

func (t WalletTransactionType) IsCredit() bool { return t.Sign() > 0 }

type ReferenceType string

const (
	ReferenceSettlement ReferenceType = "SETTLEMENT"
	ReferencePayout     ReferenceType = "PAYOUT"
	ReferenceAdjustment ReferenceType = "ADJUSTMENT"
)

type Wallet struct {
	ID                int64      `json:"id"`
	TransportID       int64      `json:"transport_id"`
	CurrentBalance    int64      `json:"current_balance"`
	TotalEarned       int64      `json:"total_earned"`
	TotalWithdrawn    int64      `json:"total_withdrawn"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// WalletTransaction is an immutable ledger row. Amount carries its sign.
type WalletTransaction struct {
	ID            int64                 `json:"id"`
	WalletID      int64                 `json:"wallet_id"`
	Type          WalletTransactionType `json:"type"`
	ReferenceType ReferenceType         `json:"reference_type"`
	ReferenceID   int64                 `json:"reference_id"`
	Amount        int64                 `json:"amount"`
	BalanceAfter  int64                 `json:"balance_after"`
	Note          string                `json:"note,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// LedgerEntryRequest describes one credit or debit. Amount is always positive.
type LedgerEntryRequest struct {
	TransportID   int64
	Type          WalletTransactionType
	ReferenceType ReferenceType
	ReferenceID   int64
	Amount        int64
	Note          string
}

func (r LedgerEntryRequest) Validate() error {
	if r.TransportID == 0 {
		return NewValidationError(CodeValidationFailed, "transport_id is required")
	}
	if r.ReferenceID == 0 {
		return NewValidationError(CodeValidationFailed, "reference_id is required")
	}
	if r.Amount <= 0 {
		return NewValidationError(CodeInvalidAmount, "ledger amount must be positive, got %d", r.Amount)
	}
	return nil
}

// LedgerResult reports whether the entry was written or already existed.
type LedgerResult struct {
	Transaction *WalletTransaction `json:"transaction"`
	Wallet      *Wallet            `json:"wallet"`
	Duplicate   bool               `json:"duplicate"`
}

type LedgerRef struct {
	ReferenceType ReferenceType         `json:"reference_type"`
	ReferenceID   int64                 `json:"reference_id"`
	Type          WalletTransactionType `json:"type"`
}

type ReconciliationReport struct {
	TransportID    int64       `json:"transport_id"`
	WalletID       int64       `json:"wallet_id"`
	StoredBalance  int64       `json:"stored_balance"`
	LedgerBalance  int64       `json:"ledger_balance"`
	EntryCount     int         `json:"entry_count"`
	BalanceMatches bool        `json:"balance_matches"`
	MissingEntries []LedgerRef `json:"missing_entries,omitempty"`
	CheckedAt      time.Time   `json:"checked_at"`
}

func (r *ReconciliationReport) Healthy() bool {
	return r.BalanceMatches && len(r.MissingEntries) == 0
}
