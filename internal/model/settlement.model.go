package model

import (
	"time"
)

type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusOnHold    SettlementStatus = "ON_HOLD"
	SettlementStatusReady     SettlementStatus = "READY"
	SettlementStatusInPayout  SettlementStatus = "IN_PAYOUT"
	SettlementStatusPaid      SettlementStatus = "PAID"
	SettlementStatusCancelled SettlementStatus = "CANCELLED"
)

func (s SettlementStatus) Terminal() bool {
	return s == SettlementStatusPaid || s == SettlementStatusCancelled
}

var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementStatusPending:  {SettlementStatusReady, SettlementStatusOnHold, SettlementStatusCancelled},
	SettlementStatusOnHold:   {SettlementStatusReady, SettlementStatusPending, SettlementStatusCancelled},
	SettlementStatusReady:    {SettlementStatusInPayout, SettlementStatusOnHold},
	SettlementStatusInPayout: {SettlementStatusPaid, SettlementStatusReady, SettlementStatusOnHold},
}

func ValidateSettlementTransition(from, to SettlementStatus) error {
	if from.Terminal() {
		return NewStateError(CodeTerminalState, "settlement is %s and can no longer change", from)
	}
	for _, allowed := range settlementTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return NewStateError(CodeInvalidTransition, "settlement cannot move from %s to %s", from, to)
}

type CollectionMode string

const (
	CollectionModeAllCash   CollectionMode = "ALL_CASH"
	CollectionModeAllOnline CollectionMode = "ALL_ONLINE"
	CollectionModeMixed     CollectionMode = "MIXED"
)

// NetState tells "not computed yet" apart from a computed zero.
type NetState string

const (
	NetNotComputed NetState = "NOT_COMPUTED"
	NetZero        NetState = "ZERO"
	NetPositive    NetState = "POSITIVE"
	NetNegative    NetState = "NEGATIVE"
)

func NetStateOf(net int64) NetState {
	switch {
	case net > 0:
		return NetPositive
	case net < 0:
		return NetNegative
	default:
		return NetZero
	}
}

// NetToTransport = totalCollected - gatewayFee - platformFee - adjustment
func NetToTransport(totalCollected, gatewayFee, platformFee, adjustment int64) int64 {
	return totalCollected - gatewayFee - platformFee - adjustment
}

// PlatformFee = agreedPrice * commissionRateBps / 10000, truncated to whole VND.
func PlatformFee(agreedPrice, commissionRateBps int64) int64 {
	return agreedPrice * commissionRateBps / 10000
}

type Settlement struct {
	ID                int64            `json:"id"`
	BookingID         int64            `json:"booking_id"`
	TransportID       int64            `json:"transport_id"`
	AgreedPrice       int64            `json:"agreed_price"`
	DepositPaid       int64            `json:"deposit_paid"`
	RemainingPaid     int64            `json:"remaining_paid"`
	TipPaid           int64            `json:"tip_paid"`
	TotalCollected    int64            `json:"total_collected"`
	GatewayFee        int64            `json:"gateway_fee"`
	CommissionRateBps int64            `json:"commission_rate_bps"`
	PlatformFee       int64            `json:"platform_fee"`
	Adjustment        int64            `json:"adjustment"`
	NetToTransport    int64            `json:"net_to_transport"`
	NetState          NetState         `json:"net_state"`
	CollectionMode    CollectionMode   `json:"collection_mode"`
	Status            SettlementStatus `json:"status"`
	ReadyAt           *time.Time       `json:"ready_at,omitempty"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	PayoutID          *int64           `json:"payout_id,omitempty"`
	OnHoldReason      *string          `json:"on_hold_reason,omitempty"`
	PayoutAttempts    int              `json:"payout_attempts"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Open reports whether the figures may still change: PENDING or ON_HOLD and never READY.
func (s *Settlement) Open() bool {
	return (s.Status == SettlementStatusPending || s.Status == SettlementStatusOnHold) && s.ReadyAt == nil
}

// Recompute evaluates the net formula from the stored fields.
func (s *Settlement) Recompute() int64 {
	return NetToTransport(s.TotalCollected, s.GatewayFee, s.PlatformFee, s.Adjustment)
}

// ApplyFees recomputes platform fee and net amount and stamps the net state.
func (s *Settlement) ApplyFees() {
	s.PlatformFee = PlatformFee(s.AgreedPrice, s.CommissionRateBps)
	s.NetToTransport = s.Recompute()
	s.NetState = NetStateOf(s.NetToTransport)
}

// Net returns the net amount and whether it has been computed.
func (s *Settlement) Net() (int64, bool) {
	if s.NetState == "" || s.NetState == NetNotComputed {
		return 0, false
	}
	return s.NetToTransport, true
}

type PaymentBreakdown struct {
	DepositPaid    int64          `json:"deposit_paid"`
	RemainingPaid  int64          `json:"remaining_paid"`
	TipPaid        int64          `json:"tip_paid"`
	TotalCollected int64          `json:"total_collected"`
	GatewayFee     int64          `json:"gateway_fee"`
	CollectionMode CollectionMode `json:"collection_mode"`
}

type EligibilityResult struct {
	BookingID      int64    `json:"booking_id"`
	Eligible       bool     `json:"eligible"`
	Reasons        []string `json:"reasons"`
	TotalCollected int64    `json:"total_collected"`
	AgreedPrice    int64    `json:"agreed_price"`
	OpenIncidents  int64    `json:"open_incidents"`
}

// Fail records a failing condition; every reason is kept.
func (r *EligibilityResult) Fail(reason string) {
	r.Eligible = false
	r.Reasons = append(r.Reasons, reason)
}

// AutoSettleSummary reports one scheduled auto-settlement pass.
type AutoSettleSummary struct {
	Scanned int `json:"scanned"`
	Settled int `json:"settled"`
	Held    int `json:"held"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
