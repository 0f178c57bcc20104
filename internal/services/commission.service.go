package services

import (
	"context"
	"fmt"

	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/model"
	"github.com/shopspring/decimal"
)

var tenThousand = decimal.NewFromInt(10000)

type CommissionRateRepository interface {
	CommissionRate(ctx context.Context, transportID int64) (int64, bool, error)
}

// CommissionService owns every fee formula of the settlement.
type CommissionService struct {
	rates          CommissionRateRepository
	defaultRateBps int64
	gatewayRateBps int64
	gatewayFixed   int64
	depositBps     int64
}

func NewCommissionService(rates CommissionRateRepository, cfg *config.Config) *CommissionService {
	return &CommissionService{
		rates:          rates,
		defaultRateBps: cfg.DefaultCommissionRateBps,
		gatewayRateBps: cfg.GatewayFeeRateBps,
		gatewayFixed:   cfg.GatewayFeeFixedVND,
		depositBps:     cfg.DepositPercentBps,
	}
}

// RateFor returns the transport's commission rate, falling back to the default.
func (s *CommissionService) RateFor(ctx context.Context, transportID int64) (int64, error) {
	rate, ok, err := s.rates.CommissionRate(ctx, transportID)
	if err != nil {
		return 0, fmt.Errorf("commission rate: %w", err)
	}
	if !ok {
		return s.defaultRateBps, nil
	}
	return rate, nil
}

func (s *CommissionService) DefaultDepositBps() int64 {
	return s.depositBps
}

// GatewayFee is charged only on online methods: ceil(amount*rate/10000) + fixed.
func (s *CommissionService) GatewayFee(method model.PaymentMethod, amount int64) int64 {
	if !method.Online() || amount <= 0 {
		return 0
	}
	if s.gatewayRateBps == 0 && s.gatewayFixed == 0 {
		return 0
	}
	variable := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(s.gatewayRateBps)).
		Div(tenThousand).
		Ceil()
	return variable.IntPart() + s.gatewayFixed
}

// DepositAmount is price*bps/10000 rounded up to the whole VND.
func DepositAmount(price, depositBps int64) int64 {
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(depositBps)).
		Div(tenThousand).
		Ceil().
		IntPart()
}

// RemainingAmount is what is left of the price after the rounded deposit, plus tip.
func RemainingAmount(price, depositBps, tip int64) int64 {
	return price - DepositAmount(price, depositBps) + tip
}

// Breakdown folds the COMPLETED payments of a booking into settlement figures.
// Refunds never count as collected.
func (s *CommissionService) Breakdown(payments []*model.Payment) model.PaymentBreakdown {
	var b model.PaymentBreakdown
	var cash, online int
	for _, p := range payments {
		if p.Status != model.PaymentStatusCompleted || p.Type == model.PaymentTypeRefund {
			continue
		}
		switch p.Type {
		case model.PaymentTypeDeposit:
			b.DepositPaid += p.Amount
		case model.PaymentTypeRemainingPayment:
			b.RemainingPaid += p.Amount - p.TipAmount
			b.TipPaid += p.TipAmount
		case model.PaymentTypeTip:
			b.TipPaid += p.Amount
		}
		b.TotalCollected += p.Amount
		b.GatewayFee += s.GatewayFee(p.Method, p.Amount)
		if p.Method.Online() {
			online++
		} else {
			cash++
		}
	}

	switch {
	case online == 0:
		b.CollectionMode = model.CollectionModeAllCash
	case cash == 0:
		b.CollectionMode = model.CollectionModeAllOnline
	default:
		b.CollectionMode = model.CollectionModeMixed
	}
	return b
}
