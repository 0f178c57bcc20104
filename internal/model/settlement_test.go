package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformFee(t *testing.T) {
	assert.Equal(t, int64(100_000), PlatformFee(1_000_000, 1000))
	assert.Equal(t, int64(0), PlatformFee(1_000_000, 0))
	// truncates toward zero
	assert.Equal(t, int64(1), PlatformFee(19, 1000))
}

func TestSettlement_ApplyFees(t *testing.T) {
	s := &Settlement{
		AgreedPrice:       1_000_000,
		TotalCollected:    1_000_000,
		CommissionRateBps: 1000,
	}
	_, computed := s.Net()
	assert.False(t, computed)

	s.ApplyFees()

	net, computed := s.Net()
	assert.True(t, computed)
	assert.Equal(t, int64(100_000), s.PlatformFee)
	assert.Equal(t, int64(900_000), net)
	assert.Equal(t, NetPositive, s.NetState)
	assert.Equal(t, s.Recompute(), s.NetToTransport)
}

func TestSettlement_RecomputeMatchesFormula(t *testing.T) {
	cases := []Settlement{
		{TotalCollected: 1_000_000, GatewayFee: 0, PlatformFee: 100_000, Adjustment: 0},
		{TotalCollected: 500_000, GatewayFee: 11_000, PlatformFee: 50_000, Adjustment: 20_000},
		{TotalCollected: 0, GatewayFee: 0, PlatformFee: 100_000, Adjustment: 0},
	}
	for _, s := range cases {
		assert.Equal(t, s.TotalCollected-s.GatewayFee-s.PlatformFee-s.Adjustment, s.Recompute())
	}
}

func TestNetStateOf(t *testing.T) {
	assert.Equal(t, NetZero, NetStateOf(0))
	assert.Equal(t, NetPositive, NetStateOf(1))
	assert.Equal(t, NetNegative, NetStateOf(-1))
}

func TestEligibilityResult_KeepsAllReasons(t *testing.T) {
	r := &EligibilityResult{Eligible: true}
	r.Fail("no contract")
	r.Fail("underpaid")

	assert.False(t, r.Eligible)
	assert.Equal(t, []string{"no contract", "underpaid"}, r.Reasons)
}

func TestWalletTransactionType_Sign(t *testing.T) {
	assert.Equal(t, int64(1), WalletTxSettlementCredit.Sign())
	assert.Equal(t, int64(-1), WalletTxPayoutDebit.Sign())
	assert.Equal(t, int64(1), WalletTxReversal.Sign())
	assert.Equal(t, int64(1), WalletTxAdjustmentCredit.Sign())
}
