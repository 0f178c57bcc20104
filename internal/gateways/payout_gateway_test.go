package gateway

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// fakeBanks serves each provider host from its own in-memory listener.
type fakeBanks struct {
	listeners map[string]*fasthttputil.InmemoryListener
}

func newFakeBanks(t *testing.T, handlers map[string]fasthttp.RequestHandler) *fakeBanks {
	t.Helper()
	fb := &fakeBanks{listeners: make(map[string]*fasthttputil.InmemoryListener)}
	for host, h := range handlers {
		ln := fasthttputil.NewInmemoryListener()
		fb.listeners[host+":80"] = ln
		go func(h fasthttp.RequestHandler) { _ = fasthttp.Serve(ln, h) }(h)
		t.Cleanup(func() { _ = ln.Close() })
	}
	return fb
}

func (fb *fakeBanks) dial(addr string) (net.Conn, error) {
	ln, ok := fb.listeners[addr]
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "memory", Err: assert.AnError}
	}
	return ln.Dial()
}

func testConfig(fb *fakeBanks, providers ...ProviderConfig) *Config {
	return &Config{
		Providers:               providers,
		Timeout:                 2 * time.Second,
		MaxRetries:              2,
		RetryDelay:              time.Millisecond,
		MaxConns:                4,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
		Dial:                    fb.dial,
	}
}

func samplePayout() *model.Payout {
	return &model.Payout{
		ID:           11,
		TransportID:  7,
		PayoutNumber: "PO-7-20261019083000",
		TotalAmount:  1_300_000,
		ItemCount:    2,
		Status:       model.PayoutStatusProcessing,
		BankDetails:  &model.BankDetails{BankCode: "VCB", AccountNumber: "0011", AccountHolder: "NGUYEN VAN A"},
	}
}

func respond(ctx *fasthttp.RequestCtx, status int, body PayoutResponse) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	raw, _ := json.Marshal(body)
	ctx.SetBody(raw)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewClient(&Config{})
	assert.ErrorContains(t, err, "at least one provider is required")

	_, err = NewClient(&Config{Providers: []ProviderConfig{{Name: "empty"}}})
	assert.ErrorContains(t, err, "at least one provider is required")
}

func TestClient_DispatchAccepted(t *testing.T) {
	var got PayoutRequest
	fb := newFakeBanks(t, map[string]fasthttp.RequestHandler{
		"primary": func(ctx *fasthttp.RequestCtx) {
			assert.Equal(t, payoutPath, string(ctx.Path()))
			_ = json.Unmarshal(ctx.PostBody(), &got)
			respond(ctx, fasthttp.StatusOK, PayoutResponse{Status: BankStatusAccepted, TransactionRef: "BANK-1"})
		},
	})
	client, err := NewClient(testConfig(fb, ProviderConfig{Name: "primary", URL: "http://primary", Priority: 100}))
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Dispatch(context.Background(), samplePayout())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "BANK-1", result.TransactionRef)

	assert.Equal(t, "PO-7-20261019083000", got.PayoutNumber)
	assert.Equal(t, int64(1_300_000), got.Amount)
	assert.Equal(t, "VND", got.Currency)
	assert.Equal(t, "0011", got.BankAccount.AccountNumber)
}

func TestClient_DispatchRejected(t *testing.T) {
	fb := newFakeBanks(t, map[string]fasthttp.RequestHandler{
		"primary": func(ctx *fasthttp.RequestCtx) {
			respond(ctx, fasthttp.StatusUnprocessableEntity, PayoutResponse{Status: BankStatusRejected, Reason: "account closed"})
		},
	})
	client, err := NewClient(testConfig(fb, ProviderConfig{Name: "primary", URL: "http://primary", Priority: 100}))
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Dispatch(context.Background(), samplePayout())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Retryable)
	assert.Equal(t, "account closed", result.Reason)
}

func TestClient_DispatchDuplicateIsAccepted(t *testing.T) {
	fb := newFakeBanks(t, map[string]fasthttp.RequestHandler{
		"primary": func(ctx *fasthttp.RequestCtx) {
			respond(ctx, fasthttp.StatusConflict, PayoutResponse{Status: BankStatusAccepted, TransactionRef: "BANK-OLD"})
		},
	})
	client, err := NewClient(testConfig(fb, ProviderConfig{Name: "primary", URL: "http://primary", Priority: 100}))
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Dispatch(context.Background(), samplePayout())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "BANK-OLD", result.TransactionRef)
}

func TestClient_DispatchFailsOver(t *testing.T) {
	var primaryCalls atomic.Int32
	fb := newFakeBanks(t, map[string]fasthttp.RequestHandler{
		"primary": func(ctx *fasthttp.RequestCtx) {
			primaryCalls.Add(1)
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		},
		"secondary": func(ctx *fasthttp.RequestCtx) {
			respond(ctx, fasthttp.StatusOK, PayoutResponse{Status: BankStatusAccepted, TransactionRef: "BANK-2"})
		},
	})
	cfg := testConfig(fb,
		ProviderConfig{Name: "primary", URL: "http://primary", Priority: 100},
		ProviderConfig{Name: "secondary", URL: "http://secondary", Priority: 50},
	)
	cfg.CircuitBreakerThreshold = 1
	client, err := NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Dispatch(context.Background(), samplePayout())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "BANK-2", result.TransactionRef)
	assert.Equal(t, StateCircuitOpen, client.providers[0].State())
	assert.Equal(t, int32(1), primaryCalls.Load())
}

func TestClient_DispatchAllProvidersDown(t *testing.T) {
	fb := newFakeBanks(t, map[string]fasthttp.RequestHandler{
		"primary": func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusBadGateway) },
	})
	client, err := NewClient(testConfig(fb, ProviderConfig{Name: "primary", URL: "http://primary", Priority: 100}))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Dispatch(context.Background(), samplePayout())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAvailableProviders)
}

func TestClient_DispatchWithoutBankDetails(t *testing.T) {
	fb := newFakeBanks(t, nil)
	client, err := NewClient(testConfig(fb, ProviderConfig{Name: "primary", URL: "http://primary", Priority: 100}))
	require.NoError(t, err)
	defer client.Close()

	p := samplePayout()
	p.BankDetails = nil
	result, err := client.Dispatch(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Retryable)
	assert.Equal(t, ErrMissingBankDetails.Error(), result.Reason)
}

func TestClient_CheckHealth(t *testing.T) {
	fb := newFakeBanks(t, map[string]fasthttp.RequestHandler{
		"primary": func(ctx *fasthttp.RequestCtx) {
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"status":"healthy"}`)
		},
		"secondary": func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusServiceUnavailable) },
	})
	client, err := NewClient(testConfig(fb,
		ProviderConfig{Name: "primary", URL: "http://primary", Priority: 10},
		ProviderConfig{Name: "secondary", URL: "http://secondary", Priority: 100},
	))
	require.NoError(t, err)
	defer client.Close()

	client.providers[0].SetState(StateDegraded)
	client.CheckHealth()
	assert.Equal(t, StateHealthy, client.providers[0].State())
	assert.Equal(t, StateUnhealthy, client.providers[1].State())

	p, err := client.SelectProvider()
	require.NoError(t, err)
	assert.Equal(t, "primary", p.Name())

	snaps := client.Providers()
	require.Len(t, snaps, 2)
	assert.Equal(t, "primary", snaps[0].Name)
	assert.Equal(t, "UNHEALTHY", snaps[1].State)
}

func TestProvider_CircuitHalfOpens(t *testing.T) {
	p := NewProvider("bank", "http://bank", 100, &fasthttp.Client{})
	now := time.Now()

	p.tripCircuit(now.Add(10 * time.Second))
	assert.False(t, p.Available(now))
	assert.Equal(t, 0.0, p.Score(now))

	assert.True(t, p.Available(now.Add(11*time.Second)))
	assert.Equal(t, StateDegraded, p.State())
}

func TestProvider_ScoreRanksPriorityAndFailures(t *testing.T) {
	now := time.Now()
	high := NewProvider("high", "http://high", 100, &fasthttp.Client{})
	low := NewProvider("low", "http://low", 20, &fasthttp.Client{})
	assert.Greater(t, high.Score(now), low.Score(now))

	high.stats.failure()
	high.stats.failure()
	high.stats.failure()
	high.stats.failure()
	assert.Less(t, high.Score(now), low.Score(now))

	high.stats.success(120)
	assert.Equal(t, int32(0), high.stats.consecutiveFails.Load())
	assert.Equal(t, int64(120), high.stats.avgLatencyMs())
}

func TestProviderState_String(t *testing.T) {
	tests := []struct {
		state    ProviderState
		expected string
	}{
		{StateHealthy, "HEALTHY"},
		{StateDegraded, "DEGRADED"},
		{StateUnhealthy, "UNHEALTHY"},
		{StateCircuitOpen, "CIRCUIT_OPEN"},
		{ProviderState(999), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
