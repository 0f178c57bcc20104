package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/prom"
	"github.com/valyala/fasthttp"
)

const (
	payoutPath = "/api/v1/payouts"
	healthPath = "/health"
)

var (
	ErrNoAvailableProviders = errors.New("no available bank providers")
	ErrMissingBankDetails   = errors.New("payout has no bank details")
)

// Bank answers with one of these statuses.
const (
	BankStatusAccepted = "ACCEPTED"
	BankStatusRejected = "REJECTED"
)

type PayoutRequest struct {
	PayoutID      int64              `json:"payout_id"`
	PayoutNumber  string             `json:"payout_number"`
	TransportID   int64              `json:"transport_id"`
	Amount        int64              `json:"amount"`
	Currency      string             `json:"currency"`
	ItemCount     int                `json:"item_count"`
	BankAccount   *model.BankDetails `json:"bank_account"`
	RequestedAt   time.Time          `json:"requested_at"`
	CorrelationID string             `json:"correlation_id"`
}

type PayoutResponse struct {
	PayoutNumber   string `json:"payout_number"`
	Status         string `json:"status"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Retryable      bool   `json:"retryable"`
}

type Config struct {
	Providers               []ProviderConfig
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	// Dial overrides the network dialer, tests plug an in-memory listener here.
	Dial fasthttp.DialFunc
}

type ProviderConfig struct {
	Name     string
	URL      string
	Priority int
}

// Client dispatches payouts to the first healthy bank provider and fails over
// to the next one on transport errors. The payout number is the bank side
// idempotency key, so a retried call never pays twice.
type Client struct {
	config    *Config
	providers []*Provider
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	c := &Client{
		config:    config,
		providers: make([]*Provider, 0, len(config.Providers)),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, pc := range config.Providers {
		if pc.URL == "" {
			continue
		}
		hc := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: time.Minute,
			Dial:                config.Dial,
		}
		c.providers = append(c.providers, NewProvider(pc.Name, pc.URL, pc.Priority, hc))
		logger.Info("bank provider initialized", "name", pc.Name, "url", pc.URL, "priority", pc.Priority)
	}
	if len(c.providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	if config.HealthCheckInterval > 0 {
		c.wg.Add(1)
		go c.healthChecker()
	}
	logger.Info("bank payout client initialized", "providers", len(c.providers), "timeout", config.Timeout)
	return c, nil
}

// Dispatch implements services.Dispatcher. A bank rejection is a result, not
// an error. Errors mean the outcome is unknown after every retry.
func (c *Client) Dispatch(ctx context.Context, payout *model.Payout) (model.DispatchResult, error) {
	if payout.BankDetails == nil || payout.BankDetails.AccountNumber == "" {
		logger.Warn("payout dispatch refused locally", "payout_id", payout.ID, "error", ErrMissingBankDetails)
		return model.DispatchResult{Reason: ErrMissingBankDetails.Error()}, nil
	}

	body, err := json.Marshal(PayoutRequest{
		PayoutID:      payout.ID,
		PayoutNumber:  payout.PayoutNumber,
		TransportID:   payout.TransportID,
		Amount:        payout.TotalAmount,
		Currency:      "VND",
		ItemCount:     payout.ItemCount,
		BankAccount:   payout.BankDetails,
		RequestedAt:   c.now().UTC(),
		CorrelationID: fmt.Sprintf("payout-%d", payout.ID),
	})
	if err != nil {
		return model.DispatchResult{}, fmt.Errorf("marshal payout request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.DispatchResult{}, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		provider, err := c.SelectProvider()
		if err != nil {
			lastErr = err
			continue
		}

		started := c.now()
		status, respBody, err := c.do(ctx, provider, fasthttp.MethodPost, payoutPath, body)
		elapsed := time.Since(started)
		if err == nil && status >= fasthttp.StatusInternalServerError {
			err = fmt.Errorf("bank returned status %d: %s", status, respBody)
		}
		if err != nil {
			c.recordFailure(provider)
			prom.GatewayCall(provider.name, "error", elapsed)
			logger.Warn("bank call failed", "provider", provider.name, "payout_number", payout.PayoutNumber, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}
		provider.stats.success(elapsed.Milliseconds())

		var resp PayoutResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			prom.GatewayCall(provider.name, "bad_response", elapsed)
			return model.DispatchResult{}, fmt.Errorf("unmarshal bank response (status %d): %w", status, err)
		}

		result := toDispatchResult(status, resp)
		outcome := "accepted"
		if !result.Success {
			outcome = "rejected"
		}
		prom.GatewayCall(provider.name, outcome, elapsed)
		logger.Info("payout sent to bank",
			"payout_number", payout.PayoutNumber, "provider", provider.name, "http_status", status,
			"bank_status", resp.Status, "transaction_ref", resp.TransactionRef, "latency_ms", elapsed.Milliseconds())
		return result, nil
	}

	return model.DispatchResult{}, fmt.Errorf("payout %s failed after %d attempts: %w", payout.PayoutNumber, c.config.MaxRetries+1, lastErr)
}

func toDispatchResult(status int, resp PayoutResponse) model.DispatchResult {
	// 409 means the bank already holds this payout number.
	if status == fasthttp.StatusConflict && resp.TransactionRef != "" {
		return model.DispatchResult{Success: true, TransactionRef: resp.TransactionRef}
	}
	if status >= fasthttp.StatusBadRequest || resp.Status != BankStatusAccepted {
		reason := resp.Reason
		if reason == "" {
			reason = fmt.Sprintf("bank rejected payout with status %d", status)
		}
		return model.DispatchResult{Reason: reason, Retryable: resp.Retryable}
	}
	return model.DispatchResult{Success: true, TransactionRef: resp.TransactionRef}
}

// SelectProvider returns the available provider with the highest score.
func (c *Client) SelectProvider() (*Provider, error) {
	now := c.now()
	var (
		best      *Provider
		bestScore float64
	)
	for _, p := range c.providers {
		if !p.Available(now) {
			continue
		}
		if score := p.Score(now); best == nil || score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	return best, nil
}

func (c *Client) recordFailure(p *Provider) {
	fails := p.stats.failure()
	if c.config.CircuitBreakerThreshold > 0 && fails >= int32(c.config.CircuitBreakerThreshold) && p.State() != StateCircuitOpen {
		p.tripCircuit(c.now().Add(c.config.CircuitBreakerTimeout))
		logger.Warn("bank provider circuit opened", "provider", p.name, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func (c *Client) do(ctx context.Context, p *Provider, method, path string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = c.now().Add(c.config.Timeout)
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

func (c *Client) healthChecker() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.CheckHealth()
		case <-c.stopCh:
			return
		}
	}
}

// CheckHealth pings every provider and moves it between HEALTHY and
// UNHEALTHY. Open circuits are left to time out on their own.
func (c *Client) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	for _, p := range c.providers {
		if p.State() == StateCircuitOpen {
			continue
		}
		healthy := c.ping(ctx, p)
		old := p.State()
		next := old
		switch {
		case healthy && old != StateHealthy:
			next = StateHealthy
		case !healthy:
			next = StateUnhealthy
		}
		if next != old {
			p.SetState(next)
			logger.Info("bank provider state changed", "provider", p.name, "old_state", old.String(), "new_state", next.String())
		}
	}
}

func (c *Client) ping(ctx context.Context, p *Provider) bool {
	status, body, err := c.do(ctx, p, fasthttp.MethodGet, healthPath, nil)
	if err != nil || status != fasthttp.StatusOK {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	return json.Unmarshal(body, &health) == nil && health.Status == "healthy"
}

// Providers returns a snapshot per provider, best first.
func (c *Client) Providers() []ProviderSnapshot {
	now := c.now()
	out := make([]ProviderSnapshot, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p.snapshot(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (c *Client) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	logger.Info("bank payout client closed")
	return nil
}
