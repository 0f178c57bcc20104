package gateway

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

type ProviderState int

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateUnhealthy
	StateCircuitOpen
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

// providerStats keeps the counters used to rank bank endpoints.
type providerStats struct {
	calls            atomic.Int64
	succeeded        atomic.Int64
	failed           atomic.Int64
	latencyTotalMs   atomic.Int64
	consecutiveFails atomic.Int32
	lastFailureAt    atomic.Int64

	mu      sync.Mutex
	recent  []int64
	maxKeep int
}

func newProviderStats() *providerStats {
	return &providerStats{recent: make([]int64, 0, 50), maxKeep: 50}
}

func (s *providerStats) success(latencyMs int64) {
	s.calls.Add(1)
	s.succeeded.Add(1)
	s.latencyTotalMs.Add(latencyMs)
	s.consecutiveFails.Store(0)

	s.mu.Lock()
	if len(s.recent) >= s.maxKeep {
		s.recent = s.recent[1:]
	}
	s.recent = append(s.recent, latencyMs)
	s.mu.Unlock()
}

func (s *providerStats) failure() int32 {
	s.calls.Add(1)
	s.failed.Add(1)
	s.lastFailureAt.Store(time.Now().Unix())
	return s.consecutiveFails.Add(1)
}

func (s *providerStats) successRate() float64 {
	calls := s.calls.Load()
	if calls == 0 {
		return 1.0
	}
	return float64(s.succeeded.Load()) / float64(calls)
}

func (s *providerStats) avgLatencyMs() int64 {
	ok := s.succeeded.Load()
	if ok == 0 {
		return 0
	}
	return s.latencyTotalMs.Load() / ok
}

func (s *providerStats) p95LatencyMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == 0 {
		return 0
	}
	sorted := append([]int64(nil), s.recent...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Provider is one bank endpoint able to execute payouts.
type Provider struct {
	name     string
	url      string
	priority int32
	client   *fasthttp.Client
	stats    *providerStats

	state     atomic.Int32
	openUntil atomic.Int64
}

func NewProvider(name, url string, priority int, client *fasthttp.Client) *Provider {
	p := &Provider{
		name:     name,
		url:      url,
		priority: int32(priority),
		client:   client,
		stats:    newProviderStats(),
	}
	p.state.Store(int32(StateHealthy))
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) State() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(state ProviderState) {
	p.state.Store(int32(state))
}

// Available reports whether the provider may take a call. An open circuit
// half-opens into DEGRADED once its timeout has passed.
func (p *Provider) Available(now time.Time) bool {
	switch p.State() {
	case StateCircuitOpen:
		if now.Unix() >= p.openUntil.Load() {
			p.SetState(StateDegraded)
			return true
		}
		return false
	case StateUnhealthy:
		return false
	default:
		return true
	}
}

func (p *Provider) tripCircuit(until time.Time) {
	p.openUntil.Store(until.Unix())
	p.SetState(StateCircuitOpen)
}

// Score ranks available providers, higher is better. Priority dominates and
// recent failures pull a provider down.
func (p *Provider) Score(now time.Time) float64 {
	if !p.Available(now) {
		return 0
	}

	latency := 100.0
	if avg := p.stats.avgLatencyMs(); avg > 0 {
		latency = 100.0 * (1.0 - float64(avg)/10000.0)
		if latency < 0 {
			latency = 0
		}
	}

	penalty := 1.0 - float64(p.stats.consecutiveFails.Load())*0.2
	if penalty < 0.1 {
		penalty = 0.1
	}
	if p.State() == StateDegraded {
		penalty *= 0.5
	}

	return (float64(p.priority)*0.5 + p.stats.successRate()*100*0.3 + latency*0.2) * penalty
}

type ProviderSnapshot struct {
	Name             string  `json:"name"`
	URL              string  `json:"url"`
	State            string  `json:"state"`
	Score            float64 `json:"score"`
	Calls            int64   `json:"calls"`
	Failed           int64   `json:"failed"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	P95LatencyMs     int64   `json:"p95_latency_ms"`
	ConsecutiveFails int32   `json:"consecutive_fails"`
}

func (p *Provider) snapshot(now time.Time) ProviderSnapshot {
	return ProviderSnapshot{
		Name:             p.name,
		URL:              p.url,
		State:            p.State().String(),
		Score:            p.Score(now),
		Calls:            p.stats.calls.Load(),
		Failed:           p.stats.failed.Load(),
		SuccessRate:      p.stats.successRate(),
		AvgLatencyMs:     p.stats.avgLatencyMs(),
		P95LatencyMs:     p.stats.p95LatencyMs(),
		ConsecutiveFails: p.stats.consecutiveFails.Load(),
	}
}
