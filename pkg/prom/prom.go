package prom

import (
	"sync"
	"time"

	xhttp "github.com/home-express/finance-core/pkg/http"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemPayment    = "payment"
	SystemSettlement = "settlement"
	SystemWallet     = "wallet"
	SystemPayout     = "payout"
	SystemScheduler  = "scheduler"
	SystemGateway    = "gateway"
	SystemEvents     = "events"
)

// metrics holds the collectors of one Create call. Recording helpers are
// no-ops until Create runs, so services and tests work without a registry.
type metrics struct {
	registry *prometheus.Registry

	paymentsCompleted     *prometheus.CounterVec
	paymentAmount         *prometheus.CounterVec
	settlementTransitions *prometheus.CounterVec
	ledgerEntries         *prometheus.CounterVec
	payoutStatus          *prometheus.CounterVec
	payoutBatchAmount     prometheus.Histogram
	jobDuration           *prometheus.HistogramVec
	jobRuns               *prometheus.CounterVec
	gatewayResults        *prometheus.CounterVec
	gatewayLatency        *prometheus.HistogramVec
	eventsPublished       *prometheus.CounterVec
}

var (
	mu      sync.RWMutex
	current *metrics
)

// vnd buckets cover single bookings up to a large weekly sweep.
var vndBuckets = prometheus.ExponentialBuckets(100_000, 4, 9)

// Create builds a fresh registry labelled with env and instance. Calling it
// again replaces the previous one.
func Create(host string, env string, namespace string) error {
	labels := prometheus.Labels{"env": env, "instance": host}
	counter := func(subsystem, name string, l ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, ConstLabels: labels,
		}, l)
	}
	histogram := func(subsystem, name string, buckets []float64, l ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, ConstLabels: labels, Buckets: buckets,
		}, l)
	}

	m := &metrics{
		registry:              prometheus.NewRegistry(),
		paymentsCompleted:     counter(SystemPayment, "completed_total", "method", "type"),
		paymentAmount:         counter(SystemPayment, "completed_amount_vnd", "method"),
		settlementTransitions: counter(SystemSettlement, "transitions_total", "from", "to"),
		ledgerEntries:         counter(SystemWallet, "ledger_entries_total", "type"),
		payoutStatus:          counter(SystemPayout, "status_total", "status"),
		payoutBatchAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: SystemPayout, Name: "batch_amount_vnd", ConstLabels: labels, Buckets: vndBuckets,
		}),
		jobDuration:     histogram(SystemScheduler, "job_duration_seconds", prometheus.DefBuckets, "job"),
		jobRuns:         counter(SystemScheduler, "job_runs_total", "job", "result"),
		gatewayResults:  counter(SystemGateway, "dispatch_total", "provider", "result"),
		gatewayLatency:  histogram(SystemGateway, "dispatch_latency_seconds", prometheus.DefBuckets, "provider"),
		eventsPublished: counter(SystemEvents, "published_total", "type", "result"),
	}

	for _, c := range []prometheus.Collector{
		m.paymentsCompleted, m.paymentAmount, m.settlementTransitions, m.ledgerEntries,
		m.payoutStatus, m.payoutBatchAmount, m.jobDuration, m.jobRuns,
		m.gatewayResults, m.gatewayLatency, m.eventsPublished,
	} {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}

	mu.Lock()
	current = m
	mu.Unlock()
	return nil
}

func get() *metrics {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Gatherer exposes the active registry, nil before Create.
func Gatherer() prometheus.Gatherer {
	if m := get(); m != nil {
		return m.registry
	}
	return nil
}

// ListenAndServer blocks serving the registry on port under url.
func ListenAndServer(port string, url string) {
	m := get()
	if m == nil {
		logger.Warn("[metrics-server] metrics not created, nothing to serve")
		return
	}
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	s := xhttp.CreateServer()
	s.GET(url, h)
	logger.Info("[metrics-server] listening", "addr", port, "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func PaymentCompleted(method, paymentType string, amount int64) {
	if m := get(); m != nil {
		m.paymentsCompleted.WithLabelValues(method, paymentType).Inc()
		m.paymentAmount.WithLabelValues(method).Add(float64(amount))
	}
}

func SettlementTransition(from, to string) {
	if m := get(); m != nil {
		m.settlementTransitions.WithLabelValues(from, to).Inc()
	}
}

func LedgerEntry(transactionType string) {
	if m := get(); m != nil {
		m.ledgerEntries.WithLabelValues(transactionType).Inc()
	}
}

func PayoutStatus(status string) {
	if m := get(); m != nil {
		m.payoutStatus.WithLabelValues(status).Inc()
	}
}

func PayoutBatchAmount(amount int64) {
	if m := get(); m != nil {
		m.payoutBatchAmount.Observe(float64(amount))
	}
}

func SchedulerJob(job string, seconds float64, err error) {
	if m := get(); m != nil {
		m.jobDuration.WithLabelValues(job).Observe(seconds)
		m.jobRuns.WithLabelValues(job, result(err)).Inc()
	}
}

func GatewayCall(provider, outcome string, elapsed time.Duration) {
	if m := get(); m != nil {
		m.gatewayResults.WithLabelValues(provider, outcome).Inc()
		m.gatewayLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func EventPublished(eventType string, err error) {
	if m := get(); m != nil {
		m.eventsPublished.WithLabelValues(eventType, result(err)).Inc()
	}
}
