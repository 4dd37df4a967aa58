package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	transactionsCounter     *prometheus.CounterVec
	gatewayCallCounter      *prometheus.CounterVec
	gatewayDurationHisto    *prometheus.HistogramVec
	webhookCounter          *prometheus.CounterVec
	transitionCounter       *prometheus.CounterVec
	idempotencyCounter      *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
	gatewayPoolRunningGauge prometheus.Gauge
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transactionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_created_total",
			Help: "Transactions accepted and persisted as pending",
		}, []string{"kind"})

		gatewayCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Gateway call outcomes (acknowledged, rejected, transport_error)",
		}, []string{"kind", "outcome"})

		gatewayDurationHisto = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Gateway call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"})

		webhookCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Gateway notifications by reconciliation result",
		}, []string{"result"})

		transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_transitions_total",
			Help: "Applied transaction status transitions",
		}, []string{"from", "to"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		gatewayPoolRunningGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_pool_running",
			Help: "Gateway calls currently executing in the worker pool",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			transactionsCounter,
			gatewayCallCounter,
			gatewayDurationHisto,
			webhookCounter,
			transitionCounter,
			idempotencyCounter,
			workerRunCounter,
			gatewayPoolRunningGauge,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementTransactionCreated(kind string) {
	if transactionsCounter == nil {
		return
	}
	transactionsCounter.WithLabelValues(kind).Inc()
}

func ObserveGatewayCall(kind, outcome string, duration time.Duration) {
	if gatewayCallCounter == nil {
		return
	}
	gatewayCallCounter.WithLabelValues(kind, outcome).Inc()
	gatewayDurationHisto.WithLabelValues(kind).Observe(duration.Seconds())
}

func IncrementWebhook(result string) {
	if webhookCounter == nil {
		return
	}
	webhookCounter.WithLabelValues(result).Inc()
}

func IncrementTransition(from, to string) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.WithLabelValues(from, to).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func SetGatewayPoolRunning(n int) {
	if gatewayPoolRunningGauge == nil {
		return
	}
	gatewayPoolRunningGauge.Set(float64(n))
}
