// Package metrics exposes Prometheus collectors for the bot and its HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the whispr collectors.
	Registry = prometheus.NewRegistry()

	commandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whispr",
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Inbound messages handled, by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "whispr",
			Subsystem: "bot",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling an inbound message.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"command"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whispr",
			Subsystem: "outbound",
			Name:      "deliveries_total",
			Help:      "Outbound messages handed to the transport.",
		},
		[]string{"kind"},
	)

	suppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "whispr",
			Subsystem: "outbound",
			Name:      "suppressed_total",
			Help:      "Outbound messages dropped because the recipient is blocked.",
		},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whispr",
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Wallet transfers by purpose and result.",
		},
		[]string{"purpose", "result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whispr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	pendingOnce sync.Once
)

func init() {
	Registry.MustRegister(
		commandsHandled,
		commandDuration,
		deliveries,
		suppressed,
		transfers,
		httpRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordCommand(command, outcome string, elapsed time.Duration) {
	if command == "" {
		command = "broadcast"
	}
	commandsHandled.WithLabelValues(command, outcome).Inc()
	commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func RecordDelivery(kind string) {
	deliveries.WithLabelValues(kind).Inc()
}

func RecordSuppressed() {
	suppressed.Inc()
}

func RecordTransfer(purpose, result string) {
	transfers.WithLabelValues(purpose, result).Inc()
}

// RegisterPendingQuestions exports the number of open questions. Only the first
// registration takes effect.
func RegisterPendingQuestions(pending func() int) {
	pendingOnce.Do(func() {
		Registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "whispr",
				Subsystem: "bot",
				Name:      "pending_questions",
				Help:      "Questions waiting for an answer.",
			},
			func() float64 { return float64(pending()) },
		))
	})
}

// InstrumentHandler counts requests by chi route pattern.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
