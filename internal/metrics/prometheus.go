package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry         *prometheus.Registry
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	ledgerEntries    *prometheus.CounterVec
	limitRejections  *prometheus.CounterVec
	profilesByStatus *prometheus.GaugeVec
	eventsProcessed  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_operations_total",
			Help: "Account operations by name and outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "account_operation_duration_seconds",
			Help:    "Time taken by account operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		ledgerEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Committed ledger entries",
		}, []string{"direction", "actor"}),
		limitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limit_rejections_total",
			Help: "Self-initiated debits rejected by a transfer limit",
		}, []string{"window"}),
		profilesByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "profiles",
			Help: "Profiles by approval status",
		}, []string{"status"}),
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_events_processed_total",
			Help: "Account stream events handled by the projector",
		}, []string{"type", "result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Outcome names the error category of err for labelling.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrState):
		return "state"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrBusinessRule):
		return "business_rule"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "error"
}

func (m *Collector) ObserveOperation(operation string, started time.Time, err error) {
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Collector) RecordLedgerEntry(e *models.LedgerEntry) {
	m.ledgerEntries.WithLabelValues(string(e.Direction), string(e.Actor)).Inc()
}

func (m *Collector) RecordLimitRejection(window string) {
	m.limitRejections.WithLabelValues(window).Inc()
}

// SetProfileCounts replaces the status gauge with counts.
func (m *Collector) SetProfileCounts(counts map[models.Status]int) {
	for _, s := range []models.Status{models.StatusPending, models.StatusApproved, models.StatusRejected} {
		m.profilesByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

func (m *Collector) RecordEvent(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsProcessed.WithLabelValues(eventType, result).Inc()
}

func (m *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Collector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
