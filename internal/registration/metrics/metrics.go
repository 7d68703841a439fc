package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration module.
// Nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	RequestsSubmitted prometheus.Counter
	Decisions         *prometheus.CounterVec
	AlreadyProcessed  *prometheus.CounterVec
	AccountsCreated   prometheus.Counter
	OperationDuration *prometheus.HistogramVec

	AuditPersistFailures prometheus.Counter
	AuditPersistDuration prometheus.Histogram
	OutboxPublished      prometheus.Counter
	OutboxFailures       prometheus.Counter
	NotifyFailures       prometheus.Counter
}

// New creates the registration metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_registration_requests_submitted_total",
			Help: "Total number of registration requests submitted",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_registration_decisions_total",
			Help: "Total number of registration requests resolved, by outcome",
		}, []string{"outcome"}), // outcome: "approved", "rejected"
		AlreadyProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_registration_already_processed_total",
			Help: "Review attempts on requests that were no longer pending, by attempted action",
		}, []string{"action"}),
		AccountsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_accounts_created_total",
			Help: "Total number of accounts created by approval",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regdesk_registration_operation_duration_seconds",
			Help:    "Duration of registration service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		AuditPersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_audit_persist_failures_total",
			Help: "Audit events that could not be persisted",
		}),
		AuditPersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "regdesk_audit_persist_duration_seconds",
			Help:    "Duration of audit event persistence",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_audit_outbox_published_total",
			Help: "Audit outbox rows published to Kafka",
		}),
		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_audit_outbox_failures_total",
			Help: "Failed audit outbox publish batches",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_registration_notify_failures_total",
			Help: "Lifecycle notifications that could not be published",
		}),
	}
}

func (m *Metrics) IncrementSubmitted() {
	if m != nil {
		m.RequestsSubmitted.Inc()
	}
}

// IncrementDecision records a committed approval or rejection.
func (m *Metrics) IncrementDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementAlreadyProcessed(action string) {
	if m != nil {
		m.AlreadyProcessed.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncrementAccountsCreated() {
	if m != nil {
		m.AccountsCreated.Inc()
	}
}

// ObserveOperation records the duration of a service operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m != nil {
		m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IncAuditPersistFailures() {
	if m != nil {
		m.AuditPersistFailures.Inc()
	}
}

func (m *Metrics) ObserveAuditPersist(seconds float64) {
	if m != nil {
		m.AuditPersistDuration.Observe(seconds)
	}
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m != nil {
		m.OutboxPublished.Add(float64(n))
	}
}

func (m *Metrics) IncOutboxFailures() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}

func (m *Metrics) IncNotifyFailures() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}
