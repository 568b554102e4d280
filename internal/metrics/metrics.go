package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the parking service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TicketsIssued       prometheus.Counter
	TicketsSettled      prometheus.Counter
	SettleConflicts     prometheus.Counter
	FareAmount          prometheus.Histogram
	CashCutAuthFailures prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicketsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "parking_tickets_issued_total",
			Help: "Total number of entry tickets issued",
		}),
		TicketsSettled: factory.NewCounter(prometheus.CounterOpts{
			Name: "parking_tickets_settled_total",
			Help: "Total number of tickets settled",
		}),
		SettleConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "parking_settle_conflicts_total",
			Help: "Settle attempts rejected because the ticket was already settled",
		}),
		FareAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "parking_fare_amount",
			Help:    "Distribution of settled fare amounts",
			Buckets: []float64{15, 20, 25, 30, 40, 50, 75, 100, 200, 400},
		}),
		CashCutAuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "parking_cash_cut_auth_failures_total",
			Help: "Cash cut requests rejected for a wrong secret",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parking_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementTicketsIssued() {
	if m == nil {
		return
	}
	m.TicketsIssued.Inc()
}

// ObserveSettlement counts a settled ticket and records its amount.
func (m *Metrics) ObserveSettlement(amount int64) {
	if m == nil {
		return
	}
	m.TicketsSettled.Inc()
	m.FareAmount.Observe(float64(amount))
}

func (m *Metrics) IncrementSettleConflicts() {
	if m == nil {
		return
	}
	m.SettleConflicts.Inc()
}

func (m *Metrics) IncrementCashCutAuthFailures() {
	if m == nil {
		return
	}
	m.CashCutAuthFailures.Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
