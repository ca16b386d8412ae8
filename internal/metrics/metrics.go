// Package metrics holds the prometheus collectors of the query engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tuannm99/flatsql/internal/sqlerr"
)

const namespace = "flatsql"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Statements   *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	Joins        *prometheus.CounterVec
	IndexLookups prometheus.Counter
	RowsScanned  prometheus.Counter
	Duration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg (skipped when reg is nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_total",
			Help:      "Statements executed, by kind.",
		}, []string{"kind"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statement_errors_total",
			Help:      "Failed statements, by error class.",
		}, []string{"class"}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Joins executed, by strategy.",
		}, []string{"strategy"}),
		IndexLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_lookups_total",
			Help:      "SELECTs that read the main table through an index.",
		}),
		RowsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_scanned_total",
			Help:      "Rows read from tables by SELECT.",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "statement_duration_seconds",
			Help:      "Statement latency, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Statements, m.Errors, m.Joins, m.IndexLookups, m.RowsScanned, m.Duration)
	}
	return m
}

// ObserveStatement records one executed statement. kind is e.g. "select".
func (m *Metrics) ObserveStatement(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Statements.WithLabelValues(kind).Inc()
	m.Duration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.Errors.WithLabelValues(sqlerr.Class(err)).Inc()
	}
}

func (m *Metrics) ObserveJoin(strategy string) {
	if m == nil {
		return
	}
	m.Joins.WithLabelValues(strategy).Inc()
}

func (m *Metrics) ObserveIndexLookup() {
	if m == nil {
		return
	}
	m.IndexLookups.Inc()
}

func (m *Metrics) ObserveRowsScanned(n int) {
	if m == nil {
		return
	}
	m.RowsScanned.Add(float64(n))
}
