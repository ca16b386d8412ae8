package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/flatsql/internal/sqlerr"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStatement("select", time.Millisecond, nil)
	m.ObserveStatement("select", time.Millisecond, &sqlerr.ParseError{Reason: "x"})
	m.ObserveStatement("insert", time.Millisecond, &sqlerr.PKViolation{Table: "t"})
	m.ObserveJoin("nested_loop")
	m.ObserveJoin("sort_merge")
	m.ObserveJoin("sort_merge")
	m.ObserveIndexLookup()
	m.ObserveRowsScanned(42)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Statements.WithLabelValues("select")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("parse")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("pk_violation")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Joins.WithLabelValues("sort_merge")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.IndexLookups))
	require.Equal(t, 42.0, testutil.ToFloat64(m.RowsScanned))

	expected := `
# HELP flatsql_index_lookups_total SELECTs that read the main table through an index.
# TYPE flatsql_index_lookups_total counter
flatsql_index_lookups_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "flatsql_index_lookups_total"))
	require.Equal(t, 2, testutil.CollectAndCount(m.Duration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveStatement("select", time.Second, nil)
		m.ObserveJoin("nested_loop")
		m.ObserveIndexLookup()
		m.ObserveRowsScanned(1)
	})
}

func TestNew_NilRegisterer(t *testing.T) {
	m := New(nil)
	m.ObserveIndexLookup()
	require.Equal(t, 1.0, testutil.ToFloat64(m.IndexLookups))
}
