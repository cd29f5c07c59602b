package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordPublication(t *testing.T) {
	m := NewMetrics()

	m.RecordPublication("PUBLISH", "success", 12, 0, 40*time.Millisecond)
	m.RecordPublication("REPUBLISH", "success", 1, 3, 10*time.Millisecond)
	m.RecordPublication("REPUBLISH", "failure", 0, 0, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.publicationRuns.WithLabelValues("PUBLISH", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.publicationRuns.WithLabelValues("REPUBLISH", "failure")))
	require.Equal(t, 12.0, testutil.ToFloat64(m.evaluationsCreated.WithLabelValues("PUBLISH")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.evaluationsRemoved.WithLabelValues("REPUBLISH")))
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordError("/x", "GET", "NOT_FOUND")
		m.RecordPublication("PUBLISH", "success", 1, 1, time.Millisecond)
	})
	require.Nil(t, m.Registry())
}
