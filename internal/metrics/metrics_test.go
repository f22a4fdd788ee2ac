package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	m.PageFetched(time.Second)
	m.PageFailed()
	m.RecordKept()
	m.RecordDuplicate()
	m.RecordIncomplete()
	m.RunFinished("no_results")

	assert.NotNil(t, m.Handler())
}

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.PageFetched(250 * time.Millisecond)
	m.PageFailed()
	m.RecordKept()
	m.RecordKept()
	m.RecordDuplicate()
	m.RunFinished("exhausted")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PagesFetchedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PagesFailedTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsTotal.WithLabelValues("kept")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsTotal.WithLabelValues("duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("exhausted")))
}
