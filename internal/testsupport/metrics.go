package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue sums every series of metricName whose labels include
// labelFilter. Counters and gauges contribute their value, histograms their
// sample count. A metric that was never registered reads as 0.
func GetMetricValue(t *testing.T, metricName string, labelFilter map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "gather metrics")

	var total float64
	for _, mf := range families {
		if mf.GetName() != metricName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labelFilter) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name {
				found = lp.GetValue() == value
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AssertMetricDelta runs fn and asserts metricName moved by exactly delta.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, metricName, labels)
	fn()
	after := GetMetricValue(t, metricName, labels)

	assert.Equal(t, delta, after-before, "metric %s%v delta mismatch", metricName, labels)
}

// AssertMetricDeltaAsync is AssertMetricDelta for effects that land on
// another goroutine, such as pub/sub handlers.
func AssertMetricDeltaAsync(t *testing.T, metricName string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, metricName, labels)
	fn()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, metricName, labels)-before == delta
	}, 2*time.Second, 20*time.Millisecond, "metric %s%v never moved by %.0f", metricName, labels, delta)
}

// AssertHistogramRecorded asserts the histogram holds at least one sample.
func AssertHistogramRecorded(t *testing.T, metricName string, labels map[string]string) {
	t.Helper()
	assert.Positive(t, GetMetricValue(t, metricName, labels), "histogram %s%v has no samples", metricName, labels)
}
