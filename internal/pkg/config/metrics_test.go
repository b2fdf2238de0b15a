package config

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConfigMetrics(t *testing.T) {
	m := NewConfigMetrics("test_component")

	m.RecordLoadTimestamp()
	assert.Greater(t, testutil.ToFloat64(m.LoadTimestamp), float64(0))

	m.RecordValidationError("max_concurrent")
	m.RecordValidationError("max_concurrent")
	m.RecordFallback("max_concurrent")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("max_concurrent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("max_concurrent")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("http_timeout")))

	m.SetFallbackActive(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackActive))
	m.SetFallbackActive(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbackActive))
}

func TestNewConfigMetrics_DistinctComponents(t *testing.T) {
	a := NewConfigMetrics("test_component_a")
	b := NewConfigMetrics("test_component_b")
	assert.NotSame(t, a.FallbackActive, b.FallbackActive)
}
