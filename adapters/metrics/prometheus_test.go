package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	r.ObserveOutcome("authenticated")
	r.ObserveOutcome("authenticated")
	r.ObserveOutcome("invalid_credential")
	r.ObserveDuration(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues("authenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("invalid_credential")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "registering twice must fail")
}
