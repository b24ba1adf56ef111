package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements the Metrics interface with Prometheus collectors
type PrometheusRecorder struct {
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewPrometheusRecorder creates the collectors and registers them with reg
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Authentication attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatekeeper",
			Subsystem: "session",
			Name:      "authenticate_seconds",
			Help:      "Time spent authenticating a request.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 3},
		}),
	}

	for _, c := range []prometheus.Collector{r.outcomes, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register session metrics")
		}
	}

	return r, nil
}

// ObserveOutcome counts one authentication attempt
func (r *PrometheusRecorder) ObserveOutcome(outcome string) {
	r.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveDuration records how long an attempt took
func (r *PrometheusRecorder) ObserveDuration(d time.Duration) {
	r.duration.Observe(d.Seconds())
}
