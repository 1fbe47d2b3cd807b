package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/essaycoach/constants"
)

const namespace = "essaycoach"

// Recorder exports pipeline counters to Prometheus. A nil *Recorder is a no-op.
type Recorder struct {
	rubricImports    *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	uploadCache      *prometheus.CounterVec
}

// New registers the pipeline metrics on reg (the default registerer when nil).
// Registering twice on the same registerer reuses the existing collectors.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{}
	var err error

	if r.rubricImports, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rubric_imports_total",
		Help:      "Rubric imports by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if r.providerRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Essay-agent provider calls by operation and result.",
	}, []string{"provider", "operation", "result"})); err != nil {
		return nil, err
	}
	if r.providerLatency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of essay-agent provider calls.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"provider", "operation"})); err != nil {
		return nil, err
	}
	if r.uploadCache, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rubric_upload_cache_total",
		Help:      "Rubric upload memo lookups by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	return r, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// RecordImport counts one rubric import outcome.
func (r *Recorder) RecordImport(outcome constants.ImportOutcome) {
	if r == nil {
		return
	}
	r.rubricImports.WithLabelValues(string(outcome)).Inc()
}

// RecordProviderCall counts one provider call and observes its latency.
func (r *Recorder) RecordProviderCall(provider, operation string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.providerRequests.WithLabelValues(provider, operation, result).Inc()
	r.providerLatency.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordUploadCache counts one memo lookup.
func (r *Recorder) RecordUploadCache(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.uploadCache.WithLabelValues(result).Inc()
}
