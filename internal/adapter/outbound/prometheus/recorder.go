package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xsj/overwatch-revocation/internal/port/outbound/metrics"
)

// Options configures the Prometheus recorder.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// Recorder implements metrics.Recorder with Prometheus collectors.
type Recorder struct {
	Revocations   *prometheus.CounterVec
	Drops         *prometheus.CounterVec
	SweptEntries  *prometheus.CounterVec
	Checks        *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	BackendErrors *prometheus.CounterVec
	Entries       *prometheus.GaugeVec
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder constructs the collectors and registers them with the provided registerer.
// Collectors already registered under the same name are reused.
func NewRecorder(opts Options) (*Recorder, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "overwatch"
	}

	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "revocation"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5}
	}

	r := &Recorder{}
	var err error

	if r.Revocations, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "entries_written_total",
		Help:      "Total number of revocation entries written partitioned by backend and kind.",
	}, "backend", "kind"); err != nil {
		return nil, err
	}

	if r.Drops, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "capacity_dropped_total",
		Help:      "Total number of revocations dropped because the store was at capacity.",
	}, "backend"); err != nil {
		return nil, err
	}

	if r.SweptEntries, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "swept_total",
		Help:      "Total number of expired revocation entries reclaimed.",
	}, "backend"); err != nil {
		return nil, err
	}

	if r.Checks, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "checks_total",
		Help:      "Total number of revocation checks partitioned by backend and result.",
	}, "backend", "result"); err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "check_duration_seconds",
		Help:      "Histogram of revocation check latencies in seconds.",
		Buckets:   buckets,
	}, []string{"backend"})
	if err := reg.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register check duration collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("existing check duration collector has unexpected type %T", already.ExistingCollector)
		}
		duration = existing
	}
	r.CheckDuration = duration

	if r.BackendErrors, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "backend_errors_total",
		Help:      "Total number of failed backend operations partitioned by backend and operation.",
	}, "backend", "op"); err != nil {
		return nil, err
	}

	entries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "entries",
		Help:      "Current number of stored revocation entries.",
	}, []string{"backend"})
	if err := reg.Register(entries); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register entries collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, fmt.Errorf("existing entries collector has unexpected type %T", already.ExistingCollector)
		}
		entries = existing
	}
	r.Entries = entries

	return r, nil
}

func (r *Recorder) Revoked(backend, kind string) {
	r.Revocations.WithLabelValues(backend, kind).Inc()
}

func (r *Recorder) Dropped(backend string) {
	r.Drops.WithLabelValues(backend).Inc()
}

func (r *Recorder) Swept(backend string, n int) {
	r.SweptEntries.WithLabelValues(backend).Add(float64(n))
}

func (r *Recorder) Checked(backend string, revoked bool, d time.Duration) {
	result := "allowed"
	if revoked {
		result = "revoked"
	}
	r.Checks.WithLabelValues(backend, result).Inc()
	r.CheckDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (r *Recorder) BackendError(backend, op string) {
	r.BackendErrors.WithLabelValues(backend, op).Inc()
}

func (r *Recorder) Size(backend string, n int) {
	r.Entries.WithLabelValues(backend).Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return existing, nil
	}
	return counter, nil
}
