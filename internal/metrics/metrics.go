// Package metrics defines the Prometheus collectors of the recorder.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
)

const namespace = "checkpoint"

// Recorder holds the collectors updated once per checkpoint cycle.
type Recorder struct {
	Checkpoints   *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	Bytes         prometheus.Histogram
	Types         prometheus.Histogram
	Duration      prometheus.Histogram
	Threads       prometheus.Gauge
	StoreWrites   prometheus.Counter
	StoreFailures prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg. Collectors
// already registered with reg are reused, so a recorder can be recreated. A nil
// reg leaves them unregistered, which tests use.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	m := &Recorder{
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_total",
			Help:      "Checkpoints written, by kind",
		}, []string{"kind"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_total",
			Help:      "Checkpoint cycles aborted, by kind",
		}, []string{"kind"}),
		Bytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "size_bytes",
			Help:      "Size of written checkpoints in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),
		Types: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "types",
			Help:      "Constant tables per checkpoint",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Time spent writing a checkpoint",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		Threads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads",
			Help:      "Registered threads at the last checkpoint",
		}),
		StoreWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Checkpoints persisted to the store",
		}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Checkpoints the store failed to persist",
		}),
	}
	if reg != nil {
		m.Checkpoints = register(reg, m.Checkpoints)
		m.Failures = register(reg, m.Failures)
		m.Bytes = register(reg, m.Bytes)
		m.Types = register(reg, m.Types)
		m.Duration = register(reg, m.Duration)
		m.Threads = register(reg, m.Threads)
		m.StoreWrites = register(reg, m.StoreWrites)
		m.StoreFailures = register(reg, m.StoreFailures)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// KindLabel returns the label value for a checkpoint kind.
func KindLabel(k framing.Kind) string {
	switch k {
	case framing.KindStatics, framing.KindThreads, framing.KindThread, framing.KindAll:
		return k.String()
	default:
		return "other"
	}
}
