// Package metrics exposes pipeline counters and process gauges to prometheus.
//
// All recording methods are safe on a nil *Metrics so components can run
// without a registry.
package metrics

import (
	"context"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/teslashibe/go-moodpet/internal/log"
)

const namespace = "moodpet"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	frames         prometheus.Counter
	faces          prometheus.Counter
	noFace         prometheus.Counter
	skipped        prometheus.Counter
	eventsDropped  prometheus.Counter
	callbackPanics prometheus.Counter
	bridgeErrors   prometheus.Counter
	emotions       *prometheus.CounterVec
	inference      prometheus.Histogram
	fps            prometheus.Gauge
	memUsage       prometheus.Gauge
	cpuUsage       prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.frames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "frames_total",
		Help: "Frames read from the camera",
	})
	m.faces = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "faces_total",
		Help: "Frames with a classified face",
	})
	m.noFace = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "no_face_total",
		Help: "Frames without a usable face",
	})
	m.skipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "frames_skipped_total",
		Help: "Frames dropped after a detection or inference error",
	})
	m.eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "events_dropped_total",
		Help: "Emotion events evicted from a full queue",
	})
	m.callbackPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "callback_panics_total",
		Help: "Recovered panics from the emotion callback",
	})
	m.bridgeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "bridge_errors_total",
		Help: "State bridge ticks that failed",
	})
	m.emotions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "emotions_total",
		Help: "Decided labels",
	}, []string{"label"})
	m.inference = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "inference_seconds",
		Help:    "Detection plus classification time per frame",
		Buckets: []float64{0.005, 0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64},
	})
	m.fps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "fps",
		Help: "Smoothed pipeline frame rate",
	})
	m.memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "memory_usage_megabytes",
		Help: "Resident memory in megabytes",
	})
	m.cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cpu_usage_percent",
		Help: "Process CPU usage in percent",
	})

	m.registry.MustRegister(
		m.frames, m.faces, m.noFace, m.skipped,
		m.eventsDropped, m.callbackPanics, m.bridgeErrors,
		m.emotions, m.inference, m.fps, m.memUsage, m.cpuUsage,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Frame counts one camera frame.
func (m *Metrics) Frame() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

// Face counts a classified frame and its label.
func (m *Metrics) Face(label string) {
	if m == nil {
		return
	}
	m.faces.Inc()
	m.emotions.WithLabelValues(label).Inc()
}

// NoFace counts a frame without a usable face.
func (m *Metrics) NoFace() {
	if m == nil {
		return
	}
	m.noFace.Inc()
}

// Skipped counts a frame lost to an error.
func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

// EventDropped counts an evicted queue entry.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// CallbackPanic counts a recovered callback panic.
func (m *Metrics) CallbackPanic() {
	if m == nil {
		return
	}
	m.callbackPanics.Inc()
}

// BridgeError counts a failed bridge tick.
func (m *Metrics) BridgeError() {
	if m == nil {
		return
	}
	m.bridgeErrors.Inc()
}

// Inference records per-frame processing time.
func (m *Metrics) Inference(d time.Duration) {
	if m == nil {
		return
	}
	m.inference.Observe(d.Seconds())
}

// FPS sets the smoothed frame rate.
func (m *Metrics) FPS(v float64) {
	if m == nil {
		return
	}
	m.fps.Set(v)
}

// RunProcessSampler samples memory and CPU of this process every interval
// until ctx is done.
func (m *Metrics) RunProcessSampler(ctx context.Context, interval time.Duration) error {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.Component("metrics")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.sample(ctx, proc); err != nil {
				logger.Debug("process sample failed", "error", err)
			}
		}
	}
}

func (m *Metrics) sample(ctx context.Context, proc *process.Process) error {
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return err
	}
	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return err
	}
	m.memUsage.Set(float64(mem.RSS / 1024 / 1024))
	m.cpuUsage.Set(math.Round(cpu*100) / 100)
	return nil
}
