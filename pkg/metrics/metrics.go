// Package metrics records conversion counters in a private Prometheus
// registry and writes them as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus counters and gauges for conversions.
type Metrics struct {
	registry        *prometheus.Registry
	framesTotal     *prometheus.CounterVec
	episodesTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds *prometheus.GaugeVec
	lastSuccess     prometheus.Gauge
}

// New creates and registers the conversion metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	framesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lerobot_convert_frames_total",
		Help: "Total number of frames written to datasets",
	}, []string{"mode"})
	episodesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lerobot_convert_episodes_total",
		Help: "Total number of episodes saved",
	}, []string{"mode"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lerobot_convert_errors_total",
		Help: "Total number of failed conversions",
	}, []string{"mode"})
	durationSeconds := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lerobot_convert_duration_seconds",
		Help: "Wall time of the last conversion",
	}, []string{"mode"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lerobot_convert_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})

	registry.MustRegister(
		framesTotal,
		episodesTotal,
		errorsTotal,
		durationSeconds,
		lastSuccess,
	)

	return &Metrics{
		registry:        registry,
		framesTotal:     framesTotal,
		episodesTotal:   episodesTotal,
		errorsTotal:     errorsTotal,
		durationSeconds: durationSeconds,
		lastSuccess:     lastSuccess,
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDuration sets the conversion duration gauge for mode.
func (m *Metrics) ObserveDuration(mode string, d time.Duration) {
	m.durationSeconds.WithLabelValues(mode).Set(d.Seconds())
}

// MarkSuccess records the time of a successful run.
func (m *Metrics) MarkSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// For returns a recorder bound to one mode.
func (m *Metrics) For(mode string) *Recorder {
	return &Recorder{
		frames:   m.framesTotal.WithLabelValues(mode),
		episodes: m.episodesTotal.WithLabelValues(mode),
		errors:   m.errorsTotal.WithLabelValues(mode),
	}
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Recorder counts the events of one conversion.
type Recorder struct {
	frames   prometheus.Counter
	episodes prometheus.Counter
	errors   prometheus.Counter
}

// FrameWritten increments the frame counter.
func (r *Recorder) FrameWritten() {
	r.frames.Inc()
}

// EpisodeSaved increments the episode counter.
func (r *Recorder) EpisodeSaved() {
	r.episodes.Inc()
}

// ConversionFailed increments the error counter.
func (r *Recorder) ConversionFailed() {
	r.errors.Inc()
}
