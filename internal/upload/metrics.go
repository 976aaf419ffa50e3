package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes engine activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ChunkSent(bytes int64, d time.Duration)
	TokenRefreshed(err error)
	UploadFinished(o Outcome, d time.Duration)
	ActiveDelta(n int)
}

type noopMetrics struct{}

func (noopMetrics) ChunkSent(int64, time.Duration)        {}
func (noopMetrics) TokenRefreshed(error)                  {}
func (noopMetrics) UploadFinished(Outcome, time.Duration) {}
func (noopMetrics) ActiveDelta(int)                       {}

// PrometheusMetrics exports engine activity as Prometheus collectors.
type PrometheusMetrics struct {
	chunkDuration prometheus.Histogram
	bytesSent     prometheus.Counter
	refreshes     *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	uploadTime    prometheus.Histogram
	active        prometheus.Gauge
}

// NewPrometheusMetrics registers the engine collectors on reg (the default
// registerer when nil). Registering twice on one registry reuses the
// existing collectors.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if namespace == "" {
		namespace = "gdrive_upload"
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Latency of one chunk PUT, including the server's answer.",
			Buckets:   prometheus.DefBuckets,
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Payload bytes sent in chunk PUTs.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Token refreshes triggered by 401 responses.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Terminal upload outcomes.",
		}, []string{"status", "kind"}),
		uploadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Wall time from stream start to terminal outcome.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_uploads",
			Help:      "Uploads currently streaming.",
		}),
	}

	var err error

	if m.chunkDuration, err = register(reg, m.chunkDuration); err != nil {
		return nil, err
	}

	if m.bytesSent, err = register(reg, m.bytesSent); err != nil {
		return nil, err
	}

	if m.refreshes, err = register(reg, m.refreshes); err != nil {
		return nil, err
	}

	if m.outcomes, err = register(reg, m.outcomes); err != nil {
		return nil, err
	}

	if m.uploadTime, err = register(reg, m.uploadTime); err != nil {
		return nil, err
	}

	if m.active, err = register(reg, m.active); err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, returning the already-registered collector when
// an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	return c, fmt.Errorf("upload: registering metric: %w", err)
}

func (m *PrometheusMetrics) ChunkSent(bytes int64, d time.Duration) {
	m.chunkDuration.Observe(d.Seconds())
	m.bytesSent.Add(float64(bytes))
}

func (m *PrometheusMetrics) TokenRefreshed(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	m.refreshes.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) UploadFinished(o Outcome, d time.Duration) {
	m.outcomes.WithLabelValues(o.Status.String(), o.Kind.String()).Inc()
	m.uploadTime.Observe(d.Seconds())
}

func (m *PrometheusMetrics) ActiveDelta(n int) {
	m.active.Add(float64(n))
}
