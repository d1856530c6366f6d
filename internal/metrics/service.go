package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Labels for ProxyAcquired.
const (
	ProxyCacheHit = "cache_hit"
	ProxySourced  = "sourced"
	ProxyNone     = "none"
	ProxyError    = "error"
)

// PrometheusMetrics methods are nil-safe so components can run without metrics.
type PrometheusMetrics struct {
	// Crawler
	PagesFetched  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	RobotsBlocked *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	Resubmitted   *prometheus.CounterVec

	// Proxy
	ProxyAcquired  *prometheus.CounterVec
	ProxyRotations *prometheus.CounterVec

	// Item pipelines
	ItemsPublished *prometheus.CounterVec
	FeedUploads    *prometheus.CounterVec
	FeedDuration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		PagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_fetched_total",
				Help: "Total number of pages fetched",
			},
			[]string{"status_code"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "crawler_fetch_duration_seconds",
				Help: "Time taken to download a page",
			},
			[]string{},
		),
		RobotsBlocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_robots_blocked_total",
				Help: "Number of requests blocked by robots.txt",
			},
			[]string{},
		),
		FetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_errors_total",
				Help: "Total number of fetch errors found",
			},
			[]string{"type"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawler_queue_depth_total",
				Help: "Current number of items in the Redis queue",
			}, []string{"queue_name"},
		),
		Resubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_requests_resubmitted_total",
				Help: "Requests sent back to the frontier after a proxy failure status",
			}, []string{"status_code"},
		),

		ProxyAcquired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_acquire_total",
				Help: "Proxy acquisitions by outcome",
			}, []string{"result"},
		), // label: cache_hit, sourced, none, error
		ProxyRotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_forced_rotations_total",
				Help: "Forced proxy rotations triggered by response status",
			}, []string{"status_code"},
		),

		ItemsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_items_published_total",
				Help: "Items pushed to the redis queue",
			}, []string{"result"},
		), // label: delivered, dropped
		FeedUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_uploads_total",
				Help: "Feed files stored to object storage",
			}, []string{"scheme", "result"},
		),
		FeedDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "feed_upload_duration_seconds",
				Help: "Time taken to upload a feed file",
			}, []string{"scheme"},
		),
	}
}

func (m *PrometheusMetrics) ObserveFetch(status int, took time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(strconv.Itoa(status)).Inc()
	m.FetchDuration.WithLabelValues().Observe(took.Seconds())
}

func (m *PrometheusMetrics) ObserveFetchError(kind string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) ObserveRobotsBlocked() {
	if m == nil {
		return
	}
	m.RobotsBlocked.WithLabelValues().Inc()
}

func (m *PrometheusMetrics) ObserveResubmit(status int) {
	if m == nil {
		return
	}
	m.Resubmitted.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *PrometheusMetrics) ObserveProxy(result string) {
	if m == nil {
		return
	}
	m.ProxyAcquired.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) ObserveRotation(status int) {
	if m == nil {
		return
	}
	m.ProxyRotations.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *PrometheusMetrics) ObservePublish(delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	m.ItemsPublished.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) ObserveFeedUpload(scheme string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FeedUploads.WithLabelValues(scheme, result).Inc()
	m.FeedDuration.WithLabelValues(scheme).Observe(took.Seconds())
}

// StartNewMetricsServer serves the default registry on addr until ctx is done.
func StartNewMetricsServer(ctx context.Context, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("Metrics server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

func (m *PrometheusMetrics) MonitorQueueDepth(ctx context.Context, rdb *redis.Client, queues map[string]string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleQueueDepth(ctx, rdb, queues)
		}
	}
}

func (m *PrometheusMetrics) sampleQueueDepth(ctx context.Context, rdb *redis.Client, queues map[string]string) {
	for label, key := range queues {
		val, err := rdb.LLen(ctx, key).Result()
		if err != nil {
			log.Error().Err(err).Msgf("Failed to monitor queue: %s", key)
			continue
		}

		m.QueueDepth.WithLabelValues(label).Set(float64(val))
	}
}
