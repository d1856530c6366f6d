package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PrometheusMetrics
	assert.NotPanics(t, func() {
		m.ObserveProxy(ProxyCacheHit)
		m.ObserveRotation(429)
		m.ObservePublish(false)
		m.ObserveFetch(200, time.Second)
		m.ObserveFetchError("transport")
		m.ObserveRobotsBlocked()
		m.ObserveResubmit(429)
		m.ObserveFeedUpload("obs", time.Second, nil)
	})
}

func TestObserveCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveProxy(ProxyCacheHit)
	m.ObserveProxy(ProxyCacheHit)
	m.ObserveProxy(ProxySourced)
	m.ObserveRotation(429)
	m.ObservePublish(true)
	m.ObservePublish(false)
	m.ObserveFeedUpload("oss", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProxyAcquired.WithLabelValues(ProxyCacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxyAcquired.WithLabelValues(ProxySourced)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxyRotations.WithLabelValues("429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsPublished.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedUploads.WithLabelValues("oss", "error")))
}

func TestSampleQueueDepth(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, err := mr.Push("crawler:queue", "a", "b", "c")
	require.NoError(t, err)

	m := NewMetrics(prometheus.NewRegistry())
	m.sampleQueueDepth(context.Background(), rdb, map[string]string{"frontier": "crawler:queue"})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("frontier")))
}
