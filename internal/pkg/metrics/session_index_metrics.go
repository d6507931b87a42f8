package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionIndexMetrics 追踪活跃会话索引（Redis）的核心指标。
type SessionIndexMetrics struct {
	Duration   *prometheus.HistogramVec
	CacheHit   *prometheus.CounterVec
	CacheMiss  *prometheus.CounterVec
	CacheEvict *prometheus.CounterVec
}

var (
	// DefaultSessionIndexMetrics 全局共享实例。
	DefaultSessionIndexMetrics *SessionIndexMetrics

	indexDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2}
)

func init() {
	DefaultSessionIndexMetrics = NewSessionIndexMetrics("wander")
}

// NewSessionIndexMetricsWithRegistry 创建 SessionIndexMetrics,允许 tests 注入自定义 registry。
func NewSessionIndexMetricsWithRegistry(namespace string, reg prometheus.Registerer) *SessionIndexMetrics {
	if reg == nil {
		reg = GetRegisterer()
	}
	factory := promauto.With(reg)

	return &SessionIndexMetrics{
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_index_duration_seconds",
				Help:      "Latency histogram for active session index lookups",
				Buckets:   indexDurationBuckets,
			},
			[]string{"service", "outcome"},
		),

		CacheHit: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_index_hits_total",
				Help:      "Count of active session index hits by service",
			},
			[]string{"service"},
		),

		CacheMiss: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_index_miss_total",
				Help:      "Count of active session index misses by service",
			},
			[]string{"service"},
		),

		CacheEvict: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_index_evict_total",
				Help:      "Count of active session index evictions grouped by service and reason",
			},
			[]string{"service", "reason"},
		),
	}
}

// NewSessionIndexMetrics 创建默认 registry 的 SessionIndexMetrics。
func NewSessionIndexMetrics(namespace string) *SessionIndexMetrics {
	return NewSessionIndexMetricsWithRegistry(namespace, GetRegisterer())
}

// ObserveDuration 记录索引查询耗时。
func (m *SessionIndexMetrics) ObserveDuration(service, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	service = normalizeServiceName(service)
	if outcome == "" {
		outcome = "success"
	}
	m.Duration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

// IncCacheHit 增加索引命中次数。
func (m *SessionIndexMetrics) IncCacheHit(service string) {
	if m == nil {
		return
	}
	m.CacheHit.WithLabelValues(normalizeServiceName(service)).Inc()
}

// IncCacheMiss 增加索引未命中次数。
func (m *SessionIndexMetrics) IncCacheMiss(service string) {
	if m == nil {
		return
	}
	m.CacheMiss.WithLabelValues(normalizeServiceName(service)).Inc()
}

// IncCacheEvicted 记录索引剔除次数。
func (m *SessionIndexMetrics) IncCacheEvicted(service, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.CacheEvict.WithLabelValues(normalizeServiceName(service), reason).Inc()
}
