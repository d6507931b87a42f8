// File: internal/pkg/metrics/combat_metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CombatMetrics 战斗业务指标收集器
type CombatMetrics struct {
	// 发起的战斗会话数
	SessionsStarted *prometheus.CounterVec

	// 结束的战斗会话数（按终态分组：victory/defeat/retreat/abandoned/expired）
	SessionsEnded *prometheus.CounterVec

	// 战斗会话时长直方图
	SessionDuration *prometheus.HistogramVec

	// 战斗动作数（按动作和命中区间分组）
	ActionsTotal *prometheus.CounterVec

	// 命中倍率直方图（按动作分组）
	HitMultiplier *prometheus.HistogramVec

	// 结算结果数（按结果分组：settled/pending/retried/duplicate）
	SettlementsTotal *prometheus.CounterVec

	// 掉落物数量（按类别分组：material/item/gold）
	LootDropsTotal *prometheus.CounterVec
}

var (
	// DefaultCombatMetrics 默认的战斗指标实例
	DefaultCombatMetrics *CombatMetrics
)

// SessionBuckets 是针对战斗会话时长优化的 buckets
// 一场战斗预期在几十秒到几分钟内结束
// 单位：秒
var SessionBuckets = []float64{
	10,  // 10s
	30,  // 30s
	60,  // 1分钟
	120, // 2分钟
	300, // 5分钟
	600, // 10分钟
	900, // 15分钟
}

// MultiplierBuckets 覆盖命中倍率的有效范围 [-0.5, 1.6]
var MultiplierBuckets = []float64{-0.5, 0, 0.6, 1.0, 1.6}

// init 初始化默认指标
func init() {
	DefaultCombatMetrics = NewCombatMetrics("wander")
}

// NewCombatMetrics 创建新的战斗指标收集器
func NewCombatMetrics(namespace string) *CombatMetrics {
	return NewCombatMetricsWithRegistry(namespace, GetRegisterer())
}

// NewCombatMetricsWithRegistry 创建新的战斗指标收集器（使用自定义注册表）
func NewCombatMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *CombatMetrics {
	factory := promauto.With(registerer)

	return &CombatMetrics{
		SessionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "combat",
				Name:      "sessions_started_total",
				Help:      "Total number of combat sessions initiated",
			},
			[]string{"service"},
		),

		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "combat",
				Name:      "sessions_ended_total",
				Help:      "Total number of combat sessions ended by terminal status (victory/defeat/retreat/abandoned/expired)",
			},
			[]string{"status", "service"},
		),

		SessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "combat",
				Name:      "session_duration_seconds",
				Help:      "Combat session duration in seconds",
				Buckets:   SessionBuckets,
			},
			[]string{"service"},
		),

		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "combat",
				Name:      "actions_total",
				Help:      "Total number of combat actions by action (attack/defend) and resolved hit band",
			},
			[]string{"action", "band", "service"},
		),

		HitMultiplier: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "combat",
				Name:      "hit_multiplier",
				Help:      "Resolved damage multiplier distribution by action",
				Buckets:   MultiplierBuckets,
			},
			[]string{"action", "service"},
		),

		SettlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "combat",
				Name:      "settlements_total",
				Help:      "Total number of reward settlements by outcome (settled/pending/retried/duplicate)",
			},
			[]string{"outcome", "service"},
		),

		LootDropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "combat",
				Name:      "loot_drops_total",
				Help:      "Total number of loot drops by category (material/item/gold)",
			},
			[]string{"category", "service"},
		),
	}
}

// RecordSessionStarted 记录会话发起
func (m *CombatMetrics) RecordSessionStarted(service string) {
	service = normalizeServiceName(service)
	m.SessionsStarted.WithLabelValues(service).Inc()
}

// RecordSessionEnded 记录会话结束
//
// 参数:
//   - status: 终态 ("victory", "defeat", "retreat", "abandoned", "expired")
//   - duration: 会话持续时长
func (m *CombatMetrics) RecordSessionEnded(status string, duration time.Duration, service string) {
	service = normalizeServiceName(service)
	m.SessionsEnded.WithLabelValues(status, service).Inc()
	m.SessionDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordAction 记录一次战斗动作
//
// 参数:
//   - action: 动作类型 ("attack" 或 "defend")
//   - band: 命中区间 ("injure", "miss", "graze", "normal", "crit")
//   - multiplier: 解析出的伤害倍率
func (m *CombatMetrics) RecordAction(action, band string, multiplier float64, service string) {
	service = normalizeServiceName(service)
	m.ActionsTotal.WithLabelValues(action, band, service).Inc()
	m.HitMultiplier.WithLabelValues(action, service).Observe(multiplier)
}

// RecordSettlement 记录结算结果
//
// 参数:
//   - outcome: 结算结果 ("settled", "pending", "retried", "duplicate")
func (m *CombatMetrics) RecordSettlement(outcome, service string) {
	service = normalizeServiceName(service)
	m.SettlementsTotal.WithLabelValues(outcome, service).Inc()
}

// RecordLootDrop 记录掉落
//
// 参数:
//   - category: 掉落类别 ("material", "item", "gold")
func (m *CombatMetrics) RecordLootDrop(category string, count int, service string) {
	service = normalizeServiceName(service)
	m.LootDropsTotal.WithLabelValues(category, service).Add(float64(count))
}
