package sessionindex

import (
	"context"
	"errors"
	"time"

	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/metrics"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "combat:active_session:"

// Store 索引依赖的 Redis 操作集合，便于测试替换实现
type Store interface {
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	DeleteKey(ctx context.Context, keys ...string) error
}

// Index 玩家 -> 活跃战斗会话 ID 的 Redis 索引
// 只是加速查询的缓存，数据库中的会话状态才是权威数据，
// 任何 Redis 故障都按未命中处理，由调用方回退到数据库查询。
type Index struct {
	store   Store
	service string
	metrics *metrics.SessionIndexMetrics
	logger  log.Logger
}

// New 返回默认 Index 实例。
func New(store Store, service string, m *metrics.SessionIndexMetrics, logger log.Logger) *Index {
	if m == nil {
		m = metrics.DefaultSessionIndexMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Index{
		store:   store,
		service: service,
		metrics: m,
		logger:  logger.With("component", "session_index"),
	}
}

// Get 返回玩家当前活跃会话 ID，未命中返回空字符串。
func (i *Index) Get(ctx context.Context, playerID string) string {
	if i.store == nil || playerID == "" {
		return ""
	}

	start := time.Now()
	sessionID, err := i.store.GetString(ctx, keyPrefix+playerID)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			i.metrics.IncCacheMiss(i.service)
			i.metrics.ObserveDuration(i.service, "miss", time.Since(start))
			return ""
		}
		// 索引故障退化为未命中，交给数据库兜底
		i.metrics.ObserveDuration(i.service, "error", time.Since(start))
		i.logger.WarnContext(ctx, "活跃会话索引读取失败",
			log.String("player_id", playerID),
			log.Any("error", err))
		return ""
	}

	i.metrics.IncCacheHit(i.service)
	i.metrics.ObserveDuration(i.service, "hit", time.Since(start))
	return sessionID
}

// Set 写入玩家活跃会话，TTL 与会话过期时间保持一致。
func (i *Index) Set(ctx context.Context, playerID, sessionID string, ttl time.Duration) {
	if i.store == nil || playerID == "" || sessionID == "" {
		return
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if err := i.store.SetWithTTL(ctx, keyPrefix+playerID, sessionID, ttl); err != nil {
		i.logger.WarnContext(ctx, "活跃会话索引写入失败",
			log.String("player_id", playerID),
			log.String("session_id", sessionID),
			log.Any("error", err))
	}
}

// Delete 会话终结后移除索引。
func (i *Index) Delete(ctx context.Context, playerID, reason string) {
	if i.store == nil || playerID == "" {
		return
	}
	if err := i.store.DeleteKey(ctx, keyPrefix+playerID); err != nil {
		i.logger.WarnContext(ctx, "活跃会话索引删除失败",
			log.String("player_id", playerID),
			log.String("reason", reason),
			log.Any("error", err))
		return
	}
	i.metrics.IncCacheEvicted(i.service, reason)
}
