package sessionindex

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"wander-self/internal/pkg/metrics"

	goredis "github.com/redis/go-redis/v9"
)

// fakeStore 内存实现，模拟 Redis 行为
type fakeStore struct {
	data    map[string]string
	failGet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.data[key] = value.(string)
	return nil
}

func (f *fakeStore) GetString(ctx context.Context, key string) (string, error) {
	if f.failGet {
		return "", context.DeadlineExceeded
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeStore) DeleteKey(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func newTestIndex(store Store) *Index {
	m := metrics.NewSessionIndexMetricsWithRegistry("test", prometheus.NewRegistry())
	return New(store, "combat", m, nil)
}

func TestIndex_SetGet(t *testing.T) {
	store := newFakeStore()
	idx := newTestIndex(store)
	ctx := context.Background()

	idx.Set(ctx, "player-1", "session-1", time.Minute)

	got := idx.Get(ctx, "player-1")
	require.Equal(t, "session-1", got)
}

func TestIndex_GetMiss(t *testing.T) {
	idx := newTestIndex(newFakeStore())

	got := idx.Get(context.Background(), "player-unknown")
	require.Empty(t, got, "未写入的玩家应该未命中")
}

func TestIndex_Delete(t *testing.T) {
	store := newFakeStore()
	idx := newTestIndex(store)
	ctx := context.Background()

	idx.Set(ctx, "player-1", "session-1", time.Minute)
	idx.Delete(ctx, "player-1", "settled")

	require.Empty(t, idx.Get(ctx, "player-1"))
}

func TestIndex_StoreFailureDegradesToMiss(t *testing.T) {
	store := newFakeStore()
	store.data[keyPrefix+"player-1"] = "session-1"
	store.failGet = true
	idx := newTestIndex(store)

	// Redis 故障时按未命中处理，不向调用方抛错
	got := idx.Get(context.Background(), "player-1")
	require.Empty(t, got)
}

func TestIndex_NilStoreNoop(t *testing.T) {
	idx := newTestIndex(nil)
	ctx := context.Background()

	idx.Set(ctx, "player-1", "session-1", time.Minute)
	idx.Delete(ctx, "player-1", "settled")
	require.Empty(t, idx.Get(ctx, "player-1"))
}
