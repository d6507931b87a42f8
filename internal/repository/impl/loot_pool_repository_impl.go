package impl

import (
	"context"
	"database/sql"
	"fmt"

	"wander-self/internal/repository/interfaces"
)

type lootPoolRepositoryImpl struct {
	db *sql.DB
}

// NewLootPoolRepository 创建掉落池仓储实例
func NewLootPoolRepository(db *sql.DB) interfaces.LootPoolRepository {
	return &lootPoolRepositoryImpl{db: db}
}

func (r *lootPoolRepositoryImpl) GetEligiblePools(ctx context.Context, q interfaces.LootQuery) ([]*interfaces.LootPool, error) {
	// 作用域匹配：全局池始终命中，其余按地点类型/州/国家/坐标范围过滤
	query := `
SELECT id, pool_name, scope_type, scope_value,
       min_lat, min_lng, max_lat, max_lng,
       combat_level, is_active, created_at
FROM game_config.loot_pools
WHERE is_active = true
  AND combat_level = $1
  AND (
	scope_type = 'universal'
	OR (scope_type = 'location_type' AND scope_value = $2)
	OR (scope_type = 'state' AND scope_value = $3)
	OR (scope_type = 'country' AND scope_value = $4)
	OR (scope_type = 'bounding_box'
		AND min_lat <= $5 AND max_lat >= $5
		AND min_lng <= $6 AND max_lng >= $6)
  )
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, query,
		q.CombatLevel, q.LocationType, q.State, q.Country, q.Lat, q.Lng,
	)
	if err != nil {
		return nil, fmt.Errorf("查询掉落池失败: %w", err)
	}
	defer rows.Close()

	var pools []*interfaces.LootPool
	for rows.Next() {
		var p interfaces.LootPool
		err := rows.Scan(
			&p.ID, &p.PoolName, &p.ScopeType, &p.ScopeValue,
			&p.MinLat, &p.MinLng, &p.MaxLat, &p.MaxLng,
			&p.CombatLevel, &p.IsActive, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("扫描掉落池失败: %w", err)
		}
		pools = append(pools, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历掉落池失败: %w", err)
	}
	return pools, nil
}

func (r *lootPoolRepositoryImpl) GetPoolEntries(ctx context.Context, poolID string) ([]*interfaces.LootPoolEntry, error) {
	query := `
SELECT id, pool_id, category, ref_id, style, weight, drop_rate, quantity, is_active
FROM game_config.loot_pool_entries
WHERE pool_id = $1 AND is_active = true
ORDER BY weight DESC, id
`
	rows, err := r.db.QueryContext(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("查询掉落条目失败: %w", err)
	}
	defer rows.Close()

	var entries []*interfaces.LootPoolEntry
	for rows.Next() {
		var e interfaces.LootPoolEntry
		err := rows.Scan(
			&e.ID, &e.PoolID, &e.Category, &e.RefID, &e.Style,
			&e.Weight, &e.DropRate, &e.Quantity, &e.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("扫描掉落条目失败: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历掉落条目失败: %w", err)
	}
	return entries, nil
}
