package impl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/volatiletech/sqlboiler/v4/boil"

	"wander-self/internal/repository/interfaces"
)

type combatStatsRepositoryImpl struct {
	db *sql.DB
}

// NewCombatStatsRepository 创建地点战斗历史仓储实例
func NewCombatStatsRepository(db *sql.DB) interfaces.CombatStatsRepository {
	return &combatStatsRepositoryImpl{db: db}
}

func (r *combatStatsRepositoryImpl) RecordResultTx(ctx context.Context, tx boil.ContextExecutor, playerID, locationID, result string, endedAt time.Time) error {
	if playerID == "" || locationID == "" {
		return fmt.Errorf("player_id 和 location_id 不能为空")
	}
	// 连胜连败由 SQL 原子更新：胜利把负值清零后加一，失败反之。
	// 退却与超时只计入尝试次数，不打断连胜。
	query := `
INSERT INTO game_runtime.location_combat_stats (
	player_id, location_id, attempts, victories, defeats,
	current_streak, best_streak, last_result, last_combat_at
) VALUES (
	$1, $2, 1,
	CASE WHEN $3 = 'victory' THEN 1 ELSE 0 END,
	CASE WHEN $3 = 'defeat' THEN 1 ELSE 0 END,
	CASE WHEN $3 = 'victory' THEN 1 WHEN $3 = 'defeat' THEN -1 ELSE 0 END,
	CASE WHEN $3 = 'victory' THEN 1 ELSE 0 END,
	$3, $4
)
ON CONFLICT (player_id, location_id) DO UPDATE SET
	attempts  = game_runtime.location_combat_stats.attempts + 1,
	victories = game_runtime.location_combat_stats.victories + CASE WHEN $3 = 'victory' THEN 1 ELSE 0 END,
	defeats   = game_runtime.location_combat_stats.defeats + CASE WHEN $3 = 'defeat' THEN 1 ELSE 0 END,
	current_streak = CASE
		WHEN $3 = 'victory' THEN GREATEST(game_runtime.location_combat_stats.current_streak, 0) + 1
		WHEN $3 = 'defeat' THEN LEAST(game_runtime.location_combat_stats.current_streak, 0) - 1
		ELSE game_runtime.location_combat_stats.current_streak
	END,
	best_streak = GREATEST(
		game_runtime.location_combat_stats.best_streak,
		CASE WHEN $3 = 'victory' THEN GREATEST(game_runtime.location_combat_stats.current_streak, 0) + 1 ELSE 0 END
	),
	last_result    = $3,
	last_combat_at = $4,
	updated_at     = NOW()
`
	_, err := tx.ExecContext(ctx, query, playerID, locationID, result, endedAt)
	if err != nil {
		return fmt.Errorf("更新地点战斗历史失败: %w", err)
	}
	return nil
}

func (r *combatStatsRepositoryImpl) GetByPlayerLocation(ctx context.Context, playerID, locationID string) (*interfaces.LocationCombatStats, error) {
	query := `
SELECT player_id, location_id, attempts, victories, defeats,
       current_streak, best_streak, last_result, last_combat_at, updated_at
FROM game_runtime.location_combat_stats
WHERE player_id = $1 AND location_id = $2
`
	var stats interfaces.LocationCombatStats
	err := r.db.QueryRowContext(ctx, query, playerID, locationID).Scan(
		&stats.PlayerID, &stats.LocationID, &stats.Attempts, &stats.Victories, &stats.Defeats,
		&stats.CurrentStreak, &stats.BestStreak, &stats.LastResult, &stats.LastCombatAt, &stats.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询地点战斗历史失败: %w", err)
	}
	return &stats, nil
}
