package interfaces

import (
	"context"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
)

// LocationCombatStats 玩家在某地点的战斗历史聚合。
type LocationCombatStats struct {
	PlayerID      string
	LocationID    string
	Attempts      int64
	Victories     int64
	Defeats       int64
	CurrentStreak int64 // 连胜为正，连败为负
	BestStreak    int64
	LastResult    null.String
	LastCombatAt  null.Time
	UpdatedAt     time.Time
}

// CombatStatsRepository 地点战斗历史仓储接口。
type CombatStatsRepository interface {
	// RecordResultTx 在事务内记录一次战斗结果并更新聚合
	RecordResultTx(ctx context.Context, tx boil.ContextExecutor, playerID, locationID, result string, endedAt time.Time) error
	// GetByPlayerLocation 查询玩家在某地点的聚合
	GetByPlayerLocation(ctx context.Context, playerID, locationID string) (*LocationCombatStats, error)
}
