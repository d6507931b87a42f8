package interfaces

import (
	"context"
)

// Enemy 敌人配置。
type Enemy struct {
	ID        string
	Name      string
	BaseStats StatVector // 基础四维，按战斗等级缩放
	BaseMaxHP int
	GoldMin   int64 // 击败后金币掉落下限
	GoldMax   int64 // 击败后金币掉落上限
	IsActive  bool
}

// EnemyRepository 敌人配置仓储接口。
type EnemyRepository interface {
	// GetByID 根据 ID 查询敌人
	GetByID(ctx context.Context, enemyID string) (*Enemy, error)
	// GetForLocation 查询某地点可遭遇的敌人（没有配置时返回 nil）
	GetForLocation(ctx context.Context, locationID string, combatLevel int) (*Enemy, error)
}
