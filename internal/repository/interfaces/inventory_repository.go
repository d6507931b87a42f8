package interfaces

import (
	"context"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
)

// MaterialStack 玩家材料堆叠，按 (玩家, 材料, 款式) 唯一。
type MaterialStack struct {
	PlayerID   string
	MaterialID string
	Style      string
	Quantity   int64
	UpdatedAt  time.Time
}

// PlayerItem 玩家获得的物品实例。
type PlayerItem struct {
	ID              string
	PlayerID        string
	ItemID          string
	SourceSessionID null.String
	CreatedAt       time.Time
}

// InventoryRepository 玩家背包仓储接口（材料堆叠 + 物品实例）。
type InventoryRepository interface {
	// AddMaterialTx 在事务内累加材料堆叠数量
	AddMaterialTx(ctx context.Context, tx boil.ContextExecutor, playerID, materialID, style string, quantity int64) error
	// InsertItemTx 在事务内插入物品实例
	InsertItemTx(ctx context.Context, tx boil.ContextExecutor, item *PlayerItem) error
	// ListMaterials 查询玩家全部材料堆叠
	ListMaterials(ctx context.Context, playerID string) ([]*MaterialStack, error)
	// ListItemsBySession 查询某场战斗产出的物品实例
	ListItemsBySession(ctx context.Context, sessionID string) ([]*PlayerItem, error)
}
