package interfaces

import (
	"context"
	"encoding/json"

	"github.com/aarondl/null/v8"
)

// EquippedItem 玩家当前装备的物品（属性来源，装备管理由其他服务负责）。
type EquippedItem struct {
	ID        string
	PlayerID  string
	Slot      string
	BaseStats StatVector
	Rarity    string          // common/uncommon/rare/epic/legendary
	Modifiers json.RawMessage // 材料加成，stat -> delta 映射
	WeaponID  null.String     // 武器槽位时关联的武器配置
}

// Weapon 武器配置，决定客户端转盘的转速与分段数。
type Weapon struct {
	ID       string
	Name     string
	SpinRate float64 // 转/秒
	ArcCount int     // 转盘分段数
}

// EquipmentRepository 装备与武器仓储接口（只读边界）。
type EquipmentRepository interface {
	// ListByPlayer 查询玩家当前装备
	ListByPlayer(ctx context.Context, playerID string) ([]*EquippedItem, error)
	// GetWeapon 查询武器配置
	GetWeapon(ctx context.Context, weaponID string) (*Weapon, error)
}
