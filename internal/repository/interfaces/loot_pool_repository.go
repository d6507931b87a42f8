package interfaces

import (
	"context"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/volatiletech/sqlboiler/v4/types"
)

// 掉落池作用域
const (
	LootScopeUniversal    = "universal"
	LootScopeLocationType = "location_type"
	LootScopeState        = "state"
	LootScopeCountry      = "country"
	LootScopeBoundingBox  = "bounding_box"
)

// 掉落条目类别
const (
	LootCategoryMaterial = "material"
	LootCategoryItem     = "item"
)

// LootPool 掉落池配置。
type LootPool struct {
	ID          string
	PoolName    string
	ScopeType   string
	ScopeValue  null.String // location_type/state/country 作用域的匹配值
	MinLat      null.Float64
	MinLng      null.Float64
	MaxLat      null.Float64
	MaxLng      null.Float64
	CombatLevel int
	IsActive    bool
	CreatedAt   time.Time
}

// LootPoolEntry 掉落池条目。
type LootPoolEntry struct {
	ID       string
	PoolID   string
	Category string // material / item
	RefID    string // 材料或物品定义 ID
	Style    null.String
	Weight   int
	DropRate types.NullDecimal // 固定掉率覆盖（0-1），为空时走权重抽取
	Quantity int
	IsActive bool
}

// LootQuery 掉落池筛选条件，来自战斗发生的地点上下文。
type LootQuery struct {
	LocationType string
	State        string
	Country      string
	Lat          float64
	Lng          float64
	CombatLevel  int
}

// LootPoolRepository 掉落池仓储接口。
type LootPoolRepository interface {
	// GetEligiblePools 查询作用域与战斗等级都匹配的掉落池
	GetEligiblePools(ctx context.Context, q LootQuery) ([]*LootPool, error)
	// GetPoolEntries 查询掉落池的有效条目
	GetPoolEntries(ctx context.Context, poolID string) ([]*LootPoolEntry, error)
}
