package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
)

// 会话状态
const (
	SessionStatusActive    = "active"
	SessionStatusVictory   = "victory"
	SessionStatusDefeat    = "defeat"
	SessionStatusRetreat   = "retreat"
	SessionStatusAbandoned = "abandoned"
	SessionStatusExpired   = "expired"
)

// 回合归属
const (
	TurnOwnerPlayer = "player"
	TurnOwnerEnemy  = "enemy"
)

// StatVector 四维战斗属性
type StatVector struct {
	AttackPower     int `json:"attack_power"`
	AttackAccuracy  int `json:"attack_accuracy"`
	DefensePower    int `json:"defense_power"`
	DefenseAccuracy int `json:"defense_accuracy"`
}

// CombatSession 描述一场进行中或已结束的战斗会话。
type CombatSession struct {
	ID          string
	PlayerID    string
	LocationID  string
	EnemyID     string
	WeaponID    null.String
	CombatLevel int

	// 发起时冻结的地点上下文，终态掉落按它筛选掉落池
	LocationType    string
	LocationState   string
	LocationCountry string
	LocationLat     float64
	LocationLng     float64

	Status         string
	CurrentTurn    int
	CurrentOwner   string // player / enemy
	PlayerHP       int
	PlayerMaxHP    int
	EnemyHP        int
	EnemyMaxHP     int
	PlayerStats    StatVector
	EnemyStats     StatVector
	RewardGold     int64           // 终态时生成的金币奖励
	RewardPayload  json.RawMessage // 终态时生成的掉落 JSON
	ExpiresAt      time.Time
	EndedAt        null.Time
	ArchivedAt     null.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal 判断会话是否已处于终态。
func (s *CombatSession) IsTerminal() bool {
	return s.Status != SessionStatusActive
}

// CombatSessionRepository 战斗会话仓储接口。
// 所有会话变更都发生在调用方开启的事务内，Update 前必须先 GetByIDForUpdate。
type CombatSessionRepository interface {
	// Create 创建新会话
	Create(ctx context.Context, tx boil.ContextExecutor, session *CombatSession) error
	// GetByID 查询会话
	GetByID(ctx context.Context, sessionID string) (*CombatSession, error)
	// GetByIDForUpdate 在事务内加行锁查询会话
	GetByIDForUpdate(ctx context.Context, tx boil.ContextExecutor, sessionID string) (*CombatSession, error)
	// GetActiveByPlayer 查询玩家当前活跃会话，没有时返回 nil
	GetActiveByPlayer(ctx context.Context, playerID string) (*CombatSession, error)
	// GetActiveByPlayerForUpdate 在事务内加行锁查询玩家活跃会话
	GetActiveByPlayerForUpdate(ctx context.Context, tx boil.ContextExecutor, playerID string) (*CombatSession, error)
	// Update 更新会话（回合推进或终态转换）
	Update(ctx context.Context, tx boil.ContextExecutor, session *CombatSession) error
	// ListExpiredActive 查询超过过期时间但仍为 active 的会话
	ListExpiredActive(ctx context.Context, limit int) ([]*CombatSession, error)
	// ListUnarchivedTerminal 查询已终结但尚未归档的会话
	ListUnarchivedTerminal(ctx context.Context, limit int) ([]*CombatSession, error)
	// Archive 结算完成后归档会话
	Archive(ctx context.Context, tx boil.ContextExecutor, sessionID string) error
}
