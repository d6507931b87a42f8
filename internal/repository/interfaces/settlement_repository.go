package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
)

// 结算状态
const (
	SettlementStatusSettled = "settled"
	SettlementStatusPending = "pending"
)

// CombatSettlement 一场战斗的奖励结算记录。
// session_id 唯一，结算记录的存在即幂等标记。
type CombatSettlement struct {
	SessionID string
	PlayerID  string
	Status    string
	Gold      int64
	Rewards   json.RawMessage // 完整奖励 payload（物品/材料明细）
	Attempts  int
	LastError null.String
	SettledAt null.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettlementRepository 结算记录仓储接口。
type SettlementRepository interface {
	// GetBySession 查询会话的结算记录，不存在返回 nil
	GetBySession(ctx context.Context, sessionID string) (*CombatSettlement, error)
	// GetBySessionForUpdate 在事务内加行锁查询结算记录
	GetBySessionForUpdate(ctx context.Context, tx boil.ContextExecutor, sessionID string) (*CombatSettlement, error)
	// Insert 在事务内插入结算记录（事务内最后一步写入）
	Insert(ctx context.Context, tx boil.ContextExecutor, settlement *CombatSettlement) error
	// UpsertPending 写入或刷新 pending 结算记录（重试耗尽时保底）
	UpsertPending(ctx context.Context, settlement *CombatSettlement) error
	// MarkSettled 在事务内将 pending 记录置为 settled
	MarkSettled(ctx context.Context, tx boil.ContextExecutor, sessionID string) error
	// ListPending 查询待重试的 pending 结算记录
	ListPending(ctx context.Context, limit int) ([]*CombatSettlement, error)
}
