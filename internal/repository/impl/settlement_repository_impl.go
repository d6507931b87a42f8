package impl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/volatiletech/sqlboiler/v4/boil"

	"wander-self/internal/repository/interfaces"
)

const settlementColumns = `
	session_id, player_id, status, gold, rewards, attempts, last_error, settled_at, created_at, updated_at`

type settlementRepositoryImpl struct {
	db *sql.DB
}

// NewSettlementRepository 创建结算记录仓储实例。
func NewSettlementRepository(db *sql.DB) interfaces.SettlementRepository {
	return &settlementRepositoryImpl{db: db}
}

func scanSettlement(row rowScanner) (*interfaces.CombatSettlement, error) {
	var s interfaces.CombatSettlement
	err := row.Scan(
		&s.SessionID, &s.PlayerID, &s.Status, &s.Gold, &s.Rewards,
		&s.Attempts, &s.LastError, &s.SettledAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settlementRepositoryImpl) GetBySession(ctx context.Context, sessionID string) (*interfaces.CombatSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM game_runtime.combat_settlements WHERE session_id = $1`
	settlement, err := scanSettlement(r.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询结算记录失败: %w", err)
	}
	return settlement, nil
}

func (r *settlementRepositoryImpl) GetBySessionForUpdate(ctx context.Context, tx boil.ContextExecutor, sessionID string) (*interfaces.CombatSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM game_runtime.combat_settlements WHERE session_id = $1 FOR UPDATE`
	settlement, err := scanSettlement(tx.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("锁定结算记录失败: %w", err)
	}
	return settlement, nil
}

func (r *settlementRepositoryImpl) Insert(ctx context.Context, tx boil.ContextExecutor, settlement *interfaces.CombatSettlement) error {
	if settlement == nil {
		return fmt.Errorf("settlement is nil")
	}
	query := `
INSERT INTO game_runtime.combat_settlements (
	session_id, player_id, status, gold, rewards, attempts, settled_at
) VALUES ($1,$2,$3,$4,$5,$6, NOW())
`
	_, err := tx.ExecContext(ctx, query,
		settlement.SessionID, settlement.PlayerID, settlement.Status,
		settlement.Gold, nullJSON(settlement.Rewards), settlement.Attempts,
	)
	if err != nil {
		return fmt.Errorf("插入结算记录失败: %w", err)
	}
	return nil
}

func (r *settlementRepositoryImpl) UpsertPending(ctx context.Context, settlement *interfaces.CombatSettlement) error {
	if settlement == nil {
		return fmt.Errorf("settlement is nil")
	}
	query := `
INSERT INTO game_runtime.combat_settlements (
	session_id, player_id, status, gold, rewards, attempts, last_error
) VALUES ($1,$2,'pending',$3,$4,$5,$6)
ON CONFLICT (session_id) DO UPDATE SET
	attempts   = EXCLUDED.attempts,
	last_error = EXCLUDED.last_error,
	updated_at = NOW()
WHERE game_runtime.combat_settlements.status = 'pending'
`
	_, err := r.db.ExecContext(ctx, query,
		settlement.SessionID, settlement.PlayerID,
		settlement.Gold, nullJSON(settlement.Rewards),
		settlement.Attempts, settlement.LastError,
	)
	if err != nil {
		return fmt.Errorf("写入待重试结算记录失败: %w", err)
	}
	return nil
}

func (r *settlementRepositoryImpl) MarkSettled(ctx context.Context, tx boil.ContextExecutor, sessionID string) error {
	query := `
UPDATE game_runtime.combat_settlements
SET status = 'settled', settled_at = NOW(), last_error = NULL, updated_at = NOW()
WHERE session_id = $1 AND status = 'pending'
`
	result, err := tx.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("更新结算记录状态失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新结算记录状态失败: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("待重试结算记录不存在: %s", sessionID)
	}
	return nil
}

func (r *settlementRepositoryImpl) ListPending(ctx context.Context, limit int) ([]*interfaces.CombatSettlement, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + settlementColumns + ` FROM game_runtime.combat_settlements
WHERE status = 'pending'
ORDER BY updated_at ASC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("查询待重试结算记录失败: %w", err)
	}
	defer rows.Close()

	var settlements []*interfaces.CombatSettlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描结算记录失败: %w", err)
		}
		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结算记录失败: %w", err)
	}
	return settlements, nil
}
