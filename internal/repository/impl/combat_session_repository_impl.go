package impl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/volatiletech/sqlboiler/v4/boil"

	"wander-self/internal/repository/interfaces"
)

const sessionColumns = `
	id, player_id, location_id, enemy_id, weapon_id, combat_level,
	location_type, location_state, location_country, location_lat, location_lng,
	status, current_turn, current_owner,
	player_hp, player_max_hp, enemy_hp, enemy_max_hp,
	player_attack_power, player_attack_accuracy, player_defense_power, player_defense_accuracy,
	enemy_attack_power, enemy_attack_accuracy, enemy_defense_power, enemy_defense_accuracy,
	reward_gold, reward_payload, expires_at, ended_at, archived_at, created_at, updated_at`

type combatSessionRepositoryImpl struct {
	db *sql.DB
}

// NewCombatSessionRepository 创建战斗会话仓储实例。
func NewCombatSessionRepository(db *sql.DB) interfaces.CombatSessionRepository {
	return &combatSessionRepositoryImpl{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*interfaces.CombatSession, error) {
	var s interfaces.CombatSession
	err := row.Scan(
		&s.ID, &s.PlayerID, &s.LocationID, &s.EnemyID, &s.WeaponID, &s.CombatLevel,
		&s.LocationType, &s.LocationState, &s.LocationCountry, &s.LocationLat, &s.LocationLng,
		&s.Status, &s.CurrentTurn, &s.CurrentOwner,
		&s.PlayerHP, &s.PlayerMaxHP, &s.EnemyHP, &s.EnemyMaxHP,
		&s.PlayerStats.AttackPower, &s.PlayerStats.AttackAccuracy, &s.PlayerStats.DefensePower, &s.PlayerStats.DefenseAccuracy,
		&s.EnemyStats.AttackPower, &s.EnemyStats.AttackAccuracy, &s.EnemyStats.DefensePower, &s.EnemyStats.DefenseAccuracy,
		&s.RewardGold, &s.RewardPayload, &s.ExpiresAt, &s.EndedAt, &s.ArchivedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *combatSessionRepositoryImpl) Create(ctx context.Context, tx boil.ContextExecutor, session *interfaces.CombatSession) error {
	if session == nil {
		return fmt.Errorf("combat session is nil")
	}
	query := `
INSERT INTO game_runtime.combat_sessions (
	id, player_id, location_id, enemy_id, weapon_id, combat_level,
	location_type, location_state, location_country, location_lat, location_lng,
	status, current_turn, current_owner,
	player_hp, player_max_hp, enemy_hp, enemy_max_hp,
	player_attack_power, player_attack_accuracy, player_defense_power, player_defense_accuracy,
	enemy_attack_power, enemy_attack_accuracy, enemy_defense_power, enemy_defense_accuracy,
	reward_gold, reward_payload, expires_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)
`
	_, err := tx.ExecContext(ctx, query,
		session.ID, session.PlayerID, session.LocationID, session.EnemyID, session.WeaponID, session.CombatLevel,
		session.LocationType, session.LocationState, session.LocationCountry, session.LocationLat, session.LocationLng,
		session.Status, session.CurrentTurn, session.CurrentOwner,
		session.PlayerHP, session.PlayerMaxHP, session.EnemyHP, session.EnemyMaxHP,
		session.PlayerStats.AttackPower, session.PlayerStats.AttackAccuracy, session.PlayerStats.DefensePower, session.PlayerStats.DefenseAccuracy,
		session.EnemyStats.AttackPower, session.EnemyStats.AttackAccuracy, session.EnemyStats.DefensePower, session.EnemyStats.DefenseAccuracy,
		session.RewardGold, nullJSON(session.RewardPayload), session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("插入战斗会话失败: %w", err)
	}
	return nil
}

func (r *combatSessionRepositoryImpl) GetByID(ctx context.Context, sessionID string) (*interfaces.CombatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_runtime.combat_sessions WHERE id = $1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询战斗会话失败: %w", err)
	}
	return session, nil
}

func (r *combatSessionRepositoryImpl) GetByIDForUpdate(ctx context.Context, tx boil.ContextExecutor, sessionID string) (*interfaces.CombatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_runtime.combat_sessions WHERE id = $1 FOR UPDATE`
	session, err := scanSession(tx.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("锁定战斗会话失败: %w", err)
	}
	return session, nil
}

func (r *combatSessionRepositoryImpl) GetActiveByPlayer(ctx context.Context, playerID string) (*interfaces.CombatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_runtime.combat_sessions
WHERE player_id = $1 AND status = 'active'
ORDER BY created_at DESC LIMIT 1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, playerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询活跃战斗会话失败: %w", err)
	}
	return session, nil
}

func (r *combatSessionRepositoryImpl) GetActiveByPlayerForUpdate(ctx context.Context, tx boil.ContextExecutor, playerID string) (*interfaces.CombatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_runtime.combat_sessions
WHERE player_id = $1 AND status = 'active'
ORDER BY created_at DESC LIMIT 1
FOR UPDATE`
	session, err := scanSession(tx.QueryRowContext(ctx, query, playerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("锁定活跃战斗会话失败: %w", err)
	}
	return session, nil
}

func (r *combatSessionRepositoryImpl) Update(ctx context.Context, tx boil.ContextExecutor, session *interfaces.CombatSession) error {
	if session == nil {
		return fmt.Errorf("combat session is nil")
	}
	query := `
UPDATE game_runtime.combat_sessions SET
	status = $2,
	current_turn = $3,
	current_owner = $4,
	player_hp = $5,
	enemy_hp = $6,
	reward_gold = $7,
	reward_payload = $8,
	ended_at = $9,
	updated_at = NOW()
WHERE id = $1
`
	result, err := tx.ExecContext(ctx, query,
		session.ID, session.Status, session.CurrentTurn, session.CurrentOwner,
		session.PlayerHP, session.EnemyHP,
		session.RewardGold, nullJSON(session.RewardPayload), session.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("更新战斗会话失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新战斗会话失败: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("战斗会话不存在: %s", session.ID)
	}
	return nil
}

func (r *combatSessionRepositoryImpl) ListExpiredActive(ctx context.Context, limit int) ([]*interfaces.CombatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + sessionColumns + ` FROM game_runtime.combat_sessions
WHERE status = 'active' AND expires_at <= NOW()
ORDER BY expires_at ASC LIMIT $1`
	return r.querySessions(ctx, query, limit)
}

func (r *combatSessionRepositoryImpl) ListUnarchivedTerminal(ctx context.Context, limit int) ([]*interfaces.CombatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + sessionColumns + ` FROM game_runtime.combat_sessions
WHERE status <> 'active' AND archived_at IS NULL
ORDER BY ended_at ASC NULLS FIRST LIMIT $1`
	return r.querySessions(ctx, query, limit)
}

func (r *combatSessionRepositoryImpl) querySessions(ctx context.Context, query string, args ...interface{}) ([]*interfaces.CombatSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询战斗会话列表失败: %w", err)
	}
	defer rows.Close()

	var sessions []*interfaces.CombatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描战斗会话失败: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历战斗会话失败: %w", err)
	}
	return sessions, nil
}

func (r *combatSessionRepositoryImpl) Archive(ctx context.Context, tx boil.ContextExecutor, sessionID string) error {
	query := `UPDATE game_runtime.combat_sessions SET archived_at = NOW(), updated_at = NOW() WHERE id = $1 AND archived_at IS NULL`
	_, err := tx.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("归档战斗会话失败: %w", err)
	}
	return nil
}
