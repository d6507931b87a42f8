package impl

import (
	"context"
	"database/sql"
	"fmt"

	"wander-self/internal/repository/interfaces"
)

const enemyColumns = `
	id, name, base_attack_power, base_attack_accuracy, base_defense_power, base_defense_accuracy,
	base_max_hp, gold_min, gold_max, is_active`

type enemyRepositoryImpl struct {
	db *sql.DB
}

// NewEnemyRepository 创建敌人配置仓储实例
func NewEnemyRepository(db *sql.DB) interfaces.EnemyRepository {
	return &enemyRepositoryImpl{db: db}
}

func scanEnemy(row rowScanner) (*interfaces.Enemy, error) {
	var e interfaces.Enemy
	err := row.Scan(
		&e.ID, &e.Name,
		&e.BaseStats.AttackPower, &e.BaseStats.AttackAccuracy,
		&e.BaseStats.DefensePower, &e.BaseStats.DefenseAccuracy,
		&e.BaseMaxHP, &e.GoldMin, &e.GoldMax, &e.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enemyRepositoryImpl) GetByID(ctx context.Context, enemyID string) (*interfaces.Enemy, error) {
	query := `SELECT ` + enemyColumns + ` FROM game_config.enemies WHERE id = $1 AND is_active = true`
	enemy, err := scanEnemy(r.db.QueryRowContext(ctx, query, enemyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询敌人配置失败: %w", err)
	}
	return enemy, nil
}

func (r *enemyRepositoryImpl) GetForLocation(ctx context.Context, locationID string, combatLevel int) (*interfaces.Enemy, error) {
	// 按地点与等级段挑一个候选敌人，hashtext 保证同一地点稳定
	query := `SELECT ` + enemyColumns + ` FROM game_config.enemies e
WHERE e.is_active = true
  AND e.min_combat_level <= $2 AND e.max_combat_level >= $2
ORDER BY abs(hashtext(e.id || $1)) LIMIT 1`
	enemy, err := scanEnemy(r.db.QueryRowContext(ctx, query, locationID, combatLevel))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询地点敌人失败: %w", err)
	}
	return enemy, nil
}
