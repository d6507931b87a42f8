package impl

import (
	"context"
	"database/sql"
	"fmt"

	"wander-self/internal/repository/interfaces"
)

type equipmentRepositoryImpl struct {
	db *sql.DB
}

// NewEquipmentRepository 创建装备仓储实例
func NewEquipmentRepository(db *sql.DB) interfaces.EquipmentRepository {
	return &equipmentRepositoryImpl{db: db}
}

func (r *equipmentRepositoryImpl) ListByPlayer(ctx context.Context, playerID string) ([]*interfaces.EquippedItem, error) {
	query := `
SELECT id, player_id, slot,
       base_attack_power, base_attack_accuracy, base_defense_power, base_defense_accuracy,
       rarity, modifiers, weapon_id
FROM game_runtime.equipped_items
WHERE player_id = $1
ORDER BY slot
`
	rows, err := r.db.QueryContext(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("查询玩家装备失败: %w", err)
	}
	defer rows.Close()

	var items []*interfaces.EquippedItem
	for rows.Next() {
		var item interfaces.EquippedItem
		err := rows.Scan(
			&item.ID, &item.PlayerID, &item.Slot,
			&item.BaseStats.AttackPower, &item.BaseStats.AttackAccuracy,
			&item.BaseStats.DefensePower, &item.BaseStats.DefenseAccuracy,
			&item.Rarity, &item.Modifiers, &item.WeaponID,
		)
		if err != nil {
			return nil, fmt.Errorf("扫描玩家装备失败: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历玩家装备失败: %w", err)
	}
	return items, nil
}

func (r *equipmentRepositoryImpl) GetWeapon(ctx context.Context, weaponID string) (*interfaces.Weapon, error) {
	query := `SELECT id, name, spin_rate, arc_count FROM game_config.weapons WHERE id = $1 AND is_active = true`
	var w interfaces.Weapon
	err := r.db.QueryRowContext(ctx, query, weaponID).Scan(&w.ID, &w.Name, &w.SpinRate, &w.ArcCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询武器配置失败: %w", err)
	}
	return &w, nil
}
