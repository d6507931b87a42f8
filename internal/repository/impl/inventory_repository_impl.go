package impl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/volatiletech/sqlboiler/v4/boil"

	"wander-self/internal/repository/interfaces"
)

type inventoryRepositoryImpl struct {
	db *sql.DB
}

// NewInventoryRepository 创建玩家背包仓储实例
func NewInventoryRepository(db *sql.DB) interfaces.InventoryRepository {
	return &inventoryRepositoryImpl{db: db}
}

func (r *inventoryRepositoryImpl) AddMaterialTx(ctx context.Context, execer boil.ContextExecutor, playerID, materialID, style string, quantity int64) error {
	if playerID == "" || materialID == "" {
		return fmt.Errorf("player_id 和 material_id 不能为空")
	}
	if quantity <= 0 {
		return fmt.Errorf("材料数量必须为正: %d", quantity)
	}
	// 按 (玩家, 材料, 款式) 堆叠累加
	query := `
INSERT INTO game_runtime.material_stacks (player_id, material_id, style, quantity)
VALUES ($1, $2, $3, $4)
ON CONFLICT (player_id, material_id, style) DO UPDATE
SET quantity = game_runtime.material_stacks.quantity + $4,
    updated_at = NOW()
`
	_, err := execer.ExecContext(ctx, query, playerID, materialID, style, quantity)
	if err != nil {
		return fmt.Errorf("累加材料堆叠失败: %w", err)
	}
	return nil
}

func (r *inventoryRepositoryImpl) InsertItemTx(ctx context.Context, execer boil.ContextExecutor, item *interfaces.PlayerItem) error {
	if item == nil {
		return fmt.Errorf("player item is nil")
	}
	query := `
INSERT INTO game_runtime.player_items (id, player_id, item_id, source_session_id)
VALUES ($1, $2, $3, $4)
`
	_, err := execer.ExecContext(ctx, query, item.ID, item.PlayerID, item.ItemID, item.SourceSessionID)
	if err != nil {
		return fmt.Errorf("插入玩家物品失败: %w", err)
	}
	return nil
}

func (r *inventoryRepositoryImpl) ListMaterials(ctx context.Context, playerID string) ([]*interfaces.MaterialStack, error) {
	query := `
SELECT player_id, material_id, style, quantity, updated_at
FROM game_runtime.material_stacks
WHERE player_id = $1
ORDER BY material_id, style
`
	rows, err := r.db.QueryContext(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("查询材料堆叠失败: %w", err)
	}
	defer rows.Close()

	var stacks []*interfaces.MaterialStack
	for rows.Next() {
		var s interfaces.MaterialStack
		if err := rows.Scan(&s.PlayerID, &s.MaterialID, &s.Style, &s.Quantity, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("扫描材料堆叠失败: %w", err)
		}
		stacks = append(stacks, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历材料堆叠失败: %w", err)
	}
	return stacks, nil
}

func (r *inventoryRepositoryImpl) ListItemsBySession(ctx context.Context, sessionID string) ([]*interfaces.PlayerItem, error) {
	query := `
SELECT id, player_id, item_id, source_session_id, created_at
FROM game_runtime.player_items
WHERE source_session_id = $1
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询战斗产出物品失败: %w", err)
	}
	defer rows.Close()

	var items []*interfaces.PlayerItem
	for rows.Next() {
		var item interfaces.PlayerItem
		if err := rows.Scan(&item.ID, &item.PlayerID, &item.ItemID, &item.SourceSessionID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描玩家物品失败: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历玩家物品失败: %w", err)
	}
	return items, nil
}
