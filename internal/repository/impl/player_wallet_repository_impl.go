package impl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/volatiletech/sqlboiler/v4/boil"

	"wander-self/internal/repository/interfaces"
)

type playerWalletRepositoryImpl struct {
	db *sql.DB
}

// NewPlayerWalletRepository 创建玩家钱包仓储实例
func NewPlayerWalletRepository(db *sql.DB) interfaces.PlayerWalletRepository {
	return &playerWalletRepositoryImpl{db: db}
}

func (r *playerWalletRepositoryImpl) AddGold(ctx context.Context, playerID string, amount int64) error {
	return r.AddGoldTx(ctx, r.db, playerID, amount)
}

func (r *playerWalletRepositoryImpl) AddGoldTx(ctx context.Context, execer boil.ContextExecutor, playerID string, amount int64) error {
	if playerID == "" {
		return fmt.Errorf("player_id 不能为空")
	}
	// 插入或累加，确保不为负
	query := `
INSERT INTO game_runtime.player_wallets (player_id, gold_amount)
VALUES ($1, GREATEST($2,0))
ON CONFLICT (player_id) DO UPDATE
SET gold_amount = GREATEST(game_runtime.player_wallets.gold_amount + $2, 0),
    updated_at = NOW()
`
	_, err := execer.ExecContext(ctx, query, playerID, amount)
	if err != nil {
		return fmt.Errorf("更新玩家钱包失败: %w", err)
	}
	return nil
}

func (r *playerWalletRepositoryImpl) GetBalance(ctx context.Context, playerID string) (int64, error) {
	if playerID == "" {
		return 0, fmt.Errorf("player_id 不能为空")
	}
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT gold_amount FROM game_runtime.player_wallets WHERE player_id = $1`, playerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("查询玩家钱包失败: %w", err)
	}
	return balance, nil
}
