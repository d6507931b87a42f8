package interfaces

import (
	"context"

	"github.com/volatiletech/sqlboiler/v4/boil"
)

// PlayerWalletRepository 玩家钱包仓储接口
type PlayerWalletRepository interface {
	// AddGold 为玩家增加金币（可为负，需确保不小于0）
	AddGold(ctx context.Context, playerID string, amount int64) error
	// AddGoldTx 在事务内为玩家增加金币
	AddGoldTx(ctx context.Context, tx boil.ContextExecutor, playerID string, amount int64) error
	// GetBalance 获取玩家金币余额
	GetBalance(ctx context.Context, playerID string) (int64, error)
}
