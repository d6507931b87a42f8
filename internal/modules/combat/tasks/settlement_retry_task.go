package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"wander-self/internal/modules/combat/service"
	"wander-self/internal/pkg/log"
)

// 每轮重放最多处理的 pending 结算数。
const settlementRetryBatchSize = 100

// 每轮补偿最多处理的未归档终态会话数。
const settlementReconcileBatchSize = 100

// SettlementRetryTask 待重试结算重放任务
// 每五分钟扫一次 pending 结算记录，重放落账。奖励包存在记录里，
// 存储恢复后奖励不会丢失。同一轮里还会补偿未归档的终态会话：
// pending 落库也失败时，奖励包只剩会话行里的一份，从那里重放。
type SettlementRetryTask struct {
	settlementService *service.SettlementService
	logger            log.Logger
	cron              *cron.Cron
}

// NewSettlementRetryTask 创建结算重放任务实例
func NewSettlementRetryTask(settlementService *service.SettlementService, logger log.Logger) *SettlementRetryTask {
	return &SettlementRetryTask{
		settlementService: settlementService,
		logger:            logger,
	}
}

// Start 启动定时任务
func (t *SettlementRetryTask) Start() {
	t.cron = cron.New(cron.WithSeconds())

	// 每五分钟的第 45 秒执行一次结算重放
	_, err := t.cron.AddFunc("45 */5 * * * *", func() {
		t.retry()
	})
	if err != nil {
		t.logger.Error("【战斗定时任务】添加结算重放任务失败", err)
		return
	}

	t.cron.Start()
	t.logger.Info("【战斗定时任务】结算重放任务已启动 - 每五分钟执行一次")
}

func (t *SettlementRetryTask) retry() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	settled, err := t.settlementService.RetryPending(ctx, settlementRetryBatchSize)
	if err != nil {
		t.logger.Error("【战斗定时任务】结算重放失败", err)
		return
	}

	reconciled, err := t.settlementService.ReconcileUnarchived(ctx, settlementReconcileBatchSize)
	if err != nil {
		t.logger.Error("【战斗定时任务】未归档会话补偿失败", err)
		return
	}

	if settled > 0 || reconciled > 0 {
		t.logger.Info("【战斗定时任务】结算重放完成",
			"settled_count", settled,
			"reconciled_count", reconciled,
			"timestamp", time.Now().Format("2006-01-02 15:04:05"))
	} else {
		t.logger.Debug("【战斗定时任务】没有待重试的结算")
	}
}

// Stop 停止定时任务（优雅关闭）
func (t *SettlementRetryTask) Stop() {
	if t.cron != nil {
		t.logger.Info("【战斗定时任务】正在停止结算重放任务...")
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【战斗定时任务】结算重放任务已停止")
	}
}
