package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"wander-self/internal/modules/combat/service"
	"wander-self/internal/pkg/log"
)

// 每轮清扫最多处理的会话数，避免单次任务长时间持锁。
const expireSweepBatchSize = 200

// SessionExpireTask 战斗会话过期清扫任务
// 每分钟检查一次，把超过期限仍为 active 的会话转为 expired（不产生奖励）。
type SessionExpireTask struct {
	combatService *service.CombatService
	logger        log.Logger
	cron          *cron.Cron
}

// NewSessionExpireTask 创建会话过期任务实例
func NewSessionExpireTask(combatService *service.CombatService, logger log.Logger) *SessionExpireTask {
	return &SessionExpireTask{
		combatService: combatService,
		logger:        logger,
	}
}

// Start 启动定时任务
func (t *SessionExpireTask) Start() {
	t.cron = cron.New(cron.WithSeconds())

	// 每分钟的第 15 秒执行一次过期清扫
	_, err := t.cron.AddFunc("15 * * * * *", func() {
		t.sweep()
	})
	if err != nil {
		t.logger.Error("【战斗定时任务】添加会话过期任务失败", err)
		return
	}

	t.cron.Start()
	t.logger.Info("【战斗定时任务】会话过期清扫已启动 - 每分钟执行一次")
}

func (t *SessionExpireTask) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := t.combatService.ExpireSessions(ctx, expireSweepBatchSize)
	if err != nil {
		t.logger.Error("【战斗定时任务】会话过期清扫失败", err)
		return
	}

	if expired > 0 {
		t.logger.Info("【战斗定时任务】会话过期清扫完成",
			"expired_count", expired,
			"timestamp", time.Now().Format("2006-01-02 15:04:05"))
	} else {
		t.logger.Debug("【战斗定时任务】没有需要过期的会话")
	}
}

// Stop 停止定时任务（优雅关闭）
func (t *SessionExpireTask) Stop() {
	if t.cron != nil {
		t.logger.Info("【战斗定时任务】正在停止会话过期任务...")
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【战斗定时任务】会话过期任务已停止")
	}
}
