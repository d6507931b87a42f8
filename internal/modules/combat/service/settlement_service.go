package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"

	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/metrics"
	"wander-self/internal/pkg/notify"
	"wander-self/internal/pkg/xerrors"
	"wander-self/internal/repository/interfaces"
)

const (
	defaultSettleAttempts = 3
	defaultSettleBackoff  = 100 * time.Millisecond
)

// SettlementService 奖励结算服务，整个仓库里唯一允许写奖励效果的路径。
// 只能从会话终态转换分支到达，路由层不得直接调用。
//
// 幂等性由结算记录保证：任何写入前先锁检查记录是否存在；
// 记录本身在钱包、材料、物品、战斗历史全部落库之后最后写入。
// 会话归档必须发生在结算记录落库之后，防止部分失败时奖励静默丢失。
type SettlementService struct {
	db             *sql.DB
	sessionRepo    interfaces.CombatSessionRepository
	settlementRepo interfaces.SettlementRepository
	walletRepo     interfaces.PlayerWalletRepository
	inventoryRepo  interfaces.InventoryRepository
	statsRepo      interfaces.CombatStatsRepository

	combatMetrics *metrics.CombatMetrics
	logger        log.Logger
	serviceName   string

	maxAttempts int
	baseBackoff time.Duration
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	db *sql.DB,
	sessionRepo interfaces.CombatSessionRepository,
	settlementRepo interfaces.SettlementRepository,
	walletRepo interfaces.PlayerWalletRepository,
	inventoryRepo interfaces.InventoryRepository,
	statsRepo interfaces.CombatStatsRepository,
	combatMetrics *metrics.CombatMetrics,
	logger log.Logger,
	serviceName string,
) *SettlementService {
	if combatMetrics == nil {
		combatMetrics = metrics.DefaultCombatMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &SettlementService{
		db:             db,
		sessionRepo:    sessionRepo,
		settlementRepo: settlementRepo,
		walletRepo:     walletRepo,
		inventoryRepo:  inventoryRepo,
		statsRepo:      statsRepo,
		combatMetrics:  combatMetrics,
		logger:         logger,
		serviceName:    serviceName,
		maxAttempts:    defaultSettleAttempts,
		baseBackoff:    defaultSettleBackoff,
	}
}

// Settle 对一个终态会话应用奖励包，重复调用与单次调用效果一致。
// 瞬时存储错误按指数退避重试；重试耗尽时把奖励包落成 pending 记录，
// 由后台任务继续重试，绝不丢弃。
func (s *SettlementService) Settle(ctx context.Context, session *interfaces.CombatSession, bundle *RewardBundle) error {
	if session == nil || bundle == nil {
		return xerrors.New(xerrors.CodeInvalidParams, "结算入参不能为空")
	}
	if !session.IsTerminal() {
		return xerrors.New(xerrors.CodeInvalidParams, "只有终态会话可以结算")
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.settleOnce(ctx, session, bundle, attempt)
		if err == nil {
			s.archiveAndNotify(ctx, session, bundle)
			return nil
		}
		lastErr = err

		var appErr *xerrors.AppError
		if errors.As(err, &appErr) && !appErr.IsRetryable() {
			return err
		}
		s.logger.WarnContext(ctx, "结算失败，准备重试",
			log.String("session_id", session.ID),
			log.Int("attempt", attempt),
			log.Any("error", err.Error()),
		)
		s.combatMetrics.RecordSettlement("retried", s.serviceName)

		if attempt < s.maxAttempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = s.maxAttempts
			case <-time.After(s.baseBackoff << (attempt - 1)):
			}
		}
	}

	// 重试耗尽：奖励包落为 pending，玩家看到"奖励结算中"而不是奖励丢失
	if err := s.persistPending(ctx, session, bundle, lastErr); err != nil {
		s.combatMetrics.RecordSettlement("failed", s.serviceName)
		return xerrors.NewSettlementFailedError(session.ID, err)
	}
	s.combatMetrics.RecordSettlement("pending", s.serviceName)
	return xerrors.NewSettlementPendingError(session.ID)
}

// settleOnce 单次结算尝试，所有写入在一个事务内。
func (s *SettlementService) settleOnce(ctx context.Context, session *interfaces.CombatSession, bundle *RewardBundle, attempt int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "开启结算事务失败")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 幂等检查：已有结算记录且已落账时直接成功返回
	existing, err := s.settlementRepo.GetBySessionForUpdate(ctx, tx, session.ID)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "锁定结算记录失败")
	}
	if existing != nil && existing.Status == interfaces.SettlementStatusSettled {
		s.combatMetrics.RecordSettlement("duplicate", s.serviceName)
		return nil
	}

	if err := s.applyRewards(ctx, tx, session, bundle); err != nil {
		return err
	}

	// 结算记录最后写入，它的存在即证明奖励已全部落库
	rewardsJSON, err := json.Marshal(bundle)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeInternalError, "序列化奖励包失败")
	}
	if existing != nil {
		if err := s.settlementRepo.MarkSettled(ctx, tx, session.ID); err != nil {
			return xerrors.Wrap(err, xerrors.CodeDatabaseError, "更新结算记录失败")
		}
	} else {
		record := &interfaces.CombatSettlement{
			SessionID: session.ID,
			PlayerID:  session.PlayerID,
			Status:    interfaces.SettlementStatusSettled,
			Gold:      bundle.Gold,
			Rewards:   rewardsJSON,
			Attempts:  attempt,
		}
		if err := s.settlementRepo.Insert(ctx, tx, record); err != nil {
			return xerrors.Wrap(err, xerrors.CodeDatabaseError, "插入结算记录失败")
		}
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "提交结算事务失败")
	}

	s.combatMetrics.RecordSettlement("settled", s.serviceName)
	return nil
}

// applyRewards 在事务内落账全部奖励组件。
func (s *SettlementService) applyRewards(ctx context.Context, tx *sql.Tx, session *interfaces.CombatSession, bundle *RewardBundle) error {
	if bundle.Gold > 0 {
		if err := s.walletRepo.AddGoldTx(ctx, tx, session.PlayerID, bundle.Gold); err != nil {
			return xerrors.Wrap(err, xerrors.CodeDatabaseError, "发放金币失败")
		}
	}

	for _, material := range bundle.Materials {
		if err := s.inventoryRepo.AddMaterialTx(ctx, tx, session.PlayerID, material.MaterialID, material.Style, 1); err != nil {
			return xerrors.Wrap(err, xerrors.CodeDatabaseError, "发放材料失败")
		}
	}

	for _, drop := range bundle.Items {
		item := &interfaces.PlayerItem{
			ID:              uuid.New().String(),
			PlayerID:        session.PlayerID,
			ItemID:          drop.ItemID,
			SourceSessionID: null.StringFrom(session.ID),
		}
		if err := s.inventoryRepo.InsertItemTx(ctx, tx, item); err != nil {
			return xerrors.Wrap(err, xerrors.CodeDatabaseError, "发放物品失败")
		}
	}

	endedAt := session.EndedAt.Time
	if !session.EndedAt.Valid {
		endedAt = time.Now()
	}
	if err := s.statsRepo.RecordResultTx(ctx, tx, session.PlayerID, session.LocationID, session.Status, endedAt); err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "更新战斗历史失败")
	}
	return nil
}

// persistPending 重试耗尽后落 pending 结算记录。
func (s *SettlementService) persistPending(ctx context.Context, session *interfaces.CombatSession, bundle *RewardBundle, cause error) error {
	rewardsJSON, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	return s.settlementRepo.UpsertPending(ctx, &interfaces.CombatSettlement{
		SessionID: session.ID,
		PlayerID:  session.PlayerID,
		Status:    interfaces.SettlementStatusPending,
		Gold:      bundle.Gold,
		Rewards:   rewardsJSON,
		Attempts:  s.maxAttempts,
		LastError: null.StringFrom(lastError),
	})
}

// archiveAndNotify 结算记录落库之后归档会话、回填战斗历史并广播事件。
// 归档失败不影响结算结果，ReconcileUnarchived 会补归档。
func (s *SettlementService) archiveAndNotify(ctx context.Context, session *interfaces.CombatSession, bundle *RewardBundle) {
	if err := s.sessionRepo.Archive(ctx, s.db, session.ID); err != nil {
		s.logger.WarnContext(ctx, "归档战斗会话失败，等待后台补偿",
			log.String("session_id", session.ID),
			log.Any("error", err.Error()),
		)
	}

	// 结算事务已提交，此时读到的聚合包含本场结果
	if stats, err := s.statsRepo.GetByPlayerLocation(ctx, session.PlayerID, session.LocationID); err == nil && stats != nil {
		bundle.History = &CombatHistory{
			Attempts:      stats.Attempts,
			Victories:     stats.Victories,
			Defeats:       stats.Defeats,
			CurrentStreak: stats.CurrentStreak,
			BestStreak:    stats.BestStreak,
		}
	}

	_ = notify.PublishCombatEvent(ctx, notify.SubjectCombatSettled, map[string]interface{}{
		"session_id": session.ID,
		"player_id":  session.PlayerID,
		"status":     session.Status,
		"gold":       bundle.Gold,
		"experience": bundle.Experience,
		"materials":  len(bundle.Materials),
		"items":      len(bundle.Items),
	})

	if len(bundle.Materials) > 0 {
		s.combatMetrics.RecordLootDrop("material", len(bundle.Materials), s.serviceName)
	}
	if len(bundle.Items) > 0 {
		s.combatMetrics.RecordLootDrop("item", len(bundle.Items), s.serviceName)
	}
}

// RetryPending 重放所有 pending 结算，由后台任务周期调用。
func (s *SettlementService) RetryPending(ctx context.Context, limit int) (int, error) {
	pendings, err := s.settlementRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询待重试结算失败")
	}

	settled := 0
	for _, pending := range pendings {
		session, err := s.sessionRepo.GetByID(ctx, pending.SessionID)
		if err != nil || session == nil {
			s.logger.WarnContext(ctx, "待重试结算缺少对应会话",
				log.String("session_id", pending.SessionID),
			)
			continue
		}

		var bundle RewardBundle
		if err := json.Unmarshal(pending.Rewards, &bundle); err != nil {
			s.logger.ErrorContext(ctx, "待重试结算奖励包损坏",
				log.String("session_id", pending.SessionID),
				log.Any("error", err.Error()),
			)
			continue
		}

		if err := s.Settle(ctx, session, &bundle); err != nil {
			continue
		}
		settled++
	}
	return settled, nil
}

// ReconcileUnarchived 补偿已终结但尚未归档的会话，由后台任务周期调用。
// 覆盖两类中断：结算完成但归档失败（幂等短路后补归档），
// 以及结算重试与 pending 落库都失败、奖励只剩会话行 reward_payload 一份的情况。
func (s *SettlementService) ReconcileUnarchived(ctx context.Context, limit int) (int, error) {
	sessions, err := s.sessionRepo.ListUnarchivedTerminal(ctx, limit)
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询未归档终态会话失败")
	}

	reconciled := 0
	for _, session := range sessions {
		// 放弃与超时不结算；正常路径下它们在会话事务内归档，这里只补归档
		if len(session.RewardPayload) == 0 {
			if err := s.sessionRepo.Archive(ctx, s.db, session.ID); err != nil {
				s.logger.WarnContext(ctx, "补归档无奖励会话失败",
					log.String("session_id", session.ID),
					log.Any("error", err.Error()),
				)
				continue
			}
			reconciled++
			continue
		}

		var bundle RewardBundle
		if err := json.Unmarshal(session.RewardPayload, &bundle); err != nil {
			s.logger.ErrorContext(ctx, "会话奖励包损坏，无法补偿结算",
				log.String("session_id", session.ID),
				log.Any("error", err.Error()),
			)
			continue
		}

		if err := s.Settle(ctx, session, &bundle); err != nil {
			continue
		}
		reconciled++
	}
	return reconciled, nil
}
