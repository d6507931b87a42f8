package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"

	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/metrics"
	"wander-self/internal/pkg/notify"
	"wander-self/internal/pkg/sessionindex"
	"wander-self/internal/pkg/validator"
	"wander-self/internal/pkg/xerrors"
	"wander-self/internal/repository/interfaces"
)

// 战斗动作
const (
	ActionAttack = "attack"
	ActionDefend = "defend"
)

// 会话从创建起的有效时长，超过后任何变更调用都会被拒绝。
const defaultSessionTTL = 30 * time.Minute

// InitiateCombatRequest 发起战斗请求。
type InitiateCombatRequest struct {
	LocationID   string  `json:"location_id" validate:"required"`
	LocationType string  `json:"location_type"`
	State        string  `json:"state"`
	Country      string  `json:"country"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	CombatLevel  int     `json:"combat_level" validate:"combat_level"`
}

// WeaponInfo 客户端转盘表现参数，不影响判定算法。
type WeaponInfo struct {
	WeaponID string  `json:"weapon_id"`
	Name     string  `json:"name"`
	SpinRate float64 `json:"spin_rate"`
	ArcCount int     `json:"arc_count"`
}

// SessionView 会话对外视图。
type SessionView struct {
	SessionID    string                `json:"session_id"`
	LocationID   string                `json:"location_id"`
	EnemyID      string                `json:"enemy_id"`
	CombatLevel  int                   `json:"combat_level"`
	Status       string                `json:"status"`
	CurrentTurn  int                   `json:"current_turn"`
	CurrentOwner string                `json:"current_owner"`
	PlayerHP     int                   `json:"player_hp"`
	PlayerMaxHP  int                   `json:"player_max_hp"`
	EnemyHP      int                   `json:"enemy_hp"`
	EnemyMaxHP   int                   `json:"enemy_max_hp"`
	PlayerStats  interfaces.StatVector `json:"player_stats"`
	EnemyStats   interfaces.StatVector `json:"enemy_stats"`
	AttackBands  HitBands              `json:"attack_bands"`
	DefenseBands HitBands              `json:"defense_bands"`
	Weapon       *WeaponInfo           `json:"weapon,omitempty"`
	ExpiresAt    time.Time             `json:"expires_at"`
	CreatedAt    time.Time             `json:"created_at"`
}

// CombatActionResult 单次攻击或防御的判定结果，产生后不再变更。
type CombatActionResult struct {
	SessionID        string        `json:"session_id"`
	Action           string        `json:"action"`
	Angle            float64       `json:"angle"`
	Band             string        `json:"band"`
	Multiplier       float64       `json:"multiplier"`
	DamageDealt      int           `json:"damage_dealt"`
	DamageBlocked    int           `json:"damage_blocked"`
	SelfDamage       int           `json:"self_damage"`
	PlayerHP         int           `json:"player_hp"`
	EnemyHP          int           `json:"enemy_hp"`
	Turn             int           `json:"turn"`
	NextOwner        string        `json:"next_owner,omitempty"`
	Status           string        `json:"status"`
	Reward           *RewardBundle `json:"reward,omitempty"`
	SettlementStatus string        `json:"settlement_status,omitempty"`
}

// RetreatResult 撤退结果。
type RetreatResult struct {
	SessionID        string        `json:"session_id"`
	Status           string        `json:"status"`
	Reward           *RewardBundle `json:"reward"`
	SettlementStatus string        `json:"settlement_status,omitempty"`
	Message          string        `json:"message"`
}

// CombatService 战斗会话状态机。每个变更调用在一个事务内对会话行加锁，
// 配合期望回合号做乐观校验，保证同一会话的并发调用串行生效。
// 终态转换与当次调用原子完成；奖励结算在会话事务提交之后执行，
// 绝不在持有会话行锁时等待结算写入。
type CombatService struct {
	db            *sql.DB
	sessionRepo   interfaces.CombatSessionRepository
	enemyRepo     interfaces.EnemyRepository
	equipmentRepo interfaces.EquipmentRepository

	statService       *StatService
	timingService     *TimingService
	lootService       *LootService
	settlementService *SettlementService

	sessionIndex  *sessionindex.Index
	combatMetrics *metrics.CombatMetrics
	validator     *validator.BusinessValidator
	logger        log.Logger
	serviceName   string
	sessionTTL    time.Duration

	// 测试注入
	now func() time.Time
}

// NewCombatService 创建战斗服务
func NewCombatService(
	db *sql.DB,
	sessionRepo interfaces.CombatSessionRepository,
	enemyRepo interfaces.EnemyRepository,
	equipmentRepo interfaces.EquipmentRepository,
	statService *StatService,
	timingService *TimingService,
	lootService *LootService,
	settlementService *SettlementService,
	sessionIndex *sessionindex.Index,
	combatMetrics *metrics.CombatMetrics,
	logger log.Logger,
	serviceName string,
) *CombatService {
	if combatMetrics == nil {
		combatMetrics = metrics.DefaultCombatMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &CombatService{
		db:                db,
		sessionRepo:       sessionRepo,
		enemyRepo:         enemyRepo,
		equipmentRepo:     equipmentRepo,
		statService:       statService,
		timingService:     timingService,
		lootService:       lootService,
		settlementService: settlementService,
		sessionIndex:      sessionIndex,
		combatMetrics:     combatMetrics,
		validator:         validator.NewBusinessValidator(),
		logger:            logger,
		serviceName:       serviceName,
		sessionTTL:        defaultSessionTTL,
		now:               time.Now,
	}
}

// Initiate 发起战斗。同一玩家同时只允许一个活跃会话，
// 该约束由数据库查询保证，不依赖进程内单例。
func (s *CombatService) Initiate(ctx context.Context, playerID string, req *InitiateCombatRequest) (*SessionView, error) {
	if req == nil {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "请求不能为空")
	}
	// 业务规则验证
	if err := s.validator.Validate(req); err != nil {
		return nil, xerrors.New(xerrors.CodeInvalidParams, validator.GetValidationErrorMessage(err))
	}

	if existing, err := s.findActiveSession(ctx, playerID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, xerrors.NewCombatSessionConflictError(playerID, existing.ID)
	}

	enemy, err := s.enemyRepo.GetForLocation(ctx, req.LocationID, req.CombatLevel)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询地点敌人失败")
	}
	if enemy == nil {
		return nil, xerrors.NewEnemyNotFoundError(req.LocationID)
	}

	playerStats, err := s.statService.AggregatePlayerStats(ctx, playerID, req.CombatLevel)
	if err != nil {
		return nil, err
	}
	enemyStats := ScaleEnemyStats(enemy.BaseStats, req.CombatLevel)

	weapon, weaponID, err := s.resolveWeapon(ctx, playerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	playerMaxHP := PlayerMaxHP(req.CombatLevel)
	enemyMaxHP := ScaleEnemyMaxHP(enemy.BaseMaxHP, req.CombatLevel)
	session := &interfaces.CombatSession{
		ID:              uuid.New().String(),
		PlayerID:        playerID,
		LocationID:      req.LocationID,
		EnemyID:         enemy.ID,
		WeaponID:        weaponID,
		CombatLevel:     req.CombatLevel,
		LocationType:    req.LocationType,
		LocationState:   req.State,
		LocationCountry: req.Country,
		LocationLat:     req.Lat,
		LocationLng:     req.Lng,
		Status:          interfaces.SessionStatusActive,
		CurrentTurn:     1,
		CurrentOwner:    interfaces.TurnOwnerPlayer,
		PlayerHP:        playerMaxHP,
		PlayerMaxHP:     playerMaxHP,
		EnemyHP:         enemyMaxHP,
		EnemyMaxHP:      enemyMaxHP,
		PlayerStats:     playerStats,
		EnemyStats:      enemyStats,
		ExpiresAt:       now.Add(s.sessionTTL),
		CreatedAt:       now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "开启事务失败")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 并发双开防护：锁内复核活跃会话
	if locked, err := s.sessionRepo.GetActiveByPlayerForUpdate(ctx, tx, playerID); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "锁定活跃会话失败")
	} else if locked != nil {
		return nil, xerrors.NewCombatSessionConflictError(playerID, locked.ID)
	}
	if err := s.sessionRepo.Create(ctx, tx, session); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "创建战斗会话失败")
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "提交事务失败")
	}

	if s.sessionIndex != nil {
		s.sessionIndex.Set(ctx, playerID, session.ID, s.sessionTTL)
	}
	s.combatMetrics.RecordSessionStarted(s.serviceName)
	s.logger.InfoContext(ctx, "战斗会话已创建",
		log.String("session_id", session.ID),
		log.String("player_id", playerID),
		log.String("enemy_id", enemy.ID),
		log.Int("combat_level", req.CombatLevel),
	)

	return s.toView(session, weapon), nil
}

// Attack 玩家回合的攻击判定。
func (s *CombatService) Attack(ctx context.Context, playerID, sessionID string, angle float64, expectedTurn int) (*CombatActionResult, error) {
	return s.performAction(ctx, playerID, sessionID, ActionAttack, angle, expectedTurn)
}

// Defend 敌人回合的防御判定。
func (s *CombatService) Defend(ctx context.Context, playerID, sessionID string, angle float64, expectedTurn int) (*CombatActionResult, error) {
	return s.performAction(ctx, playerID, sessionID, ActionDefend, angle, expectedTurn)
}

func (s *CombatService) performAction(ctx context.Context, playerID, sessionID, action string, angle float64, expectedTurn int) (*CombatActionResult, error) {
	// 角度在读任何状态之前校验
	if angle < 0 || angle >= fullCircle {
		return nil, xerrors.NewInvalidHitAngleError(angle)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "开启事务失败")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	session, err := s.lockOwnedActiveSession(ctx, tx, playerID, sessionID, expectedTurn)
	if err != nil {
		return nil, err
	}

	// 本回合的合法动作由回合归属决定：玩家回合攻击，敌人回合防御
	switch action {
	case ActionAttack:
		if session.CurrentOwner != interfaces.TurnOwnerPlayer {
			return nil, xerrors.NewWrongTurnActionError(action, session.CurrentOwner)
		}
	case ActionDefend:
		if session.CurrentOwner != interfaces.TurnOwnerEnemy {
			return nil, xerrors.NewWrongTurnActionError(action, session.CurrentOwner)
		}
	default:
		return nil, xerrors.New(xerrors.CodeInvalidParams, "未知的战斗动作")
	}

	result := &CombatActionResult{
		SessionID: sessionID,
		Action:    action,
		Angle:     angle,
		Turn:      session.CurrentTurn,
	}

	if action == ActionAttack {
		err = s.applyAttack(session, angle, result)
	} else {
		err = s.applyDefense(session, angle, result)
	}
	if err != nil {
		return nil, err
	}

	// 终态转换与本次调用原子完成，之后的任何动作都会拿到冲突错误
	var bundle *RewardBundle
	terminalStatus := s.terminalStatusFor(session)
	if terminalStatus != "" {
		bundle, err = s.enterTerminal(ctx, session, terminalStatus)
		if err != nil {
			return nil, err
		}
	} else {
		session.CurrentTurn++
		session.CurrentOwner = s.nextOwner(session.CurrentOwner)
	}

	if err := s.sessionRepo.Update(ctx, tx, session); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "更新战斗会话失败")
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "提交事务失败")
	}

	result.PlayerHP = session.PlayerHP
	result.EnemyHP = session.EnemyHP
	result.Status = session.Status
	s.combatMetrics.RecordAction(action, result.Band, result.Multiplier, s.serviceName)

	if terminalStatus != "" {
		result.Reward = bundle
		result.SettlementStatus = s.settleAfterCommit(ctx, session, bundle)
		s.finishSession(ctx, session)
	} else {
		result.NextOwner = session.CurrentOwner
	}
	return result, nil
}

// applyAttack 攻击判定：伤害 = 基础伤害 × (0.5 + 0.5 × 乘数/最高乘数)。
// injure 段反噬自身，miss 段零伤害。
func (s *CombatService) applyAttack(session *interfaces.CombatSession, angle float64, result *CombatActionResult) error {
	hit, err := s.timingService.Resolve(angle, session.PlayerStats.AttackAccuracy)
	if err != nil {
		return err
	}
	result.Band = hit.Band
	result.Multiplier = hit.Multiplier

	base := baseDamage(session.PlayerStats.AttackPower, session.EnemyStats.DefensePower)
	switch hit.Band {
	case BandInjure:
		self := roundDamage(base * -hit.Multiplier)
		result.SelfDamage = self
		session.PlayerHP = clampHP(session.PlayerHP-self, session.PlayerMaxHP)
	case BandMiss:
		// 空挥
	default:
		damage := roundDamage(base * (0.5 + 0.5*hit.Multiplier/MaxMultiplier()))
		result.DamageDealt = damage
		session.EnemyHP = clampHP(session.EnemyHP-damage, session.EnemyMaxHP)
	}
	return nil
}

// applyDefense 防御判定：格挡量 = 敌方基础伤害 × 乘数，剩余伤害落在玩家身上。
// injure 段的负乘数意味着招架失误，受到的伤害高于敌方基础值。
func (s *CombatService) applyDefense(session *interfaces.CombatSession, angle float64, result *CombatActionResult) error {
	hit, err := s.timingService.Resolve(angle, session.PlayerStats.DefenseAccuracy)
	if err != nil {
		return err
	}
	result.Band = hit.Band
	result.Multiplier = hit.Multiplier

	base := baseDamage(session.EnemyStats.AttackPower, session.PlayerStats.DefensePower)
	blocked := base * hit.Multiplier
	remaining := base - blocked
	if remaining < 0 {
		remaining = 0
	}
	damage := roundDamage(remaining)
	if blocked > 0 {
		result.DamageBlocked = roundDamage(math.Min(blocked, base))
	}
	result.DamageDealt = damage
	session.PlayerHP = clampHP(session.PlayerHP-damage, session.PlayerMaxHP)
	return nil
}

func (s *CombatService) terminalStatusFor(session *interfaces.CombatSession) string {
	if session.EnemyHP <= 0 {
		return interfaces.SessionStatusVictory
	}
	if session.PlayerHP <= 0 {
		return interfaces.SessionStatusDefeat
	}
	return ""
}

// enterTerminal 在会话事务内生成奖励包并写入会话行，
// 奖励包随会话一起持久化，结算中断后后台任务可以据此重放。
func (s *CombatService) enterTerminal(ctx context.Context, session *interfaces.CombatSession, status string) (*RewardBundle, error) {
	session.Status = status
	session.EndedAt = null.TimeFrom(s.now())

	var bundle *RewardBundle
	switch status {
	case interfaces.SessionStatusVictory:
		enemy, err := s.enemyRepo.GetByID(ctx, session.EnemyID)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询敌人配置失败")
		}
		if enemy == nil {
			return nil, xerrors.NewEnemyNotFoundError(session.EnemyID)
		}
		bundle, err = s.lootService.Generate(ctx, s.lootQueryFor(session), enemy)
		if err != nil {
			return nil, err
		}
	case interfaces.SessionStatusRetreat:
		enemy, err := s.enemyRepo.GetByID(ctx, session.EnemyID)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询敌人配置失败")
		}
		bundle = s.lootService.GenerateRetreat(session.CombatLevel, enemy)
	default:
		// 战败只记历史，不掉落
		bundle = &RewardBundle{
			Experience: int64(session.CombatLevel) * 10,
			Materials:  []MaterialDrop{},
			Items:      []ItemDrop{},
		}
	}

	payload, err := json.Marshal(bundle)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "序列化奖励包失败")
	}
	session.RewardGold = bundle.Gold
	session.RewardPayload = payload
	return bundle, nil
}

// settleAfterCommit 会话事务提交后的结算。结算的瞬时失败不回传给玩家，
// 对外表现为"奖励结算中"。
func (s *CombatService) settleAfterCommit(ctx context.Context, session *interfaces.CombatSession, bundle *RewardBundle) string {
	if err := s.settlementService.Settle(ctx, session, bundle); err != nil {
		var appErr *xerrors.AppError
		if errors.As(err, &appErr) && appErr.Code == xerrors.CodeSettlementPending {
			return interfaces.SettlementStatusPending
		}
		s.logger.ErrorContext(ctx, "奖励结算失败",
			log.String("session_id", session.ID),
			log.String("player_id", session.PlayerID),
			log.Any("error", err.Error()),
		)
		return interfaces.SettlementStatusPending
	}
	return interfaces.SettlementStatusSettled
}

// Retreat 撤退：立即终结会话并发放缩减奖励包。
func (s *CombatService) Retreat(ctx context.Context, playerID, sessionID string) (*RetreatResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "开启事务失败")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	session, err := s.lockOwnedActiveSession(ctx, tx, playerID, sessionID, anyTurn)
	if err != nil {
		return nil, err
	}

	bundle, err := s.enterTerminal(ctx, session, interfaces.SessionStatusRetreat)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Update(ctx, tx, session); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "更新战斗会话失败")
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "提交事务失败")
	}

	settlementStatus := s.settleAfterCommit(ctx, session, bundle)
	s.finishSession(ctx, session)

	return &RetreatResult{
		SessionID:        sessionID,
		Status:           session.Status,
		Reward:           bundle,
		SettlementStatus: settlementStatus,
		Message:          "已撤离战斗",
	}, nil
}

// Abandon 放弃战斗：终结会话，不产生任何奖励，用于客户端清理。
func (s *CombatService) Abandon(ctx context.Context, playerID, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "开启事务失败")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	session, err := s.lockOwnedActiveSession(ctx, tx, playerID, sessionID, anyTurn)
	if err != nil {
		return err
	}

	session.Status = interfaces.SessionStatusAbandoned
	session.EndedAt = null.TimeFrom(s.now())
	if err := s.sessionRepo.Update(ctx, tx, session); err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "更新战斗会话失败")
	}
	if err := s.sessionRepo.Archive(ctx, tx, sessionID); err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "归档战斗会话失败")
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(err, xerrors.CodeDatabaseError, "提交事务失败")
	}

	s.finishSession(ctx, session)
	return nil
}

// Fetch 查询会话详情，只读。
func (s *CombatService) Fetch(ctx context.Context, playerID, sessionID string) (*SessionView, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询战斗会话失败")
	}
	if session == nil || session.PlayerID != playerID {
		return nil, xerrors.NewCombatSessionNotFoundError(sessionID)
	}
	weapon, err := s.weaponInfoFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return s.toView(session, weapon), nil
}

// GetActive 查询玩家当前活跃会话，没有时返回 nil（不是错误）。
func (s *CombatService) GetActive(ctx context.Context, playerID string) (*SessionView, error) {
	session, err := s.findActiveSession(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	weapon, err := s.weaponInfoFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return s.toView(session, weapon), nil
}

// PreviewStats 属性预览，复用实时战斗同一套聚合计算。
func (s *CombatService) PreviewStats(ctx context.Context, playerID string, level int) (*interfaces.StatVector, HitBands, error) {
	stats, err := s.statService.AggregatePlayerStats(ctx, playerID, level)
	if err != nil {
		return nil, HitBands{}, err
	}
	return &stats, s.timingService.ComputeBands(stats.AttackAccuracy), nil
}

// ExpireSessions 后台清扫：把超过期限仍为 active 的会话转为 expired，
// 不产生奖励。供定时任务调用，返回处理数量。
func (s *CombatService) ExpireSessions(ctx context.Context, limit int) (int, error) {
	sessions, err := s.sessionRepo.ListExpiredActive(ctx, limit)
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询过期会话失败")
	}

	expired := 0
	for _, candidate := range sessions {
		if err := s.expireOne(ctx, candidate.ID); err != nil {
			s.logger.WarnContext(ctx, "过期会话清扫失败",
				log.String("session_id", candidate.ID),
				log.Any("error", err.Error()),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *CombatService) expireOne(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	session, err := s.sessionRepo.GetByIDForUpdate(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	// 锁内复核：会话可能已被其他调用终结
	if session == nil || session.Status != interfaces.SessionStatusActive || s.now().Before(session.ExpiresAt) {
		return nil
	}

	session.Status = interfaces.SessionStatusExpired
	session.EndedAt = null.TimeFrom(s.now())
	if err := s.sessionRepo.Update(ctx, tx, session); err != nil {
		return err
	}
	// 过期路径明确绕过奖励，直接归档
	if err := s.sessionRepo.Archive(ctx, tx, sessionID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.finishSession(ctx, session)
	_ = notify.PublishCombatEvent(ctx, notify.SubjectCombatExpired, map[string]interface{}{
		"session_id": session.ID,
		"player_id":  session.PlayerID,
	})
	return nil
}

// anyTurn 跳过回合号校验的哨兵值，撤退与放弃不携带期望回合号。
const anyTurn = -1

// lockOwnedActiveSession 锁定会话行并完成通用校验：
// 存在性、归属、终态、过期、期望回合号。
func (s *CombatService) lockOwnedActiveSession(ctx context.Context, tx *sql.Tx, playerID, sessionID string, expectedTurn int) (*interfaces.CombatSession, error) {
	session, err := s.sessionRepo.GetByIDForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "锁定战斗会话失败")
	}
	if session == nil || session.PlayerID != playerID {
		return nil, xerrors.NewCombatSessionNotFoundError(sessionID)
	}
	if session.IsTerminal() {
		return nil, xerrors.NewCombatSessionEndedError(sessionID, session.Status)
	}
	// 到达过期时限只拦截新的变更调用，清扫由后台任务负责
	if !s.now().Before(session.ExpiresAt) {
		return nil, xerrors.NewCombatSessionExpiredError(sessionID)
	}
	if expectedTurn != anyTurn && expectedTurn != session.CurrentTurn {
		return nil, xerrors.NewStaleTurnError(expectedTurn, session.CurrentTurn)
	}
	return session, nil
}

// findActiveSession 优先查缓存索引，未命中或数据不一致时回源数据库。
func (s *CombatService) findActiveSession(ctx context.Context, playerID string) (*interfaces.CombatSession, error) {
	if s.sessionIndex != nil {
		if sessionID := s.sessionIndex.Get(ctx, playerID); sessionID != "" {
			session, err := s.sessionRepo.GetByID(ctx, sessionID)
			if err != nil {
				return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询战斗会话失败")
			}
			if session != nil && session.Status == interfaces.SessionStatusActive {
				return session, nil
			}
			// 索引指向的会话已不活跃，清理脏索引
			s.sessionIndex.Delete(ctx, playerID, "stale")
		}
	}
	session, err := s.sessionRepo.GetActiveByPlayer(ctx, playerID)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询活跃战斗会话失败")
	}
	return session, nil
}

// finishSession 终态后的公共收尾：清理索引并上报指标。
func (s *CombatService) finishSession(ctx context.Context, session *interfaces.CombatSession) {
	if s.sessionIndex != nil {
		s.sessionIndex.Delete(ctx, session.PlayerID, session.Status)
	}
	duration := time.Duration(0)
	if session.EndedAt.Valid {
		duration = session.EndedAt.Time.Sub(session.CreatedAt)
	}
	s.combatMetrics.RecordSessionEnded(session.Status, duration, s.serviceName)
}

func (s *CombatService) nextOwner(owner string) string {
	if owner == interfaces.TurnOwnerPlayer {
		return interfaces.TurnOwnerEnemy
	}
	return interfaces.TurnOwnerPlayer
}

func (s *CombatService) lootQueryFor(session *interfaces.CombatSession) interfaces.LootQuery {
	return interfaces.LootQuery{
		LocationType: session.LocationType,
		State:        session.LocationState,
		Country:      session.LocationCountry,
		Lat:          session.LocationLat,
		Lng:          session.LocationLng,
		CombatLevel:  session.CombatLevel,
	}
}

// resolveWeapon 从玩家装备里找武器槽位，读取转盘表现参数。
// 没有装备武器时使用裸装判定，不算错误。
func (s *CombatService) resolveWeapon(ctx context.Context, playerID string) (*WeaponInfo, null.String, error) {
	items, err := s.equipmentRepo.ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, null.String{}, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询玩家装备失败")
	}
	for _, item := range items {
		if !item.WeaponID.Valid {
			continue
		}
		weapon, err := s.equipmentRepo.GetWeapon(ctx, item.WeaponID.String)
		if err != nil {
			return nil, null.String{}, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询武器配置失败")
		}
		if weapon == nil {
			return nil, null.String{}, xerrors.NewWeaponNotFoundError(item.WeaponID.String)
		}
		return &WeaponInfo{
			WeaponID: weapon.ID,
			Name:     weapon.Name,
			SpinRate: weapon.SpinRate,
			ArcCount: weapon.ArcCount,
		}, item.WeaponID, nil
	}
	return nil, null.String{}, nil
}

func (s *CombatService) weaponInfoFor(ctx context.Context, session *interfaces.CombatSession) (*WeaponInfo, error) {
	if !session.WeaponID.Valid {
		return nil, nil
	}
	weapon, err := s.equipmentRepo.GetWeapon(ctx, session.WeaponID.String)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询武器配置失败")
	}
	if weapon == nil {
		return nil, nil
	}
	return &WeaponInfo{
		WeaponID: weapon.ID,
		Name:     weapon.Name,
		SpinRate: weapon.SpinRate,
		ArcCount: weapon.ArcCount,
	}, nil
}

func (s *CombatService) toView(session *interfaces.CombatSession, weapon *WeaponInfo) *SessionView {
	return &SessionView{
		SessionID:    session.ID,
		LocationID:   session.LocationID,
		EnemyID:      session.EnemyID,
		CombatLevel:  session.CombatLevel,
		Status:       session.Status,
		CurrentTurn:  session.CurrentTurn,
		CurrentOwner: session.CurrentOwner,
		PlayerHP:     session.PlayerHP,
		PlayerMaxHP:  session.PlayerMaxHP,
		EnemyHP:      session.EnemyHP,
		EnemyMaxHP:   session.EnemyMaxHP,
		PlayerStats:  session.PlayerStats,
		EnemyStats:   session.EnemyStats,
		AttackBands:  s.timingService.ComputeBands(session.PlayerStats.AttackAccuracy),
		DefenseBands: s.timingService.ComputeBands(session.PlayerStats.DefenseAccuracy),
		Weapon:       weapon,
		ExpiresAt:    session.ExpiresAt,
		CreatedAt:    session.CreatedAt,
	}
}

// baseDamage 基础伤害：攻方攻击力对守方防御力的衰减曲线，至少为 1。
// 攻防相等时恰为攻击力的 15%。
func baseDamage(attackPower, defensePower int) float64 {
	atk := float64(attackPower)
	def := float64(defensePower)
	if atk <= 0 {
		return 1
	}
	if def < 0 {
		def = 0
	}
	dmg := atk * atk / (atk + def) * 0.3
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}

func roundDamage(dmg float64) int {
	if dmg <= 0 {
		return 0
	}
	return int(math.Round(dmg))
}

func clampHP(hp, maxHP int) int {
	if hp < 0 {
		return 0
	}
	if hp > maxHP {
		return maxHP
	}
	return hp
}
