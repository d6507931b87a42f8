package service

import (
	"database/sql"

	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/metrics"
	"wander-self/internal/pkg/sessionindex"
	"wander-self/internal/repository/impl"
	"wander-self/internal/repository/interfaces"
)

// ServiceContainer 战斗服务容器 - 统一管理所有 Repository 和 Service
// 目的：避免重复创建 Repository，简化依赖注入
type ServiceContainer struct {
	// 所有 Repository（共享实例）
	sessionRepo    interfaces.CombatSessionRepository
	settlementRepo interfaces.SettlementRepository
	walletRepo     interfaces.PlayerWalletRepository
	inventoryRepo  interfaces.InventoryRepository
	statsRepo      interfaces.CombatStatsRepository
	lootPoolRepo   interfaces.LootPoolRepository
	enemyRepo      interfaces.EnemyRepository
	equipmentRepo  interfaces.EquipmentRepository

	// 所有 Service（共享实例）
	StatService       *StatService
	TimingService     *TimingService
	LootService       *LootService
	SettlementService *SettlementService
	CombatService     *CombatService
}

// NewServiceContainer 创建服务容器
// sessionIndex 是可选依赖，为 nil 时活跃会话查询直接回源数据库
func NewServiceContainer(
	db *sql.DB,
	sessionIndex *sessionindex.Index,
	combatMetrics *metrics.CombatMetrics,
	logger log.Logger,
	serviceName string,
) *ServiceContainer {
	c := &ServiceContainer{}

	// 初始化所有 Repository
	c.sessionRepo = impl.NewCombatSessionRepository(db)
	c.settlementRepo = impl.NewSettlementRepository(db)
	c.walletRepo = impl.NewPlayerWalletRepository(db)
	c.inventoryRepo = impl.NewInventoryRepository(db)
	c.statsRepo = impl.NewCombatStatsRepository(db)
	c.lootPoolRepo = impl.NewLootPoolRepository(db)
	c.enemyRepo = impl.NewEnemyRepository(db)
	c.equipmentRepo = impl.NewEquipmentRepository(db)

	// 初始化纯计算服务
	c.StatService = NewStatService(c.equipmentRepo)
	c.TimingService = NewTimingService()
	c.LootService = NewLootService(c.lootPoolRepo, nil)

	// 初始化结算服务（唯一的奖励写入路径）
	c.SettlementService = NewSettlementService(
		db,
		c.sessionRepo,
		c.settlementRepo,
		c.walletRepo,
		c.inventoryRepo,
		c.statsRepo,
		combatMetrics,
		logger,
		serviceName,
	)

	// 初始化战斗状态机
	c.CombatService = NewCombatService(
		db,
		c.sessionRepo,
		c.enemyRepo,
		c.equipmentRepo,
		c.StatService,
		c.TimingService,
		c.LootService,
		c.SettlementService,
		sessionIndex,
		combatMetrics,
		logger,
		serviceName,
	)

	return c
}

// GetCombatService 获取战斗服务
func (c *ServiceContainer) GetCombatService() *CombatService {
	return c.CombatService
}

// GetSettlementService 获取结算服务
func (c *ServiceContainer) GetSettlementService() *SettlementService {
	return c.SettlementService
}
