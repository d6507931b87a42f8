package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"

	"wander-self/internal/repository/interfaces"
)

// 共享的内存仓储假实现，事务参数在假实现里全部忽略。

type fakeSessionRepo struct {
	sessions map[string]*interfaces.CombatSession
	archived map[string]bool

	failUpdate error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*interfaces.CombatSession),
		archived: make(map[string]bool),
	}
}

func (f *fakeSessionRepo) put(session *interfaces.CombatSession) {
	cp := *session
	f.sessions[session.ID] = &cp
}

func (f *fakeSessionRepo) Create(ctx context.Context, tx boil.ContextExecutor, session *interfaces.CombatSession) error {
	f.put(session)
	return nil
}

func (f *fakeSessionRepo) GetByID(ctx context.Context, sessionID string) (*interfaces.CombatSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (f *fakeSessionRepo) GetByIDForUpdate(ctx context.Context, tx boil.ContextExecutor, sessionID string) (*interfaces.CombatSession, error) {
	return f.GetByID(ctx, sessionID)
}

func (f *fakeSessionRepo) GetActiveByPlayer(ctx context.Context, playerID string) (*interfaces.CombatSession, error) {
	for _, session := range f.sessions {
		if session.PlayerID == playerID && session.Status == interfaces.SessionStatusActive {
			cp := *session
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) GetActiveByPlayerForUpdate(ctx context.Context, tx boil.ContextExecutor, playerID string) (*interfaces.CombatSession, error) {
	return f.GetActiveByPlayer(ctx, playerID)
}

func (f *fakeSessionRepo) Update(ctx context.Context, tx boil.ContextExecutor, session *interfaces.CombatSession) error {
	if f.failUpdate != nil {
		return f.failUpdate
	}
	if _, ok := f.sessions[session.ID]; !ok {
		return fmt.Errorf("战斗会话不存在: %s", session.ID)
	}
	f.put(session)
	return nil
}

func (f *fakeSessionRepo) ListExpiredActive(ctx context.Context, limit int) ([]*interfaces.CombatSession, error) {
	var out []*interfaces.CombatSession
	now := time.Now()
	for _, session := range f.sessions {
		if session.Status == interfaces.SessionStatusActive && !session.ExpiresAt.After(now) {
			cp := *session
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) ListUnarchivedTerminal(ctx context.Context, limit int) ([]*interfaces.CombatSession, error) {
	var out []*interfaces.CombatSession
	for _, session := range f.sessions {
		if session.Status != interfaces.SessionStatusActive && !f.archived[session.ID] {
			cp := *session
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) Archive(ctx context.Context, tx boil.ContextExecutor, sessionID string) error {
	f.archived[sessionID] = true
	return nil
}

type fakeSettlementRepo struct {
	records map[string]*interfaces.CombatSettlement
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{records: make(map[string]*interfaces.CombatSettlement)}
}

func (f *fakeSettlementRepo) GetBySession(ctx context.Context, sessionID string) (*interfaces.CombatSettlement, error) {
	record, ok := f.records[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

func (f *fakeSettlementRepo) GetBySessionForUpdate(ctx context.Context, tx boil.ContextExecutor, sessionID string) (*interfaces.CombatSettlement, error) {
	return f.GetBySession(ctx, sessionID)
}

func (f *fakeSettlementRepo) Insert(ctx context.Context, tx boil.ContextExecutor, settlement *interfaces.CombatSettlement) error {
	if _, ok := f.records[settlement.SessionID]; ok {
		return fmt.Errorf("结算记录已存在: %s", settlement.SessionID)
	}
	cp := *settlement
	cp.SettledAt = null.TimeFrom(time.Now())
	f.records[settlement.SessionID] = &cp
	return nil
}

func (f *fakeSettlementRepo) UpsertPending(ctx context.Context, settlement *interfaces.CombatSettlement) error {
	existing, ok := f.records[settlement.SessionID]
	if ok && existing.Status == interfaces.SettlementStatusSettled {
		return nil
	}
	cp := *settlement
	f.records[settlement.SessionID] = &cp
	return nil
}

func (f *fakeSettlementRepo) MarkSettled(ctx context.Context, tx boil.ContextExecutor, sessionID string) error {
	record, ok := f.records[sessionID]
	if !ok || record.Status != interfaces.SettlementStatusPending {
		return fmt.Errorf("待重试结算记录不存在: %s", sessionID)
	}
	record.Status = interfaces.SettlementStatusSettled
	record.SettledAt = null.TimeFrom(time.Now())
	return nil
}

func (f *fakeSettlementRepo) ListPending(ctx context.Context, limit int) ([]*interfaces.CombatSettlement, error) {
	var out []*interfaces.CombatSettlement
	for _, record := range f.records {
		if record.Status == interfaces.SettlementStatusPending {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeWalletRepo struct {
	balances  map[string]int64
	failTimes int // 前 N 次调用返回错误，模拟瞬时存储故障
	calls     int
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{balances: make(map[string]int64)}
}

func (f *fakeWalletRepo) AddGold(ctx context.Context, playerID string, amount int64) error {
	return f.AddGoldTx(ctx, nil, playerID, amount)
}

func (f *fakeWalletRepo) AddGoldTx(ctx context.Context, tx boil.ContextExecutor, playerID string, amount int64) error {
	f.calls++
	if f.calls <= f.failTimes {
		return fmt.Errorf("更新玩家钱包失败: 连接中断")
	}
	f.balances[playerID] += amount
	return nil
}

func (f *fakeWalletRepo) GetBalance(ctx context.Context, playerID string) (int64, error) {
	return f.balances[playerID], nil
}

type fakeInventoryRepo struct {
	materials map[string]int64 // player|material|style -> quantity
	items     []*interfaces.PlayerItem
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{materials: make(map[string]int64)}
}

func (f *fakeInventoryRepo) AddMaterialTx(ctx context.Context, tx boil.ContextExecutor, playerID, materialID, style string, quantity int64) error {
	f.materials[playerID+"|"+materialID+"|"+style] += quantity
	return nil
}

func (f *fakeInventoryRepo) InsertItemTx(ctx context.Context, tx boil.ContextExecutor, item *interfaces.PlayerItem) error {
	cp := *item
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeInventoryRepo) ListMaterials(ctx context.Context, playerID string) ([]*interfaces.MaterialStack, error) {
	return nil, nil
}

func (f *fakeInventoryRepo) ListItemsBySession(ctx context.Context, sessionID string) ([]*interfaces.PlayerItem, error) {
	var out []*interfaces.PlayerItem
	for _, item := range f.items {
		if item.SourceSessionID.String == sessionID {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeStatsRepo struct {
	results []string
	stats   map[string]*interfaces.LocationCombatStats
}

func (f *fakeStatsRepo) RecordResultTx(ctx context.Context, tx boil.ContextExecutor, playerID, locationID, result string, endedAt time.Time) error {
	f.results = append(f.results, result)

	if f.stats == nil {
		f.stats = make(map[string]*interfaces.LocationCombatStats)
	}
	key := playerID + "|" + locationID
	agg, ok := f.stats[key]
	if !ok {
		agg = &interfaces.LocationCombatStats{PlayerID: playerID, LocationID: locationID}
		f.stats[key] = agg
	}
	agg.Attempts++
	switch result {
	case interfaces.SessionStatusVictory:
		agg.Victories++
		if agg.CurrentStreak < 0 {
			agg.CurrentStreak = 0
		}
		agg.CurrentStreak++
		if agg.CurrentStreak > agg.BestStreak {
			agg.BestStreak = agg.CurrentStreak
		}
	case interfaces.SessionStatusDefeat:
		agg.Defeats++
		if agg.CurrentStreak > 0 {
			agg.CurrentStreak = 0
		}
		agg.CurrentStreak--
	}
	agg.LastResult = null.StringFrom(result)
	agg.LastCombatAt = null.TimeFrom(endedAt)
	return nil
}

func (f *fakeStatsRepo) GetByPlayerLocation(ctx context.Context, playerID, locationID string) (*interfaces.LocationCombatStats, error) {
	agg, ok := f.stats[playerID+"|"+locationID]
	if !ok {
		return nil, nil
	}
	cp := *agg
	return &cp, nil
}

type fakeEnemyRepo struct {
	enemy *interfaces.Enemy
}

func (f *fakeEnemyRepo) GetByID(ctx context.Context, enemyID string) (*interfaces.Enemy, error) {
	if f.enemy != nil && f.enemy.ID == enemyID {
		cp := *f.enemy
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeEnemyRepo) GetForLocation(ctx context.Context, locationID string, combatLevel int) (*interfaces.Enemy, error) {
	if f.enemy == nil {
		return nil, nil
	}
	cp := *f.enemy
	return &cp, nil
}

type fakeEquipmentRepo struct {
	items  []*interfaces.EquippedItem
	weapon *interfaces.Weapon
}

func (f *fakeEquipmentRepo) ListByPlayer(ctx context.Context, playerID string) ([]*interfaces.EquippedItem, error) {
	return f.items, nil
}

func (f *fakeEquipmentRepo) GetWeapon(ctx context.Context, weaponID string) (*interfaces.Weapon, error) {
	if f.weapon != nil && f.weapon.ID == weaponID {
		cp := *f.weapon
		return &cp, nil
	}
	return nil, nil
}

type fakeLootPoolRepo struct {
	pools   []*interfaces.LootPool
	entries map[string][]*interfaces.LootPoolEntry
}

func (f *fakeLootPoolRepo) GetEligiblePools(ctx context.Context, q interfaces.LootQuery) ([]*interfaces.LootPool, error) {
	return f.pools, nil
}

func (f *fakeLootPoolRepo) GetPoolEntries(ctx context.Context, poolID string) ([]*interfaces.LootPoolEntry, error) {
	return f.entries[poolID], nil
}
