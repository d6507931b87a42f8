package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"wander-self/internal/pkg/xerrors"
	"wander-self/internal/repository/interfaces"
)

type combatFixture struct {
	svc         *CombatService
	settlement  *SettlementService
	sessions    *fakeSessionRepo
	settlements *fakeSettlementRepo
	wallet      *fakeWalletRepo
	inventory   *fakeInventoryRepo
	stats       *fakeStatsRepo
	enemies     *fakeEnemyRepo
	equipment   *fakeEquipmentRepo
	loot        *fakeLootPoolRepo
	mock        sqlmock.Sqlmock
}

func newCombatFixture(t *testing.T) *combatFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &combatFixture{
		sessions:    newFakeSessionRepo(),
		settlements: newFakeSettlementRepo(),
		wallet:      newFakeWalletRepo(),
		inventory:   newFakeInventoryRepo(),
		stats:       &fakeStatsRepo{},
		enemies:     &fakeEnemyRepo{enemy: testEnemy()},
		equipment:   &fakeEquipmentRepo{},
		loot:        &fakeLootPoolRepo{},
		mock:        mock,
	}
	f.settlement = NewSettlementService(
		db, f.sessions, f.settlements, f.wallet, f.inventory, f.stats,
		nil, nil, "combat-test",
	)
	f.settlement.baseBackoff = time.Millisecond
	f.svc = NewCombatService(
		db, f.sessions, f.enemies, f.equipment,
		NewStatService(f.equipment), NewTimingService(), NewLootService(f.loot, rand.NewSource(7)),
		f.settlement, nil, nil, nil, "combat-test",
	)
	return f
}

// seedSession 种入一个进行中的会话：双方攻防 100/精度 80，基础伤害恰为 15。
func (f *combatFixture) seedSession(mod func(*interfaces.CombatSession)) *interfaces.CombatSession {
	session := &interfaces.CombatSession{
		ID:           "session-1",
		PlayerID:     "player-1",
		LocationID:   "location-1",
		EnemyID:      "enemy-1",
		CombatLevel:  3,
		Status:       interfaces.SessionStatusActive,
		CurrentTurn:  1,
		CurrentOwner: interfaces.TurnOwnerPlayer,
		PlayerHP:     100,
		PlayerMaxHP:  100,
		EnemyHP:      80,
		EnemyMaxHP:   80,
		PlayerStats:  interfaces.StatVector{AttackPower: 100, AttackAccuracy: 80, DefensePower: 100, DefenseAccuracy: 80},
		EnemyStats:   interfaces.StatVector{AttackPower: 100, AttackAccuracy: 80, DefensePower: 100, DefenseAccuracy: 80},
		ExpiresAt:    time.Now().Add(time.Hour),
		CreatedAt:    time.Now(),
	}
	if mod != nil {
		mod(session)
	}
	f.sessions.put(session)
	return session
}

func requireCode(t *testing.T, err error, code xerrors.ErrorCode) {
	t.Helper()
	var appErr *xerrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}

func TestAttackCritMatchesDamageModel(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// 角度 350 落在 crit 段：伤害 = 15 × (0.5 + 0.5×1.6/1.6) = 15
	result, err := f.svc.Attack(context.Background(), "player-1", "session-1", 350, 1)
	require.NoError(t, err)
	require.Equal(t, BandCrit, result.Band)
	require.InDelta(t, 1.6, result.Multiplier, 1e-9)
	require.Equal(t, 15, result.DamageDealt)
	require.Equal(t, 65, result.EnemyHP)
	require.Equal(t, 1, result.Turn)
	require.Equal(t, interfaces.SessionStatusActive, result.Status)
	require.Equal(t, interfaces.TurnOwnerEnemy, result.NextOwner)

	stored, err := f.sessions.GetByID(context.Background(), "session-1")
	require.NoError(t, err)
	require.Equal(t, 2, stored.CurrentTurn)
	require.Equal(t, interfaces.TurnOwnerEnemy, stored.CurrentOwner)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttackMissDealsNoDamage(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.Attack(context.Background(), "player-1", "session-1", 10, 1)
	require.NoError(t, err)
	require.Equal(t, BandMiss, result.Band)
	require.Zero(t, result.DamageDealt)
	require.Equal(t, 80, result.EnemyHP)
	require.Equal(t, 100, result.PlayerHP)
}

func TestAttackInjureHurtsSelf(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// injure 段反噬：15 × 0.5 = 7.5，四舍五入 8
	result, err := f.svc.Attack(context.Background(), "player-1", "session-1", 0.5, 1)
	require.NoError(t, err)
	require.Equal(t, BandInjure, result.Band)
	require.Equal(t, 8, result.SelfDamage)
	require.Equal(t, 92, result.PlayerHP)
	require.Equal(t, 80, result.EnemyHP)
}

func TestDefendGrazeBlocksPartOfHit(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(func(s *interfaces.CombatSession) {
		s.CurrentOwner = interfaces.TurnOwnerEnemy
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// graze 段格挡：15 × 0.6 = 9 被挡下，剩余 6 落在玩家身上
	result, err := f.svc.Defend(context.Background(), "player-1", "session-1", 70, 1)
	require.NoError(t, err)
	require.Equal(t, BandGraze, result.Band)
	require.Equal(t, 9, result.DamageBlocked)
	require.Equal(t, 6, result.DamageDealt)
	require.Equal(t, 94, result.PlayerHP)
	require.Equal(t, interfaces.TurnOwnerPlayer, result.NextOwner)
}

func TestAttackRejectsStaleTurn(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Attack(context.Background(), "player-1", "session-1", 350, 5)
	requireCode(t, err, xerrors.CodeStaleTurn)
}

func TestAttackRejectsWrongTurnOwner(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(func(s *interfaces.CombatSession) {
		s.CurrentOwner = interfaces.TurnOwnerEnemy
	})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Attack(context.Background(), "player-1", "session-1", 350, 1)
	requireCode(t, err, xerrors.CodeWrongTurnAction)
}

func TestAttackRejectsExpiredSession(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(func(s *interfaces.CombatSession) {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Attack(context.Background(), "player-1", "session-1", 350, 1)
	requireCode(t, err, xerrors.CodeCombatSessionExpired)
}

func TestAttackRejectsUnknownSession(t *testing.T) {
	f := newCombatFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Attack(context.Background(), "player-1", "missing", 350, 1)
	requireCode(t, err, xerrors.CodeCombatSessionNotFound)
}

func TestAttackRejectsOtherPlayersSession(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Attack(context.Background(), "player-2", "session-1", 350, 1)
	requireCode(t, err, xerrors.CodeCombatSessionNotFound)
}

func TestAttackRejectsInvalidAngle(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)

	_, err := f.svc.Attack(context.Background(), "player-1", "session-1", 360, 1)
	requireCode(t, err, xerrors.CodeInvalidHitAngle)
	_, err = f.svc.Attack(context.Background(), "player-1", "session-1", -1, 1)
	requireCode(t, err, xerrors.CodeInvalidHitAngle)
}

func TestVictorySettlesExactlyOnce(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(func(s *interfaces.CombatSession) {
		s.EnemyHP = 10
	})
	// 会话事务 + 结算事务
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.Attack(context.Background(), "player-1", "session-1", 350, 1)
	require.NoError(t, err)
	require.Equal(t, interfaces.SessionStatusVictory, result.Status)
	require.Zero(t, result.EnemyHP)
	require.NotNil(t, result.Reward)
	require.Positive(t, result.Reward.Gold)
	require.Equal(t, interfaces.SettlementStatusSettled, result.SettlementStatus)

	// 结算落账后奖励包携带该地点的战斗历史聚合
	require.NotNil(t, result.Reward.History)
	require.EqualValues(t, 1, result.Reward.History.Attempts)
	require.EqualValues(t, 1, result.Reward.History.Victories)
	require.EqualValues(t, 1, result.Reward.History.CurrentStreak)
	require.EqualValues(t, 1, result.Reward.History.BestStreak)

	// 金币恰好入账一次，结算记录存在，历史已记录，会话已归档
	require.Equal(t, result.Reward.Gold, f.wallet.balances["player-1"])
	record, err := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, interfaces.SettlementStatusSettled, record.Status)
	require.Equal(t, []string{interfaces.SessionStatusVictory}, f.stats.results)
	require.True(t, f.sessions.archived["session-1"])

	// 终态会话上的再次攻击拿到冲突错误，而不是第二次胜利
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Attack(context.Background(), "player-1", "session-1", 350, 2)
	requireCode(t, err, xerrors.CodeCombatSessionEnded)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDefeatEndsSessionWithoutLoot(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(func(s *interfaces.CombatSession) {
		s.CurrentOwner = interfaces.TurnOwnerEnemy
		s.PlayerHP = 10
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// miss 段防御：敌方 15 点基础伤害全额命中
	result, err := f.svc.Defend(context.Background(), "player-1", "session-1", 10, 1)
	require.NoError(t, err)
	require.Equal(t, interfaces.SessionStatusDefeat, result.Status)
	require.Zero(t, result.PlayerHP)
	require.NotNil(t, result.Reward)
	require.Zero(t, result.Reward.Gold)
	require.Empty(t, result.Reward.Materials)
	require.Empty(t, result.Reward.Items)
	require.Equal(t, []string{interfaces.SessionStatusDefeat}, f.stats.results)
}

func TestRetreatProducesReducedBundle(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.Retreat(context.Background(), "player-1", "session-1")
	require.NoError(t, err)
	require.Equal(t, interfaces.SessionStatusRetreat, result.Status)
	require.NotNil(t, result.Reward)
	require.Empty(t, result.Reward.Materials)
	require.Empty(t, result.Reward.Items)
	require.Equal(t, result.Reward.Gold, f.wallet.balances["player-1"])
	require.Equal(t, interfaces.SettlementStatusSettled, result.SettlementStatus)

	// 撤退后会话立刻不可再操作
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Attack(context.Background(), "player-1", "session-1", 350, 1)
	requireCode(t, err, xerrors.CodeCombatSessionEnded)
}

func TestAbandonForfeitsRewards(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.svc.Abandon(context.Background(), "player-1", "session-1")
	require.NoError(t, err)

	stored, err := f.sessions.GetByID(context.Background(), "session-1")
	require.NoError(t, err)
	require.Equal(t, interfaces.SessionStatusAbandoned, stored.Status)
	require.True(t, f.sessions.archived["session-1"])
	require.Zero(t, f.wallet.balances["player-1"])
	require.Empty(t, f.settlements.records)
}

func TestInitiateConflictsWithActiveSession(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(nil)

	_, err := f.svc.Initiate(context.Background(), "player-1", &InitiateCombatRequest{
		LocationID:  "location-1",
		CombatLevel: 3,
	})
	requireCode(t, err, xerrors.CodeCombatSessionConflict)
}

func TestInitiateCreatesSession(t *testing.T) {
	f := newCombatFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	view, err := f.svc.Initiate(context.Background(), "player-1", &InitiateCombatRequest{
		LocationID:   "location-1",
		LocationType: "park",
		CombatLevel:  3,
	})
	require.NoError(t, err)
	require.Equal(t, interfaces.SessionStatusActive, view.Status)
	require.Equal(t, 1, view.CurrentTurn)
	require.Equal(t, interfaces.TurnOwnerPlayer, view.CurrentOwner)
	require.Equal(t, view.PlayerMaxHP, view.PlayerHP)
	require.Equal(t, view.EnemyMaxHP, view.EnemyHP)
	require.Equal(t, statAllocationTotal, statSum(view.PlayerStats))
	require.Equal(t, statAllocationTotal, statSum(view.EnemyStats))
	require.InDelta(t, 360.0, bandsSum(view.AttackBands), 1e-9)

	stored, err := f.sessions.GetByID(context.Background(), view.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "park", stored.LocationType)
}

func TestInitiateRejectsBadLevel(t *testing.T) {
	f := newCombatFixture(t)
	_, err := f.svc.Initiate(context.Background(), "player-1", &InitiateCombatRequest{
		LocationID:  "location-1",
		CombatLevel: 0,
	})
	requireCode(t, err, xerrors.CodeInvalidParams)
}

func TestGetActiveReturnsNilWhenNone(t *testing.T) {
	f := newCombatFixture(t)
	view, err := f.svc.GetActive(context.Background(), "player-1")
	require.NoError(t, err)
	require.Nil(t, view)
}

func TestExpireSessionsSweepsWithoutRewards(t *testing.T) {
	f := newCombatFixture(t)
	f.seedSession(func(s *interfaces.CombatSession) {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	count, err := f.svc.ExpireSessions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	stored, err := f.sessions.GetByID(context.Background(), "session-1")
	require.NoError(t, err)
	require.Equal(t, interfaces.SessionStatusExpired, stored.Status)
	require.True(t, f.sessions.archived["session-1"])
	require.Zero(t, f.wallet.balances["player-1"])
	require.Empty(t, f.settlements.records)
}
