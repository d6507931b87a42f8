package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/require"

	"wander-self/internal/pkg/xerrors"
	"wander-self/internal/repository/interfaces"
)

func (f *combatFixture) seedVictorySession() *interfaces.CombatSession {
	return f.seedSession(func(s *interfaces.CombatSession) {
		s.Status = interfaces.SessionStatusVictory
		s.EnemyHP = 0
		s.EndedAt = null.TimeFrom(time.Now())
	})
}

func testBundle() *RewardBundle {
	return &RewardBundle{
		Gold:       50,
		Experience: 75,
		Materials:  []MaterialDrop{{MaterialID: "mat-iron", Style: "plain"}},
		Items:      []ItemDrop{{ItemID: "item-sword"}},
	}
}

func TestSettleAppliesAllRewardComponents(t *testing.T) {
	f := newCombatFixture(t)
	session := f.seedVictorySession()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.settlement.Settle(context.Background(), session, testBundle())
	require.NoError(t, err)

	require.EqualValues(t, 50, f.wallet.balances["player-1"])
	require.EqualValues(t, 1, f.inventory.materials["player-1|mat-iron|plain"])
	require.Len(t, f.inventory.items, 1)
	require.Equal(t, "item-sword", f.inventory.items[0].ItemID)
	require.Equal(t, "session-1", f.inventory.items[0].SourceSessionID.String)
	require.Equal(t, []string{interfaces.SessionStatusVictory}, f.stats.results)
	require.True(t, f.sessions.archived["session-1"])

	record, err := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, interfaces.SettlementStatusSettled, record.Status)
	require.EqualValues(t, 50, record.Gold)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newCombatFixture(t)
	session := f.seedVictorySession()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	// 第二次调用在幂等检查处提前返回，事务回滚
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	bundle := testBundle()
	require.NoError(t, f.settlement.Settle(context.Background(), session, bundle))
	require.NoError(t, f.settlement.Settle(context.Background(), session, bundle))

	// 金币只入账一次，历史只记一条
	require.EqualValues(t, 50, f.wallet.balances["player-1"])
	require.EqualValues(t, 1, f.inventory.materials["player-1|mat-iron|plain"])
	require.Len(t, f.inventory.items, 1)
	require.Equal(t, []string{interfaces.SessionStatusVictory}, f.stats.results)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSettleRetriesTransientFailure(t *testing.T) {
	f := newCombatFixture(t)
	session := f.seedVictorySession()
	f.wallet.failTimes = 1
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.settlement.Settle(context.Background(), session, testBundle())
	require.NoError(t, err)
	require.EqualValues(t, 50, f.wallet.balances["player-1"])

	record, err := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.Equal(t, interfaces.SettlementStatusSettled, record.Status)
	require.Equal(t, 2, record.Attempts)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSettleExhaustionPersistsPending(t *testing.T) {
	f := newCombatFixture(t)
	session := f.seedVictorySession()
	f.wallet.failTimes = 10
	for i := 0; i < f.settlement.maxAttempts; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
	}

	err := f.settlement.Settle(context.Background(), session, testBundle())
	requireCode(t, err, xerrors.CodeSettlementPending)

	// 奖励一分都没发，但奖励包完整落在 pending 记录里等待重放
	require.Zero(t, f.wallet.balances["player-1"])
	require.Empty(t, f.inventory.items)
	require.False(t, f.sessions.archived["session-1"])

	record, getErr := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, getErr)
	require.NotNil(t, record)
	require.Equal(t, interfaces.SettlementStatusPending, record.Status)
	require.EqualValues(t, 50, record.Gold)
	require.True(t, record.LastError.Valid)
	require.NotEmpty(t, record.Rewards)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRetryPendingReplaysStoredBundle(t *testing.T) {
	f := newCombatFixture(t)
	session := f.seedVictorySession()
	f.wallet.failTimes = f.settlement.maxAttempts
	for i := 0; i < f.settlement.maxAttempts; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
	}
	err := f.settlement.Settle(context.Background(), session, testBundle())
	requireCode(t, err, xerrors.CodeSettlementPending)

	// 存储恢复后后台任务从 pending 记录重建奖励包并落账
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	settled, err := f.settlement.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, settled)

	require.EqualValues(t, 50, f.wallet.balances["player-1"])
	require.EqualValues(t, 1, f.inventory.materials["player-1|mat-iron|plain"])
	require.Len(t, f.inventory.items, 1)
	require.True(t, f.sessions.archived["session-1"])

	record, err := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.Equal(t, interfaces.SettlementStatusSettled, record.Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSettleAttachesLocationHistory(t *testing.T) {
	f := newCombatFixture(t)
	session := f.seedVictorySession()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	bundle := testBundle()
	require.NoError(t, f.settlement.Settle(context.Background(), session, bundle))

	// 结算落账后奖励包携带该地点的历史聚合，含本场结果
	require.NotNil(t, bundle.History)
	require.EqualValues(t, 1, bundle.History.Attempts)
	require.EqualValues(t, 1, bundle.History.Victories)
	require.Zero(t, bundle.History.Defeats)
	require.EqualValues(t, 1, bundle.History.CurrentStreak)
	require.EqualValues(t, 1, bundle.History.BestStreak)

	// 聚合只随响应返回，不写进结算记录
	record, err := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.NotContains(t, string(record.Rewards), "history")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcileSettlesFromSessionPayload(t *testing.T) {
	f := newCombatFixture(t)
	payload, err := json.Marshal(testBundle())
	require.NoError(t, err)
	// pending 落库也失败后的残局：终态会话带奖励包，但没有任何结算记录
	f.seedSession(func(s *interfaces.CombatSession) {
		s.Status = interfaces.SessionStatusVictory
		s.EnemyHP = 0
		s.EndedAt = null.TimeFrom(time.Now())
		s.RewardPayload = payload
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	reconciled, err := f.settlement.ReconcileUnarchived(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, reconciled)

	require.EqualValues(t, 50, f.wallet.balances["player-1"])
	require.EqualValues(t, 1, f.inventory.materials["player-1|mat-iron|plain"])
	require.Equal(t, []string{interfaces.SessionStatusVictory}, f.stats.results)
	require.True(t, f.sessions.archived["session-1"])

	record, err := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, interfaces.SettlementStatusSettled, record.Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcileBackfillsArchive(t *testing.T) {
	f := newCombatFixture(t)
	payload, err := json.Marshal(testBundle())
	require.NoError(t, err)
	// 结算已落账但归档失败的残局
	f.seedSession(func(s *interfaces.CombatSession) {
		s.Status = interfaces.SessionStatusVictory
		s.EnemyHP = 0
		s.EndedAt = null.TimeFrom(time.Now())
		s.RewardPayload = payload
	})
	f.settlements.records["session-1"] = &interfaces.CombatSettlement{
		SessionID: "session-1",
		PlayerID:  "player-1",
		Status:    interfaces.SettlementStatusSettled,
		Gold:      50,
		SettledAt: null.TimeFrom(time.Now()),
	}
	// 幂等检查提前返回，事务回滚
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	reconciled, err := f.settlement.ReconcileUnarchived(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, reconciled)

	// 只补归档，奖励不重复发放
	require.True(t, f.sessions.archived["session-1"])
	require.Zero(t, f.wallet.balances["player-1"])
	require.Empty(t, f.stats.results)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcileArchivesRewardlessSession(t *testing.T) {
	f := newCombatFixture(t)
	// 放弃的会话没有奖励包，补偿只归档不结算
	f.seedSession(func(s *interfaces.CombatSession) {
		s.Status = interfaces.SessionStatusAbandoned
		s.EndedAt = null.TimeFrom(time.Now())
	})

	reconciled, err := f.settlement.ReconcileUnarchived(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, reconciled)

	require.True(t, f.sessions.archived["session-1"])
	require.Zero(t, f.wallet.balances["player-1"])
	record, err := f.settlements.GetBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.Nil(t, record)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSettleRejectsNonTerminalSession(t *testing.T) {
	f := newCombatFixture(t)
	session := f.seedSession(nil)

	err := f.settlement.Settle(context.Background(), session, testBundle())
	requireCode(t, err, xerrors.CodeInvalidParams)
	require.Zero(t, f.wallet.balances["player-1"])
}

func TestSettleRejectsNilInput(t *testing.T) {
	f := newCombatFixture(t)
	err := f.settlement.Settle(context.Background(), nil, testBundle())
	requireCode(t, err, xerrors.CodeInvalidParams)
	err = f.settlement.Settle(context.Background(), f.seedVictorySession(), nil)
	requireCode(t, err, xerrors.CodeInvalidParams)
}
