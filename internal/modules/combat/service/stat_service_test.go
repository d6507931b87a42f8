package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"wander-self/internal/repository/interfaces"
)

func statSum(v interfaces.StatVector) int {
	return v.AttackPower + v.AttackAccuracy + v.DefensePower + v.DefenseAccuracy
}

func TestAggregateStatsNormalizesToFixedTotal(t *testing.T) {
	base := interfaces.StatVector{AttackPower: 120, AttackAccuracy: 80, DefensePower: 90, DefenseAccuracy: 60}
	for _, level := range []int{1, 5, 20, 100} {
		stats := AggregateStats(base, level, nil)
		require.Equal(t, statAllocationTotal, statSum(stats), "level=%d", level)
	}
}

func TestAggregateStatsIsDeterministic(t *testing.T) {
	base := interfaces.StatVector{AttackPower: 100, AttackAccuracy: 100, DefensePower: 100, DefenseAccuracy: 100}
	items := []*interfaces.EquippedItem{
		{
			Rarity:    "rare",
			BaseStats: interfaces.StatVector{AttackPower: 30, AttackAccuracy: 10},
		},
	}
	first := AggregateStats(base, 7, items)
	second := AggregateStats(base, 7, items)
	require.Equal(t, first, second)
}

func TestAggregateStatsRarityShiftsAllocation(t *testing.T) {
	base := interfaces.StatVector{AttackPower: 100, AttackAccuracy: 100, DefensePower: 100, DefenseAccuracy: 100}
	attackItem := func(rarity string) []*interfaces.EquippedItem {
		return []*interfaces.EquippedItem{
			{Rarity: rarity, BaseStats: interfaces.StatVector{AttackPower: 100}},
		}
	}

	common := AggregateStats(base, 1, attackItem("common"))
	legendary := AggregateStats(base, 1, attackItem("legendary"))
	// 稀有度只放大装备自身的属性，归一化后攻击占比更高
	require.Greater(t, legendary.AttackPower, common.AttackPower)
	require.Equal(t, statAllocationTotal, statSum(legendary))
}

func TestAggregateStatsAppliesMaterialModifiers(t *testing.T) {
	base := interfaces.StatVector{AttackPower: 100, AttackAccuracy: 100, DefensePower: 100, DefenseAccuracy: 100}
	modifiers, err := json.Marshal(map[string]float64{"attack_accuracy": 200})
	require.NoError(t, err)

	without := AggregateStats(base, 1, nil)
	with := AggregateStats(base, 1, []*interfaces.EquippedItem{
		{Rarity: "common", Modifiers: modifiers},
	})
	require.Greater(t, with.AttackAccuracy, without.AttackAccuracy)
	require.Equal(t, statAllocationTotal, statSum(with))
}

func TestAggregateStatsMaterialStackingStaysBounded(t *testing.T) {
	base := interfaces.StatVector{AttackPower: 100, AttackAccuracy: 100, DefensePower: 100, DefenseAccuracy: 100}
	modifiers, err := json.Marshal(map[string]float64{"attack_power": 100000})
	require.NoError(t, err)

	stats := AggregateStats(base, 1, []*interfaces.EquippedItem{
		{Rarity: "common", Modifiers: modifiers},
	})
	// 堆叠再多材料，总点数也不会突破固定分配
	require.Equal(t, statAllocationTotal, statSum(stats))
}

func TestScaleEnemyStatsNormalized(t *testing.T) {
	base := interfaces.StatVector{AttackPower: 90, AttackAccuracy: 70, DefensePower: 110, DefenseAccuracy: 50}
	for _, level := range []int{1, 10, 50} {
		stats := ScaleEnemyStats(base, level)
		require.Equal(t, statAllocationTotal, statSum(stats), "level=%d", level)
	}
}

func TestScaleEnemyMaxHPGrowsWithLevel(t *testing.T) {
	require.Equal(t, 100, ScaleEnemyMaxHP(100, 1))
	require.Greater(t, ScaleEnemyMaxHP(100, 10), ScaleEnemyMaxHP(100, 5))
}

func TestAggregatePlayerStatsRejectsBadLevel(t *testing.T) {
	svc := NewStatService(&fakeEquipmentRepo{})
	_, err := svc.AggregatePlayerStats(context.Background(), "player-1", 0)
	require.Error(t, err)
}

func TestAggregatePlayerStatsUsesEquippedItems(t *testing.T) {
	svc := NewStatService(&fakeEquipmentRepo{
		items: []*interfaces.EquippedItem{
			{Rarity: "epic", BaseStats: interfaces.StatVector{DefensePower: 80}},
		},
	})
	stats, err := svc.AggregatePlayerStats(context.Background(), "player-1", 3)
	require.NoError(t, err)
	require.Equal(t, statAllocationTotal, statSum(stats))

	bare, err := NewStatService(&fakeEquipmentRepo{}).AggregatePlayerStats(context.Background(), "player-1", 3)
	require.NoError(t, err)
	require.Greater(t, stats.DefensePower, bare.DefensePower)
}
