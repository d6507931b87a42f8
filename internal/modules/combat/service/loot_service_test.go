package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/aarondl/null/v8"
	"github.com/volatiletech/sqlboiler/v4/types"
	"github.com/ericlagergren/decimal"
	"github.com/stretchr/testify/require"

	"wander-self/internal/repository/interfaces"
)

func testEnemy() *interfaces.Enemy {
	return &interfaces.Enemy{
		ID:        "enemy-1",
		Name:      "测试敌人",
		BaseStats: interfaces.StatVector{AttackPower: 100, AttackAccuracy: 100, DefensePower: 100, DefenseAccuracy: 100},
		BaseMaxHP: 80,
		GoldMin:   20,
		GoldMax:   40,
		IsActive:  true,
	}
}

func TestGenerateFallsBackToGoldOnly(t *testing.T) {
	svc := NewLootService(&fakeLootPoolRepo{}, rand.NewSource(1))
	bundle, err := svc.Generate(context.Background(), interfaces.LootQuery{CombatLevel: 3}, testEnemy())
	require.NoError(t, err)
	require.NotNil(t, bundle)
	// 没有掉落池匹配时奖励包也不为空
	require.GreaterOrEqual(t, bundle.Gold, int64(20))
	require.LessOrEqual(t, bundle.Gold, int64(40))
	require.Empty(t, bundle.Materials)
	require.Empty(t, bundle.Items)
	require.EqualValues(t, 75, bundle.Experience)
}

func TestGenerateIsDeterministicWithSeed(t *testing.T) {
	repo := &fakeLootPoolRepo{
		pools: []*interfaces.LootPool{{ID: "pool-1", CombatLevel: 3}},
		entries: map[string][]*interfaces.LootPoolEntry{
			"pool-1": {
				{ID: "e1", PoolID: "pool-1", Category: interfaces.LootCategoryMaterial, RefID: "mat-iron", Weight: 10, Quantity: 1},
				{ID: "e2", PoolID: "pool-1", Category: interfaces.LootCategoryMaterial, RefID: "mat-wood", Weight: 10, Quantity: 1},
				{ID: "e3", PoolID: "pool-1", Category: interfaces.LootCategoryItem, RefID: "item-sword", Weight: 5, Quantity: 1},
			},
		},
	}
	q := interfaces.LootQuery{CombatLevel: 3}

	first, err := NewLootService(repo, rand.NewSource(42)).Generate(context.Background(), q, testEnemy())
	require.NoError(t, err)
	second, err := NewLootService(repo, rand.NewSource(42)).Generate(context.Background(), q, testEnemy())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGenerateDrawsWithoutReplacement(t *testing.T) {
	repo := &fakeLootPoolRepo{
		pools: []*interfaces.LootPool{{ID: "pool-1", CombatLevel: 1}},
		entries: map[string][]*interfaces.LootPoolEntry{
			"pool-1": {
				{ID: "e1", PoolID: "pool-1", Category: interfaces.LootCategoryMaterial, RefID: "mat-a", Weight: 1, Quantity: 1},
				{ID: "e2", PoolID: "pool-1", Category: interfaces.LootCategoryMaterial, RefID: "mat-b", Weight: 1, Quantity: 1},
			},
		},
	}

	// 任何种子下同一条目最多抽中一次
	for seed := int64(0); seed < 20; seed++ {
		svc := NewLootService(repo, rand.NewSource(seed))
		bundle, err := svc.Generate(context.Background(), interfaces.LootQuery{CombatLevel: 1}, testEnemy())
		require.NoError(t, err)

		seen := map[string]int{}
		for _, m := range bundle.Materials {
			seen[m.MaterialID]++
		}
		for id, count := range seen {
			require.LessOrEqual(t, count, 1, "seed=%d material=%s", seed, id)
		}
	}
}

func TestGenerateHonorsDropRateOverride(t *testing.T) {
	always := types.NewNullDecimal(decimal.New(1, 0))
	never := types.NewNullDecimal(decimal.New(0, 0))
	repo := &fakeLootPoolRepo{
		pools: []*interfaces.LootPool{{ID: "pool-1", CombatLevel: 1}},
		entries: map[string][]*interfaces.LootPoolEntry{
			"pool-1": {
				{ID: "e1", PoolID: "pool-1", Category: interfaces.LootCategoryMaterial, RefID: "mat-sure", DropRate: always, Quantity: 1},
				{ID: "e2", PoolID: "pool-1", Category: interfaces.LootCategoryMaterial, RefID: "mat-none", DropRate: never, Quantity: 1},
			},
		},
	}

	for seed := int64(0); seed < 10; seed++ {
		svc := NewLootService(repo, rand.NewSource(seed))
		bundle, err := svc.Generate(context.Background(), interfaces.LootQuery{CombatLevel: 1}, testEnemy())
		require.NoError(t, err)

		var sure, none int
		for _, m := range bundle.Materials {
			switch m.MaterialID {
			case "mat-sure":
				sure++
			case "mat-none":
				none++
			}
		}
		require.Equal(t, 1, sure, "seed=%d", seed)
		require.Zero(t, none, "seed=%d", seed)
	}
}

func TestGenerateCarriesStyle(t *testing.T) {
	always := types.NewNullDecimal(decimal.New(1, 0))
	repo := &fakeLootPoolRepo{
		pools: []*interfaces.LootPool{{ID: "pool-1", CombatLevel: 1}},
		entries: map[string][]*interfaces.LootPoolEntry{
			"pool-1": {
				{ID: "e1", PoolID: "pool-1", Category: interfaces.LootCategoryMaterial, RefID: "mat-cloth", Style: null.StringFrom("floral"), DropRate: always, Quantity: 2},
			},
		},
	}
	svc := NewLootService(repo, rand.NewSource(1))
	bundle, err := svc.Generate(context.Background(), interfaces.LootQuery{CombatLevel: 1}, testEnemy())
	require.NoError(t, err)
	// quantity=2 的条目产出两份单件掉落
	require.Len(t, bundle.Materials, 2)
	for _, m := range bundle.Materials {
		require.Equal(t, "mat-cloth", m.MaterialID)
		require.Equal(t, "floral", m.Style)
	}
}

func TestGenerateRetreatHasNoDrops(t *testing.T) {
	svc := NewLootService(&fakeLootPoolRepo{}, rand.NewSource(1))
	bundle := svc.GenerateRetreat(4, testEnemy())
	require.Empty(t, bundle.Materials)
	require.Empty(t, bundle.Items)
	require.EqualValues(t, 20, bundle.Experience)
	require.LessOrEqual(t, bundle.Gold, int64(10)) // 最多为上限的四分之一
}

func TestGenerateRejectsNilEnemy(t *testing.T) {
	svc := NewLootService(&fakeLootPoolRepo{}, rand.NewSource(1))
	_, err := svc.Generate(context.Background(), interfaces.LootQuery{CombatLevel: 1}, nil)
	require.Error(t, err)
}
