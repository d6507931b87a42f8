// Package service 聚合战斗服的业务服务实现，包含会话状态机、判定与结算逻辑。
package service

import (
	"context"
	"encoding/json"

	"wander-self/internal/pkg/xerrors"
	"wander-self/internal/repository/interfaces"
)

// 四维属性归一化后的总点数，代表 100% 的属性分配。
const statAllocationTotal = 400

// 没有装备时的裸装基础属性。
var defaultBaseStats = interfaces.StatVector{
	AttackPower:     100,
	AttackAccuracy:  100,
	DefensePower:    100,
	DefenseAccuracy: 100,
}

// 稀有度乘数，common 为基准。
var rarityMultipliers = map[string]float64{
	"common":    1.00,
	"uncommon":  1.10,
	"rare":      1.20,
	"epic":      1.35,
	"legendary": 1.50,
}

// StatService 属性聚合服务，纯函数，同样的输入永远得到同样的输出。
// 实时战斗的属性快照和预览接口复用同一套计算。
type StatService struct {
	equipmentRepo interfaces.EquipmentRepository
}

// NewStatService 创建属性聚合服务
func NewStatService(equipmentRepo interfaces.EquipmentRepository) *StatService {
	return &StatService{equipmentRepo: equipmentRepo}
}

// AggregatePlayerStats 查询玩家装备并计算有效属性快照。
func (s *StatService) AggregatePlayerStats(ctx context.Context, playerID string, level int) (interfaces.StatVector, error) {
	if level < 1 {
		return interfaces.StatVector{}, xerrors.New(xerrors.CodeInvalidParams, "战斗等级必须为正")
	}
	items, err := s.equipmentRepo.ListByPlayer(ctx, playerID)
	if err != nil {
		return interfaces.StatVector{}, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询玩家装备失败")
	}
	return AggregateStats(defaultBaseStats, level, items), nil
}

// AggregateStats 合成有效属性：基础属性按等级缩放，装备属性按稀有度加成，
// 材料修正值累加，最终归一化到固定总点数，防止材料堆叠导致无上界成长。
func AggregateStats(base interfaces.StatVector, level int, items []*interfaces.EquippedItem) interfaces.StatVector {
	scale := levelScale(level)
	attack := float64(base.AttackPower) * scale
	accuracy := float64(base.AttackAccuracy) * scale
	defense := float64(base.DefensePower) * scale
	defAccuracy := float64(base.DefenseAccuracy) * scale

	for _, item := range items {
		if item == nil {
			continue
		}
		mult, ok := rarityMultipliers[item.Rarity]
		if !ok {
			mult = 1.0
		}
		attack += float64(item.BaseStats.AttackPower) * mult
		accuracy += float64(item.BaseStats.AttackAccuracy) * mult
		defense += float64(item.BaseStats.DefensePower) * mult
		defAccuracy += float64(item.BaseStats.DefenseAccuracy) * mult

		// 材料修正是已应用材料的累加增量
		if len(item.Modifiers) > 0 {
			var modifiers map[string]float64
			if err := json.Unmarshal(item.Modifiers, &modifiers); err == nil {
				attack += modifiers["attack_power"]
				accuracy += modifiers["attack_accuracy"]
				defense += modifiers["defense_power"]
				defAccuracy += modifiers["defense_accuracy"]
			}
		}
	}

	return normalizeStats(attack, accuracy, defense, defAccuracy)
}

// ScaleEnemyStats 敌人属性按战斗等级缩放并叠加梯级加成，再走同一套归一化。
func ScaleEnemyStats(base interfaces.StatVector, combatLevel int) interfaces.StatVector {
	if combatLevel < 1 {
		combatLevel = 1
	}
	scale := levelScale(combatLevel)
	tierBonus := float64((combatLevel - 1) * 2)
	return normalizeStats(
		float64(base.AttackPower)*scale+tierBonus,
		float64(base.AttackAccuracy)*scale+tierBonus,
		float64(base.DefensePower)*scale+tierBonus,
		float64(base.DefenseAccuracy)*scale+tierBonus,
	)
}

// ScaleEnemyMaxHP 敌人血量上限随战斗等级线性增长。
func ScaleEnemyMaxHP(baseMaxHP, combatLevel int) int {
	if combatLevel < 1 {
		combatLevel = 1
	}
	return int(float64(baseMaxHP) * (1 + 0.10*float64(combatLevel-1)))
}

// PlayerMaxHP 玩家血量上限随战斗等级线性增长。
func PlayerMaxHP(combatLevel int) int {
	if combatLevel < 1 {
		combatLevel = 1
	}
	return 100 + 10*combatLevel
}

func levelScale(level int) float64 {
	if level < 1 {
		level = 1
	}
	return 1 + 0.04*float64(level-1)
}

// normalizeStats 把四维缩放到固定总点数，最大余数法保证整数和恰好等于总点数。
func normalizeStats(attack, accuracy, defense, defAccuracy float64) interfaces.StatVector {
	values := [4]float64{attack, accuracy, defense, defAccuracy}
	sum := 0.0
	for i, v := range values {
		if v < 0 {
			values[i] = 0
			continue
		}
		sum += v
	}
	if sum <= 0 {
		quarter := statAllocationTotal / 4
		return interfaces.StatVector{
			AttackPower:     quarter,
			AttackAccuracy:  quarter,
			DefensePower:    quarter,
			DefenseAccuracy: quarter,
		}
	}

	var ints [4]int
	var fracs [4]float64
	total := 0
	for i, v := range values {
		scaled := v / sum * statAllocationTotal
		ints[i] = int(scaled)
		fracs[i] = scaled - float64(ints[i])
		total += ints[i]
	}
	// 余数按小数部分从大到小补齐
	for total < statAllocationTotal {
		best := 0
		for i := 1; i < 4; i++ {
			if fracs[i] > fracs[best] {
				best = i
			}
		}
		ints[best]++
		fracs[best] = -1
		total++
	}

	return interfaces.StatVector{
		AttackPower:     ints[0],
		AttackAccuracy:  ints[1],
		DefensePower:    ints[2],
		DefenseAccuracy: ints[3],
	}
}
