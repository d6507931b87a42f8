package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"wander-self/internal/pkg/xerrors"
	"wander-self/internal/repository/interfaces"
)

// MaterialDrop 一次掉落的材料，每次掉落固定一个单位。
type MaterialDrop struct {
	MaterialID string `json:"material_id"`
	Style      string `json:"style,omitempty"`
}

// ItemDrop 一次掉落的物品。
type ItemDrop struct {
	ItemID string `json:"item_id"`
	Style  string `json:"style,omitempty"`
}

// CombatHistory 玩家在会话地点的战斗历史聚合，结算落账后随奖励包返回。
type CombatHistory struct {
	Attempts      int64 `json:"attempts"`
	Victories     int64 `json:"victories"`
	Defeats       int64 `json:"defeats"`
	CurrentStreak int64 `json:"current_streak"` // 连胜为正，连败为负
	BestStreak    int64 `json:"best_streak"`
}

// RewardBundle 终态会话的奖励包，掉落部分由掉落服务一次性生成，之后不再变更。
// History 只在结算记录落库之后由结算服务回填，持久化的奖励包里不含它。
type RewardBundle struct {
	Gold       int64          `json:"gold"`
	Experience int64          `json:"experience"`
	Materials  []MaterialDrop `json:"materials"`
	Items      []ItemDrop     `json:"items"`
	History    *CombatHistory `json:"history,omitempty"`
}

// LootService 掉落生成服务。除注入的随机源外是纯函数，
// 测试时传入固定种子即可得到可复现的掉落序列。
type LootService struct {
	lootPoolRepo interfaces.LootPoolRepository

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLootService 创建掉落服务，source 为 nil 时使用时间种子。
func NewLootService(lootPoolRepo interfaces.LootPoolRepository, source rand.Source) *LootService {
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	return &LootService{
		lootPoolRepo: lootPoolRepo,
		rng:          rand.New(source),
	}
}

// Generate 生成胜利奖励包：按地点上下文与战斗等级筛选掉落池，
// 每个池内按权重不放回抽取，材料与物品分类别抽取。
// 金币区间独立于掉落池；没有任何池匹配时回退为纯金币奖励。
func (s *LootService) Generate(ctx context.Context, q interfaces.LootQuery, enemy *interfaces.Enemy) (*RewardBundle, error) {
	if enemy == nil {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "敌人配置不能为空")
	}

	bundle := &RewardBundle{
		Gold:       s.rollGold(enemy.GoldMin, enemy.GoldMax),
		Experience: int64(q.CombatLevel) * 25,
		Materials:  []MaterialDrop{},
		Items:      []ItemDrop{},
	}

	pools, err := s.lootPoolRepo.GetEligiblePools(ctx, q)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询掉落池失败")
	}
	if len(pools) == 0 {
		// 奖励包永远不为空，至少有金币
		return bundle, nil
	}

	for _, pool := range pools {
		entries, err := s.lootPoolRepo.GetPoolEntries(ctx, pool.ID)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "查询掉落条目失败")
		}

		var materials, items []*interfaces.LootPoolEntry
		for _, entry := range entries {
			switch entry.Category {
			case interfaces.LootCategoryMaterial:
				materials = append(materials, entry)
			case interfaces.LootCategoryItem:
				items = append(items, entry)
			}
		}

		for _, entry := range s.drawFromEntries(materials) {
			for i := 0; i < entry.Quantity; i++ {
				bundle.Materials = append(bundle.Materials, MaterialDrop{
					MaterialID: entry.RefID,
					Style:      entry.Style.String,
				})
			}
		}
		for _, entry := range s.drawFromEntries(items) {
			for i := 0; i < entry.Quantity; i++ {
				bundle.Items = append(bundle.Items, ItemDrop{
					ItemID: entry.RefID,
					Style:  entry.Style.String,
				})
			}
		}
	}

	return bundle, nil
}

// GenerateRetreat 撤退奖励包：少量金币与经验，没有材料和物品。
func (s *LootService) GenerateRetreat(combatLevel int, enemy *interfaces.Enemy) *RewardBundle {
	var gold int64
	if enemy != nil {
		gold = s.rollGold(enemy.GoldMin, enemy.GoldMax) / 4
	}
	return &RewardBundle{
		Gold:       gold,
		Experience: int64(combatLevel) * 5,
		Materials:  []MaterialDrop{},
		Items:      []ItemDrop{},
	}
}

// drawFromEntries 对一个类别的条目做不放回抽取。
// 带固定掉率的条目各自独立判定；其余条目按权重抽取一到两件。
func (s *LootService) drawFromEntries(entries []*interfaces.LootPoolEntry) []*interfaces.LootPoolEntry {
	if len(entries) == 0 {
		return nil
	}

	var selected []*interfaces.LootPoolEntry
	var weighted []*interfaces.LootPoolEntry
	for _, entry := range entries {
		if !entry.DropRate.IsZero() {
			// 固定掉率覆盖权重抽取
			rate, _ := entry.DropRate.Float64()
			if s.randFloat() < rate {
				selected = append(selected, entry)
			}
			continue
		}
		weighted = append(weighted, entry)
	}

	drawCount := 1 + s.randIntn(2)
	for i := 0; i < drawCount && len(weighted) > 0; i++ {
		idx := s.drawWeightedIndex(weighted)
		if idx < 0 {
			break
		}
		selected = append(selected, weighted[idx])
		// 不放回
		weighted = append(weighted[:idx], weighted[idx+1:]...)
	}
	return selected
}

func (s *LootService) drawWeightedIndex(entries []*interfaces.LootPoolEntry) int {
	totalWeight := 0
	for _, entry := range entries {
		if entry.Weight > 0 {
			totalWeight += entry.Weight
		}
	}
	if totalWeight == 0 {
		return -1
	}

	randomValue := s.randIntn(totalWeight)
	currentWeight := 0
	for i, entry := range entries {
		if entry.Weight <= 0 {
			continue
		}
		currentWeight += entry.Weight
		if randomValue < currentWeight {
			return i
		}
	}
	return -1
}

func (s *LootService) rollGold(goldMin, goldMax int64) int64 {
	if goldMin < 0 {
		goldMin = 0
	}
	if goldMax <= goldMin {
		return goldMin
	}
	return goldMin + s.randInt63n(goldMax-goldMin+1)
}

func (s *LootService) randFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *LootService) randIntn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *LootService) randInt63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63n(n)
}
