package service

import (
	"wander-self/internal/pkg/xerrors"
)

// 判定环分段名，顺序固定。
const (
	BandInjure = "injure"
	BandMiss   = "miss"
	BandGraze  = "graze"
	BandNormal = "normal"
	BandCrit   = "crit"
)

// 命中判定常量
const (
	baseInjureWidth = 5.0
	baseMissWidth   = 45.0
	baseGrazeWidth  = 60.0
	baseNormalWidth = 200.0
	baseCritWidth   = 50.0

	accuracyScaleMax = 0.40
	accuracyHalfway  = 80.0
	minNegativeWidth = 2.0

	fullCircle = 360.0
)

// 分段伤害乘数，injure 为负值表示自伤。
var bandMultipliers = map[string]float64{
	BandInjure: -0.5,
	BandMiss:   0,
	BandGraze:  0.6,
	BandNormal: 1.0,
	BandCrit:   1.6,
}

// bandOrder 分段在判定环上的固定顺序，累积区间按此展开。
var bandOrder = [5]string{BandInjure, BandMiss, BandGraze, BandNormal, BandCrit}

// HitBands 一次精度计算得到的五段宽度，和恰为 360 度。
type HitBands struct {
	Injure float64 `json:"injure"`
	Miss   float64 `json:"miss"`
	Graze  float64 `json:"graze"`
	Normal float64 `json:"normal"`
	Crit   float64 `json:"crit"`
}

func (b HitBands) widths() [5]float64 {
	return [5]float64{b.Injure, b.Miss, b.Graze, b.Normal, b.Crit}
}

// HitResult 单次点击的判定结果。
type HitResult struct {
	Band       string  `json:"band"`
	Multiplier float64 `json:"multiplier"`
}

// TimingService 把武器判定环与行动方精度映射成五段命中区间，
// 并把点击角度解析成唯一分段。纯函数，不访问外部状态。
// 武器的图案只影响客户端转速与弧段数量，不参与分段算法。
type TimingService struct{}

// NewTimingService 创建判定服务
func NewTimingService() *TimingService {
	return &TimingService{}
}

// ComputeBands 按精度计算五段宽度。
// 精度提高时负段（injure/miss）收窄、正段（graze/normal/crit）展宽；
// 负段最少保留 2 度，正段按比例缩放使总和恰为 360 度。
func (t *TimingService) ComputeBands(accuracy int) HitBands {
	if accuracy < 0 {
		accuracy = 0
	}
	acc := float64(accuracy)
	s := 1 + accuracyScaleMax*acc/(acc+accuracyHalfway)

	injure := baseInjureWidth / s
	if injure < minNegativeWidth {
		injure = minNegativeWidth
	}
	miss := baseMissWidth / s
	if miss < minNegativeWidth {
		miss = minNegativeWidth
	}

	graze := baseGrazeWidth * s
	normal := baseNormalWidth * s
	crit := baseCritWidth * s

	budget := fullCircle - injure - miss
	posSum := graze + normal + crit
	if budget <= 0 || posSum <= 0 {
		// 退化情形：正段均分剩余空间
		if budget < 0 {
			budget = 0
		}
		third := budget / 3
		return HitBands{Injure: injure, Miss: miss, Graze: third, Normal: third, Crit: third}
	}

	// 保持正段比例不变，总和精确补满 360 度
	ratio := budget / posSum
	return HitBands{
		Injure: injure,
		Miss:   miss,
		Graze:  graze * ratio,
		Normal: normal * ratio,
		Crit:   crit * ratio,
	}
}

// Resolve 把角度解析到唯一分段。区间按固定顺序累积，下界闭合，
// 落在边界上的角度归属右侧（被该边界开启的）分段。
func (t *TimingService) Resolve(angle float64, accuracy int) (HitResult, error) {
	if angle < 0 || angle >= fullCircle {
		return HitResult{}, xerrors.NewInvalidHitAngleError(angle)
	}
	bands := t.ComputeBands(accuracy)
	widths := bands.widths()

	cumulative := 0.0
	for i, name := range bandOrder {
		cumulative += widths[i]
		if angle < cumulative {
			return HitResult{Band: name, Multiplier: bandMultipliers[name]}, nil
		}
	}
	// 浮点累积误差兜底，360 度边界归最后一段
	last := bandOrder[len(bandOrder)-1]
	return HitResult{Band: last, Multiplier: bandMultipliers[last]}, nil
}

// MaxMultiplier 最高分段乘数，伤害公式用它把乘数归一化到 [0,1]。
func MaxMultiplier() float64 {
	return bandMultipliers[BandCrit]
}
