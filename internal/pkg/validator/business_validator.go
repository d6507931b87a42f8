package validator

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// BusinessValidator 业务规则验证器
type BusinessValidator struct {
	validator *validator.Validate
}

// NewBusinessValidator 创建新的业务验证器
func NewBusinessValidator() *BusinessValidator {
	v := validator.New()

	// 注册自定义验证规则
	v.RegisterValidation("hit_angle", validateHitAngle)
	v.RegisterValidation("combat_level", validateCombatLevel)
	v.RegisterValidation("turn_number", validateTurnNumber)
	v.RegisterValidation("loot_scope", validateLootScope)
	v.RegisterValidation("safe_description", validateSafeDescription)
	v.RegisterValidation("positive_number", validatePositiveNumber)

	return &BusinessValidator{
		validator: v,
	}
}

// Validate 验证结构体
func (bv *BusinessValidator) Validate(i interface{}) error {
	return bv.validator.Struct(i)
}

// validateHitAngle 验证命中角度
func validateHitAngle(fl validator.FieldLevel) bool {
	// 角度规则：[0, 360)，360 本身归一化为 0 由调用方处理，这里拒绝
	angle := fl.Field().Float()
	return angle >= 0 && angle < 360
}

// validateCombatLevel 验证战斗等级
func validateCombatLevel(fl validator.FieldLevel) bool {
	// 等级规则：1-100
	level := fl.Field().Int()
	return level >= 1 && level <= 100
}

// validateTurnNumber 验证回合序号
func validateTurnNumber(fl validator.FieldLevel) bool {
	// 回合序号从 1 开始单调递增
	return fl.Field().Int() >= 1
}

// validateLootScope 验证掉落池作用域
func validateLootScope(fl validator.FieldLevel) bool {
	scope := fl.Field().String()
	switch scope {
	case "universal", "location_type", "state", "country", "bounding_box":
		return true
	}
	return false
}

// validateSafeDescription 验证安全的描述文本
func validateSafeDescription(fl validator.FieldLevel) bool {
	desc := fl.Field().String()

	// 描述规则：
	// 1. 长度不超过 1000 字符
	// 2. 不能包含脚本标签和危险内容
	if utf8.RuneCountInString(desc) > 1000 {
		return false
	}

	// 检查危险内容
	dangerousPatterns := []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "<iframe", "</iframe>", "<object", "</object>",
	}

	lowerDesc := strings.ToLower(desc)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerDesc, pattern) {
			return false
		}
	}

	return true
}

// validatePositiveNumber 验证正数
func validatePositiveNumber(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fl.Field().Int() > 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fl.Field().Uint() > 0
	case reflect.Float32, reflect.Float64:
		return fl.Field().Float() > 0
	}
	return false
}

// GetValidationErrorMessage 获取验证错误的友好消息
func GetValidationErrorMessage(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			field := fieldError.Field()
			tag := fieldError.Tag()

			switch tag {
			case "required":
				return fmt.Sprintf("字段 %s 是必填项", field)
			case "hit_angle":
				return "命中角度必须在 [0, 360) 度范围内"
			case "combat_level":
				return "战斗等级必须在 1-100 之间"
			case "turn_number":
				return "回合序号必须大于等于 1"
			case "loot_scope":
				return "掉落池作用域无效"
			case "safe_description":
				return "描述内容不安全：长度不超过1000字符，不能包含脚本标签"
			case "positive_number":
				return fmt.Sprintf("字段 %s 必须是正数", field)
			case "min":
				return fmt.Sprintf("字段 %s 的值太小", field)
			case "max":
				return fmt.Sprintf("字段 %s 的值太大", field)
			case "uuid":
				return "UUID格式不正确"
			default:
				return fmt.Sprintf("字段 %s 验证失败：%s", field, tag)
			}
		}
	}

	return "验证失败：" + err.Error()
}

// ValidateValueRange 验证数值范围的业务逻辑
func ValidateValueRange(minValue, maxValue, defaultValue *float64) error {
	if minValue != nil && maxValue != nil {
		if *minValue >= *maxValue {
			return fmt.Errorf("最小值必须小于最大值")
		}
	}

	if defaultValue != nil {
		if minValue != nil && *defaultValue < *minValue {
			return fmt.Errorf("默认值不能小于最小值")
		}
		if maxValue != nil && *defaultValue > *maxValue {
			return fmt.Errorf("默认值不能大于最大值")
		}
	}

	return nil
}
