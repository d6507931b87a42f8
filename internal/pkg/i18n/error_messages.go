// File: internal/pkg/i18n/error_messages.go
package i18n

import (
	"wander-self/internal/pkg/xerrors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrorMessages 错误消息的多语言映射
var ErrorMessages = map[xerrors.ErrorCode]map[language.Tag]string{
	// 1xxxxx: 通用错误码
	xerrors.CodeSuccess:           {language.Chinese: "操作成功", language.English: "Operation successful"},
	xerrors.CodeInternalError:     {language.Chinese: "内部服务错误", language.English: "Internal server error"},
	xerrors.CodeInvalidParams:     {language.Chinese: "参数错误", language.English: "Invalid parameters"},
	xerrors.CodeInvalidRequest:    {language.Chinese: "请求格式错误", language.English: "Invalid request format"},
	xerrors.CodeResourceNotFound:  {language.Chinese: "资源不存在", language.English: "Resource not found"},
	xerrors.CodeDuplicateResource: {language.Chinese: "资源已存在", language.English: "Resource already exists"},
	xerrors.CodeRateLimitExceeded: {language.Chinese: "请求频率限制", language.English: "Rate limit exceeded"},

	// 2xxxxx: 认证相关错误码
	xerrors.CodeAuthenticationFailed: {language.Chinese: "认证失败", language.English: "Authentication failed"},
	xerrors.CodePermissionDenied:     {language.Chinese: "权限不足", language.English: "Permission denied"},

	// 7xxxxx: 外部服务错误码
	xerrors.CodeExternalServiceError: {language.Chinese: "外部服务错误", language.English: "External service error"},
	xerrors.CodeDatabaseError:        {language.Chinese: "数据库错误", language.English: "Database error"},
	xerrors.CodeCacheError:           {language.Chinese: "缓存服务错误", language.English: "Cache service error"},
	xerrors.CodeMessageQueueError:    {language.Chinese: "消息队列错误", language.English: "Message queue error"},

	// 9xxxxx: 战斗业务错误码
	// 会话相关 (90xxxx)
	xerrors.CodeCombatSessionNotFound: {language.Chinese: "战斗会话不存在", language.English: "Combat session not found"},
	xerrors.CodeCombatSessionConflict: {language.Chinese: "已存在进行中的战斗会话", language.English: "An active combat session already exists"},
	xerrors.CodeCombatSessionExpired:  {language.Chinese: "战斗会话已过期", language.English: "Combat session expired"},
	xerrors.CodeCombatSessionEnded:    {language.Chinese: "战斗会话已结束", language.English: "Combat session already ended"},
	xerrors.CodeStaleTurn:             {language.Chinese: "回合序号不匹配，请刷新会话状态", language.English: "Turn number out of date, refresh the session"},
	xerrors.CodeWrongTurnAction:       {language.Chinese: "当前回合不允许该操作", language.English: "Action not allowed on the current turn"},
	xerrors.CodeInvalidHitAngle:       {language.Chinese: "命中角度无效", language.English: "Invalid hit angle"},

	// 配置相关 (91xxxx)
	xerrors.CodeEnemyNotFound:  {language.Chinese: "敌人配置不存在", language.English: "Enemy not found"},
	xerrors.CodeWeaponNotFound: {language.Chinese: "武器配置不存在", language.English: "Weapon not found"},

	// 结算相关 (92xxxx)
	xerrors.CodeSettlementPending: {language.Chinese: "奖励结算待重试", language.English: "Reward settlement pending retry"},
	xerrors.CodeSettlementFailed:  {language.Chinese: "奖励结算失败", language.English: "Reward settlement failed"},
}

// GetErrorMessage 获取错误码对应语言的消息
func GetErrorMessage(code xerrors.ErrorCode, lang language.Tag) string {
	if messages, ok := ErrorMessages[code]; ok {
		if msg, ok := messages[lang]; ok {
			return msg
		}
		// 如果指定语言没有翻译，返回中文（默认）
		if msg, ok := messages[language.Chinese]; ok {
			return msg
		}
	}
	// 如果完全没有定义，返回通用错误消息
	if lang == language.English {
		return "Unknown error"
	}
	return "未知错误"
}

// init 初始化消息目录
func init() {
	// 为每个错误码注册翻译
	for code, messages := range ErrorMessages {
		codeInt := code.ToInt()
		for lang, msg := range messages {
			message.SetString(lang, string(rune(codeInt)), msg)
		}
	}
}
