// File: internal/pkg/xerrors/codes.go
package xerrors

import "fmt"

// ErrorCode 错误码类型（类型安全）
type ErrorCode int

// IsValid 检查错误码是否在预定义列表中
func (c ErrorCode) IsValid() bool {
	_, exists := codeMessages[c]
	return exists
}

// String 返回错误码的字符串表示
func (c ErrorCode) String() string {
	if msg, ok := codeMessages[c]; ok {
		return fmt.Sprintf("%d (%s)", c, msg)
	}
	return fmt.Sprintf("%d (未定义的错误码)", c)
}

// Message 返回错误码对应的消息
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "未知错误"
}

// ToInt 转换为 int（用于 JSON 序列化等场景）
func (c ErrorCode) ToInt() int {
	return int(c)
}

// -----------------------------------------------------------------------------
// 业务错误码统一定义
// 按模块或领域对错误码进行分段，便于管理。
// -----------------------------------------------------------------------------
const (
	// 1xxxxx: 通用错误码
	CodeSuccess           ErrorCode = 100000 // 操作成功
	CodeInternalError     ErrorCode = 100001 // 内部服务错误
	CodeInvalidParams     ErrorCode = 100002 // 参数错误
	CodeInvalidRequest    ErrorCode = 100003 // 请求格式错误
	CodeResourceNotFound  ErrorCode = 100404 // 资源不存在
	CodeDuplicateResource ErrorCode = 100409 // 资源已存在
	CodeRateLimitExceeded ErrorCode = 100429 // 请求频率限制

	// 2xxxxx: 认证相关错误码（身份由网关注入，这里只覆盖缺失或越权的场景）
	CodeAuthenticationFailed ErrorCode = 200001 // 认证失败
	CodePermissionDenied     ErrorCode = 200002 // 权限不足

	// 7xxxxx: 外部服务错误码
	CodeExternalServiceError ErrorCode = 700001 // 外部服务错误
	CodeDatabaseError        ErrorCode = 700003 // 数据库错误
	CodeCacheError           ErrorCode = 700004 // 缓存服务错误
	CodeMessageQueueError    ErrorCode = 700005 // 消息队列错误

	// 9xxxxx: 战斗业务错误码
	// 会话相关 (90xxxx)
	CodeCombatSessionNotFound ErrorCode = 900001 // 战斗会话不存在
	CodeCombatSessionConflict ErrorCode = 900002 // 已存在进行中的战斗会话
	CodeCombatSessionExpired  ErrorCode = 900003 // 战斗会话已过期
	CodeCombatSessionEnded    ErrorCode = 900004 // 战斗会话已结束
	CodeStaleTurn             ErrorCode = 900005 // 回合序号不匹配
	CodeWrongTurnAction       ErrorCode = 900006 // 当前回合不允许该操作
	CodeInvalidHitAngle       ErrorCode = 900007 // 命中角度无效

	// 配置相关 (91xxxx)
	CodeEnemyNotFound  ErrorCode = 910001 // 敌人配置不存在
	CodeWeaponNotFound ErrorCode = 910002 // 武器配置不存在

	// 结算相关 (92xxxx)
	CodeSettlementPending ErrorCode = 920001 // 奖励结算待重试
	CodeSettlementFailed  ErrorCode = 920002 // 奖励结算失败
)

// -----------------------------------------------------------------------------
// HTTP 状态码常量定义
// -----------------------------------------------------------------------------
const (
	HTTPStatusOK        = 200 // 请求成功
	HTTPStatusCreated   = 201 // 资源已创建
	HTTPStatusAccepted  = 202 // 请求已接受但未处理
	HTTPStatusNoContent = 204 // 请求成功但无内容返回

	HTTPStatusBadRequest          = 400 // 错误请求
	HTTPStatusUnauthorized        = 401 // 未经授权
	HTTPStatusForbidden           = 403 // 禁止访问
	HTTPStatusNotFound            = 404 // 资源未找到
	HTTPStatusMethodNotAllowed    = 405 // 方法不被允许
	HTTPStatusConflict            = 409 // 资源冲突
	HTTPStatusGone                = 410 // 资源已失效
	HTTPStatusUnprocessableEntity = 422 // 无法处理的实体
	HTTPStatusTooManyRequests     = 429 // 请求过多

	HTTPStatusInternalServerError = 500 // 内部服务器错误
	HTTPStatusNotImplemented      = 501 // 未实现
	HTTPStatusBadGateway          = 502 // 错误网关
	HTTPStatusServiceUnavailable  = 503 // 服务不可用
	HTTPStatusGatewayTimeout      = 504 // 网关超时
)

// -----------------------------------------------------------------------------
// 错误消息映射
// -----------------------------------------------------------------------------
var codeMessages = map[ErrorCode]string{
	CodeSuccess:           "操作成功",
	CodeInternalError:     "内部服务错误",
	CodeInvalidParams:     "参数错误",
	CodeInvalidRequest:    "请求格式错误",
	CodeResourceNotFound:  "资源不存在",
	CodeDuplicateResource: "资源已存在",
	CodeRateLimitExceeded: "请求频率限制",

	CodeAuthenticationFailed: "认证失败",
	CodePermissionDenied:     "权限不足",

	CodeExternalServiceError: "外部服务错误",
	CodeDatabaseError:        "数据库错误",
	CodeCacheError:           "缓存服务错误",
	CodeMessageQueueError:    "消息队列错误",

	// 战斗业务错误消息
	CodeCombatSessionNotFound: "战斗会话不存在",
	CodeCombatSessionConflict: "已存在进行中的战斗会话",
	CodeCombatSessionExpired:  "战斗会话已过期",
	CodeCombatSessionEnded:    "战斗会话已结束",
	CodeStaleTurn:             "回合序号不匹配，请刷新会话状态",
	CodeWrongTurnAction:       "当前回合不允许该操作",
	CodeInvalidHitAngle:       "命中角度无效",
	CodeEnemyNotFound:         "敌人配置不存在",
	CodeWeaponNotFound:        "武器配置不存在",
	CodeSettlementPending:     "奖励结算待重试",
	CodeSettlementFailed:      "奖励结算失败",
}

// GetHTTPStatus 根据业务错误码获取HTTP状态码
func GetHTTPStatus(code ErrorCode) int {
	switch {
	case code == CodeSuccess:
		return HTTPStatusOK
	case code == CodeAuthenticationFailed:
		return HTTPStatusUnauthorized
	case code == CodePermissionDenied:
		return HTTPStatusForbidden
	case code == CodeResourceNotFound:
		return HTTPStatusNotFound
	case code == CodeDuplicateResource:
		return HTTPStatusConflict
	case code == CodeInvalidParams || code == CodeInvalidRequest:
		return HTTPStatusBadRequest
	case code == CodeRateLimitExceeded:
		return HTTPStatusTooManyRequests
	case code >= 700000 && code < 800000:
		return HTTPStatusServiceUnavailable
	case code == CodeCombatSessionNotFound:
		return HTTPStatusNotFound
	case code == CodeCombatSessionConflict || code == CodeCombatSessionEnded ||
		code == CodeStaleTurn || code == CodeWrongTurnAction:
		return HTTPStatusConflict
	case code == CodeCombatSessionExpired:
		return HTTPStatusGone
	case code == CodeInvalidHitAngle:
		return HTTPStatusBadRequest
	case code == CodeEnemyNotFound || code == CodeWeaponNotFound:
		return HTTPStatusNotFound
	case code == CodeSettlementPending || code == CodeSettlementFailed:
		return HTTPStatusServiceUnavailable
	default:
		return HTTPStatusInternalServerError
	}
}

// 辅助函数
// getCategoryByCode 根据错误码获取分类
func getCategoryByCode(code ErrorCode) string {
	switch {
	case code >= 100000 && code < 200000:
		return "system"
	case code >= 200000 && code < 300000:
		return "authentication"
	case code >= 700000 && code < 800000:
		return "external"
	case code >= 900000 && code < 910000:
		return "combat_session"
	case code >= 910000 && code < 920000:
		return "combat_config"
	case code >= 920000 && code < 930000:
		return "settlement"
	default:
		return "unknown"
	}
}

// getLevelByCode 根据错误码获取级别
func getLevelByCode(code ErrorCode) ErrorLevel {
	switch {
	case code == CodeSuccess:
		return LevelInfo
	case code >= 100001 && code <= 100003: // 参数错误等
		return LevelWarn
	case code >= 900001 && code <= 900007: // 会话状态冲突属于正常业务分支
		return LevelWarn
	case code >= 700001 && code < 800000: // 外部服务错误
		return LevelCritical
	case code == CodeSettlementFailed:
		return LevelCritical
	default:
		return LevelError
	}
}

// isRetryableByCode 根据错误码判断是否可重试
func isRetryableByCode(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		CodeInternalError:        true,
		CodeExternalServiceError: true,
		CodeDatabaseError:        true,
		CodeCacheError:           true,
		CodeMessageQueueError:    true,
		CodeRateLimitExceeded:    true,
		CodeSettlementPending:    true,
	}
	return retryableCodes[code]
}
