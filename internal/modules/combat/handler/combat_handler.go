package handler

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"

	"wander-self/internal/modules/combat/service"
	"wander-self/internal/pkg/ctxkey"
	"wander-self/internal/pkg/response"
	"wander-self/internal/pkg/validator"
)

// CombatHandler 战斗会话 HTTP Handler
type CombatHandler struct {
	combatService *service.CombatService
	respWriter    response.Writer
}

// NewCombatHandler 创建战斗 Handler
func NewCombatHandler(sc *service.ServiceContainer, respWriter response.Writer) *CombatHandler {
	return &CombatHandler{
		combatService: sc.GetCombatService(),
		respWriter:    respWriter,
	}
}

// ==================== HTTP Request Models ====================

// InitiateCombatHTTPRequest 发起战斗请求
type InitiateCombatHTTPRequest struct {
	LocationID   string  `json:"location_id" validate:"required" example:"loc-uuid-001"`     // 地点ID（必填）
	LocationType string  `json:"location_type,omitempty" example:"park"`                     // 地点类型（掉落池筛选用）
	State        string  `json:"state,omitempty" example:"Bayern"`                           // 州/省
	Country      string  `json:"country,omitempty" example:"DE"`                             // 国家
	Lat          float64 `json:"lat,omitempty" example:"48.1371"`                            // 纬度
	Lng          float64 `json:"lng,omitempty" example:"11.5754"`                            // 经度
	CombatLevel  int     `json:"combat_level" validate:"required,min=1,max=100" example:"3"` // 战斗等级（必填）
}

// CombatActionHTTPRequest 攻击/防御请求
type CombatActionHTTPRequest struct {
	HitAngle   float64 `json:"hit_angle" validate:"gte=0,lt=360" example:"271.5"` // 命中角度 [0, 360)
	TurnNumber int     `json:"turn_number" validate:"required,min=1" example:"1"` // 期望回合号（乐观校验）
}

// PreviewStatsHTTPResponse 属性预览响应
type PreviewStatsHTTPResponse struct {
	Stats       interface{} `json:"stats"`        // 聚合后的四维属性
	AttackBands interface{} `json:"attack_bands"` // 按攻击精度计算的转盘分段
}

// ==================== HTTP Handlers ====================

func (h *CombatHandler) playerID(c echo.Context) (string, bool) {
	playerID, _ := c.Get(string(ctxkey.PlayerID)).(string)
	return playerID, playerID != ""
}

// InitiateCombat 发起战斗
// @Summary 发起战斗
// @Description 在指定地点发起一场战斗会话。同一玩家同时只能有一个进行中的会话。
// @Description
// @Description **填写说明**：
// @Description - `location_id`: 地点ID，敌人与掉落池按它筛选
// @Description - `combat_level`: 战斗等级，影响敌我双方属性与掉落池匹配
// @Description - 地点类型/州/国家/经纬度用于终态时的掉落池筛选，发起时冻结
// @Tags 战斗
// @Accept json
// @Produce json
// @Param request body InitiateCombatHTTPRequest true "发起战斗请求"
// @Success 200 {object} response.ResponseResult[service.SessionView] "会话创建成功"
// @Failure 400 {object} response.ResponseResult[response.EmptyData] "请求参数错误"
// @Failure 409 {object} response.ResponseResult[response.EmptyData] "已存在进行中的战斗会话"
// @Router /combat/sessions [post]
func (h *CombatHandler) InitiateCombat(c echo.Context) error {
	var req InitiateCombatHTTPRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		// 翻译验证错误为用户友好的中文消息
		friendlyMsg := validator.TranslateValidationError(err)
		return response.EchoBadRequest(c, h.respWriter, friendlyMsg)
	}

	playerID, ok := h.playerID(c)
	if !ok {
		return response.EchoUnauthorized(c, h.respWriter, "未登录")
	}

	view, err := h.combatService.Initiate(c.Request().Context(), playerID, &service.InitiateCombatRequest{
		LocationID:   req.LocationID,
		LocationType: req.LocationType,
		State:        req.State,
		Country:      req.Country,
		Lat:          req.Lat,
		Lng:          req.Lng,
		CombatLevel:  req.CombatLevel,
	})
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, view)
}

// PerformAttack 攻击
// @Summary 玩家回合攻击
// @Description 提交转盘停止角度，按当前攻击精度的分段判定伤害。
// @Description
// @Description **判定规则**：
// @Description - 角度落在 injure 段时反噬自身，miss 段空挥
// @Description - `turn_number` 必须等于会话当前回合号，否则返回回合冲突
// @Description - 敌人 HP 归零时会话立即终结并发放奖励
// @Tags 战斗
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Param request body CombatActionHTTPRequest true "攻击请求"
// @Success 200 {object} response.ResponseResult[service.CombatActionResult] "判定结果"
// @Failure 400 {object} response.ResponseResult[response.EmptyData] "角度无效"
// @Failure 404 {object} response.ResponseResult[response.EmptyData] "会话不存在"
// @Failure 409 {object} response.ResponseResult[response.EmptyData] "回合冲突或会话已结束"
// @Failure 410 {object} response.ResponseResult[response.EmptyData] "会话已过期"
// @Router /combat/sessions/{session_id}/attack [post]
func (h *CombatHandler) PerformAttack(c echo.Context) error {
	return h.performAction(c, h.combatService.Attack)
}

// PerformDefense 防御
// @Summary 敌人回合防御
// @Description 提交转盘停止角度，按当前防御精度的分段判定格挡量，剩余伤害落在玩家身上。
// @Tags 战斗
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Param request body CombatActionHTTPRequest true "防御请求"
// @Success 200 {object} response.ResponseResult[service.CombatActionResult] "判定结果"
// @Failure 400 {object} response.ResponseResult[response.EmptyData] "角度无效"
// @Failure 404 {object} response.ResponseResult[response.EmptyData] "会话不存在"
// @Failure 409 {object} response.ResponseResult[response.EmptyData] "回合冲突或会话已结束"
// @Failure 410 {object} response.ResponseResult[response.EmptyData] "会话已过期"
// @Router /combat/sessions/{session_id}/defend [post]
func (h *CombatHandler) PerformDefense(c echo.Context) error {
	return h.performAction(c, h.combatService.Defend)
}

type combatAction func(ctx context.Context, playerID, sessionID string, angle float64, expectedTurn int) (*service.CombatActionResult, error)

func (h *CombatHandler) performAction(c echo.Context, action combatAction) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return response.EchoBadRequest(c, h.respWriter, "会话ID不能为空")
	}

	var req CombatActionHTTPRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		friendlyMsg := validator.TranslateValidationError(err)
		return response.EchoBadRequest(c, h.respWriter, friendlyMsg)
	}

	playerID, ok := h.playerID(c)
	if !ok {
		return response.EchoUnauthorized(c, h.respWriter, "未登录")
	}

	result, err := action(c.Request().Context(), playerID, sessionID, req.HitAngle, req.TurnNumber)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, result)
}

// RetreatCombat 撤退
// @Summary 撤退
// @Description 立即终结会话并发放缩减奖励包（四分之一金币，无掉落）。
// @Tags 战斗
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.ResponseResult[service.RetreatResult] "撤退成功"
// @Failure 404 {object} response.ResponseResult[response.EmptyData] "会话不存在"
// @Failure 409 {object} response.ResponseResult[response.EmptyData] "会话已结束"
// @Router /combat/sessions/{session_id}/retreat [post]
func (h *CombatHandler) RetreatCombat(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return response.EchoBadRequest(c, h.respWriter, "会话ID不能为空")
	}

	playerID, ok := h.playerID(c)
	if !ok {
		return response.EchoUnauthorized(c, h.respWriter, "未登录")
	}

	result, err := h.combatService.Retreat(c.Request().Context(), playerID, sessionID)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, result)
}

// AbandonCombat 放弃战斗
// @Summary 放弃战斗
// @Description 终结会话且不产生任何奖励，用于客户端清理。
// @Tags 战斗
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.ResponseResult[response.EmptyData] "已放弃"
// @Failure 404 {object} response.ResponseResult[response.EmptyData] "会话不存在"
// @Failure 409 {object} response.ResponseResult[response.EmptyData] "会话已结束"
// @Router /combat/sessions/{session_id}/abandon [post]
func (h *CombatHandler) AbandonCombat(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return response.EchoBadRequest(c, h.respWriter, "会话ID不能为空")
	}

	playerID, ok := h.playerID(c)
	if !ok {
		return response.EchoUnauthorized(c, h.respWriter, "未登录")
	}

	if err := h.combatService.Abandon(c.Request().Context(), playerID, sessionID); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, map[string]interface{}{"message": "战斗已放弃"})
}

// FetchSession 查询会话详情
// @Summary 查询会话详情
// @Description 获取指定会话的完整状态，含双方属性与转盘分段。
// @Tags 战斗
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.ResponseResult[service.SessionView] "会话详情"
// @Failure 404 {object} response.ResponseResult[response.EmptyData] "会话不存在"
// @Router /combat/sessions/{session_id} [get]
func (h *CombatHandler) FetchSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return response.EchoBadRequest(c, h.respWriter, "会话ID不能为空")
	}

	playerID, ok := h.playerID(c)
	if !ok {
		return response.EchoUnauthorized(c, h.respWriter, "未登录")
	}

	view, err := h.combatService.Fetch(c.Request().Context(), playerID, sessionID)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, view)
}

// GetActiveSession 查询当前活跃会话
// @Summary 查询当前活跃会话
// @Description 返回玩家进行中的会话。没有活跃会话是正常状态，data 为 null。
// @Tags 战斗
// @Accept json
// @Produce json
// @Success 200 {object} response.ResponseResult[service.SessionView] "活跃会话或 null"
// @Router /combat/sessions/active [get]
func (h *CombatHandler) GetActiveSession(c echo.Context) error {
	playerID, ok := h.playerID(c)
	if !ok {
		return response.EchoUnauthorized(c, h.respWriter, "未登录")
	}

	view, err := h.combatService.GetActive(c.Request().Context(), playerID)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, view)
}

// PreviewStats 属性预览
// @Summary 属性预览
// @Description 按指定等级预览聚合后的四维属性与攻击转盘分段，只读，与实时战斗同一套计算。
// @Tags 战斗
// @Accept json
// @Produce json
// @Param level query int true "战斗等级" minimum(1)
// @Success 200 {object} response.ResponseResult[handler.PreviewStatsHTTPResponse] "预览结果"
// @Failure 400 {object} response.ResponseResult[response.EmptyData] "等级无效"
// @Router /combat/preview/stats [get]
func (h *CombatHandler) PreviewStats(c echo.Context) error {
	playerID, ok := h.playerID(c)
	if !ok {
		return response.EchoUnauthorized(c, h.respWriter, "未登录")
	}

	level, err := strconv.Atoi(c.QueryParam("level"))
	if err != nil || level < 1 {
		return response.EchoBadRequest(c, h.respWriter, "level 必须为正整数")
	}

	stats, bands, err := h.combatService.PreviewStats(c.Request().Context(), playerID, level)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, &PreviewStatsHTTPResponse{
		Stats:       stats,
		AttackBands: bands,
	})
}
