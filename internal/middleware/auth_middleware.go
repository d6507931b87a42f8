package middleware

import (
	"github.com/labstack/echo/v4"

	"wander-self/internal/pkg/ctxkey"
	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/response"
	"wander-self/internal/pkg/xerrors"
)

// CurrentPlayer 当前请求的玩家信息（从网关传递）
type CurrentPlayer struct {
	PlayerID     string // 从 X-User-ID header
	SessionToken string // 从 X-Session-Token header
}

// AuthMiddleware 认证中间件 - 从网关传递的 Header 提取玩家信息。
// 请求到达这里时已经通过网关鉴权，这里只负责提取身份并注入 Context。
func AuthMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			playerID := c.Request().Header.Get("X-User-ID")
			sessionToken := c.Request().Header.Get("X-Session-Token")

			if playerID == "" {
				logger.WarnContext(ctx, "认证失败: 缺少 X-User-ID header")
				err := xerrors.New(
					xerrors.CodeAuthenticationFailed,
					"未授权访问: 缺少玩家身份信息",
				).WithService("middleware", "auth")

				return respWriter.WriteError(ctx, c.Response().Writer, err)
			}

			currentPlayer := &CurrentPlayer{
				PlayerID:     playerID,
				SessionToken: sessionToken,
			}

			ctx = ctxkey.WithValue(ctx, ctxkey.PlayerID, playerID)
			c.SetRequest(c.Request().WithContext(ctx))

			// 同时挂到 Echo Context，handler 直接取用
			c.Set(string(ctxkey.PlayerID), playerID)
			c.Set(currentPlayerKey, currentPlayer)

			return next(c)
		}
	}
}

const currentPlayerKey = "current_player"

// GetCurrentPlayer 从 Echo Context 中获取当前玩家
func GetCurrentPlayer(c echo.Context) (*CurrentPlayer, error) {
	player := c.Get(currentPlayerKey)
	if player == nil {
		return nil, xerrors.New(
			xerrors.CodeAuthenticationFailed,
			"未找到玩家信息",
		)
	}

	currentPlayer, ok := player.(*CurrentPlayer)
	if !ok {
		return nil, xerrors.New(
			xerrors.CodeInternalError,
			"玩家信息类型错误",
		)
	}

	return currentPlayer, nil
}

// GetCurrentPlayerID 从 Echo Context 中获取当前玩家 ID（快捷方法）
func GetCurrentPlayerID(c echo.Context) (string, error) {
	player, err := GetCurrentPlayer(c)
	if err != nil {
		return "", err
	}
	return player.PlayerID, nil
}
