package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/response"
	"wander-self/internal/pkg/xerrors"
)

// RecoveryMiddleware 恢复中间件
func RecoveryMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					ctx := c.Request().Context()

					logger.ErrorContext(ctx, "应用程序 panic",
						log.Any("panic_value", r),
						log.String("path", c.Request().URL.Path),
						log.String("method", c.Request().Method),
					)

					appErr := xerrors.FromCode(xerrors.CodeInternalError).
						WithService("echo-middleware", "recovery").
						WithMetadata("panic_value", fmt.Sprintf("%v", r))

					respWriter.WriteError(ctx, c.Response().Writer, appErr)
				}
			}()

			return next(c)
		}
	}
}
