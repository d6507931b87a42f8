// File: internal/pkg/metrics/middleware.go
package metrics

import (
	"net/http"
	"time"

	"wander-self/internal/pkg/ctxkey"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// pathLimitTracker 控制路由标签的基数上限
var pathLimitTracker = NewPathLimitTracker(200)

// Middleware Echo 中间件 - 记录 HTTP 请求指标
// 使用路由模板（如 /api/v1/combat/sessions/:session_id）而非具体路径，避免标签基数爆炸
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// 健康检查端点不记录，避免指标噪音
			if IsHealthCheckEndpoint(c.Request().URL.Path) {
				return next(c)
			}

			// 将 HTTP 方法存储到 context（错误中间件等下游使用）
			ctx := c.Request().Context()
			ctx = ctxkey.WithValue(ctx, ctxkey.HTTPMethod, c.Request().Method)
			c.SetRequest(c.Request().WithContext(ctx))

			// 路由模板在路由匹配后即可用
			route := pathLimitTracker.TrackPath(NormalizeRoute(c.Path()))
			c.Response().Header().Set("X-Route-Pattern", c.Path())

			service := GetServiceName()
			DefaultHTTPMetrics.IncInProgress(service)
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			DefaultHTTPMetrics.DecInProgress(service)

			statusCode := c.Response().Status
			if err != nil {
				// 错误尚未经过错误处理中间件，按 echo.HTTPError 或 500 估算
				if httpErr, ok := err.(*echo.HTTPError); ok {
					statusCode = httpErr.Code
				} else {
					statusCode = http.StatusInternalServerError
				}
			}

			DefaultHTTPMetrics.RecordRequest(service, route, c.Request().Method, statusCode, duration)

			return err
		}
	}
}

// Handler 返回 Prometheus metrics HTTP 处理器
// 用于暴露 /metrics 端点
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoHandler Echo 框架的 Prometheus metrics 处理器
func EchoHandler() echo.HandlerFunc {
	h := promhttp.Handler()
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	}
}
