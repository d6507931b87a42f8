// File: internal/pkg/response/writer.go
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wander-self/internal/pkg/i18n"
	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/trace"
	"wander-self/internal/pkg/xerrors"
)

// Writer 统一的响应写出接口
// handler 层只依赖该接口，便于测试时替换实现
type Writer interface {
	WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error
	WriteError(ctx context.Context, w http.ResponseWriter, err error) error
	WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error
}

// ResponseHandler Writer 的默认实现
// 生产环境下隐藏底层错误详情，开发环境下透出便于排查
type ResponseHandler struct {
	logger      log.Logger
	environment string
}

// NewResponseHandler 创建响应处理器
func NewResponseHandler(logger log.Logger, environment string) *ResponseHandler {
	return &ResponseHandler{
		logger:      logger,
		environment: environment,
	}
}

// WriteSuccess 写出成功响应（统一 ResponseResult 包装）
func (h *ResponseHandler) WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error {
	resp := &ResponseResult[any]{
		Code:      xerrors.CodeSuccess.ToInt(),
		Message:   i18n.GetErrorMessage(xerrors.CodeSuccess, i18n.GetLanguage(ctx)),
		Timestamp: time.Now().Unix(),
		TraceId:   trace.GetTraceID(ctx),
	}
	if data != nil {
		resp.Data = &data
	}
	return h.write(ctx, w, http.StatusOK, resp)
}

// WriteError 写出错误响应
// 非 AppError 的错误一律按内部错误处理
func (h *ResponseHandler) WriteError(ctx context.Context, w http.ResponseWriter, err error) error {
	var appErr *xerrors.AppError
	if !errors.As(err, &appErr) {
		appErr = xerrors.Wrap(err, xerrors.CodeInternalError, "内部服务错误")
	}

	lang := i18n.GetLanguage(ctx)
	resp := &ResponseResult[any]{
		Code:      appErr.Code.ToInt(),
		Message:   i18n.GetErrorMessage(appErr.Code, lang),
		Timestamp: time.Now().Unix(),
		TraceId:   trace.GetTraceID(ctx),
	}

	// 开发环境透出底层错误，生产环境只返回业务消息
	if h.environment != "production" && appErr.Err != nil {
		resp.Error = appErr.Err.Error()
	}

	status := xerrors.GetHTTPStatus(appErr.Code)
	if status >= 500 && h.logger != nil {
		h.logger.ErrorContext(ctx, "请求处理失败", log.Any("app_error", appErr))
	}

	return h.write(ctx, w, status, resp)
}

// WriteJSON 直接写出 JSON（跳过 ResponseResult 包装）
func (h *ResponseHandler) WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

func (h *ResponseHandler) write(ctx context.Context, w http.ResponseWriter, status int, resp *ResponseResult[any]) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		if h.logger != nil {
			h.logger.ErrorContext(ctx, "写入响应失败", log.Any("error", err))
		}
		return err
	}
	return nil
}
