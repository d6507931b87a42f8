package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"wander-self/internal/modules/combat/service"
	"wander-self/internal/pkg/ctxkey"
	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/response"
	"wander-self/internal/pkg/validator"
)

// setupCombatHandler 构建基于 sqlmock 的测试 Handler
func setupCombatHandler(t *testing.T) (*CombatHandler, *echo.Echo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sc := service.NewServiceContainer(db, nil, nil, log.GetLogger(), "combat-test")
	respWriter := response.NewResponseHandler(log.GetLogger(), "development")
	handler := NewCombatHandler(sc, respWriter)

	e := echo.New()
	e.Validator = validator.New()
	return handler, e, mock
}

func newJSONRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestInitiateCombatRejectsMissingLocation(t *testing.T) {
	handler, e, _ := setupCombatHandler(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/combat/sessions", InitiateCombatHTTPRequest{
		CombatLevel: 3,
	})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(ctxkey.PlayerID), "player-1")

	require.NoError(t, handler.InitiateCombat(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiateCombatRejectsUnauthenticated(t *testing.T) {
	handler, e, _ := setupCombatHandler(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/combat/sessions", InitiateCombatHTTPRequest{
		LocationID:  "loc-1",
		CombatLevel: 3,
	})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, handler.InitiateCombat(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPerformAttackRejectsOutOfRangeAngle(t *testing.T) {
	handler, e, _ := setupCombatHandler(t)

	// 角度 400 被 validator 拦下，不会触达服务层
	req := newJSONRequest(t, http.MethodPost, "/api/v1/combat/sessions/session-1/attack", CombatActionHTTPRequest{
		HitAngle:   400,
		TurnNumber: 1,
	})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("session-1")
	c.Set(string(ctxkey.PlayerID), "player-1")

	require.NoError(t, handler.PerformAttack(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformAttackRejectsMissingTurnNumber(t *testing.T) {
	handler, e, _ := setupCombatHandler(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/combat/sessions/session-1/attack", map[string]interface{}{
		"hit_angle": 120.0,
	})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("session-1")
	c.Set(string(ctxkey.PlayerID), "player-1")

	require.NoError(t, handler.PerformAttack(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetActiveSessionReturnsNullWhenNone(t *testing.T) {
	handler, e, mock := setupCombatHandler(t)

	// 没有活跃会话：查询返回空集，响应 200 且 data 为 null
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := newJSONRequest(t, http.MethodGet, "/api/v1/combat/sessions/active", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(ctxkey.PlayerID), "player-1")

	require.NoError(t, handler.GetActiveSession(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data *json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreviewStatsRejectsBadLevel(t *testing.T) {
	handler, e, _ := setupCombatHandler(t)

	req := newJSONRequest(t, http.MethodGet, "/api/v1/combat/preview/stats?level=0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(ctxkey.PlayerID), "player-1")

	require.NoError(t, handler.PreviewStats(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetreatRequiresSessionID(t *testing.T) {
	handler, e, _ := setupCombatHandler(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/combat/sessions//retreat", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(ctxkey.PlayerID), "player-1")

	require.NoError(t, handler.RetreatCombat(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
