package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestor-ai/nestor/pkg/audit"
	"github.com/nestor-ai/nestor/pkg/config"
	"github.com/nestor-ai/nestor/pkg/models"
)

type processorFunc func(ctx context.Context, req models.Request) *models.PipelineResponse

func (f processorFunc) Process(ctx context.Context, req models.Request) *models.PipelineResponse {
	return f(ctx, req)
}

func testServerWith(engine Processor) *Server {
	return &Server{
		cfg: &config.Config{
			AllowedActions: []string{"open_app", "search_web", "send_notification"},
		},
		engine: engine,
	}
}

func postJSON(path, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func TestExecuteHandler(t *testing.T) {
	t.Run("successful pipeline run", func(t *testing.T) {
		var captured models.Request
		s := testServerWith(processorFunc(func(_ context.Context, req models.Request) *models.PipelineResponse {
			captured = req
			return &models.PipelineResponse{
				RequestID: req.ID,
				Status:    models.StatusSuccess,
				Summary:   "Executed 1/1 actions successfully.",
				Timestamp: models.Now(),
			}
		}))

		e := echo.New()
		req, rec := postJSON("/api/actions/execute",
			`{"id": "req-1", "type": "command", "content": "open the browser", "context": {"room": "office"}}`)
		c := e.NewContext(req, rec)

		require.NoError(t, s.executeHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, "req-1", captured.ID)
		assert.Equal(t, "command", captured.Kind)
		assert.Equal(t, "open the browser", captured.Content)
		assert.Equal(t, "office", captured.Context["room"])

		var resp models.PipelineResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, models.StatusSuccess, resp.Status)
	})

	t.Run("rejected plan is HTTP 200", func(t *testing.T) {
		s := testServerWith(processorFunc(func(_ context.Context, req models.Request) *models.PipelineResponse {
			return &models.PipelineResponse{
				RequestID: req.ID,
				Status:    models.StatusRejected,
				Reason:    "'file_delete' not allowed",
				Timestamp: models.Now(),
			}
		}))

		e := echo.New()
		req, rec := postJSON("/api/actions/execute", `{"content": "delete it all"}`)
		c := e.NewContext(req, rec)

		require.NoError(t, s.executeHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp models.PipelineResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, models.StatusRejected, resp.Status)
		assert.Equal(t, "'file_delete' not allowed", resp.Reason)
	})

	t.Run("pipeline error is HTTP 500 with envelope", func(t *testing.T) {
		s := testServerWith(processorFunc(func(_ context.Context, req models.Request) *models.PipelineResponse {
			return &models.PipelineResponse{
				RequestID: req.ID,
				Status:    models.StatusError,
				Error:     "llm_unavailable",
				Timestamp: models.Now(),
			}
		}))

		e := echo.New()
		req, rec := postJSON("/api/actions/execute", `{"content": "hello"}`)
		c := e.NewContext(req, rec)

		require.NoError(t, s.executeHandler(c))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp models.PipelineResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "llm_unavailable", resp.Error)
	})

	t.Run("missing content is a bind error", func(t *testing.T) {
		s := testServerWith(nil)

		e := echo.New()
		req, rec := postJSON("/api/actions/execute", `{"content": "  "}`)
		c := e.NewContext(req, rec)

		err := s.executeHandler(c)
		require.Error(t, err)
		httpErr, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
}

func TestAllowedActionsHandler(t *testing.T) {
	s := testServerWith(nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/actions/allowed", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.allowedActionsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp AllowedActionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"open_app", "search_web", "send_notification"}, resp.AllowedActions)
}

func TestHistoryHandler(t *testing.T) {
	t.Run("returns audit tail", func(t *testing.T) {
		log, err := audit.New("", true)
		require.NoError(t, err)
		log.Record(&models.PipelineResponse{RequestID: "a", Status: models.StatusSuccess})
		log.Record(&models.PipelineResponse{RequestID: "b", Status: models.StatusPartial})

		s := testServerWith(nil)
		s.auditLog = log

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/actions/history?limit=1", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, s.historyHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HistoryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.History, 1)
		assert.Equal(t, "b", resp.History[0].RequestID)
	})

	t.Run("invalid limit", func(t *testing.T) {
		s := testServerWith(nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/actions/history?limit=zero", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := s.historyHandler(c)
		require.Error(t, err)
		httpErr, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("empty history is an array", func(t *testing.T) {
		s := testServerWith(nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/actions/history", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, s.historyHandler(c))
		assert.JSONEq(t, `{"history": []}`, rec.Body.String())
	})
}
