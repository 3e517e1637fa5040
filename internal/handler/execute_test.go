package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/capture"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/handler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockExecutor is a fast executor for handler tests; no VM, no Docker.
type MockExecutor struct {
	CapturedReq executor.ExecutionRequest
	Calls       int
	ReturnRes   *executor.ExecutionResult
	ReturnErr   error
	Langs       []string
}

func (m *MockExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.Calls++
	m.CapturedReq = req
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnRes, nil
}

func (m *MockExecutor) Languages() []string {
	return m.Langs
}

func postExecute(h *handler.ExecuteHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandleExecute(rr, req)
	return rr
}

func TestExecuteHandler_HandleExecute(t *testing.T) {
	logger := testLogger()

	t.Run("success", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: &executor.ExecutionResult{
				Status:   executor.StatusSuccess,
				Language: "javascript",
				Output:   []string{"Hello World", "<b>bold</b><script>x()</script>"},
				Lines: []capture.Line{
					{Level: capture.LevelLog, Text: "Hello World"},
					{Level: capture.LevelLog, Text: "<b>bold</b><script>x()</script>"},
				},
				Duration: 100 * time.Millisecond,
			},
		}
		h := handler.NewExecuteHandler(mockExec, logger)

		rr := postExecute(h, `{"code":"console.log('Hello World')","language":"javascript"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		var res handler.ExecuteResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, executor.StatusSuccess, res.Status)
		assert.Equal(t, []string{"Hello World", "<b>bold</b><script>x()</script>"}, res.Output)
		assert.Contains(t, res.HTML, "Hello World")
		assert.Contains(t, res.HTML, "<b>bold</b>")
		assert.NotContains(t, res.HTML, "<script")

		assert.Equal(t, "console.log('Hello World')", mockExec.CapturedReq.Code)
		assert.Equal(t, "javascript", mockExec.CapturedReq.Language)
	})

	t.Run("program failure is still 200", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: &executor.ExecutionResult{
				Status:   executor.StatusFailure,
				Language: "javascript",
				Output:   []string{},
				Error:    "<i>boom</i>",
				Kind:     executor.KindRuntimeFailure,
			},
		}
		h := handler.NewExecuteHandler(mockExec, logger)

		rr := postExecute(h, `{"code":"throw new Error('boom')","language":"javascript"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		var res handler.ExecuteResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, executor.StatusFailure, res.Status)
		assert.Equal(t, executor.KindRuntimeFailure, res.Kind)
		assert.Equal(t, "<i>boom</i>", res.Error)
		assert.Empty(t, res.Output)
		assert.NotContains(t, res.HTML, "<i>", "error text is fully escaped")
		assert.Contains(t, res.HTML, "boom")
	})

	t.Run("empty code is allowed", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: &executor.ExecutionResult{Status: executor.StatusSuccess, Language: "javascript", Output: []string{}},
		}
		h := handler.NewExecuteHandler(mockExec, logger)

		rr := postExecute(h, `{"code":"","language":"javascript"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, mockExec.Calls)
	})

	t.Run("invalid request body", func(t *testing.T) {
		mockExec := &MockExecutor{}
		h := handler.NewExecuteHandler(mockExec, logger)

		rr := postExecute(h, `{"invalid_json":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Zero(t, mockExec.Calls)
	})

	t.Run("missing language", func(t *testing.T) {
		mockExec := &MockExecutor{}
		h := handler.NewExecuteHandler(mockExec, logger)

		rr := postExecute(h, `{"code":"1"}`)

		require.Equal(t, http.StatusBadRequest, rr.Code)
		var body handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "validation_error", body.Error)
		assert.Equal(t, "language", body.Field)
		assert.Zero(t, mockExec.Calls)
	})

	t.Run("overlong language id", func(t *testing.T) {
		mockExec := &MockExecutor{}
		h := handler.NewExecuteHandler(mockExec, logger)

		long := strings.Repeat("x", 65)
		rr := postExecute(h, `{"code":"1","language":"`+long+`"}`)

		require.Equal(t, http.StatusBadRequest, rr.Code)
		var body handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "language", body.Field)
		assert.NotContains(t, body.Message, long)
		assert.Zero(t, mockExec.Calls)
	})

	t.Run("64-byte language id reaches the executor", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: &executor.ExecutionResult{Status: executor.StatusFailure, Kind: executor.KindUnsupportedLanguage, Output: []string{}},
		}
		h := handler.NewExecuteHandler(mockExec, logger)

		rr := postExecute(h, `{"code":"1","language":"`+strings.Repeat("x", 64)+`"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, mockExec.Calls)
	})

	t.Run("infrastructure error", func(t *testing.T) {
		mockExec := &MockExecutor{ReturnErr: errors.New("docker daemon gone")}
		h := handler.NewExecuteHandler(mockExec, logger)

		rr := postExecute(h, `{"code":"1","language":"node"}`)

		require.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "docker daemon gone")
	})
}

func TestExecuteHandler_HandleLanguages(t *testing.T) {
	h := handler.NewExecuteHandler(&MockExecutor{Langs: []string{"javascript", "typescript"}}, testLogger())

	rr := httptest.NewRecorder()
	h.HandleLanguages(rr, httptest.NewRequest(http.MethodGet, "/api/languages", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"languages":["javascript","typescript"]}`, rr.Body.String())
}
