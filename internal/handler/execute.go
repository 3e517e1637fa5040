package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/sanitize"
)

// maxExecuteBody caps the request body; code itself is capped lower by the
// settings rules, this only stops abuse.
const maxExecuteBody = 1 << 20

// maxLanguageID bounds the language id so it stays a short key in logs and
// error messages.
const maxLanguageID = 64

// ExecuteHandler runs code submitted by the page.
type ExecuteHandler struct {
	exec   executor.Executor
	logger *slog.Logger
}

func NewExecuteHandler(exec executor.Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// ExecuteResponse is the ExecutionResult plus an HTML rendering of it that
// the page can insert as-is.
type ExecuteResponse struct {
	*executor.ExecutionResult
	HTML string `json:"html"`
}

// HandleExecute handles POST /api/execute.
//
// Program failures (unsupported language, runtime error) are still 200: the
// request succeeded and the result says what happened. Only malformed
// requests and infrastructure faults are HTTP errors.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxExecuteBody)

	var req executor.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "request body must be JSON like {\"code\":\"...\",\"language\":\"javascript\"}"))
		return
	}

	req.Language = strings.TrimSpace(req.Language)
	if req.Language == "" {
		writeError(w, apperror.ValidationFailed("language", "language is required"))
		return
	}
	if len(req.Language) > maxLanguageID {
		writeError(w, apperror.ValidationFailed("language",
			fmt.Sprintf("language must be %d bytes or less", maxLanguageID)))
		return
	}

	result, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		h.logger.Error("code execution failed",
			slog.String("language", req.Language),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	resp := ExecuteResponse{ExecutionResult: result}
	if result.OK() {
		resp.HTML = sanitize.Output(result.Text())
	} else {
		resp.HTML = sanitize.Strip(result.Error)
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleLanguages handles GET /api/languages.
func (h *ExecuteHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"languages": h.exec.Languages()})
}
