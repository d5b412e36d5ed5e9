package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/chargesync/internal/middleware"
	"github.com/hitoshi/chargesync/internal/model"
	"github.com/hitoshi/chargesync/internal/worker/syncer"
)

// SyncRunner は同期ハンドラーが必要とするパス実行のインターフェース。
// *syncer.Runnerが実装する。
type SyncRunner interface {
	Run(ctx context.Context, purge bool) (syncer.Result, error)
}

// SyncHandler は手動同期トリガーのHTTPハンドラー。
type SyncHandler struct {
	runner SyncRunner
	logger *slog.Logger
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(runner SyncRunner, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		runner: runner,
		logger: logger,
	}
}

// syncResponse は同期パス完了時のレスポンスボディ。
type syncResponse struct {
	RunID      string `json:"run_id"`
	CheckIns   int    `json:"check_ins"`
	DurationMs int64  `json:"duration_ms"`
}

// TriggerSync は同期パスを1回実行し、完了後に結果を返す。
// POST /api/sync?purge=true|false
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	purge := false
	if raw := r.URL.Query().Get("purge"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			middleware.WriteAPIError(w, model.NewInvalidPurgeError(raw))
			return
		}
		purge = v
	}

	result, err := h.runner.Run(r.Context(), purge)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			middleware.WriteAPIError(w, model.NewSyncInProgressError())
			return
		}
		h.logger.Error("手動同期に失敗しました",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()),
		)
		middleware.WriteAPIError(w, model.NewSyncFailedError(result.RunID))
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		RunID:      result.RunID,
		CheckIns:   result.CheckIns,
		DurationMs: result.Duration.Milliseconds(),
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
