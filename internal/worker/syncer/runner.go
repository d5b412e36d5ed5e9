// Package syncer はCloudKit同期パスの実行制御とバックグラウンドスケジューリングを提供する。
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/chargesync/internal/metrics"
	"github.com/hitoshi/chargesync/internal/model"
)

// ErrSyncInProgress は同期パスが既に実行中であることを表す。
var ErrSyncInProgress = errors.New("sync already in progress")

// SyncService はチェックインとユーザーの同期処理のインターフェース。
// *checkin.SyncManagerが実装する。
type SyncService interface {
	SyncCheckIns(ctx context.Context, purge bool) ([]model.CheckIn, error)
	SyncUsers(ctx context.Context, checkIns []model.CheckIn, purge bool) error
}

// Result は1回の同期パスの結果。
type Result struct {
	RunID    string
	CheckIns int
	Duration time.Duration
}

// Runner は同期パスを1つずつ実行する。
// 実行中に別のパスが要求された場合は待たずにErrSyncInProgressを返す。
type Runner struct {
	service SyncService
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu    sync.Mutex
	newID func() string
}

// NewRunner はRunnerの新しいインスタンスを生成する。
func NewRunner(service SyncService, collector metrics.MetricsCollector, logger *slog.Logger) *Runner {
	return &Runner{
		service: service,
		metrics: collector,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Run は同期パスを1回実行する。チェックインの同期に続いてユーザーの同期を行う。
// 2つのパスの間にトランザクション的な一貫性は無い。
func (r *Runner) Run(ctx context.Context, purge bool) (Result, error) {
	if !r.mu.TryLock() {
		r.metrics.RecordRun(metrics.ResultSkipped, 0)
		return Result{}, ErrSyncInProgress
	}
	defer r.mu.Unlock()

	result := Result{RunID: r.newID()}
	logger := r.logger.With(slog.String("run_id", result.RunID))
	start := time.Now()

	logger.Info("同期パスを開始します", slog.Bool("purge", purge))

	checkIns, err := r.service.SyncCheckIns(ctx, purge)
	if err == nil {
		result.CheckIns = len(checkIns)
		err = r.service.SyncUsers(ctx, checkIns, purge)
	}
	result.Duration = time.Since(start)

	if err != nil {
		r.metrics.RecordRun(metrics.ResultFailure, result.Duration)
		logger.Error("同期パスに失敗しました",
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
		)
		return result, fmt.Errorf("同期パス %s に失敗しました: %w", result.RunID, err)
	}

	r.metrics.RecordRun(metrics.ResultSuccess, result.Duration)
	logger.Info("同期パスが完了しました",
		slog.Int("check_ins", result.CheckIns),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)
	return result, nil
}
