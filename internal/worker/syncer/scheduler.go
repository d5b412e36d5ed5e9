package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// PassRunner は同期パスの実行インターフェース。*Runnerが実装する。
type PassRunner interface {
	Run(ctx context.Context, purge bool) (Result, error)
}

// Scheduler は一定間隔で同期パスを実行する。
// 失敗が続いた場合は指数バックオフで次回の実行を遅らせる。
type Scheduler struct {
	runner       PassRunner
	logger       *slog.Logger
	purgeOnStart bool
	now          func() time.Time

	consecutiveFailures int
	nextAttempt         time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// purgeOnStartがtrueの場合、起動直後の1回目のパスをpurgeで実行する。
func NewScheduler(runner PassRunner, logger *slog.Logger, purgeOnStart bool) *Scheduler {
	return &Scheduler{
		runner:       runner,
		logger:       logger,
		purgeOnStart: purgeOnStart,
		now:          time.Now,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Bool("purge_on_start", s.purgeOnStart),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx, s.purgeOnStart)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx, false)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context, purge bool) {
	if err := s.run(ctx, purge); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("consecutive_failures", s.consecutiveFailures),
			slog.Time("next_attempt", s.nextAttempt),
		)
	}
}

// RunOnce は差分同期パスを1回実行する。
// バックオフ期間中、または別のパスが実行中の場合は何もしない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.run(ctx, false)
}

func (s *Scheduler) run(ctx context.Context, purge bool) error {
	now := s.now()
	if now.Before(s.nextAttempt) {
		s.logger.Debug("バックオフ期間中のため同期をスキップします",
			slog.Time("next_attempt", s.nextAttempt),
		)
		return nil
	}

	_, err := s.runner.Run(ctx, purge)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Info("別の同期パスが実行中のためスキップします")
		return nil
	case err != nil:
		s.consecutiveFailures++
		delay := CalculateBackoff(s.consecutiveFailures - 1)
		if IsPermanent(err) {
			delay = maxBackoff
		}
		s.nextAttempt = now.Add(delay)
		return err
	}

	s.consecutiveFailures = 0
	s.nextAttempt = time.Time{}
	return nil
}
