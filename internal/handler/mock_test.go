package handler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/hitoshi/chargesync/internal/worker/syncer"
)

// --- モック定義 ---

// mockRunner はSyncRunnerのモック実装。
type mockRunner struct {
	runFn func(ctx context.Context, purge bool) (syncer.Result, error)
	calls []bool
}

func (m *mockRunner) Run(ctx context.Context, purge bool) (syncer.Result, error) {
	m.calls = append(m.calls, purge)
	if m.runFn != nil {
		return m.runFn(ctx, purge)
	}
	return syncer.Result{}, nil
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
