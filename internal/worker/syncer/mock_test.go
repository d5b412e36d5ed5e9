package syncer

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/chargesync/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// mockSyncService はSyncServiceのテスト用モック。
type mockSyncService struct {
	syncCheckInsFunc func(ctx context.Context, purge bool) ([]model.CheckIn, error)
	syncUsersFunc    func(ctx context.Context, checkIns []model.CheckIn, purge bool) error
}

func (m *mockSyncService) SyncCheckIns(ctx context.Context, purge bool) ([]model.CheckIn, error) {
	if m.syncCheckInsFunc != nil {
		return m.syncCheckInsFunc(ctx, purge)
	}
	return nil, nil
}

func (m *mockSyncService) SyncUsers(ctx context.Context, checkIns []model.CheckIn, purge bool) error {
	if m.syncUsersFunc != nil {
		return m.syncUsersFunc(ctx, checkIns, purge)
	}
	return nil
}

// mockMetrics はMetricsCollectorのテスト用モック。
type mockMetrics struct {
	mu   sync.Mutex
	runs []string
}

func (m *mockMetrics) RecordBatch(string, int) {}
func (m *mockMetrics) RecordTombstones(int)    {}
func (m *mockMetrics) RecordWatermark(int64)   {}
func (m *mockMetrics) RecordRun(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, result)
}

func (m *mockMetrics) results() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.runs...)
}

// mockPassRunner はPassRunnerのテスト用モック。
type mockPassRunner struct {
	runFunc func(ctx context.Context, purge bool) (Result, error)
	purges  []bool
}

func (m *mockPassRunner) Run(ctx context.Context, purge bool) (Result, error) {
	m.purges = append(m.purges, purge)
	if m.runFunc != nil {
		return m.runFunc(ctx, purge)
	}
	return Result{}, nil
}
