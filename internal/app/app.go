package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/chargesync/internal/checkin"
	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/config"
	"github.com/hitoshi/chargesync/internal/database"
	"github.com/hitoshi/chargesync/internal/goingelectric"
	"github.com/hitoshi/chargesync/internal/handler"
	"github.com/hitoshi/chargesync/internal/logger"
	"github.com/hitoshi/chargesync/internal/metrics"
	"github.com/hitoshi/chargesync/internal/middleware"
	"github.com/hitoshi/chargesync/internal/repository"
	"github.com/hitoshi/chargesync/internal/security"
	"github.com/hitoshi/chargesync/internal/worker/syncer"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再設定する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse LOG_LEVEL: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck とladelog は軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandLadelog:
		logger.SetupDefault(w, slog.LevelInfo)
		return runLadelog(os.Stdin, os.Stdout)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("cloudkit_container", cfg.CloudKitContainer),
		slog.String("cloudkit_environment", cfg.CloudKitEnvironment),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandSync:
		purge, err := parseSyncFlags(args[1:])
		if err != nil {
			return err
		}
		return runSync(cfg, purge)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// syncComponents は同期パスの実行に必要な依存関係をまとめた構造体。
type syncComponents struct {
	db       *sql.DB
	registry *prometheus.Registry
	runner   *syncer.Runner
}

// newSyncComponents はDB接続を開き、CloudKitクライアントから同期ランナーまでを組み立てる。
// 呼び出し元はdbをCloseする責任を持つ。
func newSyncComponents(cfg *config.Config) (*syncComponents, error) {
	// 1. 接続先の静的検証
	if err := security.ValidateBaseURL(cfg.CloudKitBaseURL); err != nil {
		return nil, fmt.Errorf("invalid CLOUDKIT_BASE_URL: %w", err)
	}

	// 2. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 3. リポジトリの初期化
	checkInRepo := repository.NewPostgresCheckInRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)

	// 4. CloudKitクライアントの初期化
	client := cloudkit.NewClient(
		security.NewOutboundClient(cfg.CloudKitTimeout),
		slog.Default(),
		cloudkit.Config{
			BaseURL:           cfg.CloudKitBaseURL,
			Container:         cfg.CloudKitContainer,
			Environment:       cfg.CloudKitEnvironment,
			Database:          cfg.CloudKitDatabase,
			APIToken:          cfg.CloudKitAPIToken,
			ResultsLimit:      cfg.CloudKitResultsLimit,
			RequestsPerSecond: cfg.CloudKitRequestsPerSecond,
		},
	)

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 6. 同期マネージャとランナーの初期化
	manager := checkin.NewSyncManager(client, checkInRepo, userRepo, collector, slog.Default())
	runner := syncer.NewRunner(manager, collector, slog.Default())

	return &syncComponents{
		db:       db,
		registry: registry,
		runner:   runner,
	}, nil
}

// runServe はAPIサーバーと同期スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	comps, err := newSyncComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.db.Close()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		DB:             comps.db,
		Runner:         comps.runner,
		SyncRateLimit:  middleware.DefaultRateLimitConfig(),
		MetricsHandler: metrics.Handler(comps.registry),
	})

	// 手動同期はパス完了まで応答を返さないため、書き込みタイムアウトは長めに取る
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := syncer.NewScheduler(comps.runner, slog.Default(), cfg.SyncPurgeOnStart)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx, cfg.SyncInterval)
	}()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Duration("sync_interval", cfg.SyncInterval),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		<-schedulerDone
		return fmt.Errorf("server listen error: %w", err)
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-schedulerDone

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は同期スケジューラのみを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	comps, err := newSyncComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Bool("purge_on_start", cfg.SyncPurgeOnStart),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	syncer.NewScheduler(comps.runner, slog.Default(), cfg.SyncPurgeOnStart).Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runSync は同期パスを1回実行して終了する。
func runSync(cfg *config.Config, purge bool) error {
	comps, err := newSyncComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := comps.runner.Run(ctx, purge)
	if err != nil {
		return err
	}

	slog.Info("sync completed",
		slog.String("run_id", result.RunID),
		slog.Int("check_ins", result.CheckIns),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)
	return nil
}

// parseSyncFlags はsyncサブコマンドのフラグを解析する。
func parseSyncFlags(args []string) (bool, error) {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	purge := fs.Bool("purge", false, "delete all local check-ins and users before syncing")
	if err := fs.Parse(args); err != nil {
		return false, fmt.Errorf("invalid sync flags: %w", err)
	}
	return *purge, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runLadelog は標準入力のGoingElectricエクスポート（JSON）をCloudKitレコードに変換し、
// 結果をJSONで出力する。
func runLadelog(in io.Reader, out io.Writer) error {
	var export goingelectric.Export
	if err := json.NewDecoder(in).Decode(&export); err != nil {
		return fmt.Errorf("failed to decode ladelog export: %w", err)
	}

	converter := goingelectric.NewConverter()
	converted, err := converter.ConvertExport(export)
	if err != nil {
		return fmt.Errorf("failed to convert ladelog export: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(converted); err != nil {
		return fmt.Errorf("failed to write converted records: %w", err)
	}

	slog.Info("ladelog export converted",
		slog.String("chargepoint", converted.Chargepoint.RecordName),
		slog.Int("check_ins", len(converted.CheckIns)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
