package app

import (
	"context"
	"database/sql"
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
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/collegetrack/internal/calendar"
	"github.com/hitoshi/collegetrack/internal/calsync"
	"github.com/hitoshi/collegetrack/internal/config"
	"github.com/hitoshi/collegetrack/internal/database"
	"github.com/hitoshi/collegetrack/internal/gcal"
	"github.com/hitoshi/collegetrack/internal/handler"
	"github.com/hitoshi/collegetrack/internal/listentry"
	"github.com/hitoshi/collegetrack/internal/logger"
	"github.com/hitoshi/collegetrack/internal/metrics"
	"github.com/hitoshi/collegetrack/internal/middleware"
	"github.com/hitoshi/collegetrack/internal/repository"
	"github.com/hitoshi/collegetrack/internal/security"
	"github.com/hitoshi/collegetrack/internal/user"
	"github.com/hitoshi/collegetrack/internal/webhook"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(logger.SetupWithLevel(w, logger.ParseLevel(cfg.LogLevel)))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	inv, err := ParseArgs(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if inv.Command == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(inv.Command)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch inv.Command {
	case CommandMigrate:
		return runMigrate(cfg, inv.MigrateDown)
	default:
		return runServe(cfg)
	}
}

// server は構築済みのHTTPハンドラーと、停止時に解放するリソースをまとめる。
type server struct {
	handler http.Handler
	closers []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// DB接続の確認は呼び出し側で行う。
func buildServer(cfg *config.Config, db *sql.DB) (*server, error) {
	srv := &server{}

	// 1. 計測
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	catalogRepo := repository.NewPostgresCatalogRepo(db)
	listRepo := repository.NewPostgresListRepo(db)
	entryRepo := repository.NewPostgresListEntryRepo(db)
	eventRepo := repository.NewPostgresCalendarEventRepo(db)

	// 3. セキュリティ
	vault, err := security.NewTokenVault(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token vault: %w", err)
	}
	clerkKey, err := middleware.ParseClerkPublicKey(cfg.ClerkJWTKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CLERK_JWT_KEY: %w", err)
	}
	verifier, err := webhook.NewClerkVerifier(cfg.ClerkWebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook verifier: %w", err)
	}

	// 4. 外部カレンダー
	sanitizer := security.NewTextSanitizer()
	gateway := gcal.NewGoogleGateway(gcal.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		CalendarID:   cfg.GoogleCalendarID,
		TimeZone:     cfg.CalendarTimeZone,
		Timeout:      cfg.UpstreamTimeout,
		Description:  sanitizer,
	})

	var locker gcal.RefreshLocker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		srv.closers = append(srv.closers, func() { client.Close() })
		locker = gcal.NewRedisRefreshLocker(client, cfg.TokenRefreshLockTTL)
		slog.Info("token refresh lock enabled", slog.String("redis_addr", opts.Addr))
	}

	// 5. ドメインサービス
	userService := user.NewService(userRepo)
	listService := listentry.NewService(listRepo, entryRepo, catalogRepo, collector)
	eventService := calendar.NewService(eventRepo, sanitizer, collector)
	syncService := calsync.NewService(gateway, vault, userService, eventService, locker, collector)
	processor := webhook.NewProcessor(userService)

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCalendarSync),
	)
	srv.closers = append(srv.closers, rateLimiter.Stop)

	srv.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		RateLimiter:       rateLimiter,

		ClerkPublicKey: clerkKey,
		ClerkAuth: middleware.AuthConfig{
			Issuer:            cfg.ClerkIssuer,
			AuthorizedParties: middleware.ParseAllowedOrigins(cfg.ClerkAuthorizedParties),
		},
		Users: userService,

		DB:               db,
		MetricsHandler:   metrics.Handler(registry),
		WebhookVerifier:  verifier,
		WebhookProcessor: processor,

		ListService:          listService,
		CalendarEventService: eventService,
		CalendarSyncService:  syncService,
		GoogleCalendarConfig: handler.GoogleCalendarHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
	})
	return srv, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	srv, err := buildServer(cfg, db)
	if err != nil {
		return err
	}
	defer srv.close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// downがfalseなら未適用のマイグレーションをすべて適用し、trueなら1段階戻す。
func runMigrate(cfg *config.Config, down bool) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("down", down),
	)

	run := database.RunMigrations
	if down {
		run = database.RollbackMigrations
	}
	if err := run(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		slog.Warn("failed to read migration version", slog.String("error", err.Error()))
	} else {
		slog.Info("database migrations completed successfully",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
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
