package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/newsdigest/internal/auth"
	"github.com/hitoshi/newsdigest/internal/bookmark"
	"github.com/hitoshi/newsdigest/internal/config"
	"github.com/hitoshi/newsdigest/internal/database"
	"github.com/hitoshi/newsdigest/internal/digest"
	"github.com/hitoshi/newsdigest/internal/enrich"
	"github.com/hitoshi/newsdigest/internal/handler"
	"github.com/hitoshi/newsdigest/internal/importer"
	"github.com/hitoshi/newsdigest/internal/item"
	"github.com/hitoshi/newsdigest/internal/logger"
	"github.com/hitoshi/newsdigest/internal/metrics"
	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/pending"
	"github.com/hitoshi/newsdigest/internal/reaction"
	"github.com/hitoshi/newsdigest/internal/repository"
	"github.com/hitoshi/newsdigest/internal/security"
	"github.com/hitoshi/newsdigest/internal/storage"
	"github.com/hitoshi/newsdigest/internal/user"
	"github.com/hitoshi/newsdigest/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
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
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(w, cfg, commandArgs(args))
	case CommandImport:
		return runImport(w, os.Stdin, cfg, commandArgs(args))
	case CommandCreateAdmin:
		return runCreateAdmin(w, cfg, commandArgs(args))
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config, pool database.PoolConfig) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newAuthService は設定済みのOAuthプロバイダーとメール送信手段で認証サービスを構築する。
func newAuthService(cfg *config.Config, db *sql.DB) *auth.Service {
	var providers []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.BaseURL + "/auth/google/callback",
		}))
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.BaseURL + "/auth/github/callback",
		}))
	}

	var mailer auth.Mailer
	if cfg.SMTPEnabled() {
		mailer = auth.NewSMTPMailer(auth.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		slog.Warn("SMTP_HOST is not set; magic links are written to the log")
		mailer = auth.NewLogMailer(slog.Default())
	}

	repos := auth.Repositories{
		Users:      repository.NewPostgresUserRepo(db),
		Identities: repository.NewPostgresIdentityRepo(db),
		Roles:      repository.NewPostgresRoleRepo(db),
		Sessions:   repository.NewPostgresSessionRepo(db),
		MagicLinks: repository.NewPostgresMagicLinkRepo(db),
	}

	return auth.NewService(repos, providers, mailer, auth.NewLinkLimiter(5, 20), auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BaseURL:       cfg.BaseURL,
		MagicLinkTTL:  cfg.MagicLinkTTL,
	})
}

// rateLimiterConfig は設定値（req/min）からレート制限設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
	rl.GeneralBurst = cfg.RateLimitGeneral
	rl.AuthRate = middleware.PerMinute(cfg.RateLimitAuth)
	rl.AuthBurst = cfg.RateLimitAuth
	rl.ImportRate = middleware.PerMinute(cfg.RateLimitImport)
	rl.ImportBurst = cfg.RateLimitImport
	return rl
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg, database.PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	digestRepo := repository.NewPostgresDigestRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	reactionRepo := repository.NewPostgresReactionRepo(db)
	bookmarkRepo := repository.NewPostgresBookmarkRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. ドメインサービスの初期化
	authService := newAuthService(cfg, db)
	digestService := digest.NewService(digestRepo)
	itemService := item.NewService(itemRepo, digestRepo)
	reactionService := reaction.NewService(reactionRepo, itemService)
	bookmarkService := bookmark.NewService(bookmarkRepo, itemService)
	userService := user.NewService(userRepo, sessionRepo, roleRepo).WithIdentities(repository.NewPostgresIdentityRepo(db))
	pendingActions := pending.NewCoordinator(cfg.PendingActionTTL)

	feedSource := importer.NewFeedSource(ssrfGuard, sanitizer, slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize)
	previewClient := enrich.NewClient(ssrfGuard, sanitizer, slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize)
	imageStore := storage.NewLocalStore(cfg.UploadDir, cfg.UploadPublicURL(), cfg.UploadMaxSize)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	// 5. ハンドラーの構築
	cookie := handler.CookieConfig{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		AdminChecker:      authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			MaxAge:         cfg.SessionMaxAge,
			AllowedOrigins: append(middleware.ParseAllowedOrigins(cfg.CORSAllowedOrigin), cfg.BaseURL),
		},
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(registry),
		UploadsDir:        imageStore.Root(),
		HSTS:              cfg.CookieSecure,

		Auth: handler.NewAuthHandler(authService, pendingActions, handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			Cookie:        cookie,
			SessionMaxAge: cfg.SessionMaxAge,
		}),
		Users:   handler.NewUserHandler(userService, cookie),
		Digests: handler.NewDigestHandler(digestService),
		Items:   handler.NewItemHandler(itemService),
		Readers: handler.NewReaderHandler(reactionService, bookmarkService, pendingActions, cfg.CookieSecure),
		Imports: handler.NewImportHandler(feedSource, importer.NewBatch(itemService), collector),
		Media:   handler.NewMediaHandler(imageStore, previewClient, cfg.UploadMaxSize),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pendingActions.Run(gctx, time.Minute)
		return nil
	})

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 記事のリンク先メタデータ補完と認証データのクリーンアップを定期実行し、
// メトリクスを WORKER_METRICS_PORT で公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg, database.PoolConfig{MaxOpenConns: 5, MaxIdleConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 補完ジョブの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()
	previewClient := enrich.NewClient(ssrfGuard, sanitizer, slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize)

	batchCfg := enrich.DefaultBatchConfig()
	batchCfg.Interval = cfg.EnrichInterval
	batchCfg.BatchSize = cfg.EnrichBatchSize
	enrichJob := enrich.NewBatchJob(repository.NewPostgresItemRepo(db), previewClient, slog.Default(), batchCfg).
		WithRecorder(collector)

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.RetentionDays = cfg.SessionRetentionDays

	// 4. メトリクスサーバー
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(registry))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	slog.Info("worker starting",
		slog.Duration("enrich_interval", cfg.EnrichInterval),
		slog.Int("enrich_batch_size", cfg.EnrichBatchSize),
	)

	g.Go(func() error {
		enrichJob.Start(gctx)
		return nil
	})

	// クリーンアップは日次
	g.Go(func() error {
		cleanupJob.Start(gctx, 24*time.Hour)
		return nil
	})

	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down worker...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしなら未適用分をすべて適用し、down N で N 段戻し、version で現在のバージョンを表示する。
func runMigrate(w io.Writer, cfg *config.Config, args []string) error {
	plan, err := database.ParseMigrationArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("action", string(plan.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.ApplyMigrations(cfg.DatabaseURL, plan)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Int("version", int(status.Version)),
		slog.Bool("dirty", status.Dirty),
	)
	if plan.Action == database.MigrateVersion {
		fmt.Fprintf(w, "version %d (dirty=%t)\n", status.Version, status.Dirty)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はログ用に接続URLのパスワードとクエリを伏せる。解釈できなければ全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
