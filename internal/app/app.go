package app

import (
	"context"
	"errors"
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
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/ebuddy/internal/account"
	"github.com/hitoshi/ebuddy/internal/auth"
	"github.com/hitoshi/ebuddy/internal/config"
	"github.com/hitoshi/ebuddy/internal/database"
	"github.com/hitoshi/ebuddy/internal/handler"
	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/identity/firebase"
	"github.com/hitoshi/ebuddy/internal/identity/local"
	"github.com/hitoshi/ebuddy/internal/logger"
	"github.com/hitoshi/ebuddy/internal/metrics"
	"github.com/hitoshi/ebuddy/internal/middleware"
	"github.com/hitoshi/ebuddy/internal/profile"
	"github.com/hitoshi/ebuddy/internal/repository"
	"github.com/hitoshi/ebuddy/internal/security"
	"github.com/hitoshi/ebuddy/internal/session"
	"github.com/hitoshi/ebuddy/internal/user"
	"github.com/hitoshi/ebuddy/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// identityToolkitOrigin はIDプロバイダーの本番エンドポイントのオリジン。
const identityToolkitOrigin = "https://identitytoolkit.googleapis.com"

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, w, args)
}

func run(ctx context.Context, w io.Writer, args []string) error {
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
	case CommandAPI:
		return runAPI(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// webApp はserveモードの依存関係をまとめた構造体。
type webApp struct {
	handler http.Handler
	manager *session.Manager
	limiter *middleware.RateLimiter
	janitor *cleanup.CleanupJob
}

// close はバックグラウンドの同期とレート制限のクリーンアップを停止する。
func (a *webApp) close() {
	a.manager.Close()
	a.limiter.Stop()
}

// newWebApp は全依存関係をワイヤリングしてWebアプリケーションを構築する。
func newWebApp(cfg *config.Config, reg *prometheus.Registry) (*webApp, error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. セキュリティサービスの初期化
	guard := security.NewOutboundGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. IDプロバイダー
	backend, err := newIdentityBackend(cfg, guard)
	if err != nil {
		return nil, err
	}

	// 4. プロフィールゲートウェイ
	gatewayCfg := profile.Config{
		BaseURL:        cfg.APIBaseURL,
		UseMock:        cfg.UseMockData,
		MockLatency:    cfg.MockLatency,
		SeedOnNotFound: cfg.ProfileSeedOnNotFound,
		Timeout:        cfg.ProfileTimeout,
		StaticToken:    cfg.APIStaticToken,
		Recorder:       collector,
	}
	if !cfg.UseMockData {
		client, err := guard.NewClient(cfg.APIBaseURL, cfg.ProfileTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid API_BASE_URL: %w", err)
		}
		gatewayCfg.HTTPClient = client
	}
	gateway, err := profile.New(gatewayCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile gateway: %w", err)
	}

	// 5. ブラウザコンテキスト管理
	managerCfg := session.ManagerConfig{
		Backend:  backend,
		MaxIdle:  time.Duration(cfg.SessionMaxAge) * time.Second,
		Recorder: collector,
	}
	if cfg.PlaceholderPolicyEnabled() {
		managerCfg.PlaceholderUserID = cfg.PlaceholderUserID
	}
	manager := session.NewManager(managerCfg)

	// 6. ハンドラーとルーター
	renderer, err := handler.NewRenderer(handler.DefaultHelpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitAuth, cfg.RateLimitAPI))

	router := handler.NewRouter(&handler.RouterDeps{
		Contexts:    manager,
		RateLimiter: limiter,
		Logger:      slog.Default(),
		Metrics:     metrics.Handler(reg),
		StatusHook:  collector,

		CookieSecure:  cfg.CookieSecure,
		CookieDomain:  cfg.CookieDomain,
		ContextMaxAge: cfg.SessionMaxAge,

		AuthService:    auth.NewService(collector),
		AccountService: account.NewService(gateway, sanitizer),
		Renderer:       renderer,

		Reloader: manager,
	})

	slog.Info("web application wired",
		slog.String("identity_provider", cfg.IdentityProvider),
		slog.String("profile_mode", gateway.Mode()),
	)

	return &webApp{
		handler: router,
		manager: manager,
		limiter: limiter,
		janitor: cleanup.NewCleanupJob(manager, slog.Default()),
	}, nil
}

// newIdentityBackend は設定に応じたIDプロバイダーのバックエンドを生成する。
func newIdentityBackend(cfg *config.Config, guard *security.OutboundGuard) (identity.Backend, error) {
	if cfg.IdentityProvider == config.ProviderLocal {
		backend, err := local.New(local.Config{
			SigningKey: cfg.TokenSigningKey,
			TokenTTL:   cfg.TokenTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create local identity backend: %w", err)
		}
		return backend, nil
	}

	target := identityToolkitOrigin
	if cfg.Firebase.EmulatorHost != "" {
		target = "http://" + cfg.Firebase.EmulatorHost
	}
	client, err := guard.NewClient(target, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid identity provider endpoint: %w", err)
	}
	backend, err := firebase.New(firebase.Config{
		APIKey:       cfg.Firebase.APIKey,
		EmulatorHost: cfg.Firebase.EmulatorHost,
		HTTPClient:   client,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity backend: %w", err)
	}
	return backend, nil
}

// runServe はWebアプリケーションを起動する。
// HTTPサーバーとコンテキストクリーンアップジョブを起動し、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	web, err := newWebApp(cfg, reg)
	if err != nil {
		return err
	}
	defer web.close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      web.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		return listen(server)
	})
	g.Go(func() error {
		web.janitor.Start(ctx, cfg.ContextSweepInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(server, "web")
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("web server stopped gracefully")
	return nil
}

// runAPI はプロフィールAPIサーバーを起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
func runAPI(ctx context.Context, cfg *config.Config) error {
	if err := cfg.RequireBackend(); err != nil {
		return err
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリとサービスの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	userService := user.NewService(profileRepo, security.NewTextSanitizer())

	// 3. Bearer認証
	bearer := middleware.BearerConfig{StaticToken: cfg.APIStaticToken}
	if cfg.TokenSigningKey != "" {
		bearer.Verifier = local.NewVerifier(cfg.TokenSigningKey)
	}

	// 4. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitAuth, cfg.RateLimitAPI))
	defer limiter.Stop()

	router := handler.NewAPIRouter(&handler.APIRouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Bearer:            bearer,
		RateLimiter:       limiter,
		Logger:            slog.Default(),
		Health:            db,
		ProfileService:    userService,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		return listen(server)
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(server, "API")
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen error: %w", err)
	}
	return nil
}

func shutdown(server *http.Server, name string) error {
	slog.Info("shutting down " + name + " server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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
