package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ebuddy/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Contexts    middleware.BrowserContexts
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
	Metrics     http.Handler
	StatusHook  middleware.StatusRecorder
	Health      HealthChecker

	// Cookie
	CookieSecure  bool
	CookieDomain  string
	ContextMaxAge int // 秒

	// ページ
	AuthService    AuthServiceInterface
	AccountService AccountServiceInterface
	Renderer       *Renderer

	// セッション
	Reloader SessionReloader
}

// NewRouter はページ、フォーム、セッション購読のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → Recovery → StatusMetrics → Logging → BrowserContext → CSRF
//
// 静的ファイル、/health、/metricsはブラウザコンテキストを発行しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	web := NewWebHandler(deps.AuthService, deps.AccountService, deps.Renderer, WebHandlerConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	})
	sessions := NewSessionHandler(deps.Reloader, web)

	csrfConfig := middleware.CSRFConfig{CookieSecure: deps.CookieSecure, CookieDomain: deps.CookieDomain}
	pageMiddleware := []func(http.Handler) http.Handler{
		middleware.NewBrowserContextMiddleware(deps.Contexts, middleware.CookieConfig{
			Secure: deps.CookieSecure,
			Domain: deps.CookieDomain,
			MaxAge: deps.ContextMaxAge,
		}),
		middleware.NewCSRFMiddleware(csrfConfig),
	}

	r := chi.NewRouter()
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(http.HandlerFunc(web.PanicPage)))
	if deps.StatusHook != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusHook))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))

	// --- ブラウザコンテキスト不要のルート ---
	r.Handle("/static/*", StaticHandler())
	r.Get("/health", NewHealthHandler(deps.Health))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	// --- ブラウザコンテキストが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(pageMiddleware...)

		r.Get("/", web.Home)
		r.Get("/dashboard", web.Dashboard)
		r.Post("/logout", web.Logout)
		r.Post("/theme", web.SetTheme)

		// 認証フォーム（送信のみレート制限）
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.AuthFormMiddleware())
			}
			r.Get("/login", web.LoginPage)
			r.Post("/login", web.Login)
			r.Get("/register", web.RegisterPage)
			r.Post("/register", web.Register)
		})

		// プロフィール
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", web.ProfilePage)
			r.Post("/", web.UpdateProfile)
			r.Post("/fetch", web.FetchProfile)
		})

		// セッション
		r.Get("/auth/me", sessions.Me)
		r.Get("/ws/session", sessions.Stream)
		r.Post("/session/reload", sessions.Reload)
		r.Handle("/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
	})

	notFound := http.Handler(http.HandlerFunc(web.NotFound))
	for i := len(pageMiddleware) - 1; i >= 0; i-- {
		notFound = pageMiddleware[i](notFound)
	}
	r.NotFound(notFound.ServeHTTP)

	return r
}

// APIRouterDeps はNewAPIRouterに必要な依存関係をまとめた構造体。
type APIRouterDeps struct {
	CORSAllowedOrigin string
	Bearer            middleware.BearerConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Health            HealthChecker
	ProfileService    ProfileServiceInterface
}

// NewAPIRouter はプロフィールAPIのルーティングを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → Logging → BearerAuth → RateLimit(API) → Owner
func NewAPIRouter(deps *APIRouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profiles := NewProfileAPIHandler(deps.ProfileService)

	r := chi.NewRouter()
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	r.Get("/health", NewHealthHandler(deps.Health))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Bearer))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.APIMiddleware())
		}

		r.Route("/api/user/{id}", func(r chi.Router) {
			r.Use(middleware.NewOwnerMiddleware("id"))
			r.Get("/", profiles.GetProfile)
			r.Put("/", profiles.UpdateProfile)
			r.Delete("/", profiles.DeleteProfile)
		})
	})

	return r
}
