package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/newsdigest/internal/middleware"
)

// HealthChecker はDB接続の疎通確認のインターフェース。*sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	AdminChecker      middleware.AdminChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	StatusRecorder    middleware.StatusRecorder // nilの場合はステータスを記録しない
	MetricsHandler    http.Handler              // nilの場合は /metrics を公開しない

	// 画像配信（空の場合は /uploads/ を公開しない）
	UploadsDir string
	// HSTS はHTTPS公開時にStrict-Transport-Securityを付ける。
	HSTS bool

	Auth    *AuthHandler
	Users   *UserHandler
	Digests *DigestHandler
	Items   *ItemHandler
	Readers *ReaderHandler
	Imports *ImportHandler
	Media   *MediaHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Logging → Metrics → CSRF → OptionalSession → RateLimit
//
// 管理者ルート（/api/admin/*）はさらに Session → Admin を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{
		HSTS:               deps.HSTS,
		PublicAssetsPrefix: "/uploads/",
	}))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	// --- ミドルウェアチェーン外のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadsDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// 認証ルート（OAuth、メールリンク、管理者ログイン）
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Get("/providers", deps.Auth.Providers)
			r.Get("/{provider}/login", deps.Auth.Login)
			r.Get("/{provider}/callback", deps.Auth.Callback)
			r.Post("/magic-link", deps.Auth.RequestMagicLink)
			r.Get("/magic-link/callback", deps.Auth.MagicLinkCallback)
			r.Post("/admin/login", deps.Auth.AdminLogin)
			r.Post("/logout", deps.Auth.Logout)
			r.Get("/me", deps.Users.Me)
		})

		// 読者向けルート（未ログインでも閲覧可、操作はログイン後に保留実行）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/api/digests", deps.Digests.ListPublished)
			r.Get("/api/digests/latest", deps.Digests.Latest)
			r.Get("/api/feed/{kind}", deps.Items.Feed)
			r.Get("/api/search", deps.Items.Search)

			r.Route("/api/items/{id}", func(r chi.Router) {
				r.Get("/", deps.Items.GetPublished)
				r.Get("/reactions", deps.Readers.Reactions)
				r.Post("/reactions", deps.Readers.ToggleReaction)
				r.Put("/bookmark", deps.Readers.ToggleBookmark)
			})

			r.Get("/api/bookmarks", deps.Readers.Bookmarks)

			r.Route("/api/users/me", func(r chi.Router) {
				r.Get("/", deps.Users.Me)
				r.Delete("/", deps.Users.Withdraw)
			})
		})

		// 管理者ルート
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(middleware.NewAdminMiddleware(deps.AdminChecker))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Route("/digests", func(r chi.Router) {
				r.Get("/", deps.Digests.ListAll)
				r.Post("/", deps.Digests.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", deps.Digests.Get)
					r.Patch("/", deps.Digests.Update)
					r.Delete("/", deps.Digests.Delete)
					r.Post("/publish", deps.Digests.Publish)
					r.Post("/unpublish", deps.Digests.Unpublish)

					r.Get("/items", deps.Items.ListByDigest)
					r.Post("/items", deps.Items.Create)
					r.Put("/items/order", deps.Items.Reorder)

					r.With(deps.RateLimiter.ImportMiddleware()).Post("/import", deps.Imports.Import)
				})
			})

			r.Route("/items/{id}", func(r chi.Router) {
				r.Get("/", deps.Items.Get)
				r.Patch("/", deps.Items.Update)
				r.Delete("/", deps.Items.Delete)
				r.Post("/toggle-publish", deps.Items.TogglePublish)
			})

			r.Route("/import", func(r chi.Router) {
				r.Use(deps.RateLimiter.ImportMiddleware())
				r.Post("/clean", deps.Imports.Clean)
				r.Post("/analyze", deps.Imports.Analyze)
			})

			r.Post("/images", deps.Media.UploadImage)
			r.Delete("/images", deps.Media.DeleteImage)
			r.Get("/link-preview", deps.Media.LinkPreview)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
