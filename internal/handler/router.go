package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/moodmate/internal/metrics"
	"github.com/hitoshi/moodmate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// ヘルスチェック
	HealthCheck HealthChecker

	// 認証・プロフィール
	AuthService AuthServiceInterface

	// ジャーナル
	JournalService JournalServiceInterface

	// 気分予測
	Predictor PredictorInterface

	// /metrics エンドポイント。nilの場合は公開しない
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS → (保護ルート) Session → RateLimit(General)
//
// 登録・ログインはIPごとのレート制限のみ、ログアウトはセッションなしでも成功させるため保護ルートの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Metrics))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	journalHandler := NewJournalHandler(deps.JournalService)
	predictHandler := NewPredictHandler(deps.Predictor)
	healthHandler := NewHealthHandler(deps.HealthCheck)

	// --- 認証不要のルート ---

	r.Get("/api/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
		r.Post("/logout", authHandler.Logout)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.Authenticator))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/profile", authHandler.GetProfile)
			r.Put("/profile", authHandler.UpdateProfile)
			r.Put("/profile-photo", authHandler.UpdateProfilePhoto)
			r.Delete("/profile-photo", authHandler.ResetProfilePhoto)
			r.Put("/change-password", authHandler.ChangePassword)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/journal", func(r chi.Router) {
			r.Post("/", journalHandler.Create)
			r.Get("/", journalHandler.List)
			r.Get("/{id}", journalHandler.Get)
			r.Delete("/{id}", journalHandler.Delete)
		})

		r.Post("/api/predict-mood", predictHandler.PredictMood)
	})

	return r
}
