package handler

import (
	"crypto/rsa"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/collegetrack/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.HTTPStatusRecorder
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter

	// 認証（Clerkセッショントークン）
	ClerkPublicKey *rsa.PublicKey
	ClerkAuth      middleware.AuthConfig
	Users          middleware.UserResolver

	// 公開エンドポイント
	DB               Pinger
	MetricsHandler   http.Handler
	WebhookVerifier  WebhookVerifier
	WebhookProcessor WebhookProcessor

	// ドメイン
	ListService          ListServiceInterface
	CalendarEventService CalendarEventServiceInterface
	CalendarSyncService  CalendarSyncServiceInterface
	GoogleCalendarConfig GoogleCalendarHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS → (Auth → RateLimit(General))
//
// /health、/metrics、Webhookは認証グループの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.HSTS}))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	listHandler := NewListHandler(deps.ListService)
	eventHandler := NewCalendarEventHandler(deps.CalendarEventService)
	gcalHandler := NewGoogleCalendarHandler(deps.CalendarSyncService, deps.GoogleCalendarConfig)
	webhookHandler := NewWebhookHandler(deps.WebhookVerifier, deps.WebhookProcessor)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/api/webhooks/clerk", webhookHandler.Receive)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.ClerkPublicKey, deps.Users, deps.ClerkAuth))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", Me)

		r.Route("/api/lists", func(r chi.Router) {
			r.Get("/", listHandler.ListLists)
			r.Post("/", listHandler.CreateList)
		})

		r.Route("/api/list-entries", func(r chi.Router) {
			r.Put("/", listHandler.AssignSchool)
			r.Delete("/{id}", listHandler.RemoveEntry)
		})

		r.Route("/api/dashboard", func(r chi.Router) {
			r.Get("/schools", listHandler.SchoolDashboard)
			r.Get("/supplements", eventHandler.SupplementDashboard)
		})

		r.Route("/api/calendar-events", func(r chi.Router) {
			r.Get("/", eventHandler.ListEvents)
			r.Post("/", eventHandler.UpsertEvent)
			r.Get("/unscheduled", eventHandler.ListUnscheduled)
			r.Patch("/{id}", eventHandler.UpdateSchedule)
		})

		r.Route("/api/calendar/google", func(r chi.Router) {
			r.Get("/connect", gcalHandler.Connect)
			r.Get("/callback", gcalHandler.Callback)
			r.Delete("/", gcalHandler.Disconnect)
			// Google APIへの呼び出しは専用のレート制限を追加
			r.With(deps.RateLimiter.CalendarSyncMiddleware()).Post("/events", gcalHandler.CreateEvent)
		})
	})

	return r
}
