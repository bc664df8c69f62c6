package api

import (
	"github.com/ajvera/storeguard-be/internal/api/handlers"
	"github.com/ajvera/storeguard-be/internal/auth"
	"github.com/ajvera/storeguard-be/internal/config"
	"github.com/ajvera/storeguard-be/internal/monitoring"
	"github.com/ajvera/storeguard-be/internal/services"
	"github.com/ajvera/storeguard-be/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Ingestor      handlers.EventIngestor
	Events        services.EventServiceProvider
	Stores        services.StoreServiceProvider
	Rules         services.RuleServiceProvider
	Alerts        services.AlertServiceProvider
	Notifications services.NotificationServiceProvider
	Users         services.UserServiceProvider
	Notifier      handlers.SystemNotifier
	Bridge        *websocket.Bridge
	Monitor       *monitoring.SystemMonitor
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{deps.Config.DashboardOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(deps.Ingestor, deps.Events, deps.Stores)
	ruleHandler := handlers.NewRuleHandler(deps.Rules, deps.Stores)
	notificationHandler := handlers.NewNotificationHandler(deps.Notifications, deps.Notifier)
	storeHandler := handlers.NewStoreHandler(deps.Stores, deps.Alerts)
	systemHandler := handlers.NewSystemHandler(deps.Monitor, deps.Bridge)
	userHandler := handlers.NewUserHandler(deps.Users)
	wsHandler := handlers.NewWebSocketHandler(deps.Bridge, deps.Stores)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		// Terminal ingest authenticates with the store's key, not a session.
		r.Post("/events", eventHandler.Ingest)

		r.Get("/system/health", systemHandler.Health)

		r.Post("/auth/register", userHandler.Register)
		r.Post("/auth/login", userHandler.Login)

		// Everything below requires a dashboard session.
		r.Group(func(r chi.Router) {
			r.Use(auth.JWTMiddleware())

			// WebSocket connection endpoint
			r.Get("/ws", wsHandler.Serve)

			r.Get("/users/me", userHandler.GetMe)

			r.Route("/stores", func(r chi.Router) {
				r.Get("/", storeHandler.GetAll)
				r.Post("/", storeHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", storeHandler.Get)
					r.Get("/events", eventHandler.GetRecentForStore)
					r.Get("/alerts", storeHandler.GetAlerts)
					r.Get("/rules", ruleHandler.GetAllForStore)
					r.Post("/rules", ruleHandler.Create)
				})
			})

			r.Route("/rules/{ruleId}", func(r chi.Router) {
				r.Put("/", ruleHandler.Update)
				r.Delete("/", ruleHandler.Delete)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.GetAll)
				r.Get("/unread-count", notificationHandler.UnreadCount)
				r.Post("/read-all", notificationHandler.MarkAllRead)
				r.Post("/test", notificationHandler.SendTest)
				r.Get("/preferences", notificationHandler.GetPreferences)
				r.Put("/preferences", notificationHandler.UpdatePreferences)
				r.Post("/push-tokens", notificationHandler.RegisterPushToken)
				r.Post("/{id}/read", notificationHandler.MarkRead)
				r.Delete("/{id}", notificationHandler.Delete)
			})
		})
	})

	return r
}
