// Package accountaggregator предоставляет маршруты для основного приложения.
package accountaggregator

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/account/remove"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/account/restore"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/auth/link"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/billing/verify"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/billing/webhook"
	chatcreate "github.com/magabrotheeeer/account-aggregator/internal/http/handlers/chat/create"
	chatlist "github.com/magabrotheeeer/account-aggregator/internal/http/handlers/chat/list"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/health"
	sessionlist "github.com/magabrotheeeer/account-aggregator/internal/http/handlers/session/list"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/session/revoke"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/session/revokeall"
	"github.com/magabrotheeeer/account-aggregator/internal/http/handlers/trial/start"
	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/assertion"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/jwt"
	chatservice "github.com/magabrotheeeer/account-aggregator/internal/services/chat"
	entitlementservice "github.com/magabrotheeeer/account-aggregator/internal/services/entitlement"
	identityservice "github.com/magabrotheeeer/account-aggregator/internal/services/identity"
	lifecycleservice "github.com/magabrotheeeer/account-aggregator/internal/services/lifecycle"
	linkerservice "github.com/magabrotheeeer/account-aggregator/internal/services/linker"
	sessionservice "github.com/magabrotheeeer/account-aggregator/internal/services/session"
	"github.com/magabrotheeeer/account-aggregator/internal/storage/repository"
)

// RouteDeps — зависимости маршрутов приложения.
type RouteDeps struct {
	Storage       *repository.Storage
	Verifier      assertion.Verifier
	Maker         jwt.Maker
	Identity      *identityservice.Service
	Linker        *linkerservice.Service
	Lifecycle     *lifecycleservice.Service
	Sessions      *sessionservice.Service
	Entitlement   *entitlementservice.Service
	Chats         *chatservice.Service
	WebhookSecret string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps *RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	sessionAuth := middlewarectx.SessionMiddleware(deps.Maker, deps.Sessions, deps.Storage, logger)
	optionalAuth := middlewarectx.OptionalSessionMiddleware(deps.Maker, deps.Sessions, deps.Storage, logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(5, 10))
			r.Post("/trial", start.New(logger, deps.Identity).ServeHTTP)
		})
		r.Post("/link", link.New(logger, deps.Verifier, deps.Linker, deps.Sessions, deps.Maker).ServeHTTP)
		r.Post("/account/restore", restore.New(logger, deps.Verifier, deps.Storage, deps.Lifecycle).ServeHTTP)

		// Чаты: токен сессии либо отпечаток устройства
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Post("/chats", chatcreate.New(logger, deps.Chats).ServeHTTP)
		})

		// Группа с аутентификацией по токену сессии
		r.Group(func(r chi.Router) {
			r.Use(sessionAuth)
			r.Delete("/account", remove.New(logger, deps.Lifecycle, deps.Storage, deps.Verifier).ServeHTTP)
			r.Get("/sessions", sessionlist.New(logger, deps.Sessions).ServeHTTP)
			r.Delete("/sessions/{uid}", revoke.New(logger, deps.Sessions).ServeHTTP)
			r.Post("/sessions/revoke-all", revokeall.New(logger, deps.Sessions).ServeHTTP)
			r.Get("/chats", chatlist.New(logger, deps.Chats).ServeHTTP)
			r.Post("/billing/verify", verify.New(logger, deps.Entitlement).ServeHTTP)
		})

		// Webhook биллинг-провайдера (подпись вместо аутентификации)
		r.Post("/billing/webhook", webhook.New(logger, deps.Entitlement, deps.WebhookSecret).ServeHTTP)

		r.Get("/health", health.New(logger, deps.Storage).ServeHTTP)
	})
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
