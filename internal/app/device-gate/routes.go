// Package devicegate предоставляет маршруты для основного приложения.
package devicegate

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/avoronkov/device-gate/internal/http/handlers/auth/google"
	"github.com/avoronkov/device-gate/internal/http/handlers/auth/login"
	"github.com/avoronkov/device-gate/internal/http/handlers/auth/refresh"
	"github.com/avoronkov/device-gate/internal/http/handlers/auth/register"
	deviceadd "github.com/avoronkov/device-gate/internal/http/handlers/device/add"
	projectcreate "github.com/avoronkov/device-gate/internal/http/handlers/project/create"
	projectlist "github.com/avoronkov/device-gate/internal/http/handlers/project/list"
	projectread "github.com/avoronkov/device-gate/internal/http/handlers/project/read"
	"github.com/avoronkov/device-gate/internal/http/handlers/project/regenerate"
	"github.com/avoronkov/device-gate/internal/http/handlers/project/rename"
	projectremove "github.com/avoronkov/device-gate/internal/http/handlers/project/remove"
	"github.com/avoronkov/device-gate/internal/http/handlers/subscription/active"
	subcreate "github.com/avoronkov/device-gate/internal/http/handlers/subscription/create"
	"github.com/avoronkov/device-gate/internal/http/handlers/subscription/days"
	subread "github.com/avoronkov/device-gate/internal/http/handlers/subscription/read"
	subupdate "github.com/avoronkov/device-gate/internal/http/handlers/subscription/update"
	userinfo "github.com/avoronkov/device-gate/internal/http/handlers/user/info"
	userremove "github.com/avoronkov/device-gate/internal/http/handlers/user/remove"
	userupdate "github.com/avoronkov/device-gate/internal/http/handlers/user/update"
	"github.com/avoronkov/device-gate/internal/http/middlewarectx"
	"github.com/avoronkov/device-gate/internal/lib/jwt"
	authservice "github.com/avoronkov/device-gate/internal/services/auth"
	projectservice "github.com/avoronkov/device-gate/internal/services/project"
	subservice "github.com/avoronkov/device-gate/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, jwtMaker jwt.Maker,
	authService *authservice.AuthService,
	projectService *projectservice.ProjectService,
	subscriptionService *subservice.SubscriptionService) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	googleHandler := google.New(logger, authService)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/register", register.New(logger, authService).ServeHTTP)
		r.Post("/auth/login", login.New(logger, authService).ServeHTTP)
		r.Post("/auth/refresh", refresh.New(logger, authService).ServeHTTP)
		r.Get("/auth/google/url", googleHandler.URL)
		r.Get("/auth/google/callback", googleHandler.Callback)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			r.Get("/users/me", userinfo.New(logger, authService).ServeHTTP)
			r.Patch("/users/me", userupdate.New(logger, authService).ServeHTTP)
			r.Delete("/users/me", userremove.New(logger, authService).ServeHTTP)

			r.Post("/projects", projectcreate.New(logger, projectService).ServeHTTP)
			r.Get("/projects", projectlist.New(logger, projectService).ServeHTTP)
			r.Get("/projects/{id}", projectread.New(logger, projectService).ServeHTTP)
			r.Patch("/projects/{id}", rename.New(logger, projectService).ServeHTTP)
			r.Delete("/projects/{id}", projectremove.New(logger, projectService).ServeHTTP)
			r.Post("/projects/{id}/regenerate-key", regenerate.New(logger, projectService).ServeHTTP)

			r.Post("/subscriptions", subcreate.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions", subread.New(logger, subscriptionService).ServeHTTP)
			r.Patch("/subscriptions", subupdate.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/active", active.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/days-remaining", days.New(logger, subscriptionService).ServeHTTP)

			r.Post("/devices", deviceadd.New(logger, subscriptionService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
