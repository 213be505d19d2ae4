package routes

import (
	"net/http"

	"github.com/coinkrazygaming/coinkrazy2-sub002/app"
	"github.com/coinkrazygaming/coinkrazy2-sub002/middleware"
	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/coinkrazygaming/coinkrazy2-sub002/utils"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes configures all application routes. Every route, including the
// not-found and method-not-allowed fallbacks, runs behind the same pipeline.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	logger := deps.Logger

	pipeline := middleware.NewPipeline(deps.Errors.Handle, logger,
		middleware.RequestID(),
		middleware.RealIP(deps.TrustedProxies),
		middleware.RateLimit(deps.RateLimiter, logger),
		middleware.SecurityHeaders(cfg.IsProduction()),
		middleware.CORS(cfg.AllowedOrigins()),
		middleware.Body(cfg.Body.MaxBytes),
		middleware.AttachPrincipal(deps.Tokens, logger),
	)
	public := func(h middleware.HandlerFunc) http.Handler { return pipeline.Route(models.TierPublic, h) }

	r := chi.NewRouter()
	if cfg.Server.WriteTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))
	}

	// Preflight requests land here and are answered by the CORS stage
	r.NotFound(public(notFound).ServeHTTP)
	r.MethodNotAllowed(public(methodNotAllowed).ServeHTTP)

	// Health check endpoints
	r.Method(http.MethodGet, "/health", public(deps.HealthHandler.HandleHealth))
	r.Method(http.MethodGet, "/health/ready", public(deps.HealthHandler.HandleReadiness))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Method(http.MethodPost, "/register", public(deps.AuthHandler.HandleRegister))
			r.Method(http.MethodPost, "/login", public(deps.AuthHandler.HandleLogin))
			r.Method(http.MethodPost, "/logout", public(deps.AuthHandler.HandleLogout))
			r.Method(http.MethodGet, "/me", pipeline.Route(models.TierUser, deps.AuthHandler.HandleMe))

			r.Method(http.MethodGet, "/oauth/{provider}", public(deps.AuthHandler.HandleOAuthBegin))
			r.Method(http.MethodGet, "/oauth/{provider}/callback", public(deps.AuthHandler.HandleOAuthCallback))
		})

		r.Method(http.MethodGet, "/staff/users/{id}", pipeline.Route(models.TierStaff, deps.UserHandler.HandleGet))

		r.Route("/admin/users", func(r chi.Router) {
			r.Method(http.MethodGet, "/", pipeline.Route(models.TierAdmin, deps.UserHandler.HandleList))
			r.Method(http.MethodPatch, "/{id}/roles", pipeline.Route(models.TierAdmin, deps.UserHandler.HandleUpdateRoles))
		})
	})

	return r
}

func notFound(_ http.ResponseWriter, _ *http.Request) error {
	return services.NewDomainError(services.ErrorTypeNotFound, "endpoint not found", nil)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) error {
	return utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}
