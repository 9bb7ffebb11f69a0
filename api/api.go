// Package api exposes the forum over HTTP.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/opweb/challenge"
	"github.com/jmcleod/opweb/forum"
	"github.com/jmcleod/opweb/ratelimit"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	forum          *forum.Service
	challenges     *challenge.Store
	limiter        *ratelimit.Limiter
	trustedProxies []netip.Prefix
	audit          *auditLogger
	logger         *slog.Logger
	basePath       string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request and audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithTrustedProxies sets the CIDR ranges whose forwarding headers are
// honored when resolving the client address for rate limiting and audit
// entries.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithRateLimiter enables per-client rate limiting on every route.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(a *API) {
		a.limiter = l
	}
}

// WithBasePath sets the prefix the router is mounted under. It is used to
// build the documentation URLs. Defaults to "/api".
func WithBasePath(path string) Option {
	return func(a *API) {
		a.basePath = path
	}
}

// New creates a new API instance.
func New(svc *forum.Service, challenges *challenge.Store, opts ...Option) *API {
	a := &API{
		forum:      svc,
		challenges: challenges,
		basePath:   "/api",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger, a.clientKey)
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	if a.limiter != nil {
		r.Use(ratelimit.Middleware(a.limiter, a.clientKey))
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    trimSlash(a.basePath + "/docs"),
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    trimSlash(a.basePath + "/redoc"),
	}, nil))

	r.Get("/health", a.Health)
	r.Get("/settings/public", a.PublicSettings)
	r.With(a.AuthMiddleware, a.requireAdmin).Put("/settings", a.UpdateSettings)

	r.Get("/auth/captcha", a.Captcha)
	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.With(a.AuthMiddleware).Get("/auth/me", a.Me)

	r.Get("/sections", a.ListSections)
	r.With(a.AuthMiddleware, a.requireAdmin).Post("/sections", a.CreateSection)
	r.With(a.AuthMiddleware, a.requireAdmin).Put("/sections/{sectionID}", a.UpdateSection)

	return r
}

func (a *API) clientKey(r *http.Request) string {
	return ratelimit.ClientIP(r, a.trustedProxies)
}

func trimSlash(p string) string {
	return strings.TrimLeft(p, "/")
}
