package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/authcore"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/rbac"
)

// Options configures the HTTP surface. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	Cookie CookieConfig
	// RateLimit applies per client IP to every route except /metrics.
	RateLimit RateLimitConfig
	// TrustProxyHeaders takes the client IP from X-Forwarded-For.
	TrustProxyHeaders bool
	// MaxBodyBytes caps JSON request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	// Registry receives HTTP and engine metrics. A private registry is
	// created when nil.
	Registry *prometheus.Registry
	Version  string
}

// publicPaths skip bearer verification. logout-all is not among them.
var publicPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/register",
	"/api/v1/auth/refresh",
	"/api/v1/auth/logout",
}

// API is the HTTP layer over one engine.
type API struct {
	engine     *authcore.Engine
	logger     *slog.Logger
	cookie     CookieConfig
	refreshTTL time.Duration
	maxBody    int64
	version    string

	mux     *http.ServeMux
	handler http.Handler
	metrics *httpMetrics
	guards  middleware.Guards
}

// New builds the routes for engine.
func New(engine *authcore.Engine, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(promexport.NewCollector(engine))

	a := &API{
		engine:     engine,
		logger:     logger,
		cookie:     opts.Cookie.withDefaults(),
		refreshTTL: engine.Config().Refresh.TTL,
		maxBody:    maxBody,
		version:    opts.Version,
		mux:        http.NewServeMux(),
		metrics:    newHTTPMetrics(reg),
	}
	a.guards = middleware.Guards{Denied: func(w http.ResponseWriter, r *http.Request, err error) {
		a.writeError(w, r, err)
	}}

	authed := a.guards.RequireAuthenticated()
	perm := a.guards.RequirePermission

	a.handle("GET /api/v1/auth/health", http.HandlerFunc(a.health))
	a.handle("POST /api/v1/auth/register", http.HandlerFunc(a.register))
	a.handle("POST /api/v1/auth/login", http.HandlerFunc(a.login))
	a.handle("POST /api/v1/auth/refresh", http.HandlerFunc(a.refresh))
	a.handle("POST /api/v1/auth/logout", http.HandlerFunc(a.logout))
	a.handle("POST /api/v1/auth/logout-all", authed(http.HandlerFunc(a.logoutAll)))

	a.handle("PATCH /api/v1/admin/assign-role", perm(rbac.RoleAssign)(http.HandlerFunc(a.assignRole)))
	a.handle("PATCH /api/v1/admin/assign-permission", perm(rbac.PermissionAssign)(http.HandlerFunc(a.assignPermissions)))

	a.handle("GET /api/v1/account/view-account", perm(rbac.AccountView)(http.HandlerFunc(a.viewAccount)))
	a.handle("POST /api/v1/account/change-password", perm(rbac.PasswordChange)(http.HandlerFunc(a.changePassword)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})

	var h http.Handler = a.mux
	h = middleware.Gate(engine, middleware.GateOptions{
		PublicPaths:    publicPaths,
		PublicPrefixes: []string{"/api/v1/auth/health"},
		Logger:         logger,
	})(h)
	h = withClientIP(opts.TrustProxyHeaders, h)
	if opts.RateLimit.PerSecond > 0 {
		h = newIPLimiter(opts.RateLimit, opts.TrustProxyHeaders).middleware(h)
	}
	h = securityHeaders(h)
	h = logging(logger, opts.TrustProxyHeaders, h)

	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	root.Handle("/", h)
	a.handler = root
	return a
}

func (a *API) handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, a.metrics.instrument(pattern, h))
}

// Handler returns the root handler, including /metrics.
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authcore",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
