package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"keystile.org/internal/auth"
	"keystile.org/internal/forgery"
	"keystile.org/internal/obs"
	"keystile.org/internal/session"
	"keystile.org/internal/throttle"
)

const serviceName = "keystile-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe — проверка готовности: ping БД и Redis, если они настроены.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	var errs []error
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deps — всё, что нужно HTTP слою.
type Deps struct {
	Service  *auth.Service
	Gate     *auth.Gate
	Sessions auth.SessionStore
	Cookies  *session.CookieCodec
	Throttle throttle.Limiter
	Ready    readinessChecker
	Version  string

	TrustProxy bool
	RateBurst  int
	RatePerSec float64
}

// API — HTTP слой.
type API struct {
	mux      *http.ServeMux
	svc      *auth.Service
	gate     *auth.Gate
	sessions auth.SessionStore
	cookies  *session.CookieCodec
	throttle throttle.Limiter
	ready    readinessChecker
	version  string

	trustProxy bool
	rateBurst  int
	ratePerSec float64
}

func New(d Deps) *API {
	ready := d.Ready
	if ready == nil {
		ready = ReadyProbe{}
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        d.Service,
		gate:       d.Gate,
		sessions:   d.Sessions,
		cookies:    d.Cookies,
		throttle:   d.Throttle,
		ready:      ready,
		version:    d.Version,
		trustProxy: d.TrustProxy,
		rateBurst:  d.RateBurst,
		ratePerSec: d.RatePerSec,
	}

	// health/ready/metrics
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.route("GET /forgery-token", http.HandlerFunc(a.handleForgeryToken))
	a.route("POST /register", a.forgeryGate(forgery.Required, http.HandlerFunc(a.handleRegister)))
	a.route("POST /login", a.loginThrottle(a.forgeryGate(forgery.Conditional, http.HandlerFunc(a.handleLogin))))
	a.route("POST /logout", a.forgeryGate(forgery.Conditional, http.HandlerFunc(a.handleLogout)))
	a.route("GET /profile", a.authenticate(http.HandlerFunc(a.handleProfile)))
	a.route("GET /me", a.authenticate(http.HandlerFunc(a.handleMe)))
	a.route("DELETE /users/{id}", a.forgeryGate(forgery.Conditional,
		a.authenticate(a.requireRole(http.HandlerFunc(a.handleDeleteUser), auth.RoleAdmin))))

	return a
}

// route регистрирует обработчик и под корнем, и под /api.
func (a *API) route(pattern string, h http.Handler) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		a.mux.Handle(pattern, h)
		return
	}
	a.mux.Handle(method+" "+path, h)
	a.mux.Handle(method+" /api"+path, h)
}

// Handler возвращает http.Handler со всей цепочкой middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, a.rateBurst, a.ratePerSec, a.trustProxy)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = Logging(h)
	h = RequestID(h)
	return Recover(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
