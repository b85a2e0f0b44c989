// Package api expone la API HTTP de tokenguard sobre chi. Cada operación de
// negocio corre dentro del pipeline de eventos y escribe en el ledger del request.
package api

import (
	"context"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/http/errors"
	mw "github.com/dropDatabas3/tokenguard/internal/http/middlewares"
	"github.com/dropDatabas3/tokenguard/internal/jwt"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/rate"
	"github.com/dropDatabas3/tokenguard/internal/scheduler"
	"github.com/dropDatabas3/tokenguard/internal/token"
)

// Nombres de eventos que disparan los endpoints.
const (
	EventValidateCheck            = "validate_check"
	EventValidateTriggerChallenge = "validate_triggerchallenge"
	EventAuditSearch              = "audit_search"
	EventTokenInit                = "token_init"
)

// Events lista los eventos disponibles para las definiciones.
var Events = []string{EventValidateCheck, EventValidateTriggerChallenge, EventAuditSearch, EventTokenInit}

// Deps son las dependencias del router.
type Deps struct {
	Tokens    *token.Service
	Ledgers   *audit.Factory
	Pipeline  *event.Pipeline
	Events    *event.Loader
	Manager   *event.Manager
	Handlers  *event.Registry
	Scheduler *scheduler.Scheduler
	Runner    *scheduler.Runner
	Tasks     *scheduler.Modules
	// Node es el nombre de este nodo para /periodictask/run.
	Node string

	// Issuer nil deshabilita la validación de access tokens.
	Issuer       *jwt.Issuer
	EnforceAdmin bool
	// Limiter nil deshabilita el rate limit de /validate.
	Limiter rate.Limiter
	// TrustedProxies: peers cuyo X-Forwarded-For se usa como IP de cliente.
	TrustedProxies []netip.Prefix

	// Ping verifica el storage para /healthz.
	Ping    func(ctx context.Context) error
	Version string
}

type API struct {
	d Deps
}

// NewRouter arma el handler completo.
func NewRouter(d Deps) http.Handler {
	a := &API{d: d}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, errors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, errors.ErrMethodNotAllowed)
	})
	r.Use(mw.WithRequestID(), mw.WithClientIP(d.TrustedProxies), mw.WithLogging(), mw.WithRecover(), metrics.WithMetrics)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.WithRateLimit(d.Limiter, mw.IPRateKey), mw.WithAuth(d.Issuer), mw.WithAudit(d.Ledgers))
		r.Post("/validate/check", a.validateCheck)
		r.Post("/validate/triggerchallenge", a.triggerChallenge)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.WithAuth(d.Issuer), mw.RequireAdmin(d.EnforceAdmin), mw.WithAudit(d.Ledgers))

		r.Route("/token", func(r chi.Router) {
			r.Post("/init", a.tokenInit)
			r.Get("/{serial}", a.tokenGet)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", a.auditSearch)
			r.Get("/export.csv", a.auditExportCSV)
			r.Get("/export.json", a.auditExportJSON)
		})

		r.Route("/event", func(r chi.Router) {
			r.Get("/", a.eventList)
			r.Post("/", a.eventSave)
			r.Get("/handlermodules", a.eventHandlerModules)
			r.Get("/actions/{module}", a.eventActions)
			r.Get("/conditions", a.eventConditions)
			r.Get("/available", a.eventAvailable)
			r.Post("/enable/{id}", a.eventEnable)
			r.Post("/disable/{id}", a.eventDisable)
			r.Get("/{id}", a.eventGet)
			r.Delete("/{id}", a.eventDelete)
		})

		r.Route("/periodictask", func(r chi.Router) {
			r.Get("/", a.taskList)
			r.Post("/", a.taskSave)
			r.Get("/taskmodules", a.taskModules)
			r.Get("/options/{module}", a.taskOptions)
			r.Post("/enable/{id}", a.taskEnable)
			r.Post("/disable/{id}", a.taskDisable)
			r.Post("/run/{id}", a.taskRun)
			r.Get("/{id}", a.taskGet)
			r.Delete("/{id}", a.taskDelete)
		})
	})
	return r
}

// wrap corre body dentro del pipeline de eventos y escribe la respuesta.
func (a *API) wrap(w http.ResponseWriter, r *http.Request, name string, req *event.Request, body event.Body) {
	ctx := r.Context()
	cfg := event.NewConfig(nil)
	if a.d.Events != nil {
		loaded, err := a.d.Events.Load(ctx)
		if err != nil {
			errors.WriteError(w, err)
			return
		}
		cfg = loaded
	}
	if a.d.Pipeline == nil {
		resp, err := body(ctx, req)
		writeResponse(w, resp, err)
		return
	}
	resp, err := a.d.Pipeline.Wrap(ctx, cfg, name, req, body)
	writeResponse(w, resp, err)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if a.d.Ping != nil {
		if err := a.d.Ping(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{"status": status, "version": a.d.Version})
}
