package event

import (
	"context"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tokenguard/internal/cache"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/email"
)

// OptionSpec describe una opción de una acción.
type OptionSpec struct {
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description"`
}

// Handler es la estrategia de un módulo de eventos.
type Handler interface {
	Kind() Kind
	// Actions lista acciones y sus opciones.
	Actions() map[string]map[string]OptionSpec
	// CheckCondition evalúa las condiciones de la definición.
	CheckCondition(ctx context.Context, inv *Invocation) bool
	// Do ejecuta la acción. false sin error es "no se hizo nada"; un error
	// corta la operación envuelta.
	Do(ctx context.Context, action string, inv *Invocation) (bool, error)
}

// Deps son las dependencias compartidas por los handlers.
type Deps struct {
	Tokens     repository.TokenRepository
	Cache      cache.Client
	Mailer     email.Sender
	ScriptDir  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type constructor func(Deps) Handler

var constructors = map[Kind]constructor{
	KindToken:            func(d Deps) Handler { return &TokenHandler{tokens: d.Tokens} },
	KindUserNotification: func(d Deps) Handler { return &NotificationHandler{mailer: d.Mailer} },
	KindScript:           func(d Deps) Handler { return &ScriptHandler{dir: d.ScriptDir} },
	KindRequestMangler:   func(d Deps) Handler { return &RequestMangler{} },
	KindResponseMangler:  func(d Deps) Handler { return &ResponseMangler{} },
	KindCounter:          func(d Deps) Handler { return &CounterHandler{cache: d.Cache} },
	KindLogging:          func(d Deps) Handler { return &LoggingHandler{log: d.Logger} },
	KindWebHook:          func(d Deps) Handler { return &WebHookHandler{client: d.HTTPClient} },
}

// Registry resuelve módulo → handler. Se arma una vez al arrancar.
type Registry struct {
	handlers map[Kind]Handler
}

// NewRegistry construye un handler por Kind.
func NewRegistry(d Deps) *Registry {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	r := &Registry{handlers: make(map[Kind]Handler, len(constructors))}
	for k, c := range constructors {
		r.handlers[k] = c(d)
	}
	return r
}

// Get retorna el handler del módulo o nil si es desconocido.
func (r *Registry) Get(module string) Handler {
	k, ok := ParseKind(module)
	if !ok {
		return nil
	}
	return r.handlers[k]
}

// Modules lista los nombres de módulo ordenados.
func (r *Registry) Modules() []string {
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}
