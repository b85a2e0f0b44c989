package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/cache"
	"github.com/dropDatabas3/tokenguard/internal/challenge"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// Nombres de módulos de tarea.
const (
	ModuleChallengeCleanup = "challenge_cleanup"
	ModuleAuditRotate      = "audit_rotate"
	ModuleSimpleStats      = "simple_stats"
	ModuleEventCounter     = "event_counter"
)

var errMissingDep = errors.New("scheduler: task module dependency not configured")

// Module es el trabajo que ejecuta una tarea periódica.
type Module interface {
	Name() string
	// Options describe las opciones que acepta (nombre → descripción).
	Options() map[string]string
	Run(ctx context.Context, t *repository.PeriodicTask) error
}

// ModuleDeps son las dependencias de los módulos.
type ModuleDeps struct {
	Challenges *challenge.Store
	Audit      *audit.Factory
	Tokens     repository.TokenRepository
	Cache      cache.Client
	Now        func() time.Time
}

// Modules es el registro cerrado de módulos.
type Modules struct {
	m map[string]Module
}

// NewModules arma los módulos.
func NewModules(d ModuleDeps) *Modules {
	if d.Now == nil {
		d.Now = time.Now
	}
	mods := []Module{
		&challengeCleanup{store: d.Challenges, now: d.Now},
		&auditRotate{ledgers: d.Audit, now: d.Now},
		&simpleStats{tokens: d.Tokens},
		&eventCounter{cache: d.Cache},
	}
	out := &Modules{m: make(map[string]Module, len(mods))}
	for _, m := range mods {
		out.m[m.Name()] = m
	}
	return out
}

// Get retorna el módulo o nil.
func (m *Modules) Get(name string) Module {
	return m.m[name]
}

// Names lista los módulos ordenados.
func (m *Modules) Names() []string {
	out := make([]string, 0, len(m.m))
	for n := range m.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// challengeCleanup borra challenges vencidos.
type challengeCleanup struct {
	store *challenge.Store
	now   func() time.Time
}

func (m *challengeCleanup) Name() string               { return ModuleChallengeCleanup }
func (m *challengeCleanup) Options() map[string]string { return map[string]string{} }

func (m *challengeCleanup) Run(ctx context.Context, t *repository.PeriodicTask) error {
	if m.store == nil {
		return errMissingDep
	}
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return err
	}
	logger.From(ctx).Info("expired challenges deleted", logger.Task(t.Name), logger.Count(n))
	return nil
}

// auditRotate borra entradas de auditoría más viejas que "age".
type auditRotate struct {
	ledgers *audit.Factory
	now     func() time.Time
}

func (m *auditRotate) Name() string { return ModuleAuditRotate }

func (m *auditRotate) Options() map[string]string {
	return map[string]string{"age": "antigüedad máxima, p.ej. 90d o 720h (default 180d)"}
}

func (m *auditRotate) Run(ctx context.Context, t *repository.PeriodicTask) error {
	if m.ledgers == nil {
		return errMissingDep
	}
	age := 180 * 24 * time.Hour
	if v := t.Options["age"]; v != "" {
		d, err := ParseAge(v)
		if err != nil {
			return err
		}
		age = d
	}
	n, err := m.ledgers.Rotate(ctx, m.now().Add(-age))
	if err != nil {
		return err
	}
	logger.From(ctx).Info("audit rotated", logger.Task(t.Name), logger.Int("deleted", int(n)))
	return nil
}

// ParseAge acepta duraciones de Go y además días ("30d").
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("scheduler: invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("scheduler: invalid age %q", s)
	}
	return d, nil
}

// simpleStats publica cantidad de tokens por tipo.
type simpleStats struct {
	tokens repository.TokenRepository
}

func (m *simpleStats) Name() string               { return ModuleSimpleStats }
func (m *simpleStats) Options() map[string]string { return map[string]string{} }

func (m *simpleStats) Run(ctx context.Context, t *repository.PeriodicTask) error {
	if m.tokens == nil {
		return errMissingDep
	}
	counts, err := m.tokens.CountByType(ctx)
	if err != nil {
		return err
	}
	metrics.TokenStats.Reset()
	for typ, n := range counts {
		metrics.TokenStats.WithLabelValues(typ).Set(float64(n))
	}
	return nil
}

// eventCounter publica los contadores del handler Counter.
type eventCounter struct {
	cache cache.Client
}

func (m *eventCounter) Name() string { return ModuleEventCounter }

func (m *eventCounter) Options() map[string]string {
	return map[string]string{
		"counters":  "lista de contadores separada por coma",
		"reset_cnt": "true para poner en 0 tras leer",
	}
}

func (m *eventCounter) Run(ctx context.Context, t *repository.PeriodicTask) error {
	if m.cache == nil {
		return errMissingDep
	}
	reset, _ := strconv.ParseBool(t.Options["reset_cnt"])
	for _, name := range repository.ParseEventList(t.Options["counters"]) {
		v, err := event.ReadCounter(ctx, m.cache, name)
		if err != nil {
			return fmt.Errorf("counter %q: %w", name, err)
		}
		metrics.EventCounters.WithLabelValues(name).Set(float64(v))
		if reset {
			if err := m.cache.Set(ctx, event.CounterKeyPrefix+name, "0", 0); err != nil {
				return err
			}
		}
	}
	return nil
}
