// Package memory implementa el adapter en memoria de store.
// Pensado para desarrollo y tests; los datos se pierden al cerrar el proceso.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	return New(), nil
}

// Conn es una conexión en memoria. Todos los repositorios comparten un mutex.
type Conn struct {
	mu sync.RWMutex

	tokens     map[string]repository.Token
	challenges map[string]repository.Challenge
	challSeq   int64

	audit    []repository.AuditEntry
	auditSeq int64

	events   map[int64]repository.EventDefinition
	eventSeq int64

	tasks   map[int64]repository.PeriodicTask
	taskSeq int64
}

// New crea una conexión vacía.
func New() *Conn {
	return &Conn{
		tokens:     make(map[string]repository.Token),
		challenges: make(map[string]repository.Challenge),
		events:     make(map[int64]repository.EventDefinition),
		tasks:      make(map[int64]repository.PeriodicTask),
	}
}

func (c *Conn) Name() string                   { return "memory" }
func (c *Conn) Ping(ctx context.Context) error { return nil }
func (c *Conn) Close() error                   { return nil }

func (c *Conn) Tokens() repository.TokenRepository               { return &tokenRepo{c} }
func (c *Conn) Challenges() repository.ChallengeRepository       { return &challengeRepo{c} }
func (c *Conn) Audit() repository.AuditRepository                { return &auditRepo{c} }
func (c *Conn) Events() repository.EventRepository               { return &eventRepo{c} }
func (c *Conn) PeriodicTasks() repository.PeriodicTaskRepository { return &taskRepo{c} }

func copyStrMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
