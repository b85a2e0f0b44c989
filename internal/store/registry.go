// Package store provee el registry de adaptadores de almacenamiento.
//
// Cada adapter se registra en init() y se abre por nombre desde la config:
//
//	import _ "github.com/dropDatabas3/tokenguard/internal/store/pg"
//	conn, err := store.Open(ctx, store.AdapterConfig{Name: "postgres", DSN: dsn})
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

// Adapter crea conexiones a un backend de almacenamiento.
type Adapter interface {
	// Name retorna el nombre del adapter ("memory", "postgres").
	Name() string

	// Connect establece la conexión.
	Connect(ctx context.Context, cfg AdapterConfig) (Connection, error)
}

// Connection es una conexión activa que expone los repositorios del dominio.
type Connection interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	Tokens() repository.TokenRepository
	Challenges() repository.ChallengeRepository
	Audit() repository.AuditRepository
	Events() repository.EventRepository
	PeriodicTasks() repository.PeriodicTaskRepository
}

// Migratable es implementado por conexiones SQL que aplican migraciones.
type Migratable interface {
	Migrate(ctx context.Context) (*MigrationResult, error)
}

// AdapterConfig configuración para conectar a un almacenamiento.
type AdapterConfig struct {
	// Name del adapter: "memory" | "postgres".
	Name string

	// DSN connection string (solo SQL).
	DSN string

	// Pool settings (solo SQL).
	MaxOpenConns int
	MaxIdleConns int
}

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter. Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("store: adapter %q already registered", name))
	}
	adapters[name] = a
}

// GetAdapter obtiene un adapter por nombre.
func GetAdapter(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}

// ListAdapters retorna los nombres registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open abre una conexión con el adapter indicado en la config.
func Open(ctx context.Context, cfg AdapterConfig) (Connection, error) {
	a, ok := GetAdapter(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("store: adapter %q not registered (available: %v)", cfg.Name, ListAdapters())
	}
	return a.Connect(ctx, cfg)
}
