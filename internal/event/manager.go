package event

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

// Manager administra las definiciones de eventos.
type Manager struct {
	repo     repository.EventRepository
	registry *Registry
	loader   *Loader
}

// NewManager crea el Manager. loader puede ser nil.
func NewManager(repo repository.EventRepository, registry *Registry, loader *Loader) *Manager {
	return &Manager{repo: repo, registry: registry, loader: loader}
}

func (m *Manager) List(ctx context.Context) ([]repository.EventDefinition, error) {
	return m.repo.List(ctx)
}

func (m *Manager) Get(ctx context.Context, id int64) (*repository.EventDefinition, error) {
	return m.repo.Get(ctx, id)
}

// Save valida y guarda. Position vacía pasa a post.
func (m *Manager) Save(ctx context.Context, d *repository.EventDefinition) (int64, error) {
	if err := m.validate(d); err != nil {
		return 0, err
	}
	id, err := m.repo.Save(ctx, d)
	if err != nil {
		return 0, err
	}
	m.invalidate(ctx)
	return id, nil
}

func (m *Manager) validate(d *repository.EventDefinition) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", repository.ErrInvalidInput)
	}
	if len(d.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", repository.ErrInvalidInput)
	}
	switch d.Position {
	case "":
		d.Position = repository.PositionPost
	case repository.PositionPre, repository.PositionPost:
	default:
		return fmt.Errorf("%w: position must be pre or post", repository.ErrInvalidInput)
	}
	h := m.registry.Get(d.HandlerModule)
	if h == nil {
		return fmt.Errorf("%w: unknown handler module %q", repository.ErrInvalidInput, d.HandlerModule)
	}
	if _, ok := h.Actions()[d.Action]; !ok {
		return fmt.Errorf("%w: handler %s has no action %q", repository.ErrInvalidInput, d.HandlerModule, d.Action)
	}
	for k := range d.Conditions {
		if !knownCondition(k) {
			return fmt.Errorf("%w: unknown condition %q", repository.ErrInvalidInput, k)
		}
	}
	return nil
}

func (m *Manager) Enable(ctx context.Context, id int64) error  { return m.setActive(ctx, id, true) }
func (m *Manager) Disable(ctx context.Context, id int64) error { return m.setActive(ctx, id, false) }

func (m *Manager) setActive(ctx context.Context, id int64, active bool) error {
	if err := m.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	m.invalidate(ctx)
	return nil
}

func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	m.invalidate(ctx)
	return nil
}

func (m *Manager) invalidate(ctx context.Context) {
	if m.loader != nil {
		m.loader.Invalidate(ctx)
	}
}

func knownCondition(k string) bool {
	for _, c := range Conditions {
		if c == k {
			return true
		}
	}
	return false
}
