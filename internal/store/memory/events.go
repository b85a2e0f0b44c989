package memory

import (
	"context"
	"sort"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type eventRepo struct{ c *Conn }

func (r *eventRepo) List(ctx context.Context) ([]repository.EventDefinition, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	out := make([]repository.EventDefinition, 0, len(r.c.events))
	for _, d := range r.c.events {
		out = append(out, cloneEvent(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *eventRepo) Get(ctx context.Context, id int64) (*repository.EventDefinition, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	d, ok := r.c.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d = cloneEvent(d)
	return &d, nil
}

func (r *eventRepo) Save(ctx context.Context, d *repository.EventDefinition) (int64, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	for id, other := range r.c.events {
		if other.Name == d.Name && id != d.ID {
			return 0, repository.ErrConflict
		}
	}
	if d.ID == 0 {
		r.c.eventSeq++
		d.ID = r.c.eventSeq
	} else if _, ok := r.c.events[d.ID]; !ok {
		return 0, repository.ErrNotFound
	}
	r.c.events[d.ID] = cloneEvent(*d)
	return d.ID, nil
}

func (r *eventRepo) SetActive(ctx context.Context, id int64, active bool) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	d, ok := r.c.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Active = active
	r.c.events[id] = d
	return nil
}

func (r *eventRepo) Delete(ctx context.Context, id int64) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	if _, ok := r.c.events[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.c.events, id)
	return nil
}

func cloneEvent(d repository.EventDefinition) repository.EventDefinition {
	d.Events = append([]string(nil), d.Events...)
	d.Conditions = copyStrMap(d.Conditions)
	d.Options = copyStrMap(d.Options)
	return d
}
