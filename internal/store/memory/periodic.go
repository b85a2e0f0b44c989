package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type taskRepo struct{ c *Conn }

func (r *taskRepo) List(ctx context.Context, f repository.PeriodicTaskFilter) ([]repository.PeriodicTask, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	var out []repository.PeriodicTask
	for _, t := range r.c.tasks {
		if f.Active != nil && t.Active != *f.Active {
			continue
		}
		if f.Node != "" && !t.HasNode(f.Node) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordering != out[j].Ordering {
			return out[i].Ordering < out[j].Ordering
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *taskRepo) Get(ctx context.Context, id int64) (*repository.PeriodicTask, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	t, ok := r.c.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t = cloneTask(t)
	return &t, nil
}

func (r *taskRepo) Save(ctx context.Context, t *repository.PeriodicTask) (int64, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	for id, other := range r.c.tasks {
		if other.Name == t.Name && id != t.ID {
			return 0, repository.ErrConflict
		}
	}
	if t.ID == 0 {
		r.c.taskSeq++
		t.ID = r.c.taskSeq
	} else {
		prev, ok := r.c.tasks[t.ID]
		if !ok {
			return 0, repository.ErrNotFound
		}
		// Conserva el historial de nodos que siguen en la lista.
		for node, at := range prev.LastRuns {
			if _, ok := t.LastRuns[node]; !ok && t.HasNode(node) {
				if t.LastRuns == nil {
					t.LastRuns = make(map[string]time.Time)
				}
				t.LastRuns[node] = at
			}
		}
	}
	if t.LastUpdate.IsZero() {
		t.LastUpdate = time.Now().UTC()
	}
	repository.SeedLastRuns(t)
	r.c.tasks[t.ID] = cloneTask(*t)
	return t.ID, nil
}

func (r *taskRepo) Delete(ctx context.Context, id int64) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	if _, ok := r.c.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.c.tasks, id)
	return nil
}

func (r *taskRepo) SetLastRun(ctx context.Context, id int64, node string, at time.Time) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	t, ok := r.c.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t = cloneTask(t)
	if t.LastRuns == nil {
		t.LastRuns = make(map[string]time.Time)
	}
	t.LastRuns[node] = at
	r.c.tasks[id] = t
	return nil
}

func cloneTask(t repository.PeriodicTask) repository.PeriodicTask {
	t.Nodes = append([]string(nil), t.Nodes...)
	t.Options = copyStrMap(t.Options)
	if t.LastRuns != nil {
		runs := make(map[string]time.Time, len(t.LastRuns))
		for k, v := range t.LastRuns {
			runs[k] = v
		}
		t.LastRuns = runs
	}
	return t
}
