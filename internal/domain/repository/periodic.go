package repository

import (
	"context"
	"time"
)

// PeriodicTask es un job programado con cron y su historial por nodo.
type PeriodicTask struct {
	ID            int64
	Name          string
	Active        bool
	RetryIfFailed bool
	Interval      string
	Nodes         []string
	TaskModule    string
	Ordering      int
	Options       map[string]string
	LastUpdate    time.Time
	LastRuns      map[string]time.Time
}

// HasNode indica si el nodo puede ejecutar la tarea.
func (t *PeriodicTask) HasNode(node string) bool {
	for _, n := range t.Nodes {
		if n == node {
			return true
		}
	}
	return false
}

// SeedLastRuns garantiza que cada nodo tenga una entrada en LastRuns,
// usando LastUpdate para los que no la tengan.
func SeedLastRuns(t *PeriodicTask) {
	if t.LastRuns == nil {
		t.LastRuns = make(map[string]time.Time, len(t.Nodes))
	}
	for _, n := range t.Nodes {
		if _, ok := t.LastRuns[n]; !ok {
			t.LastRuns[n] = t.LastUpdate
		}
	}
}

// PeriodicTaskFilter filtra tareas. Campos vacíos no filtran.
type PeriodicTaskFilter struct {
	Node   string
	Active *bool
}

// PeriodicTaskRepository define operaciones sobre tareas periódicas.
type PeriodicTaskRepository interface {
	List(ctx context.Context, f PeriodicTaskFilter) ([]PeriodicTask, error)
	Get(ctx context.Context, id int64) (*PeriodicTask, error)

	// Save inserta (ID == 0) o actualiza. Siembra LastRuns para nodos nuevos.
	Save(ctx context.Context, t *PeriodicTask) (int64, error)

	Delete(ctx context.Context, id int64) error

	// SetLastRun registra la última ejecución de la tarea en un nodo.
	SetLastRun(ctx context.Context, id int64, node string, at time.Time) error
}
