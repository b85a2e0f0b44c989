package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// Scheduler decide qué tareas vencieron y registra ejecuciones.
type Scheduler struct {
	repo    repository.PeriodicTaskRepository
	modules *Modules
}

// New crea el Scheduler. modules se usa para validar al guardar.
func New(repo repository.PeriodicTaskRepository, modules *Modules) *Scheduler {
	return &Scheduler{repo: repo, modules: modules}
}

// Due retorna las tareas activas del nodo cuya próxima ejecución es <= now,
// ordenadas por ordering. Una tarea con intervalo inválido se saltea.
func (s *Scheduler) Due(ctx context.Context, node string, now time.Time) ([]repository.PeriodicTask, error) {
	active := true
	tasks, err := s.repo.List(ctx, repository.PeriodicTaskFilter{Node: node, Active: &active})
	if err != nil {
		return nil, err
	}
	now = now.UTC()

	var due []repository.PeriodicTask
	for i := range tasks {
		t := tasks[i]
		next, err := CalculateNextTimestamp(&t, node)
		if err != nil {
			metrics.TaskRuns.WithLabelValues(t.Name, "invalid").Inc()
			logger.From(ctx).Warn("periodic task not schedulable",
				logger.Task(t.Name), logger.Node(node), logger.Err(err))
			continue
		}
		if !next.After(now) {
			due = append(due, t)
		}
	}
	return due, nil
}

// RecordRun registra una ejecución. El éxito siempre avanza el last run; una
// falla también, salvo que la tarea pida RetryIfFailed.
func (s *Scheduler) RecordRun(ctx context.Context, t *repository.PeriodicTask, node string, now time.Time, ok bool) error {
	if !ok && t.RetryIfFailed {
		logger.From(ctx).Info("periodic task failed, will retry",
			logger.Task(t.Name), logger.Node(node))
		return nil
	}
	return s.repo.SetLastRun(ctx, t.ID, node, now.UTC())
}

// Next calcula la próxima ejecución de cada nodo de la tarea.
func (s *Scheduler) Next(t *repository.PeriodicTask) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(t.Nodes))
	for _, n := range t.Nodes {
		next, err := CalculateNextTimestamp(t, n)
		if err != nil {
			return nil, err
		}
		out[n] = next
	}
	return out, nil
}

func (s *Scheduler) List(ctx context.Context, f repository.PeriodicTaskFilter) ([]repository.PeriodicTask, error) {
	return s.repo.List(ctx, f)
}

func (s *Scheduler) Get(ctx context.Context, id int64) (*repository.PeriodicTask, error) {
	return s.repo.Get(ctx, id)
}

// Save valida intervalo, nodos y módulo antes de guardar.
func (s *Scheduler) Save(ctx context.Context, t *repository.PeriodicTask) (int64, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return 0, fmt.Errorf("%w: name is required", repository.ErrInvalidInput)
	}
	if len(t.Nodes) == 0 {
		return 0, fmt.Errorf("%w: at least one node is required", repository.ErrInvalidInput)
	}
	if _, err := ParseInterval(t.Interval); err != nil {
		return 0, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	if s.modules != nil && s.modules.Get(t.TaskModule) == nil {
		return 0, fmt.Errorf("%w: unknown task module %q", repository.ErrInvalidInput, t.TaskModule)
	}
	if t.LastUpdate.IsZero() {
		t.LastUpdate = time.Now().UTC()
	}
	return s.repo.Save(ctx, t)
}

func (s *Scheduler) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
