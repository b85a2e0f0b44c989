package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// Runner ejecuta las tareas vencidas de un nodo.
type Runner struct {
	sched   *Scheduler
	modules *Modules
	now     func() time.Time
}

// NewRunner crea el Runner.
func NewRunner(s *Scheduler, modules *Modules) *Runner {
	return &Runner{sched: s, modules: modules, now: time.Now}
}

// RunDue ejecuta las tareas vencidas en orden y retorna cuántas corrió.
// Las fallas de una tarea no detienen a las demás.
func (r *Runner) RunDue(ctx context.Context, node string, now time.Time) (int, error) {
	due, err := r.sched.Due(ctx, node, now)
	if err != nil {
		return 0, err
	}
	var errs []error
	for i := range due {
		if err := r.run(ctx, &due[i], node, now); err != nil {
			errs = append(errs, err)
		}
	}
	return len(due), errors.Join(errs...)
}

// RunTask fuerza la ejecución de una tarea en el nodo, vencida o no.
func (r *Runner) RunTask(ctx context.Context, id int64, node string) error {
	t, err := r.sched.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.HasNode(node) {
		return fmt.Errorf("%w: task %q does not run on node %q", repository.ErrInvalidInput, t.Name, node)
	}
	return r.run(ctx, t, node, r.now())
}

// run ejecuta el módulo y registra el resultado. Solo retorna errores de storage.
func (r *Runner) run(ctx context.Context, t *repository.PeriodicTask, node string, now time.Time) error {
	log := logger.From(ctx).With(logger.Task(t.Name), logger.Node(node))

	ok := false
	mod := r.modules.Get(t.TaskModule)
	if mod == nil {
		log.Error("unknown task module", logger.String("module", t.TaskModule))
	} else {
		start := time.Now()
		err := mod.Run(ctx, t)
		metrics.TaskDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			log.Error("periodic task failed", logger.Err(err))
		} else {
			ok = true
			log.Debug("periodic task finished")
		}
	}

	result := "ok"
	if !ok {
		result = "failed"
	}
	metrics.TaskRuns.WithLabelValues(t.Name, result).Inc()
	return r.sched.RecordRun(ctx, t, node, now, ok)
}

// Loop corre RunDue cada tick hasta que se cancele ctx.
func (r *Runner) Loop(ctx context.Context, node string, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log := logger.From(ctx).With(logger.Component("scheduler"), logger.Node(node))
	log.Info("scheduler started", logger.Duration(tick))
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			n, err := r.RunDue(ctx, node, r.now())
			if err != nil {
				log.Error("scheduler tick failed", logger.Err(err))
			}
			if n > 0 {
				log.Debug("scheduler tick", logger.Count(n))
			}
		}
	}
}
