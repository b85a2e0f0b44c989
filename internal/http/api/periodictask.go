package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/http/errors"
)

type taskDTO struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	Active        bool                 `json:"active"`
	RetryIfFailed bool                 `json:"retry_if_failed"`
	Interval      string               `json:"interval"`
	Nodes         []string             `json:"nodes"`
	TaskModule    string               `json:"taskmodule"`
	Ordering      int                  `json:"ordering"`
	Options       map[string]string    `json:"options"`
	LastUpdate    time.Time            `json:"last_update"`
	LastRuns      map[string]time.Time `json:"last_runs"`
	NextRuns      map[string]time.Time `json:"next_runs,omitempty"`
}

func (a *API) toTaskDTO(t repository.PeriodicTask) taskDTO {
	dto := taskDTO{
		ID:            t.ID,
		Name:          t.Name,
		Active:        t.Active,
		RetryIfFailed: t.RetryIfFailed,
		Interval:      t.Interval,
		Nodes:         t.Nodes,
		TaskModule:    t.TaskModule,
		Ordering:      t.Ordering,
		Options:       t.Options,
		LastUpdate:    t.LastUpdate,
		LastRuns:      t.LastRuns,
	}
	// Un intervalo inválido deja next_runs vacío en lugar de romper el listado.
	if next, err := a.d.Scheduler.Next(&t); err == nil {
		dto.NextRuns = next
	}
	return dto
}

func (a *API) taskList(w http.ResponseWriter, r *http.Request) {
	f := repository.PeriodicTaskFilter{Node: r.URL.Query().Get("node")}
	tasks, err := a.d.Scheduler.List(r.Context(), f)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	out := make([]taskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, a.toTaskDTO(t))
	}
	writeValue(w, out)
}

func (a *API) taskGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	t, err := a.d.Scheduler.Get(r.Context(), id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeValue(w, a.toTaskDTO(*t))
}

// taskSave crea (id 0) o actualiza. last_runs no se acepta del cliente.
func (a *API) taskSave(w http.ResponseWriter, r *http.Request) {
	var in taskDTO
	if err := readJSON(w, r, &in); err != nil {
		errors.WriteError(w, err)
		return
	}
	id, err := a.d.Scheduler.Save(r.Context(), &repository.PeriodicTask{
		ID:            in.ID,
		Name:          in.Name,
		Active:        in.Active,
		RetryIfFailed: in.RetryIfFailed,
		Interval:      in.Interval,
		Nodes:         in.Nodes,
		TaskModule:    in.TaskModule,
		Ordering:      in.Ordering,
		Options:       in.Options,
	})
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	logAction(r, "periodictask "+in.Name)
	writeValue(w, id)
}

func (a *API) taskDelete(w http.ResponseWriter, r *http.Request) {
	a.taskByID(w, r, a.d.Scheduler.Delete)
}

func (a *API) taskEnable(w http.ResponseWriter, r *http.Request) {
	a.taskByID(w, r, func(ctx context.Context, id int64) error { return a.setTaskActive(ctx, id, true) })
}

func (a *API) taskDisable(w http.ResponseWriter, r *http.Request) {
	a.taskByID(w, r, func(ctx context.Context, id int64) error { return a.setTaskActive(ctx, id, false) })
}

// taskRun fuerza la ejecución en este nodo.
func (a *API) taskRun(w http.ResponseWriter, r *http.Request) {
	a.taskByID(w, r, func(ctx context.Context, id int64) error {
		return a.d.Runner.RunTask(ctx, id, a.d.Node)
	})
}

func (a *API) setTaskActive(ctx context.Context, id int64, active bool) error {
	t, err := a.d.Scheduler.Get(ctx, id)
	if err != nil {
		return err
	}
	t.Active = active
	t.LastUpdate = time.Time{}
	_, err = a.d.Scheduler.Save(ctx, t)
	return err
}

func (a *API) taskByID(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if err := op(r.Context(), id); err != nil {
		errors.WriteError(w, err)
		return
	}
	logAction(r, "periodictask "+chi.URLParam(r, "id"))
	writeValue(w, id)
}

func (a *API) taskModules(w http.ResponseWriter, r *http.Request) {
	writeValue(w, a.d.Tasks.Names())
}

func (a *API) taskOptions(w http.ResponseWriter, r *http.Request) {
	m := a.d.Tasks.Get(chi.URLParam(r, "module"))
	if m == nil {
		errors.WriteError(w, errors.ErrNotFound.WithDetail("unknown task module"))
		return
	}
	writeValue(w, m.Options())
}
