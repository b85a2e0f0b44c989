package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/http/errors"
)

type eventDTO struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Events        []string          `json:"event"`
	HandlerModule string            `json:"handlermodule"`
	Action        string            `json:"action"`
	Conditions    map[string]string `json:"conditions"`
	Options       map[string]string `json:"options"`
	Ordering      int               `json:"ordering"`
	Active        bool              `json:"active"`
	Position      string            `json:"position"`
}

func toEventDTO(d repository.EventDefinition) eventDTO {
	return eventDTO{
		ID:            d.ID,
		Name:          d.Name,
		Events:        d.Events,
		HandlerModule: d.HandlerModule,
		Action:        d.Action,
		Conditions:    d.Conditions,
		Options:       d.Options,
		Ordering:      d.Ordering,
		Active:        d.Active,
		Position:      d.Position,
	}
}

func (e eventDTO) definition() *repository.EventDefinition {
	return &repository.EventDefinition{
		ID:            e.ID,
		Name:          e.Name,
		Events:        e.Events,
		HandlerModule: e.HandlerModule,
		Action:        e.Action,
		Conditions:    e.Conditions,
		Options:       e.Options,
		Ordering:      e.Ordering,
		Active:        e.Active,
		Position:      e.Position,
	}
}

func (a *API) eventList(w http.ResponseWriter, r *http.Request) {
	defs, err := a.d.Manager.List(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	out := make([]eventDTO, 0, len(defs))
	for _, d := range defs {
		out = append(out, toEventDTO(d))
	}
	writeValue(w, out)
}

func (a *API) eventGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	d, err := a.d.Manager.Get(r.Context(), id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeValue(w, toEventDTO(*d))
}

// eventSave crea (id 0) o actualiza una definición.
func (a *API) eventSave(w http.ResponseWriter, r *http.Request) {
	var in eventDTO
	if err := readJSON(w, r, &in); err != nil {
		errors.WriteError(w, err)
		return
	}
	id, err := a.d.Manager.Save(r.Context(), in.definition())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	logAction(r, "event "+in.Name)
	writeValue(w, id)
}

func (a *API) eventDelete(w http.ResponseWriter, r *http.Request) {
	a.eventByID(w, r, a.d.Manager.Delete)
}

func (a *API) eventEnable(w http.ResponseWriter, r *http.Request) {
	a.eventByID(w, r, a.d.Manager.Enable)
}

func (a *API) eventDisable(w http.ResponseWriter, r *http.Request) {
	a.eventByID(w, r, a.d.Manager.Disable)
}

func (a *API) eventByID(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if err := op(r.Context(), id); err != nil {
		errors.WriteError(w, err)
		return
	}
	logAction(r, "event "+chi.URLParam(r, "id"))
	writeValue(w, id)
}

func (a *API) eventHandlerModules(w http.ResponseWriter, r *http.Request) {
	writeValue(w, a.d.Handlers.Modules())
}

func (a *API) eventActions(w http.ResponseWriter, r *http.Request) {
	h := a.d.Handlers.Get(chi.URLParam(r, "module"))
	if h == nil {
		errors.WriteError(w, errors.ErrNotFound.WithDetail("unknown handler module"))
		return
	}
	writeValue(w, h.Actions())
}

func (a *API) eventConditions(w http.ResponseWriter, r *http.Request) {
	writeValue(w, event.Conditions)
}

func (a *API) eventAvailable(w http.ResponseWriter, r *http.Request) {
	out := append([]string(nil), Events...)
	sort.Strings(out)
	writeValue(w, out)
}

// logAction agrega el objeto afectado al action_detail del request.
func logAction(r *http.Request, detail string) {
	if l := audit.From(r.Context()); l != nil {
		l.Log(audit.Fields{audit.KeyActionDetail: detail})
	}
}
