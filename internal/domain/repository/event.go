package repository

import (
	"context"
	"strings"
)

// Posiciones válidas de una definición de evento.
const (
	PositionPre  = "pre"
	PositionPost = "post"
)

// EventDefinition describe qué handler/acción se dispara para qué eventos.
type EventDefinition struct {
	ID            int64
	Name          string
	Events        []string
	HandlerModule string
	Action        string
	Conditions    map[string]string
	Options       map[string]string
	Ordering      int
	Active        bool
	Position      string
}

// Triggers indica si la definición escucha el evento dado.
func (d *EventDefinition) Triggers(event string) bool {
	for _, e := range d.Events {
		if strings.TrimSpace(e) == event {
			return true
		}
	}
	return false
}

// ParseEventList separa una lista "a, b,c" en nombres limpios.
func ParseEventList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EventRepository define operaciones sobre definiciones de eventos.
type EventRepository interface {
	List(ctx context.Context) ([]EventDefinition, error)
	Get(ctx context.Context, id int64) (*EventDefinition, error)

	// Save inserta (ID == 0) o actualiza la definición y retorna su id.
	Save(ctx context.Context, d *EventDefinition) (int64, error)

	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}
