// Package scheduler calcula cuándo corre cada tarea periódica por nodo y
// registra sus ejecuciones.
//
// No hay exclusión entre nodos: cada nodo lleva su propio last run y puede
// ejecutar la misma tarea en paralelo con otros.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

var (
	// ErrNoLastRun indica que el nodo no tiene last run registrado.
	ErrNoLastRun = errors.New("scheduler: no last run for node")
	// ErrInvalidInterval envuelve el error del parser de cron.
	ErrInvalidInterval = errors.New("scheduler: invalid interval")
)

// ParseInterval parsea una expresión cron estándar de 5 campos.
func ParseInterval(interval string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(interval)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidInterval, interval, err)
	}
	return s, nil
}

// CalculateNextTimestamp retorna la próxima ejecución de la tarea en el nodo.
// El last run se toma como hora de pared sin zona (naive) y el resultado es UTC.
func CalculateNextTimestamp(t *repository.PeriodicTask, node string) (time.Time, error) {
	last, ok := t.LastRuns[node]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: task %q, node %q", ErrNoLastRun, t.Name, node)
	}
	sched, err := ParseInterval(t.Interval)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(naiveUTC(last)).UTC(), nil
}

// naiveUTC descarta la zona y reinterpreta la hora de pared como UTC.
func naiveUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
