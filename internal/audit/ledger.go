package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

// Valores de sig_check / missing_line.
const (
	CheckOK   = "OK"
	CheckFail = "FAIL"
)

var (
	// ErrUnknownFilter indica un filtro sobre una columna no filtrable.
	ErrUnknownFilter = errors.New("audit: unknown filter column")
	// ErrSign se retorna si la firma falla y FailOnSignError está activo.
	ErrSign = errors.New("audit: signing failed")
	// ErrNotRotatable se retorna si el backend de lectura no soporta Rotate.
	ErrNotRotatable = errors.New("audit: backend does not support rotation")
)

// Ledger es el contrato de un backend de auditoría para un request.
type Ledger interface {
	// Name identifica el backend ("sql", "logger", "kafka", "container").
	Name() string
	// IsReadable indica si Search/Total devuelven datos.
	IsReadable() bool

	// Log mezcla campos en el registro en curso (last-write-wins).
	Log(f Fields)
	// AddToLog concatena valores a los existentes, opcionalmente con coma.
	AddToLog(f Fields, withComma bool)
	// AddPolicy agrega nombres de políticas aplicadas.
	AddPolicy(names ...string)
	// Snapshot copia los campos acumulados hasta ahora.
	Snapshot() Fields
	// FinalizeLog firma, persiste y vacía el registro en curso.
	FinalizeLog(ctx context.Context) error

	// Search retorna una página anotada con sig_check y missing_line.
	Search(ctx context.Context, p SearchParams) (*Page, error)
	// Total cuenta las filas que cumplen el filtro.
	Total(ctx context.Context, p SearchParams) (int64, error)
	// SearchQuery recorre todas las filas (sin paginar) en orden.
	SearchQuery(ctx context.Context, p SearchParams, fn func(Entry) error) error
	// EntryToMap da la forma pública de una entrada.
	EntryToMap(e Entry) map[string]any
}

// Rotator lo implementan los backends que pueden borrar entradas viejas.
type Rotator interface {
	Rotate(ctx context.Context, cutoff time.Time) (int64, error)
}

// SearchParams describe una búsqueda.
type SearchParams struct {
	// Filter: columna → valor. Substring salvo que el valor tenga '*'.
	Filter  map[string]string
	Success *bool
	// TimeLimit limita a las entradas de los últimos TimeLimit.
	TimeLimit time.Duration
	SortDesc  bool
	// Page empieza en 1. PageSize 0 = sin paginar.
	Page     int
	PageSize int
}

// Entry es una fila anotada.
type Entry struct {
	repository.AuditEntry
	SigCheck    string
	MissingLine string
}

// Page es una página de resultados.
type Page struct {
	Entries []Entry
	Count   int64
	Current int
	Prev    *int
	Next    *int
}

// ToFilter traduce los parámetros a un filtro de repositorio.
// Un '*' en el valor se convierte en '%'; sin '*' se busca como substring.
func (p SearchParams) ToFilter(now time.Time) (repository.AuditFilter, error) {
	f := repository.AuditFilter{Success: p.Success}
	if len(p.Filter) > 0 {
		f.Like = make(map[string]string, len(p.Filter))
	}
	for col, v := range p.Filter {
		if !repository.IsAuditLikeColumn(col) {
			return f, fmt.Errorf("%w: %q", ErrUnknownFilter, col)
		}
		if strings.Contains(v, "*") {
			f.Like[col] = strings.ReplaceAll(v, "*", "%")
		} else {
			f.Like[col] = "%" + v + "%"
		}
	}
	if p.TimeLimit > 0 {
		since := now.Add(-p.TimeLimit).UTC()
		f.Since = &since
	}
	return f, nil
}

func (p SearchParams) page() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// newPage arma la paginación a partir del total.
func newPage(p SearchParams, count int64, entries []Entry) *Page {
	pg := &Page{Entries: entries, Count: count, Current: p.page()}
	if p.PageSize <= 0 {
		return pg
	}
	if pg.Current > 1 {
		prev := pg.Current - 1
		pg.Prev = &prev
	}
	if int64(pg.Current*p.PageSize) < count {
		next := pg.Current + 1
		pg.Next = &next
	}
	return pg
}

// EntryMap es la forma pública común de una entrada.
func EntryMap(e Entry) map[string]any {
	return map[string]any{
		"number":        e.ID,
		"date":          e.Date.UTC().Format(time.RFC3339Nano),
		"startdate":     e.StartDate.UTC().Format(time.RFC3339Nano),
		"duration":      e.Duration.String(),
		"action":        e.Action,
		"action_detail": e.ActionDetail,
		"info":          e.Info,
		"success":       e.Success,
		"serial":        e.Serial,
		"token_type":    e.TokenType,
		"user":          e.User,
		"realm":         e.Realm,
		"resolver":      e.Resolver,
		"administrator": e.Administrator,
		"server":        e.Server,
		"client":        e.Client,
		"policies":      e.Policies,
		"sig_check":     e.SigCheck,
		"missing_line":  e.MissingLine,
	}
}

// base implementa la parte de acumulación común a todos los backends.
type base struct {
	acc    *accumulator
	server string
	now    func() time.Time
}

func newBase(server string, now func() time.Time) base {
	if now == nil {
		now = time.Now
	}
	return base{acc: newAccumulator(), server: server, now: now}
}

func (b *base) Log(f Fields)                      { b.acc.log(f) }
func (b *base) AddToLog(f Fields, withComma bool) { b.acc.addToLog(f, withComma) }
func (b *base) AddPolicy(names ...string)         { b.acc.addPolicy(names...) }
func (b *base) Snapshot() Fields                  { return b.acc.snapshot() }
func (b *base) EntryToMap(e Entry) map[string]any { return EntryMap(e) }
