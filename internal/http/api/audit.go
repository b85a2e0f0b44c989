package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/http/errors"
	"github.com/dropDatabas3/tokenguard/internal/scheduler"
)

// Parámetros de búsqueda que no son filtros de columna.
const (
	paramPage      = "page"
	paramPageSize  = "page_size"
	paramSortOrder = "sortorder"
	paramTimeLimit = "timelimit"
	paramSuccess   = "success"
)

// searchParams traduce el query string. Todo lo que no es paginación u
// orden se toma como filtro de columna.
func searchParams(params map[string]string) (audit.SearchParams, error) {
	p := audit.SearchParams{Page: 1, PageSize: 15, SortDesc: true}
	for k, v := range params {
		switch k {
		case paramPage:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return p, errors.ErrInvalidParameter.WithDetail("page must be >= 1")
			}
			p.Page = n
		case paramPageSize:
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return p, errors.ErrInvalidParameter.WithDetail("page_size must be >= 0")
			}
			p.PageSize = n
		case paramSortOrder:
			p.SortDesc = !strings.EqualFold(v, "asc")
		case paramTimeLimit:
			d, err := scheduler.ParseAge(v)
			if err != nil {
				return p, errors.ErrInvalidParameter.WithDetail("timelimit: " + err.Error())
			}
			p.TimeLimit = d
		case paramSuccess:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return p, errors.ErrInvalidParameter.WithDetail("success must be a boolean")
			}
			p.Success = &b
		default:
			if v == "" {
				continue
			}
			if p.Filter == nil {
				p.Filter = make(map[string]string)
			}
			p.Filter[k] = v
		}
	}
	return p, nil
}

// reader retorna el ledger de lectura del request.
func (a *API) reader(ctx context.Context) (audit.Ledger, error) {
	l := audit.From(ctx)
	if l == nil && a.d.Ledgers != nil {
		l = a.d.Ledgers.New()
	}
	if l == nil || !l.IsReadable() {
		return nil, errors.ErrNotImplemented.WithDetail("audit backend is not readable")
	}
	return l, nil
}

func (a *API) auditSearch(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	a.wrap(w, r, EventAuditSearch, eventRequest(r, params), func(ctx context.Context, req *event.Request) (*event.Response, error) {
		p, err := searchParams(req.Params)
		if err != nil {
			return nil, err
		}
		l, err := a.reader(ctx)
		if err != nil {
			return nil, err
		}
		page, err := l.Search(ctx, p)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(page.Entries))
		for _, e := range page.Entries {
			rows = append(rows, l.EntryToMap(e))
		}
		l.Log(audit.Fields{audit.KeyInfo: "count " + strconv.FormatInt(page.Count, 10)})
		return event.NewResponse(true, map[string]any{
			"auditdata": rows,
			"count":     page.Count,
			"current":   page.Current,
			"prev":      page.Prev,
			"next":      page.Next,
		}, nil), nil
	})
}

func (a *API) auditExportCSV(w http.ResponseWriter, r *http.Request) {
	a.auditExport(w, r, "text/csv; charset=utf-8", "audit.csv", func(ctx context.Context, l audit.Ledger, p audit.SearchParams) error {
		return audit.WriteCSV(ctx, l, p, w, true)
	})
}

func (a *API) auditExportJSON(w http.ResponseWriter, r *http.Request) {
	a.auditExport(w, r, "application/json; charset=utf-8", "audit.json", func(ctx context.Context, l audit.Ledger, p audit.SearchParams) error {
		return audit.WriteJSON(ctx, l, p, w)
	})
}

// auditExport exporta todas las filas que cumplen el filtro, sin paginar.
// Una vez empezado el stream un error ya no puede cambiar el status.
func (a *API) auditExport(w http.ResponseWriter, r *http.Request, contentType, filename string,
	write func(context.Context, audit.Ledger, audit.SearchParams) error) {
	ctx := r.Context()
	params, err := readParams(w, r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	p, err := searchParams(params)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	p.Page, p.PageSize = 1, 0
	if _, err := p.ToFilter(time.Now()); err != nil {
		errors.WriteError(w, err)
		return
	}
	l, err := a.reader(ctx)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := write(ctx, l, p); err != nil {
		l.Log(audit.Fields{audit.KeySuccess: false, audit.KeyInfo: err.Error()})
		return
	}
	l.Log(audit.Fields{audit.KeySuccess: true, audit.KeyInfo: "export " + filename})
}
