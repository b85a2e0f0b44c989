package memory

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type auditRepo struct{ c *Conn }

func (r *auditRepo) Insert(ctx context.Context, e *repository.AuditEntry) (int64, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	r.c.auditSeq++
	cp := *e
	cp.ID = r.c.auditSeq
	r.c.audit = append(r.c.audit, cp)
	return cp.ID, nil
}

func (r *auditRepo) UpdateSignature(ctx context.Context, id int64, signature string) error {
	return r.c.TamperAudit(id, func(e *repository.AuditEntry) { e.Signature = signature })
}

// TamperAudit modifica una fila in-place saltándose el contrato append-only.
// Solo para tests de detección de manipulación.
func (c *Conn) TamperAudit(id int64, fn func(e *repository.AuditEntry)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.audit {
		if c.audit[i].ID == id {
			fn(&c.audit[i])
			return nil
		}
	}
	return repository.ErrNotFound
}

// RemoveAudit borra una fila por id. Solo para tests de detección de huecos.
func (c *Conn) RemoveAudit(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.audit {
		if c.audit[i].ID == id {
			c.audit = append(c.audit[:i], c.audit[i+1:]...)
			return
		}
	}
}

func (r *auditRepo) Query(ctx context.Context, q repository.AuditQuery, fn func(repository.AuditEntry) error) error {
	m, err := compileFilter(q.Filter)
	if err != nil {
		return err
	}

	r.c.mu.RLock()
	rows := make([]repository.AuditEntry, 0, len(r.c.audit))
	for _, e := range r.c.audit {
		if m.match(&e) {
			rows = append(rows, e)
		}
	}
	r.c.mu.RUnlock()

	// r.c.audit ya está ordenado por id ascendente.
	if q.SortDesc {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			return nil
		}
		rows = rows[q.Offset:]
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	for _, e := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *auditRepo) Count(ctx context.Context, f repository.AuditFilter) (int64, error) {
	m, err := compileFilter(f)
	if err != nil {
		return 0, err
	}
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	var n int64
	for i := range r.c.audit {
		if m.match(&r.c.audit[i]) {
			n++
		}
	}
	return n, nil
}

func (r *auditRepo) Existing(ctx context.Context, ids []int64) (map[int64]bool, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	out := make(map[int64]bool, len(ids))
	for _, e := range r.c.audit {
		if want[e.ID] {
			out[e.ID] = true
		}
	}
	return out, nil
}

func (r *auditRepo) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	kept := r.c.audit[:0]
	var n int64
	for _, e := range r.c.audit {
		if e.Date.Before(t) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.c.audit = kept
	return n, nil
}

type auditMatcher struct {
	like    map[string]*regexp.Regexp
	success *bool
	since   *time.Time
}

func compileFilter(f repository.AuditFilter) (*auditMatcher, error) {
	m := &auditMatcher{like: make(map[string]*regexp.Regexp, len(f.Like)), success: f.Success, since: f.Since}
	for col, pattern := range f.Like {
		if !repository.IsAuditLikeColumn(col) {
			return nil, repository.ErrInvalidInput
		}
		re, err := likeToRegexp(pattern)
		if err != nil {
			return nil, err
		}
		m.like[col] = re
	}
	return m, nil
}

func (m *auditMatcher) match(e *repository.AuditEntry) bool {
	if m.success != nil && e.Success != *m.success {
		return false
	}
	if m.since != nil && e.Date.Before(*m.since) {
		return false
	}
	for col, re := range m.like {
		if !re.MatchString(e.Column(col)) {
			return false
		}
	}
	return true
}

// likeToRegexp traduce un patrón SQL LIKE (sensible a mayúsculas) a regexp.
func likeToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString("(?s:.*)")
		case '_':
			b.WriteString("(?s:.)")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
