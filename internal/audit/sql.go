package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// annotateBatch es el tamaño de lote para chequear vecinos en SearchQuery.
const annotateBatch = 200

// sqlLedger persiste en el repositorio de auditoría (memory o Postgres).
type sqlLedger struct {
	base
	repo            repository.AuditRepository
	signer          *Signer
	failOnSignError bool
}

func (l *sqlLedger) Name() string     { return "sql" }
func (l *sqlLedger) IsReadable() bool { return true }

// FinalizeLog escribe en dos fases: insert → id → firma → update.
// La firma cubre el id definitivo.
func (l *sqlLedger) FinalizeLog(ctx context.Context) error {
	e, _ := l.acc.take(l.server, l.now())
	log := logger.From(ctx).With(logger.Component("audit"), logger.Action(e.Action))

	if l.signer == nil && l.failOnSignError {
		metrics.AuditWrites.WithLabelValues(l.Name(), "failed").Inc()
		return fmt.Errorf("%w: %v", ErrSign, ErrNoPrivateKey)
	}

	id, err := l.repo.Insert(ctx, &e)
	if err != nil {
		metrics.AuditWrites.WithLabelValues(l.Name(), "failed").Inc()
		return fmt.Errorf("audit: insert: %w", err)
	}
	e.ID = id

	sig, err := l.signer.Sign(Canonical(&e))
	if err != nil {
		log.Warn("audit signature failed", logger.AuditID(id), logger.Err(err))
		if l.failOnSignError {
			metrics.AuditWrites.WithLabelValues(l.Name(), "failed").Inc()
			return fmt.Errorf("%w: %v", ErrSign, err)
		}
		metrics.AuditWrites.WithLabelValues(l.Name(), "unsigned").Inc()
		return nil
	}
	if err := l.repo.UpdateSignature(ctx, id, sig); err != nil {
		metrics.AuditWrites.WithLabelValues(l.Name(), "failed").Inc()
		return fmt.Errorf("audit: update signature: %w", err)
	}
	metrics.AuditWrites.WithLabelValues(l.Name(), "ok").Inc()
	log.Debug("audit entry written", logger.AuditID(id))
	return nil
}

func (l *sqlLedger) Search(ctx context.Context, p SearchParams) (*Page, error) {
	f, err := p.ToFilter(l.now())
	if err != nil {
		return nil, err
	}
	count, err := l.repo.Count(ctx, f)
	if err != nil {
		return nil, err
	}
	q := repository.AuditQuery{Filter: f, SortDesc: p.SortDesc}
	if p.PageSize > 0 {
		q.Limit = p.PageSize
		q.Offset = (p.page() - 1) * p.PageSize
	}

	var rows []repository.AuditEntry
	if err := l.repo.Query(ctx, q, func(e repository.AuditEntry) error {
		rows = append(rows, e)
		return nil
	}); err != nil {
		return nil, err
	}
	entries, err := l.annotate(ctx, rows)
	if err != nil {
		return nil, err
	}
	return newPage(p, count, entries), nil
}

func (l *sqlLedger) Total(ctx context.Context, p SearchParams) (int64, error) {
	f, err := p.ToFilter(l.now())
	if err != nil {
		return 0, err
	}
	return l.repo.Count(ctx, f)
}

// SearchQuery recorre todo el resultado anotando por lotes.
func (l *sqlLedger) SearchQuery(ctx context.Context, p SearchParams, fn func(Entry) error) error {
	f, err := p.ToFilter(l.now())
	if err != nil {
		return err
	}
	batch := make([]repository.AuditEntry, 0, annotateBatch)
	flush := func() error {
		entries, err := l.annotate(ctx, batch)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := fn(e); err != nil {
				return err
			}
		}
		batch = batch[:0]
		return nil
	}
	err = l.repo.Query(ctx, repository.AuditQuery{Filter: f, SortDesc: p.SortDesc}, func(e repository.AuditEntry) error {
		batch = append(batch, e)
		if len(batch) == annotateBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// annotate calcula sig_check y missing_line. Los problemas de verificación
// son datos (FAIL), no errores; solo fallas de storage se propagan.
func (l *sqlLedger) annotate(ctx context.Context, rows []repository.AuditEntry) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, 2*len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID-1, r.ID+1)
	}
	present, err := l.repo.Existing(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{AuditEntry: r, SigCheck: CheckFail, MissingLine: CheckFail}
		if l.signer.Verify(Canonical(&r), r.Signature) {
			e.SigCheck = CheckOK
		}
		if present[r.ID-1] && present[r.ID+1] {
			e.MissingLine = CheckOK
		}
		out = append(out, e)
	}
	return out, nil
}

// Rotate borra entradas más viejas que cutoff.
func (l *sqlLedger) Rotate(ctx context.Context, cutoff time.Time) (int64, error) {
	return l.repo.DeleteBefore(ctx, cutoff)
}
