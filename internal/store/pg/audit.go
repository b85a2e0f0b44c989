package pg

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type auditRepo struct{ pool *pgxpool.Pool }

// auditSQLColumn mapea columnas filtrables a identificadores SQL.
var auditSQLColumn = map[string]string{
	repository.AuditColAction:        "action",
	repository.AuditColActionDetail:  "action_detail",
	repository.AuditColInfo:          "info",
	repository.AuditColSerial:        "serial",
	repository.AuditColTokenType:     "token_type",
	repository.AuditColUser:          `"user"`,
	repository.AuditColRealm:         "realm",
	repository.AuditColResolver:      "resolver",
	repository.AuditColAdministrator: "administrator",
	repository.AuditColServer:        "server",
	repository.AuditColClient:        "client",
	repository.AuditColPolicies:      "policies",
}

const auditColumns = `id, date, startdate, duration_ms, signature, action, action_detail, info, success,
	serial, token_type, "user", realm, resolver, administrator, server, client, policies`

func (r *auditRepo) Insert(ctx context.Context, e *repository.AuditEntry) (int64, error) {
	const q = `
		INSERT INTO audit (date, startdate, duration_ms, signature, action, action_detail, info, success,
			serial, token_type, "user", realm, resolver, administrator, server, client, policies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`
	var start *time.Time
	if !e.StartDate.IsZero() {
		start = &e.StartDate
	}
	var id int64
	err := r.pool.QueryRow(ctx, q,
		e.Date, start, e.Duration.Milliseconds(), e.Signature, e.Action, e.ActionDetail, e.Info, e.Success,
		e.Serial, e.TokenType, e.User, e.Realm, e.Resolver, e.Administrator, e.Server, e.Client, e.Policies,
	).Scan(&id)
	return id, mapErr(err)
}

func (r *auditRepo) UpdateSignature(ctx context.Context, id int64, signature string) error {
	return affected(r.pool.Exec(ctx, `UPDATE audit SET signature = $2 WHERE id = $1`, id, signature))
}

func (r *auditRepo) Query(ctx context.Context, q repository.AuditQuery, fn func(repository.AuditEntry) error) error {
	where, args, err := buildAuditWhere(q.Filter)
	if err != nil {
		return err
	}
	sql := `SELECT ` + auditColumns + ` FROM audit` + where
	if q.SortDesc {
		sql += ` ORDER BY id DESC`
	} else {
		sql += ` ORDER BY id ASC`
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e     repository.AuditEntry
			start *time.Time
			durMS int64
		)
		if err := rows.Scan(&e.ID, &e.Date, &start, &durMS, &e.Signature, &e.Action, &e.ActionDetail,
			&e.Info, &e.Success, &e.Serial, &e.TokenType, &e.User, &e.Realm, &e.Resolver,
			&e.Administrator, &e.Server, &e.Client, &e.Policies); err != nil {
			return err
		}
		if start != nil {
			e.StartDate = *start
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *auditRepo) Count(ctx context.Context, f repository.AuditFilter) (int64, error) {
	where, args, err := buildAuditWhere(f)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit`+where, args...).Scan(&n)
	return n, err
}

func (r *auditRepo) Existing(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM audit WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *auditRepo) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit WHERE date < $1`, t)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// buildAuditWhere arma el WHERE (AND) con placeholders posicionales.
func buildAuditWhere(f repository.AuditFilter) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	// Orden estable para que el SQL generado sea determinista.
	cols := make([]string, 0, len(f.Like))
	for col := range f.Like {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		ident, ok := auditSQLColumn[col]
		if !ok {
			return "", nil, repository.ErrInvalidInput
		}
		args = append(args, f.Like[col])
		conds = append(conds, fmt.Sprintf("%s LIKE $%d", ident, len(args)))
	}
	if f.Success != nil {
		args = append(args, *f.Success)
		conds = append(conds, fmt.Sprintf("success = $%d", len(args)))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}
