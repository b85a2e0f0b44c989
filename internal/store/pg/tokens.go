package pg

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type tokenRepo struct{ pool *pgxpool.Pool }

const tokenColumns = `serial, tokentype, description, secret_enc, otplen, count, count_window,
	failcount, maxfail, active, realm, owner, info, created_at`

func (r *tokenRepo) Create(ctx context.Context, t *repository.Token) error {
	info, err := json.Marshal(nonNilMap(t.Info))
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO token (serial, tokentype, description, secret_enc, otplen, count, count_window,
			failcount, maxfail, active, realm, owner, info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`
	err = r.pool.QueryRow(ctx, q,
		t.Serial, t.Type, t.Description, t.SecretEnc, t.OTPLen, t.Count, t.CountWindow,
		t.FailCount, t.MaxFail, t.Active, t.Realm, t.Owner, info,
	).Scan(&t.CreatedAt)
	return mapErr(err)
}

func (r *tokenRepo) Get(ctx context.Context, serial string) (*repository.Token, error) {
	var (
		t    repository.Token
		info []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM token WHERE serial = $1`, serial).Scan(
		&t.Serial, &t.Type, &t.Description, &t.SecretEnc, &t.OTPLen, &t.Count, &t.CountWindow,
		&t.FailCount, &t.MaxFail, &t.Active, &t.Realm, &t.Owner, &info, &t.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &t.Info); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (r *tokenRepo) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT tokentype, COUNT(*) FROM token GROUP BY tokentype`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

func (r *tokenRepo) UpdateCounter(ctx context.Context, serial string, expected, next int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE token SET count = $3 WHERE serial = $1 AND count = $2`, serial, expected, next)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Distinguir "no existe" de "otro request ganó".
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM token WHERE serial = $1)`, serial).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrPreconditionFailed
}

func (r *tokenRepo) IncFailCount(ctx context.Context, serial string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`UPDATE token SET failcount = failcount + 1 WHERE serial = $1 RETURNING failcount`, serial).Scan(&n)
	return n, mapErr(err)
}

func (r *tokenRepo) ResetFailCount(ctx context.Context, serial string) error {
	return affected(r.pool.Exec(ctx, `UPDATE token SET failcount = 0 WHERE serial = $1`, serial))
}

func (r *tokenRepo) SetActive(ctx context.Context, serial string, active bool) error {
	return affected(r.pool.Exec(ctx, `UPDATE token SET active = $2 WHERE serial = $1`, serial, active))
}

func (r *tokenRepo) SetInfo(ctx context.Context, serial, key, value string) error {
	return affected(r.pool.Exec(ctx,
		`UPDATE token SET info = info || jsonb_build_object($2::text, $3::text) WHERE serial = $1`,
		serial, key, value))
}

func (r *tokenRepo) Delete(ctx context.Context, serial string) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM token WHERE serial = $1`, serial))
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
