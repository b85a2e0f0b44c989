package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type challengeRepo struct{ pool *pgxpool.Pool }

const challengeColumns = `id, transaction_id, serial, challenge, data, created_at, expiration,
	received_count, otp_received, otp_valid`

func (r *challengeRepo) Create(ctx context.Context, c *repository.Challenge) error {
	const q = `
		INSERT INTO challenge (transaction_id, serial, challenge, data, created_at, expiration)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.pool.QueryRow(ctx, q,
		c.TransactionID, c.Serial, c.Challenge, c.Data, c.CreatedAt, c.Expiration,
	).Scan(&c.ID)
	return mapErr(err)
}

func (r *challengeRepo) Get(ctx context.Context, transactionID string) (*repository.Challenge, error) {
	var c repository.Challenge
	err := r.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenge WHERE transaction_id = $1`, transactionID,
	).Scan(&c.ID, &c.TransactionID, &c.Serial, &c.Challenge, &c.Data, &c.CreatedAt, &c.Expiration,
		&c.ReceivedCount, &c.OTPReceived, &c.OTPValid)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *challengeRepo) Exists(ctx context.Context, transactionID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM challenge WHERE transaction_id = $1)`, transactionID).Scan(&ok)
	return ok, err
}

func (r *challengeRepo) ListBySerial(ctx context.Context, serial string) ([]repository.Challenge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenge WHERE serial = $1 ORDER BY id DESC`, serial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Challenge
	for rows.Next() {
		var c repository.Challenge
		if err := rows.Scan(&c.ID, &c.TransactionID, &c.Serial, &c.Challenge, &c.Data, &c.CreatedAt,
			&c.Expiration, &c.ReceivedCount, &c.OTPReceived, &c.OTPValid); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *challengeRepo) RecordResponse(ctx context.Context, transactionID string, received, valid bool) error {
	return affected(r.pool.Exec(ctx, `
		UPDATE challenge
		SET received_count = received_count + 1, otp_received = $2, otp_valid = otp_valid OR $3
		WHERE transaction_id = $1`, transactionID, received, valid))
}

func (r *challengeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM challenge WHERE expiration <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
