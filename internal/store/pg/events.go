package pg

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type eventRepo struct{ pool *pgxpool.Pool }

const eventColumns = `id, name, events, handlermodule, action, conditions, options, ordering, active, position`

func scanEvent(row pgx.Row) (*repository.EventDefinition, error) {
	var (
		d          repository.EventDefinition
		events     string
		conds, opt []byte
	)
	if err := row.Scan(&d.ID, &d.Name, &events, &d.HandlerModule, &d.Action, &conds, &opt,
		&d.Ordering, &d.Active, &d.Position); err != nil {
		return nil, mapErr(err)
	}
	d.Events = repository.ParseEventList(events)
	if err := json.Unmarshal(conds, &d.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(opt, &d.Options); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *eventRepo) List(ctx context.Context) ([]repository.EventDefinition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM eventhandler ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.EventDefinition
	for rows.Next() {
		d, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *eventRepo) Get(ctx context.Context, id int64) (*repository.EventDefinition, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM eventhandler WHERE id = $1`, id))
}

func (r *eventRepo) Save(ctx context.Context, d *repository.EventDefinition) (int64, error) {
	conds, err := json.Marshal(nonNilMap(d.Conditions))
	if err != nil {
		return 0, err
	}
	opts, err := json.Marshal(nonNilMap(d.Options))
	if err != nil {
		return 0, err
	}
	events := strings.Join(d.Events, ",")

	if d.ID == 0 {
		err = r.pool.QueryRow(ctx, `
			INSERT INTO eventhandler (name, events, handlermodule, action, conditions, options, ordering, active, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			d.Name, events, d.HandlerModule, d.Action, conds, opts, d.Ordering, d.Active, d.Position,
		).Scan(&d.ID)
		return d.ID, mapErr(err)
	}

	err = affected(r.pool.Exec(ctx, `
		UPDATE eventhandler
		SET name = $2, events = $3, handlermodule = $4, action = $5, conditions = $6, options = $7,
			ordering = $8, active = $9, position = $10
		WHERE id = $1`,
		d.ID, d.Name, events, d.HandlerModule, d.Action, conds, opts, d.Ordering, d.Active, d.Position))
	return d.ID, err
}

func (r *eventRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return affected(r.pool.Exec(ctx, `UPDATE eventhandler SET active = $2 WHERE id = $1`, id, active))
}

func (r *eventRepo) Delete(ctx context.Context, id int64) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM eventhandler WHERE id = $1`, id))
}
