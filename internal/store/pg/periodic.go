package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type taskRepo struct{ pool *pgxpool.Pool }

const taskColumns = `id, name, active, retry_if_failed, interval, nodes, taskmodule, ordering, options, last_update`

func scanTask(row pgx.Row) (*repository.PeriodicTask, error) {
	var (
		t     repository.PeriodicTask
		nodes string
		opts  []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Active, &t.RetryIfFailed, &t.Interval, &nodes,
		&t.TaskModule, &t.Ordering, &opts, &t.LastUpdate); err != nil {
		return nil, mapErr(err)
	}
	t.Nodes = repository.ParseEventList(nodes)
	if err := json.Unmarshal(opts, &t.Options); err != nil {
		return nil, err
	}
	t.LastUpdate = t.LastUpdate.UTC()
	t.LastRuns = make(map[string]time.Time)
	return &t, nil
}

func (r *taskRepo) loadLastRuns(ctx context.Context, tasks map[int64]*repository.PeriodicTask) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT periodictask_id, node, timestamp FROM periodictask_lastrun WHERE periodictask_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			node string
			at   time.Time
		)
		if err := rows.Scan(&id, &node, &at); err != nil {
			return err
		}
		tasks[id].LastRuns[node] = at.UTC()
	}
	return rows.Err()
}

func (r *taskRepo) List(ctx context.Context, f repository.PeriodicTaskFilter) ([]repository.PeriodicTask, error) {
	sql := `SELECT ` + taskColumns + ` FROM periodictask`
	var args []any
	if f.Active != nil {
		args = append(args, *f.Active)
		sql += fmt.Sprintf(` WHERE active = $%d`, len(args))
	}
	sql += ` ORDER BY ordering, id`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var list []*repository.PeriodicTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if f.Node != "" && !t.HasNode(f.Node) {
			continue
		}
		list = append(list, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byID := make(map[int64]*repository.PeriodicTask, len(list))
	for _, t := range list {
		byID[t.ID] = t
	}
	if err := r.loadLastRuns(ctx, byID); err != nil {
		return nil, err
	}
	out := make([]repository.PeriodicTask, 0, len(list))
	for _, t := range list {
		out = append(out, *t)
	}
	return out, nil
}

func (r *taskRepo) Get(ctx context.Context, id int64) (*repository.PeriodicTask, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM periodictask WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLastRuns(ctx, map[int64]*repository.PeriodicTask{t.ID: t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *taskRepo) Save(ctx context.Context, t *repository.PeriodicTask) (int64, error) {
	opts, err := json.Marshal(nonNilMap(t.Options))
	if err != nil {
		return 0, err
	}
	if t.LastUpdate.IsZero() {
		t.LastUpdate = time.Now().UTC()
	}
	nodes := strings.Join(t.Nodes, ",")

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.ID == 0 {
		err = tx.QueryRow(ctx, `
			INSERT INTO periodictask (name, active, retry_if_failed, interval, nodes, taskmodule, ordering, options, last_update)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			t.Name, t.Active, t.RetryIfFailed, t.Interval, nodes, t.TaskModule, t.Ordering, opts, t.LastUpdate.UTC(),
		).Scan(&t.ID)
		if err != nil {
			return 0, mapErr(err)
		}
	} else {
		err = affected(tx.Exec(ctx, `
			UPDATE periodictask
			SET name = $2, active = $3, retry_if_failed = $4, interval = $5, nodes = $6, taskmodule = $7,
				ordering = $8, options = $9, last_update = $10
			WHERE id = $1`,
			t.ID, t.Name, t.Active, t.RetryIfFailed, t.Interval, nodes, t.TaskModule, t.Ordering, opts, t.LastUpdate.UTC()))
		if err != nil {
			return 0, err
		}
		// Los nodos que salieron de la lista pierden su historial.
		if _, err := tx.Exec(ctx,
			`DELETE FROM periodictask_lastrun WHERE periodictask_id = $1 AND NOT (node = ANY($2))`,
			t.ID, t.Nodes); err != nil {
			return 0, err
		}
	}

	// Nodos explícitos pisan; los nuevos se siembran con last_update.
	for node, at := range t.LastRuns {
		if !t.HasNode(node) {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO periodictask_lastrun (periodictask_id, node, timestamp) VALUES ($1, $2, $3)
			ON CONFLICT (periodictask_id, node) DO UPDATE SET timestamp = EXCLUDED.timestamp`,
			t.ID, node, at.UTC()); err != nil {
			return 0, err
		}
	}
	for _, node := range t.Nodes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO periodictask_lastrun (periodictask_id, node, timestamp) VALUES ($1, $2, $3)
			ON CONFLICT (periodictask_id, node) DO NOTHING`,
			t.ID, node, t.LastUpdate.UTC()); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (r *taskRepo) Delete(ctx context.Context, id int64) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM periodictask WHERE id = $1`, id))
}

func (r *taskRepo) SetLastRun(ctx context.Context, id int64, node string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO periodictask_lastrun (periodictask_id, node, timestamp) VALUES ($1, $2, $3)
		ON CONFLICT (periodictask_id, node) DO UPDATE SET timestamp = EXCLUDED.timestamp`,
		id, node, at.UTC())
	return mapErr(err)
}
