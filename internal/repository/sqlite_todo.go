package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/todotree/internal/db"
	"github.com/alexanderramin/todotree/internal/domain"
)

// todoColumns is the canonical SELECT column list for todos.
const todoColumns = `t.id, t.parent_id, t.name, t.estimate_ns, t.completed, t.kind`

// treeQuery walks the forest from the roots down. Each row's path is the
// chain of zero-padded sibling indexes and ids from its root, so sorting by
// path yields pre-order. char(1) separates levels because it sorts below
// every character an id may contain.
const treeQuery = `WITH RECURSIVE tree(id, path) AS (
		SELECT id, printf('%010d', order_index) || id
		FROM todos WHERE parent_id IS NULL
		UNION ALL
		SELECT c.id, tree.path || char(1) || printf('%010d', c.order_index) || c.id
		FROM todos c JOIN tree ON c.parent_id = tree.id
	)
	SELECT ` + todoColumns + `
	FROM tree JOIN todos t ON t.id = tree.id
	ORDER BY tree.path`

// SQLiteTodoRepo implements TodoRepo using a SQLite database.
type SQLiteTodoRepo struct {
	db db.DBTX
}

// NewSQLiteTodoRepo creates a repository on a *sql.DB or a transaction.
func NewSQLiteTodoRepo(db db.DBTX) *SQLiteTodoRepo {
	return &SQLiteTodoRepo{db: db}
}

// Apply stores cs. A ChangeSet may list a child before its parent only
// when Apply runs inside a transaction, since the parent link is checked
// at commit.
func (r *SQLiteTodoRepo) Apply(ctx context.Context, cs domain.ChangeSet, positions map[string]int) error {
	now := nowUTC()
	touched := make(map[string]bool)

	for _, rec := range cs.Upsert {
		oldParent, err := r.parentOf(ctx, rec.ID)
		if err != nil {
			return err
		}
		if err := r.upsertRow(ctx, rec, positions, now); err != nil {
			return err
		}
		if err := r.replaceAttributes(ctx, rec); err != nil {
			return err
		}
		if err := r.replaceTimeRecords(ctx, rec); err != nil {
			return err
		}
		touched[rec.ID] = true
		for _, p := range []string{oldParent, rec.Parent} {
			if p != "" {
				touched[p] = true
			}
		}
	}

	for _, rec := range cs.Delete {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, rec.ID); err != nil {
			return fmt.Errorf("deleting todo %s: %w", rec.ID, err)
		}
		if rec.Parent != "" {
			touched[rec.Parent] = true
		}
	}

	for id, pos := range positions {
		if _, err := r.db.ExecContext(ctx, `UPDATE todos SET order_index = ? WHERE id = ?`, pos, id); err != nil {
			return fmt.Errorf("positioning todo %s: %w", id, err)
		}
	}
	for id := range touched {
		if err := r.refreshKind(ctx, id); err != nil {
			return err
		}
	}
	if len(cs.Upsert) > 0 {
		return r.checkParents(ctx)
	}
	return nil
}

// checkParents fails while any todo points at a missing parent. The
// deferred foreign key would only catch this at commit, where a failure
// leaves the SQLite transaction open; failing here lets the caller roll
// back cleanly.
func (r *SQLiteTodoRepo) checkParents(ctx context.Context) error {
	var orphan string
	err := r.db.QueryRowContext(ctx, `SELECT c.id FROM todos c
		WHERE c.parent_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM todos p WHERE p.id = c.parent_id)
		LIMIT 1`).Scan(&orphan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking parent links: %w", err)
	}
	return fmt.Errorf("todo %s has no stored parent: %w", orphan, domain.ErrMalformedRecord)
}

func (r *SQLiteTodoRepo) parentOf(ctx context.Context, id string) (string, error) {
	var parent sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT parent_id FROM todos WHERE id = ?`, id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading parent of %s: %w", id, err)
	}
	return parent.String, nil
}

func (r *SQLiteTodoRepo) upsertRow(ctx context.Context, rec domain.Record, positions map[string]int, now string) error {
	pos, known := positions[rec.ID]
	if !known {
		next, err := r.nextOrderIndex(ctx, rec.Parent)
		if err != nil {
			return err
		}
		pos = next
	}

	query := `INSERT INTO todos (id, parent_id, name, estimate_ns, completed, order_index,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id   = excluded.parent_id,
			name        = excluded.name,
			estimate_ns = excluded.estimate_ns,
			completed   = excluded.completed,
			order_index = CASE WHEN ? THEN excluded.order_index
			                   WHEN todos.parent_id IS excluded.parent_id THEN todos.order_index
			                   ELSE excluded.order_index END,
			updated_at  = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		nullableString(rec.Parent),
		rec.Name,
		int64(rec.EstimateTime),
		boolToInt(rec.Completed),
		pos,
		now,
		now,
		boolToInt(known),
	)
	if err != nil {
		return fmt.Errorf("upserting todo %s: %w", rec.ID, err)
	}
	return nil
}

// nextOrderIndex returns one past the largest sibling index under parent.
func (r *SQLiteTodoRepo) nextOrderIndex(ctx context.Context, parent string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(order_index) + 1, 0) FROM todos WHERE parent_id IS ?`,
		nullableString(parent)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing order index under %q: %w", parent, err)
	}
	return next, nil
}

func (r *SQLiteTodoRepo) replaceAttributes(ctx context.Context, rec domain.Record) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM todo_attributes WHERE todo_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clearing attributes of %s: %w", rec.ID, err)
	}
	for k, v := range rec.Attributes {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO todo_attributes (todo_id, key, value) VALUES (?, ?, ?)`, rec.ID, k, v)
		if err != nil {
			return fmt.Errorf("inserting attribute %s of %s: %w", k, rec.ID, err)
		}
	}
	return nil
}

func (r *SQLiteTodoRepo) replaceTimeRecords(ctx context.Context, rec domain.Record) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM time_records WHERE todo_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clearing time records of %s: %w", rec.ID, err)
	}
	for i, tr := range rec.TimeRecords {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO time_records (todo_id, seq, start_at, end_at) VALUES (?, ?, ?, ?)`,
			rec.ID, i, tr.Start.UTC().Format(timeLayout), nullableTimeToString(tr.End))
		if err != nil {
			return fmt.Errorf("inserting time record of %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (r *SQLiteTodoRepo) refreshKind(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE todos SET kind = CASE
			WHEN EXISTS (SELECT 1 FROM todos c WHERE c.parent_id = todos.id) THEN 'container'
			ELSE 'leaf' END
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("refreshing kind of %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteTodoRepo) ListTree(ctx context.Context) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, treeQuery)
	if err != nil {
		return nil, fmt.Errorf("listing todo tree: %w", err)
	}
	records, err := scanTodos(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	attrs, err := r.loadAttributes(ctx, "")
	if err != nil {
		return nil, err
	}
	intervals, err := r.loadTimeRecords(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Attributes = attrs[records[i].ID]
		records[i].TimeRecords = intervals[records[i].ID]
	}
	return records, nil
}

func (r *SQLiteTodoRepo) GetByID(ctx context.Context, id string) (domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos t WHERE t.id = ?`, id)
	if err != nil {
		return domain.Record{}, fmt.Errorf("loading todo %s: %w", id, err)
	}
	records, err := scanTodos(rows)
	rows.Close()
	if err != nil {
		return domain.Record{}, err
	}
	if len(records) == 0 {
		return domain.Record{}, fmt.Errorf("todo %s: %w", id, domain.ErrNotFound)
	}

	rec := records[0]
	attrs, err := r.loadAttributes(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}
	intervals, err := r.loadTimeRecords(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}
	rec.Attributes = attrs[id]
	rec.TimeRecords = intervals[id]
	return rec, nil
}

func (r *SQLiteTodoRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting todo %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("todo %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// scanTodos reads rows selected with todoColumns.
func scanTodos(rows *sql.Rows) ([]domain.Record, error) {
	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		var parent sql.NullString
		var estimate int64
		var completed int
		var kind string
		if err := rows.Scan(&rec.ID, &parent, &rec.Name, &estimate, &completed, &kind); err != nil {
			return nil, fmt.Errorf("scanning todo row: %w", err)
		}
		rec.Parent = parent.String
		rec.EstimateTime = time.Duration(estimate)
		rec.Completed = intToBool(completed)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating todos: %w", err)
	}
	return records, nil
}

// loadAttributes returns attributes keyed by todo id, for one todo or for
// all of them when id is empty.
func (r *SQLiteTodoRepo) loadAttributes(ctx context.Context, id string) (map[string]map[string]string, error) {
	query := `SELECT todo_id, key, value FROM todo_attributes`
	var args []any
	if id != "" {
		query += ` WHERE todo_id = ?`
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing attributes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var todoID, k, v string
		if err := rows.Scan(&todoID, &k, &v); err != nil {
			return nil, fmt.Errorf("scanning attribute: %w", err)
		}
		if out[todoID] == nil {
			out[todoID] = make(map[string]string)
		}
		out[todoID][k] = v
	}
	return out, rows.Err()
}

// loadTimeRecords returns leaf intervals keyed by todo id. Containers are
// skipped through the kind column.
func (r *SQLiteTodoRepo) loadTimeRecords(ctx context.Context, id string) (map[string][]domain.TimeRecord, error) {
	query := `SELECT tr.todo_id, tr.start_at, tr.end_at
		FROM time_records tr JOIN todos t ON t.id = tr.todo_id
		WHERE t.kind = 'leaf'`
	var args []any
	if id != "" {
		query += ` AND tr.todo_id = ?`
		args = append(args, id)
	}
	query += ` ORDER BY tr.todo_id, tr.seq`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing time records: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.TimeRecord)
	for rows.Next() {
		var todoID, start string
		var end sql.NullString
		if err := rows.Scan(&todoID, &start, &end); err != nil {
			return nil, fmt.Errorf("scanning time record: %w", err)
		}
		startAt, err := time.Parse(timeLayout, start)
		if err != nil {
			return nil, fmt.Errorf("parsing start of %s: %w", todoID, err)
		}
		endAt, err := parseNullableTime(end)
		if err != nil {
			return nil, err
		}
		out[todoID] = append(out[todoID], domain.TimeRecord{Start: startAt, End: endAt})
	}
	return out, rows.Err()
}
