package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const taskColumns = `id, title, coalesce(details,''), status, priority, coalesce(assignee_id,''), coalesce(created_by,''), created_at, updated_at, completed_at`

func (s *PGStore) Create(ctx context.Context, t *Task) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tasks(id, title, details, status, priority, assignee_id, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''),$8,$9)
	`, t.ID, t.Title, t.Details, string(t.Status), string(t.Priority), t.AssigneeID, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `select `+taskColumns+` from tasks where id = $1`, id)
	return scanTask(row)
}

func (s *PGStore) Update(ctx context.Context, t *Task) error {
	res, err := s.db.ExecContext(ctx, `
		update tasks
		set title = $2, details = $3, status = $4, priority = $5,
		    assignee_id = nullif($6,''), updated_at = $7, completed_at = $8
		where id = $1
	`, t.ID, t.Title, t.Details, string(t.Status), string(t.Priority), t.AssigneeID, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		return err
	}
	return matched(res)
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id = $1`, id)
	if err != nil {
		return err
	}
	return matched(res)
}

func (s *PGStore) List(ctx context.Context, f ListFilter) ([]*Task, error) {
	where := []string{"true"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Priority != "" {
		where = append(where, "priority = "+arg(string(f.Priority)))
	}
	if f.AssigneeID != "" {
		where = append(where, "assignee_id = "+arg(f.AssigneeID))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `select ` + taskColumns + ` from tasks where ` + strings.Join(where, " and ") +
		` order by created_at desc limit ` + arg(limit) + ` offset ` + arg(f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var t Task
		var status, priority string
		if err := rows.Scan(&t.ID, &t.Title, &t.Details, &status, &priority,
			&t.AssigneeID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		t.Priority = Priority(priority)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func scanTask(row *sql.Row) (*Task, error) {
	var t Task
	var status, priority string
	if err := row.Scan(&t.ID, &t.Title, &t.Details, &status, &priority,
		&t.AssigneeID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	return &t, nil
}

func matched(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
