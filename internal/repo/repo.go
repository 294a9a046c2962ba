package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"habitbuilder/internal/calendar"
	"habitbuilder/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// TaskUpdate carries the mutable task fields. created_at is immutable after
// creation and deliberately has no place here.
type TaskUpdate struct {
	Name     string
	Category string
	Status   int
}

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var created string
	if err := scan(&t.ID, &t.Name, &t.Category, &t.Status, &created); err != nil {
		return t, err
	}
	day, err := calendar.Parse(created)
	if err != nil {
		return t, fmt.Errorf("stored created_at: %w", err)
	}
	t.CreatedAt = day
	return t, nil
}

// InsertTask persists a task and returns the store-assigned id.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(name,category,status,created_at) VALUES (?,?,?,?)`,
		t.Name, t.Category, t.Status, t.CreatedAt.String())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,category,status,created_at FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// UpdateTask rewrites name, category and status for the given id. An unknown
// id yields ErrNotFound and changes nothing.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id int64, u TaskUpdate) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET name=?, category=?, status=? WHERE id=?`,
		u.Name, u.Category, u.Status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasksInRange returns tasks whose created_at falls within [start, end],
// both bounds inclusive, earliest day first.
func (r Repo) ListTasksInRange(ctx context.Context, start, end calendar.Date) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,name,category,status,created_at FROM tasks WHERE created_at BETWEEN ? AND ? ORDER BY created_at ASC, id ASC`,
		start.String(), end.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// AverageStatusByCategory computes the arithmetic mean of status per
// category over [start, end] inclusive. Categories without tasks in the
// range do not appear; the result order is whatever the store yields.
func (r Repo) AverageStatusByCategory(ctx context.Context, start, end calendar.Date) ([]domain.CategoryAverage, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT category, AVG(status) FROM tasks WHERE created_at BETWEEN ? AND ? GROUP BY category`,
		start.String(), end.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CategoryAverage
	for rows.Next() {
		var a domain.CategoryAverage
		if err := rows.Scan(&a.Category, &a.AverageStatus); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountTasks returns the total number of stored tasks.
func (r Repo) CountTasks(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks`).Scan(&n)
	return n, err
}

type EventFilters struct {
	Type     string
	EntityID int64
	Limit    int
}

// LatestEvents returns the most recent log entries, newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityID != 0 {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,type,entity_id,actor_id,payload_json FROM events ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entity sql.NullInt64
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entity.Valid {
			e.EntityID = entity.Int64
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
