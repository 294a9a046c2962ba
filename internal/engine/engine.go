package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"habitbuilder/internal/calendar"
	"habitbuilder/internal/config"
	"habitbuilder/internal/domain"
	"habitbuilder/internal/events"
	"habitbuilder/internal/repo"
	"habitbuilder/internal/routine"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Name      string
	Category  string
	Status    int
	CreatedAt calendar.Date
	ActorID   string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Name == "" {
		return domain.Task{}, errors.New("name is required")
	}
	if opts.Category == "" {
		return domain.Task{}, errors.New("category is required")
	}
	if opts.CreatedAt.IsZero() {
		opts.CreatedAt = calendar.FromTime(e.now())
	}
	t := domain.Task{
		Name:      opts.Name,
		Category:  opts.Category,
		Status:    opts.Status,
		CreatedAt: opts.CreatedAt,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	if err := e.eventWriter().Append(ctx, tx, events.TaskCreated, id, opts.ActorID, events.EventPayload{
		"name": t.Name, "category": t.Category, "created_at": t.CreatedAt.String(),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions are parameters for rewriting a task's mutable fields.
// All three fields are written as given; callers send the full new state.
type TaskUpdateOptions struct {
	Name     string
	Category string
	Status   int
	ActorID  string
}

func (e Engine) UpdateTask(ctx context.Context, id int64, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Name == "" {
		return domain.Task{}, errors.New("name is required")
	}
	if opts.Category == "" {
		return domain.Task{}, errors.New("category is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, id, repo.TaskUpdate{
		Name:     opts.Name,
		Category: opts.Category,
		Status:   opts.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TaskUpdated, id, opts.ActorID, events.EventPayload{
		"name": opts.Name, "category": opts.Category, "status": opts.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) DeleteTask(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, events.TaskDeleted, id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RoutineCreateOptions describe a one-off or weekly-repeating task.
type RoutineCreateOptions struct {
	Name      string
	Category  string
	Status    int
	StartDate calendar.Date
	Routine   bool
	EndDate   *calendar.Date
	ActorID   string
}

// CreateRoutine materializes the routine as individual task rows, one
// insert at a time in date order. On the first failing insert it stops:
// everything created before the failure stays, nothing after is attempted.
// The returned count is the number of tasks that were persisted.
func (e Engine) CreateRoutine(ctx context.Context, opts RoutineCreateOptions) (int, error) {
	if opts.Name == "" {
		return 0, errors.New("name is required")
	}
	if opts.Category == "" {
		return 0, errors.New("category is required")
	}
	if opts.StartDate.IsZero() {
		return 0, errors.New("start date is required")
	}
	reqs, err := routine.Expand(routine.Template{
		Name:     opts.Name,
		Category: opts.Category,
		Status:   opts.Status,
	}, opts.StartDate, opts.EndDate, opts.Routine)
	if err != nil {
		return 0, err
	}
	n, err := routine.Submit(ctx, reqs, func(ctx context.Context, r routine.CreateRequest) error {
		_, cerr := e.CreateTask(ctx, TaskCreateOptions{
			Name:      r.Name,
			Category:  r.Category,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
			ActorID:   opts.ActorID,
		})
		return cerr
	})
	if err != nil {
		return n, err
	}
	if opts.Routine {
		tx, terr := e.DB.BeginTx(ctx, nil)
		if terr != nil {
			return n, terr
		}
		defer tx.Rollback()
		if aerr := e.eventWriter().Append(ctx, tx, events.RoutineCreated, 0, opts.ActorID, events.EventPayload{
			"name": opts.Name, "category": opts.Category, "count": n,
		}); aerr != nil {
			return n, aerr
		}
		if cerr := tx.Commit(); cerr != nil {
			return n, cerr
		}
	}
	return n, nil
}

// ListRange returns tasks created within [start, end], both inclusive.
func (e Engine) ListRange(ctx context.Context, start, end calendar.Date) ([]domain.Task, error) {
	if start.IsZero() || end.IsZero() {
		return nil, errors.New("start and end dates are required")
	}
	return e.Repo.ListTasksInRange(ctx, start, end)
}

// ListWeek returns the tasks of the week containing ref, along with the
// window that was used.
func (e Engine) ListWeek(ctx context.Context, ref time.Time) ([]domain.Task, calendar.DateRange, error) {
	window := calendar.ComputeWeek(ref)
	tasks, err := e.Repo.ListTasksInRange(ctx, window.StartDate(), window.EndDate())
	return tasks, window, err
}

// Progress computes the mean status per category over [start, end].
func (e Engine) Progress(ctx context.Context, start, end calendar.Date) ([]domain.CategoryAverage, error) {
	if start.IsZero() || end.IsZero() {
		return nil, errors.New("start and end dates are required")
	}
	return e.Repo.AverageStatusByCategory(ctx, start, end)
}

func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

// ListEvents returns recent log entries, newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}

func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}
