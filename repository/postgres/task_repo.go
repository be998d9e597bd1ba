package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/repository"
)

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a Postgres-backed implementation of TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) repository.TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) List(ctx context.Context, query domain.TaskQuery) ([]domain.Task, error) {
	sql := `
	SELECT id, title, description, image_url, created_at, email
	FROM tasks
	WHERE ($1 = '' OR email = $1)
	ORDER BY created_at ASC, id ASC
	`
	if query.Descending {
		sql = `
	SELECT id, title, description, image_url, created_at, email
	FROM tasks
	WHERE ($1 = '' OR email = $1)
	ORDER BY created_at DESC, id DESC
	`
	}

	rows, err := r.pool.Query(ctx, sql, query.OwnerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Insert(ctx context.Context, task domain.NewTask) (*domain.Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	const query = `
	INSERT INTO tasks (title, description, image_url, email)
	VALUES ($1, $2, $3, $4)
	RETURNING id, title, description, image_url, created_at, email
	`

	row := r.pool.QueryRow(ctx, query,
		task.Title,
		task.Description,
		nullString(task.ImageURL),
		task.OwnerEmail,
	)
	return scanTask(row)
}

func (r *taskRepository) Update(ctx context.Context, id int64, patch domain.TaskPatch) error {
	if patch.Empty() {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE tasks
	SET description = COALESCE($2, description)
	WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, patch.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func scanTask(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Task, error) {
	var (
		task     domain.Task
		imageURL *string
	)

	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&imageURL,
		&task.CreatedAt,
		&task.OwnerEmail,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	if imageURL != nil && *imageURL != "" {
		task.ImageURL = imageURL
	}
	return &task, nil
}
