package repository

import (
	"context"

	"github.com/fastygo/taskboard/domain"
)

type TaskRepository interface {
	List(ctx context.Context, query domain.TaskQuery) ([]domain.Task, error)
	Insert(ctx context.Context, task domain.NewTask) (*domain.Task, error)
	Update(ctx context.Context, id int64, patch domain.TaskPatch) error
	Delete(ctx context.Context, id int64) error
}
