package repository

import (
	"context"

	"github.com/fastygo/taskboard/domain"
)

// SessionRepository is the provider-side registry of issued sessions.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	Extend(ctx context.Context, id string, ttlSeconds int) error
}

// SessionCache persists the client's current session so it can be resumed after restart.
type SessionCache interface {
	Load() (*domain.Session, error)
	Store(session *domain.Session) error
	Clear() error
}
