package usecase

import (
	"context"

	"github.com/fastygo/taskboard/domain"
)

// Subscription is a handle on a push stream; Close stops delivery and is idempotent.
type Subscription interface {
	Close() error
}

// SessionListener receives every session change pushed by the auth provider.
// A nil session means there is no longer an authenticated user.
type SessionListener func(event domain.AuthEvent, session *domain.Session)

// SignUpResult reports what the provider did with a new registration.
type SignUpResult struct {
	PendingConfirmation bool
	Session             *domain.Session
}

// AuthProvider abstracts the hosted authentication service.
type AuthProvider interface {
	SignUp(ctx context.Context, email, password string) (SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*domain.Session, error)
	OnSessionChange(listener SessionListener) Subscription
}

// TaskStore abstracts the relational store for the task table.
type TaskStore interface {
	List(ctx context.Context, query domain.TaskQuery) ([]domain.Task, error)
	Insert(ctx context.Context, task domain.NewTask) (*domain.Task, error)
	Update(ctx context.Context, id int64, patch domain.TaskPatch) error
	Delete(ctx context.Context, id int64) error
}

// BlobStorage abstracts the object storage service.
type BlobStorage interface {
	Upload(ctx context.Context, bucket, key string, upload domain.PendingUpload) error
	PublicURL(bucket, key string) string
}

// ChangeHandler is invoked for every matching row-change notification.
type ChangeHandler func(event domain.ChangeEvent)

// Realtime abstracts the change-notification transport.
type Realtime interface {
	Subscribe(ctx context.Context, table string, eventType domain.ChangeType, handler ChangeHandler) (Subscription, error)
}

// Notifier surfaces user-visible messages.
type Notifier interface {
	Success(message string)
	Warn(kind domain.ErrorKind, message string)
	Error(err error)
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error {
	if f == nil {
		return nil
	}
	return f()
}
