package repository

import (
	"context"

	"github.com/fastygo/taskboard/domain"
)

// Object is a stored blob together with its content type.
type Object struct {
	ContentType string
	Data        []byte
}

type BlobRepository interface {
	Put(ctx context.Context, bucket, key string, upload domain.PendingUpload) error
	Get(ctx context.Context, bucket, key string) (*Object, error)
	Count() (int, error)
}
