package bolt

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/repository"
)

// ObjectsBucket is the top-level bucket; each storage bucket is nested under it.
const ObjectsBucket = "objects"

type storedObject struct {
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type blobRepository struct {
	db *bolt.DB
}

// NewBlobRepository stores uploaded objects in BoltDB. Keys are never overwritten.
func NewBlobRepository(db *bolt.DB) repository.BlobRepository {
	return &blobRepository{db: db}
}

func (r *blobRepository) Put(ctx context.Context, bucket, key string, upload domain.PendingUpload) error {
	if r.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if bucket == "" || key == "" {
		return domain.ErrInvalidPayload
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(storedObject{
		ContentType: upload.ContentType,
		Data:        upload.Data,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(ObjectsBucket))
		if err != nil {
			return err
		}
		b, err := root.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		if b.Get([]byte(key)) != nil {
			return domain.ErrObjectExists
		}
		return b.Put([]byte(key), payload)
	})
}

func (r *blobRepository) Get(ctx context.Context, bucket, key string) (*repository.Object, error) {
	if r.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var obj *repository.Object
	err := r.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(ObjectsBucket))
		if root == nil {
			return domain.ErrObjectNotFound
		}
		b := root.Bucket([]byte(bucket))
		if b == nil {
			return domain.ErrObjectNotFound
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return domain.ErrObjectNotFound
		}
		var stored storedObject
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
		obj = &repository.Object{ContentType: stored.ContentType, Data: stored.Data}
		return nil
	})
	return obj, err
}

// Count returns the number of stored objects across all buckets.
func (r *blobRepository) Count() (int, error) {
	if r.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := r.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(ObjectsBucket))
		if root == nil {
			return nil
		}
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			if b := root.Bucket(k); b != nil {
				count += b.Stats().KeyN
			}
			return nil
		})
	})
	return count, err
}
