package bolt

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/repository"
)

// SessionBucket holds the persisted client session.
const SessionBucket = "auth"

var currentSessionKey = []byte("current_session")

type sessionCache struct {
	db *bolt.DB
}

// NewSessionCache persists the current session in BoltDB so a restart can resume it.
func NewSessionCache(db *bolt.DB) repository.SessionCache {
	return &sessionCache{db: db}
}

// Load returns nil without error when nothing is persisted.
func (c *sessionCache) Load() (*domain.Session, error) {
	if c.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	var session *domain.Session
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(SessionBucket))
		if b == nil {
			return nil
		}
		raw := b.Get(currentSessionKey)
		if raw == nil {
			return nil
		}
		var s domain.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		session = &s
		return nil
	})
	return session, err
}

func (c *sessionCache) Store(session *domain.Session) error {
	if c.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if session == nil {
		return c.Clear()
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(SessionBucket))
		if err != nil {
			return err
		}
		return b.Put(currentSessionKey, payload)
	})
}

func (c *sessionCache) Clear() error {
	if c.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(SessionBucket))
		if b == nil {
			return nil
		}
		return b.Delete(currentSessionKey)
	})
}
