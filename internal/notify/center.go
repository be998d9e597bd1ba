package notify

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskboard/domain"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Level   Level            `json:"level"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
	Code    domain.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
	Time    time.Time        `json:"time"`
}

// Center keeps the most recent notifications in a bounded ring and logs each one.
type Center struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	now      func() time.Time
	logger   *zap.Logger
}

func NewCenter(capacity int, logger *zap.Logger) *Center {
	if capacity <= 0 {
		capacity = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		capacity: capacity,
		now:      time.Now,
		logger:   logger,
	}
}

func (c *Center) Success(message string) {
	c.push(Notification{Level: LevelSuccess, Message: message})
}

func (c *Center) Warn(kind domain.ErrorKind, message string) {
	c.push(Notification{Level: LevelWarning, Kind: kind, Message: message})
}

// Error records err with the kind and code of the first domain error in its chain.
func (c *Center) Error(err error) {
	if err == nil {
		return
	}
	n := Notification{Level: LevelError, Message: err.Error()}
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		n.Kind = dErr.Kind
		n.Code = dErr.Code
	}
	c.push(n)
}

// Drain returns pending notifications oldest first and empties the ring.
func (c *Center) Drain() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.items
	c.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Pending returns a copy of the ring without consuming it.
func (c *Center) Pending() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}

func (c *Center) push(n Notification) {
	n.Time = c.now()

	fields := []zap.Field{zap.String("level", string(n.Level))}
	if n.Kind != "" {
		fields = append(fields, zap.String("kind", string(n.Kind)))
	}
	switch n.Level {
	case LevelError:
		c.logger.Error(n.Message, fields...)
	case LevelWarning:
		c.logger.Warn(n.Message, fields...)
	default:
		c.logger.Info(n.Message, fields...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
	if over := len(c.items) - c.capacity; over > 0 {
		c.items = append([]Notification(nil), c.items[over:]...)
	}
}
