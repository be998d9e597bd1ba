package domain

import (
	"encoding/json"
	"time"
)

// ChangeType is the row operation carried by a realtime notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a row-change notification delivered by the realtime channel.
// The wire form carries only ID; Record is filled in before delivery.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Type       ChangeType      `json:"type"`
	ID         int64           `json:"id,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	CommitTime time.Time       `json:"commit_timestamp"`
}

// DecodeTask unmarshals the event record as a task row.
func (e ChangeEvent) DecodeTask() (*Task, error) {
	if len(e.Record) == 0 {
		return nil, ErrInvalidPayload
	}
	var task Task
	if err := json.Unmarshal(e.Record, &task); err != nil {
		return nil, WrapError(ErrCodeInvalid, "decode task record", err)
	}
	if task.ID == 0 {
		return nil, NewError(ErrCodeInvalid, "task record without id")
	}
	return &task, nil
}

// PendingUpload is a locally selected file waiting to be attached to a new task.
type PendingUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Size returns the payload length in bytes.
func (p *PendingUpload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}
