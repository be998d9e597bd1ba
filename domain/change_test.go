package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeTask(t *testing.T) {
	raw := `{"table":"tasks","type":"INSERT","commit_timestamp":"2024-05-01T10:00:01Z",
		"record":{"id":3,"title":"Buy milk","description":"","image_url":"http://x/a.png","created_at":"2024-05-01T10:00:00.123456+00:00","email":"a@x.io"}}`

	var event ChangeEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != ChangeInsert || event.Table != TasksTable {
		t.Fatalf("event = %+v", event)
	}

	task, err := event.DecodeTask()
	if err != nil {
		t.Fatalf("DecodeTask() error = %v", err)
	}
	if task.ID != 3 || task.OwnerEmail != "a@x.io" || !task.HasImage() {
		t.Errorf("task = %+v", task)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)
	if !task.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", task.CreatedAt, want)
	}
}

func TestDecodeTaskRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{name: "empty", record: ""},
		{name: "not json", record: `{"id":`},
		{name: "no id", record: `{"title":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := ChangeEvent{Type: ChangeInsert, Record: json.RawMessage(tt.record)}
			if _, err := event.DecodeTask(); !IsDomainError(err, ErrCodeInvalid) {
				t.Errorf("DecodeTask() error = %v, want INVALID", err)
			}
		})
	}
}

func TestTaskOrderingAndPatch(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := Task{ID: 2, CreatedAt: at}
	b := Task{ID: 1, CreatedAt: at.Add(time.Second)}
	c := Task{ID: 3, CreatedAt: at}

	if !a.Before(b) || b.Before(a) {
		t.Error("earlier created_at must sort first")
	}
	if !a.Before(c) {
		t.Error("equal created_at falls back to id")
	}

	desc := "new"
	task := Task{Title: "keep", Description: "old"}
	TaskPatch{Description: &desc}.Apply(&task)
	if task.Description != "new" || task.Title != "keep" {
		t.Errorf("after patch = %+v", task)
	}
	if !(TaskPatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
}

func TestNewTaskValidate(t *testing.T) {
	if err := (NewTask{Title: " ", OwnerEmail: "a@x.io"}).Validate(); !IsDomainError(err, ErrCodeInvalid) {
		t.Errorf("blank title error = %v", err)
	}
	if err := (NewTask{Title: "t"}).Validate(); !IsDomainError(err, ErrCodeInvalid) {
		t.Errorf("missing owner error = %v", err)
	}
	if err := (NewTask{Title: "t", OwnerEmail: "a@x.io"}).Validate(); err != nil {
		t.Errorf("valid task error = %v", err)
	}
}
