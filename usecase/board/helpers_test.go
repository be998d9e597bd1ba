package board

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fastygo/taskboard/domain"
)

type harness struct {
	board    *Board
	store    *fakeStore
	blobs    *fakeBlobs
	realtime *fakeRealtime
	identity *fakeIdentity
	notes    *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		blobs:    &fakeBlobs{},
		realtime: &fakeRealtime{},
		identity: &fakeIdentity{email: "owner@example.com"},
		notes:    &recordingNotifier{},
	}
	h.board = New(h.store, h.blobs, h.realtime, h.identity, h.notes, nil, Config{
		Now: func() time.Time { return baseTime },
	})
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	if err := h.board.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
}

func insertEvent(row domain.Task) domain.ChangeEvent {
	record, _ := json.Marshal(row)
	return domain.ChangeEvent{Table: domain.TasksTable, Type: domain.ChangeInsert, Record: record}
}

func titles(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}

func assertTitles(t *testing.T, got []domain.Task, want ...string) {
	t.Helper()
	g := titles(got)
	if len(g) != len(want) {
		t.Fatalf("expected titles %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected titles %v, got %v", want, g)
		}
	}
}
