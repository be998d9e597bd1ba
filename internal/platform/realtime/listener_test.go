package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastygo/taskboard/domain"
)

func subscribe(l *Listener, table string, eventType domain.ChangeType, got *[]domain.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[l.nextID] = subscriber{
		table:     table,
		eventType: eventType,
		handler:   func(e domain.ChangeEvent) { *got = append(*got, e) },
	}
	l.nextID++
}

func TestDispatchMatchesTableAndType(t *testing.T) {
	l := NewListener(nil, "", nil)
	var inserts, deletes, other []domain.ChangeEvent
	subscribe(l, domain.TasksTable, domain.ChangeInsert, &inserts)
	subscribe(l, domain.TasksTable, domain.ChangeDelete, &deletes)
	subscribe(l, "users", domain.ChangeInsert, &other)

	l.dispatch(context.Background(), []byte(`{"table":"tasks","type":"INSERT","record":{"id":7,"title":"a","description":"","image_url":null,"created_at":"2024-05-01T10:00:00.5+00:00","email":"a@x.io"},"commit_timestamp":"2024-05-01T10:00:00.5+00:00"}`))

	if len(inserts) != 1 || len(deletes) != 0 || len(other) != 0 {
		t.Fatalf("deliveries inserts=%d deletes=%d other=%d", len(inserts), len(deletes), len(other))
	}
	task, err := inserts[0].DecodeTask()
	if err != nil {
		t.Fatalf("DecodeTask() error = %v", err)
	}
	if task.ID != 7 || task.OwnerEmail != "a@x.io" || task.HasImage() {
		t.Errorf("decoded task = %+v", task)
	}
}

func TestDispatchIgnoresMalformedPayload(t *testing.T) {
	l := NewListener(nil, "", nil)
	var got []domain.ChangeEvent
	subscribe(l, domain.TasksTable, domain.ChangeInsert, &got)

	l.dispatch(context.Background(), []byte(`not json`))

	if len(got) != 0 {
		t.Fatalf("expected no delivery, got %d", len(got))
	}
}

func TestSubscribeWithoutDatabase(t *testing.T) {
	l := NewListener(nil, "", nil)

	_, err := l.Subscribe(context.Background(), domain.TasksTable, domain.ChangeInsert, func(domain.ChangeEvent) {})
	if !errors.Is(err, domain.ErrChannelUnavailable) {
		t.Fatalf("Subscribe() error = %v, want ErrChannelUnavailable", err)
	}
	if err := l.Ping(context.Background()); !errors.Is(err, domain.ErrChannelUnavailable) {
		t.Errorf("Ping() error = %v", err)
	}
	if l.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d", l.Subscribers())
	}
}

func TestSubscribeRejectsNilHandler(t *testing.T) {
	l := NewListener(nil, "", nil)

	if _, err := l.Subscribe(context.Background(), domain.TasksTable, domain.ChangeInsert, nil); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("Subscribe(nil) error = %v", err)
	}
}

func TestDispatchLoadsRowForIDOnlyPayload(t *testing.T) {
	l := NewListener(nil, "", nil)
	var loaded []int64
	l.load = func(_ context.Context, table string, id int64) (json.RawMessage, error) {
		if table != domain.TasksTable {
			t.Errorf("load table = %q", table)
		}
		loaded = append(loaded, id)
		return json.RawMessage(`{"id":9,"title":"long","description":"` + strings.Repeat("x", 9000) + `","image_url":null,"created_at":"2024-05-01T10:00:00.5+00:00","email":"a@x.io"}`), nil
	}
	var got []domain.ChangeEvent
	subscribe(l, domain.TasksTable, domain.ChangeInsert, &got)

	l.dispatch(context.Background(), []byte(`{"table":"tasks","type":"INSERT","id":9,"commit_timestamp":"2024-05-01T10:00:00.5+00:00"}`))

	if len(loaded) != 1 || loaded[0] != 9 {
		t.Fatalf("loaded = %v, want [9]", loaded)
	}
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	task, err := got[0].DecodeTask()
	if err != nil {
		t.Fatalf("DecodeTask() error = %v", err)
	}
	if task.ID != 9 || len(task.Description) != 9000 {
		t.Errorf("decoded task id=%d description length=%d", task.ID, len(task.Description))
	}
}

func TestDispatchSkipsRowThatCannotBeLoaded(t *testing.T) {
	l := NewListener(nil, "", nil)
	l.load = func(context.Context, string, int64) (json.RawMessage, error) {
		return nil, domain.NewError(domain.ErrCodeNotFound, "record not found")
	}
	var got []domain.ChangeEvent
	subscribe(l, domain.TasksTable, domain.ChangeInsert, &got)

	l.dispatch(context.Background(), []byte(`{"table":"tasks","type":"INSERT","id":3}`))

	if len(got) != 0 {
		t.Fatalf("expected no delivery, got %d", len(got))
	}
}

func TestDispatchWithoutSubscribersDoesNotLoad(t *testing.T) {
	l := NewListener(nil, "", nil)
	l.load = func(context.Context, string, int64) (json.RawMessage, error) {
		t.Error("load called without subscribers")
		return nil, nil
	}

	l.dispatch(context.Background(), []byte(`{"table":"tasks","type":"INSERT","id":3}`))
}

type fakeConn struct {
	fail  error
	notes chan *pgconn.Notification
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	select {
	case n := <-c.notes:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() {}

func TestListenerReconnectsWhileSubscribed(t *testing.T) {
	l := NewListener(nil, "", nil)
	l.minBackoff = time.Millisecond

	healthy := &fakeConn{notes: make(chan *pgconn.Notification, 1)}
	var mu sync.Mutex
	dials := 0
	l.dial = func(context.Context) (listenConn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		switch dials {
		case 1:
			return &fakeConn{fail: errors.New("connection reset")}, nil
		case 2:
			return nil, errors.New("still down")
		default:
			return healthy, nil
		}
	}
	l.load = func(context.Context, string, int64) (json.RawMessage, error) {
		return json.RawMessage(`{"id":1,"title":"a","created_at":"2024-05-01T10:00:00Z","email":"a@x.io"}`), nil
	}

	delivered := make(chan domain.ChangeEvent, 1)
	sub, err := l.Subscribe(context.Background(), domain.TasksTable, domain.ChangeInsert, func(e domain.ChangeEvent) {
		delivered <- e
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer l.Stop()
	defer sub.Close()

	healthy.notes <- &pgconn.Notification{Payload: `{"table":"tasks","type":"INSERT","id":1}`}

	select {
	case e := <-delivered:
		if e.ID != 1 {
			t.Errorf("delivered id = %d", e.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery after reconnect")
	}
	if err := l.Ping(context.Background()); err != nil {
		t.Errorf("Ping() after reconnect error = %v", err)
	}
}
