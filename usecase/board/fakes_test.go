package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/usecase"
)

var (
	ErrMockStore   = errors.New("mock store error")
	ErrMockUpload  = errors.New("mock upload error")
	ErrMockChannel = errors.New("mock channel error")
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore assigns ids and strictly increasing creation times like the real table.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[int64]domain.Task
	nextID int64
	clock  time.Time

	ListFunc     func(ctx context.Context) ([]domain.Task, error)
	BeforeInsert func(row domain.Task)
	InsertErr    error
	UpdateFunc   func(ctx context.Context, id int64, patch domain.TaskPatch) error
	DeleteFunc   func(ctx context.Context, id int64) error
	InsertCalls  int
	DeleteCalls  int
	UpdateCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]domain.Task), clock: baseTime}
}

func (s *fakeStore) seed(title string) domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(domain.NewTask{Title: title, OwnerEmail: "seed@example.com"})
}

func (s *fakeStore) insertLocked(t domain.NewTask) domain.Task {
	s.nextID++
	s.clock = s.clock.Add(time.Second)
	row := domain.Task{
		ID:          s.nextID,
		Title:       t.Title,
		Description: t.Description,
		ImageURL:    t.ImageURL,
		CreatedAt:   s.clock,
		OwnerEmail:  t.OwnerEmail,
	}
	s.rows[row.ID] = row
	return row
}

func (s *fakeStore) List(ctx context.Context, _ domain.TaskQuery) ([]domain.Task, error) {
	if s.ListFunc != nil {
		return s.ListFunc(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, nil
}

func (s *fakeStore) Insert(_ context.Context, t domain.NewTask) (*domain.Task, error) {
	s.mu.Lock()
	s.InsertCalls++
	if s.InsertErr != nil {
		s.mu.Unlock()
		return nil, s.InsertErr
	}
	row := s.insertLocked(t)
	hook := s.BeforeInsert
	s.mu.Unlock()

	if hook != nil {
		hook(row)
	}
	return &row, nil
}

func (s *fakeStore) Update(ctx context.Context, id int64, patch domain.TaskPatch) error {
	s.mu.Lock()
	s.UpdateCalls++
	fn := s.UpdateFunc
	s.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, id, patch); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	patch.Apply(&row)
	s.rows[id] = row
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	s.DeleteCalls++
	fn := s.DeleteFunc
	s.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(s.rows, id)
	return nil
}

type fakeBlobs struct {
	UploadErr error
	Keys      []string
}

func (f *fakeBlobs) Upload(_ context.Context, bucket, key string, _ domain.PendingUpload) error {
	if f.UploadErr != nil {
		return f.UploadErr
	}
	f.Keys = append(f.Keys, bucket+"/"+key)
	return nil
}

func (f *fakeBlobs) PublicURL(bucket, key string) string {
	return "http://blobs.test/storage/v1/object/public/" + bucket + "/" + key
}

type fakeRealtime struct {
	mu           sync.Mutex
	handler      usecase.ChangeHandler
	SubscribeErr error
	OnSubscribe  func()
	Closed       int
	Table        string
	Event        domain.ChangeType
}

func (f *fakeRealtime) Subscribe(_ context.Context, table string, event domain.ChangeType, h usecase.ChangeHandler) (usecase.Subscription, error) {
	if f.OnSubscribe != nil {
		f.OnSubscribe()
	}
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.mu.Lock()
	f.handler = h
	f.Table = table
	f.Event = event
	f.mu.Unlock()
	return usecase.SubscriptionFunc(func() error {
		f.mu.Lock()
		f.Closed++
		f.mu.Unlock()
		return nil
	}), nil
}

// deliver pushes row as an insert event through the captured handler.
func (f *fakeRealtime) deliver(row domain.Task) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return
	}
	h(insertEvent(row))
}

type fakeIdentity struct {
	email string
}

func (f *fakeIdentity) CurrentEmail() (string, bool) {
	return f.email, f.email != ""
}

type note struct {
	level string
	kind  domain.ErrorKind
	msg   string
	err   error
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (r *recordingNotifier) Success(msg string) {
	r.add(note{level: "success", msg: msg})
}

func (r *recordingNotifier) Warn(kind domain.ErrorKind, msg string) {
	r.add(note{level: "warning", kind: kind, msg: msg})
}

func (r *recordingNotifier) Error(err error) {
	r.add(note{level: "error", err: err})
}

func (r *recordingNotifier) add(n note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) count(level string, kind domain.ErrorKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.notes {
		if item.level != level {
			continue
		}
		if level == "error" {
			if domain.IsKind(item.err, kind) {
				n++
			}
			continue
		}
		if item.kind == kind {
			n++
		}
	}
	return n
}
