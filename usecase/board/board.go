// Package board implements the task list workflow: loading, creating with an
// optional image, updating descriptions, deleting, and merging live inserts.
package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/usecase"
)

// DefaultBucket is the storage bucket task images are uploaded to.
const DefaultBucket = "tasks-images"

// Identity exposes the signed-in user to the board.
type Identity interface {
	CurrentEmail() (string, bool)
}

type Config struct {
	Bucket string
	// Now stamps upload keys; defaults to time.Now.
	Now func() time.Time
}

type Board struct {
	store    usecase.TaskStore
	blobs    usecase.BlobStorage
	realtime usecase.Realtime
	identity Identity
	notifier usecase.Notifier
	logger   *zap.Logger
	bucket   string
	now      func() time.Time

	mu         sync.Mutex
	tasks      *TaskList
	inflight   inFlight
	draft      Draft
	draftRev   uint64
	sub        usecase.Subscription
	generation uint64
	mounted    bool
}

// Snapshot is a consistent copy of the board state for rendering.
type Snapshot struct {
	Tasks    []domain.Task `json:"tasks"`
	InFlight map[int64]Op  `json:"in_flight"`
	Draft    DraftView     `json:"draft"`
}

func New(
	store usecase.TaskStore,
	blobs usecase.BlobStorage,
	realtime usecase.Realtime,
	identity Identity,
	notifier usecase.Notifier,
	logger *zap.Logger,
	cfg Config,
) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Board{
		store:    store,
		blobs:    blobs,
		realtime: realtime,
		identity: identity,
		notifier: notifier,
		logger:   logger,
		bucket:   cfg.Bucket,
		now:      cfg.Now,
		tasks:    NewTaskList(),
		inflight: make(inFlight),
	}
}

// Mount opens the live insert channel and performs the initial load.
// A channel failure is logged and the board stays usable through Load.
func (b *Board) Mount(ctx context.Context) error {
	b.mu.Lock()
	if b.mounted {
		b.mu.Unlock()
		return nil
	}
	b.mounted = true
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	if b.realtime != nil {
		sub, err := b.realtime.Subscribe(ctx, domain.TasksTable, domain.ChangeInsert, b.insertHandler(gen))
		if err != nil {
			b.logger.Warn("realtime subscription failed", zap.Error(err))
			b.notifier.Warn("", "Live updates are unavailable; reload to see new tasks")
		} else {
			b.mu.Lock()
			if b.generation == gen {
				b.sub = sub
				sub = nil
			}
			b.mu.Unlock()
			if sub != nil {
				_ = sub.Close()
			}
		}
	}

	if !b.current(gen) {
		return nil
	}
	if _, ok := b.identity.CurrentEmail(); !ok {
		return b.fail(domain.NewAuthError("not signed in", domain.ErrUnauthorized))
	}
	return b.load(ctx, gen)
}

// Unmount closes the channel and drops local state. Calls still in flight
// complete against the store but their results are discarded.
func (b *Board) Unmount() {
	b.mu.Lock()
	if !b.mounted {
		b.mu.Unlock()
		return
	}
	b.mounted = false
	b.generation++
	sub := b.sub
	b.sub = nil
	b.tasks = NewTaskList()
	b.inflight = make(inFlight)
	b.draft = Draft{}
	b.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			b.logger.Warn("closing realtime subscription failed", zap.Error(err))
		}
	}
}

func (b *Board) Mounted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mounted
}

// Load replaces the local list with every task ordered by creation time.
// On failure the previous list stays visible.
func (b *Board) Load(ctx context.Context) error {
	gen, err := b.begin(domain.KindFetch)
	if err != nil {
		return err
	}
	return b.load(ctx, gen)
}

// load fetches the list for generation gen. Nothing is reported once the
// board was unmounted in the meantime.
func (b *Board) load(ctx context.Context, gen uint64) error {
	if !b.current(gen) {
		return nil
	}

	rows, err := b.store.List(ctx, domain.TaskQuery{})
	if err != nil {
		if !b.current(gen) {
			return nil
		}
		return b.fail(domain.NewFetchError("could not load tasks", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		b.logger.Debug("discarding load result from unmounted board")
		return nil
	}
	b.tasks.Replace(rows)
	return nil
}

func (b *Board) current(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation == gen
}

// Create uploads the draft's file when present, then inserts the task.
// An upload failure never aborts creation: the task is saved without image.
func (b *Board) Create(ctx context.Context, draft Draft) (*domain.Task, error) {
	gen, err := b.begin(domain.KindWrite)
	if err != nil {
		return nil, err
	}

	email, ok := b.identity.CurrentEmail()
	if !ok {
		return nil, b.fail(domain.NewAuthError("sign in to add tasks", domain.ErrUnauthorized))
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, b.fail(domain.NewWriteError("could not add task", domain.NewError(domain.ErrCodeInvalid, "title is required")))
	}

	var imageURL *string
	if draft.File != nil {
		url, err := b.upload(ctx, *draft.File)
		if err != nil {
			b.logger.Warn("image upload failed, creating task without image",
				zap.String("filename", draft.File.Filename),
				zap.Error(err))
			b.notifier.Warn(domain.KindStorage, "Image upload failed; the task was saved without an image")
		} else {
			imageURL = &url
		}
	}

	row, err := b.store.Insert(ctx, domain.NewTask{
		Title:       title,
		Description: draft.Description,
		ImageURL:    imageURL,
		OwnerEmail:  email,
	})
	if err != nil {
		return nil, b.fail(domain.NewWriteError("could not add task", err))
	}

	b.mu.Lock()
	if b.generation == gen {
		// the realtime insert may already have delivered this id
		b.tasks.Add(*row)
	}
	b.mu.Unlock()

	b.notifier.Success("Task added")
	created := *row
	return &created, nil
}

// Submit creates a task from the compose form. The pending file is discarded
// whatever the outcome; the text fields are cleared on success unless they
// were edited while the create was in flight.
func (b *Board) Submit(ctx context.Context) (*domain.Task, error) {
	b.mu.Lock()
	draft := b.draft
	b.draft.File = nil
	b.draftRev++
	rev := b.draftRev
	b.mu.Unlock()

	task, err := b.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.draftRev == rev {
		b.draft = Draft{}
	}
	b.mu.Unlock()
	return task, nil
}

// SetDraft updates the compose form text fields.
func (b *Board) SetDraft(title, description string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.draft.Title = title
	b.draft.Description = description
	b.draftRev++
}

// AttachFile selects the pending upload for the next submit. nil clears it.
func (b *Board) AttachFile(upload *domain.PendingUpload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.draft.File = upload
	b.draftRev++
}

func (b *Board) Draft() Draft {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.draft
}

// Update replaces the description of one existing task. Title, image and
// owner are never touched.
func (b *Board) Update(ctx context.Context, id int64, description string) error {
	gen, err := b.beginRow(id, OpUpdate)
	if err != nil {
		return err
	}

	patch := domain.TaskPatch{Description: &description}
	err = b.store.Update(ctx, id, patch)

	b.mu.Lock()
	if b.generation == gen {
		b.inflight.end(id)
		if err == nil {
			// a delete that completed first wins; Patch is then a no-op
			b.tasks.Patch(id, patch)
		}
	}
	b.mu.Unlock()

	if err != nil {
		return b.fail(domain.NewWriteError("could not update task", err))
	}
	b.notifier.Success("Task updated")
	return nil
}

// Delete removes one task from the store and, once confirmed, from the list.
func (b *Board) Delete(ctx context.Context, id int64) error {
	gen, err := b.beginRow(id, OpDelete)
	if err != nil {
		return err
	}

	err = b.store.Delete(ctx, id)

	b.mu.Lock()
	if b.generation == gen {
		b.inflight.end(id)
		if err == nil {
			b.tasks.Remove(id)
		}
	}
	b.mu.Unlock()

	if err != nil {
		return b.fail(domain.NewWriteError("could not delete task", err))
	}
	b.notifier.Success("Task deleted")
	return nil
}

// Tasks returns the local list ascending by creation time.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasks.Snapshot()
}

// InFlight returns the mutation currently pending per task id.
func (b *Board) InFlight() map[int64]Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inflight.copy()
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Tasks:    b.tasks.Snapshot(),
		InFlight: b.inflight.copy(),
		Draft:    b.draft.view(),
	}
}

func (b *Board) insertHandler(gen uint64) usecase.ChangeHandler {
	return func(event domain.ChangeEvent) {
		if event.Type != domain.ChangeInsert {
			return
		}
		task, err := event.DecodeTask()
		if err != nil {
			b.logger.Warn("ignoring malformed realtime record", zap.Error(err))
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.generation != gen {
			return
		}
		if b.tasks.Add(*task) {
			b.logger.Debug("realtime task merged", zap.Int64("task_id", task.ID))
		}
	}
}

func (b *Board) upload(ctx context.Context, file domain.PendingUpload) (string, error) {
	if b.blobs == nil {
		return "", domain.NewStorageError("blob storage not configured", nil)
	}
	key := UploadKey(file.Filename, b.now())
	if err := b.blobs.Upload(ctx, b.bucket, key, file); err != nil {
		return "", domain.NewStorageError("upload failed", err)
	}
	return b.blobs.PublicURL(b.bucket, key), nil
}

// begin checks the board is mounted and a session is present, returning the
// generation completions must match.
func (b *Board) begin(kind domain.ErrorKind) (uint64, error) {
	b.mu.Lock()
	mounted, gen := b.mounted, b.generation
	b.mu.Unlock()

	if !mounted {
		return 0, b.fail(&domain.Error{Kind: kind, Code: domain.ErrCodeUnavailable, Message: "task board is not mounted", Err: domain.ErrBoardNotMounted})
	}
	if _, ok := b.identity.CurrentEmail(); !ok {
		return 0, b.fail(domain.NewAuthError("not signed in", domain.ErrUnauthorized))
	}
	return gen, nil
}

func (b *Board) beginRow(id int64, op Op) (uint64, error) {
	gen, err := b.begin(domain.KindWrite)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	var rowErr error
	switch {
	case b.generation != gen:
		rowErr = domain.ErrBoardNotMounted
	case !b.tasks.Contains(id):
		rowErr = domain.ErrTaskNotFound
	case !b.inflight.begin(id, op):
		rowErr = domain.ErrOperationInFlight
	}
	b.mu.Unlock()

	if rowErr != nil {
		return 0, b.fail(domain.NewWriteError("could not "+op.String()+" task", rowErr))
	}
	return gen, nil
}

func (b *Board) fail(err *domain.Error) error {
	b.notifier.Error(err)
	return err
}

type nopNotifier struct{}

func (nopNotifier) Success(string)                {}
func (nopNotifier) Warn(domain.ErrorKind, string) {}
func (nopNotifier) Error(error)                   {}
