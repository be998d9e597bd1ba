package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/taskboard/api/handler"
	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/internal/infrastructure/monitor"
	"github.com/fastygo/taskboard/internal/middleware"
	"github.com/fastygo/taskboard/internal/notify"
	"github.com/fastygo/taskboard/internal/platform/storage"
	"github.com/fastygo/taskboard/internal/router"
	"github.com/fastygo/taskboard/pkg/httpcontext"
	"github.com/fastygo/taskboard/repository"
	"github.com/fastygo/taskboard/usecase"
	"github.com/fastygo/taskboard/usecase/app"
	"github.com/fastygo/taskboard/usecase/board"
	"github.com/fastygo/taskboard/usecase/session"
)

type fakeAuth struct {
	SignUpFunc func(email string) (usecase.SignUpResult, error)
}

func (f *fakeAuth) SignUp(_ context.Context, email, _ string) (usecase.SignUpResult, error) {
	if f.SignUpFunc != nil {
		return f.SignUpFunc(email)
	}
	return usecase.SignUpResult{PendingConfirmation: true}, nil
}

func (f *fakeAuth) SignIn(_ context.Context, email, password string) (*domain.Session, error) {
	if password != "secret1" {
		return nil, domain.ErrInvalidCredentials
	}
	return &domain.Session{ID: "s1", UserEmail: email, AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) SignOut(context.Context) error                       { return nil }
func (f *fakeAuth) GetSession(context.Context) (*domain.Session, error) { return nil, nil }

func (f *fakeAuth) OnSessionChange(usecase.SessionListener) usecase.Subscription {
	return usecase.SubscriptionFunc(nil)
}

type memTasks struct {
	mu     sync.Mutex
	rows   []domain.Task
	nextID int64
}

func (m *memTasks) List(context.Context, domain.TaskQuery) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Task(nil), m.rows...), nil
}

func (m *memTasks) Insert(_ context.Context, t domain.NewTask) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := domain.Task{
		ID:          m.nextID,
		Title:       t.Title,
		Description: t.Description,
		ImageURL:    t.ImageURL,
		OwnerEmail:  t.OwnerEmail,
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, int(m.nextID), 0, time.UTC),
	}
	m.rows = append(m.rows, row)
	return &row, nil
}

func (m *memTasks) Update(_ context.Context, id int64, patch domain.TaskPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			patch.Apply(&m.rows[i])
			return nil
		}
	}
	return domain.ErrTaskNotFound
}

func (m *memTasks) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrTaskNotFound
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string]repository.Object
	PutErr  error
}

func (m *memObjects) Put(_ context.Context, bucket, key string, upload domain.PendingUpload) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]repository.Object)
	}
	m.objects[bucket+"/"+key] = repository.Object{ContentType: upload.ContentType, Data: upload.Data}
	return nil
}

func (m *memObjects) Get(_ context.Context, bucket, key string) (*repository.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return &obj, nil
}

func (m *memObjects) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects), nil
}

type server struct {
	handler fasthttp.RequestHandler
	tasks   *memTasks
	objects *memObjects
	auth    *fakeAuth
	mon     *monitor.Monitor
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{tasks: &memTasks{}, objects: &memObjects{}, auth: &fakeAuth{}}

	center := notify.NewCenter(0, nil)
	blobs := storage.NewService(s.objects, storage.Config{BaseURL: "http://test"}, nil)
	ctrl := session.New(s.auth, center, nil)
	application := app.New(ctrl, func() *board.Board {
		return board.New(s.tasks, blobs, nil, ctrl, center, nil, board.Config{})
	}, nil)
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}
	t.Cleanup(application.Stop)

	s.mon = monitor.New(time.Hour, nil, monitor.Check{Name: "blob_store", Count: s.objects.Count})

	adapter := httpcontext.NewAdapter(time.Second)
	tasks := apiHandler.NewTaskHandler(1<<20, adapter, nil)
	r := router.New(router.Handlers{
		Auth:    apiHandler.NewAuthHandler(ctrl, adapter, nil),
		Task:    tasks,
		Compose: apiHandler.NewComposeHandler(tasks, adapter, nil),
		View:    apiHandler.NewViewHandler(application, center, adapter, nil),
		Storage: apiHandler.NewStorageHandler(blobs, adapter, nil),
		Health:  apiHandler.NewHealthHandler(s.mon, adapter, nil),
	}, middleware.RequireSession(application, nil))
	s.handler = r.Handler
	return s
}

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *server) do(t *testing.T, method, uri, contentType string, body []byte) (int, envelope) {
	t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	req.SetBody(body)

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	s.handler(&ctx)

	var env envelope
	if raw := ctx.Response.Body(); len(raw) > 0 && bytes.HasPrefix(ctx.Response.Header.ContentType(), []byte("application/json")) {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, uri, raw, err)
		}
	}
	return ctx.Response.StatusCode(), env
}

func (s *server) doJSON(t *testing.T, method, uri string, payload interface{}) (int, envelope) {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	return s.do(t, method, uri, "application/json", body)
}

func (s *server) signIn(t *testing.T) {
	t.Helper()
	status, env := s.doJSON(t, "POST", "/api/v1/auth/signin", map[string]string{"email": "a@x.io", "password": "secret1"})
	if status != http.StatusOK {
		t.Fatalf("signin status = %d, body = %+v", status, env)
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType()
}

func decodeSnapshot(t *testing.T, raw json.RawMessage) board.Snapshot {
	t.Helper()
	var snap board.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestBoardRoutesRequireSession(t *testing.T) {
	s := newServer(t)

	status, env := s.doJSON(t, "GET", "/api/v1/tasks", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if env.Error.Kind != string(domain.KindAuth) {
		t.Errorf("error kind = %q", env.Error.Kind)
	}

	_, env = s.doJSON(t, "GET", "/api/v1/view", nil)
	var view app.ViewState
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.View != app.ViewAuth {
		t.Errorf("view = %q, want auth", view.View)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	s := newServer(t)

	status, env := s.doJSON(t, "POST", "/api/v1/auth/signin", map[string]string{"email": "a@x.io", "password": "nope"})
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if env.Error.Kind != string(domain.KindAuth) {
		t.Errorf("error kind = %q", env.Error.Kind)
	}

	status, _ = s.do(t, "POST", "/api/v1/auth/signin", "application/json", []byte("{"))
	if status != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", status)
	}
}

func TestSignUpReportsPendingConfirmation(t *testing.T) {
	s := newServer(t)

	status, env := s.doJSON(t, "POST", "/api/v1/auth/signup", map[string]string{"email": "a@x.io", "password": "secret1"})
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", status)
	}
	var resp struct {
		Authenticated       bool `json:"authenticated"`
		PendingConfirmation bool `json:"pending_confirmation"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.PendingConfirmation || resp.Authenticated {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateListUpdateDelete(t *testing.T) {
	s := newServer(t)
	s.signIn(t)

	status, env := s.doJSON(t, "POST", "/api/v1/tasks", map[string]string{"title": "Buy milk", "description": "2L"})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, body = %+v", status, env)
	}
	var created domain.Task
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if created.OwnerEmail != "a@x.io" || created.HasImage() {
		t.Errorf("created = %+v", created)
	}

	status, env = s.doJSON(t, "PUT", "/api/v1/tasks/1", map[string]string{"description": "3L"})
	if status != http.StatusOK {
		t.Fatalf("update status = %d, body = %+v", status, env)
	}
	snap := decodeSnapshot(t, env.Data)
	if len(snap.Tasks) != 1 || snap.Tasks[0].Description != "3L" || snap.Tasks[0].Title != "Buy milk" {
		t.Errorf("after update tasks = %+v", snap.Tasks)
	}

	status, _ = s.doJSON(t, "DELETE", "/api/v1/tasks/1", nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}

	_, env = s.doJSON(t, "GET", "/api/v1/tasks", nil)
	if snap := decodeSnapshot(t, env.Data); len(snap.Tasks) != 0 {
		t.Errorf("tasks after delete = %+v", snap.Tasks)
	}
}

func TestTaskErrors(t *testing.T) {
	s := newServer(t)
	s.signIn(t)

	tests := []struct {
		name   string
		method string
		uri    string
		body   interface{}
		status int
	}{
		{name: "unknown id", method: "PUT", uri: "/api/v1/tasks/99", body: map[string]string{"description": "x"}, status: http.StatusNotFound},
		{name: "bad id", method: "DELETE", uri: "/api/v1/tasks/abc", status: http.StatusBadRequest},
		{name: "missing description", method: "PUT", uri: "/api/v1/tasks/1", body: map[string]string{}, status: http.StatusBadRequest},
		{name: "blank title", method: "POST", uri: "/api/v1/tasks", body: map[string]string{"title": "  "}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.doJSON(t, tt.method, tt.uri, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (body %+v)", status, tt.status, env)
			}
		})
	}
}

func TestCreateMultipartWithImage(t *testing.T) {
	s := newServer(t)
	s.signIn(t)

	body, contentType := multipartBody(t, map[string]string{"title": "Cat", "description": "photo"}, "cat.png", []byte("PNGDATA"))
	status, env := s.do(t, "POST", "/api/v1/tasks", contentType, body)
	if status != http.StatusCreated {
		t.Fatalf("status = %d, body = %+v", status, env)
	}

	var created domain.Task
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if !created.HasImage() {
		t.Fatal("expected an image url")
	}
	prefix := "http://test" + storage.PublicPrefix + board.DefaultBucket + "/cat.png-"
	if len(*created.ImageURL) <= len(prefix) || (*created.ImageURL)[:len(prefix)] != prefix {
		t.Errorf("image url = %q, want prefix %q", *created.ImageURL, prefix)
	}

	uri := (*created.ImageURL)[len("http://test"):]
	var req fasthttp.Request
	req.Header.SetMethod("GET")
	req.SetRequestURI(uri)
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	s.handler(&ctx)
	if ctx.Response.StatusCode() != http.StatusOK || string(ctx.Response.Body()) != "PNGDATA" {
		t.Errorf("serving object: status %d body %q", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}

func TestCreateDegradesWhenUploadFails(t *testing.T) {
	s := newServer(t)
	s.signIn(t)
	s.objects.PutErr = errors.New("disk full")
	s.doJSON(t, "GET", "/api/v1/notifications", nil)

	body, contentType := multipartBody(t, map[string]string{"title": "Cat"}, "cat.png", []byte("PNGDATA"))
	status, env := s.do(t, "POST", "/api/v1/tasks", contentType, body)
	if status != http.StatusCreated {
		t.Fatalf("status = %d, body = %+v", status, env)
	}
	var created domain.Task
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if created.HasImage() {
		t.Errorf("expected no image, got %q", *created.ImageURL)
	}

	_, env = s.doJSON(t, "GET", "/api/v1/notifications", nil)
	var notes []notify.Notification
	if err := json.Unmarshal(env.Data, &notes); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	var warned bool
	for _, n := range notes {
		if n.Level == notify.LevelWarning && n.Kind == domain.KindStorage {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a storage warning, got %+v", notes)
	}
}

func TestComposeSubmit(t *testing.T) {
	s := newServer(t)
	s.signIn(t)

	s.doJSON(t, "PUT", "/api/v1/draft", map[string]string{"title": "Draft", "description": "d"})
	body, contentType := multipartBody(t, nil, "a.jpg", []byte("JPG"))
	status, env := s.do(t, "PUT", "/api/v1/draft/image", contentType, body)
	if status != http.StatusOK {
		t.Fatalf("attach status = %d, body = %+v", status, env)
	}
	var draft board.DraftView
	if err := json.Unmarshal(env.Data, &draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if draft.File == nil || draft.File.Filename != "a.jpg" {
		t.Fatalf("draft = %+v", draft)
	}

	status, env = s.doJSON(t, "POST", "/api/v1/draft/submit", nil)
	if status != http.StatusCreated {
		t.Fatalf("submit status = %d, body = %+v", status, env)
	}

	_, env = s.doJSON(t, "GET", "/api/v1/draft", nil)
	draft = board.DraftView{}
	if err := json.Unmarshal(env.Data, &draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if draft.Title != "" || draft.File != nil {
		t.Errorf("draft after submit = %+v", draft)
	}
}

func TestSignOutUnmountsBoard(t *testing.T) {
	s := newServer(t)
	s.signIn(t)

	status, _ := s.doJSON(t, "POST", "/api/v1/auth/signout", nil)
	if status != http.StatusNoContent {
		t.Fatalf("signout status = %d", status)
	}
	if status, _ := s.doJSON(t, "GET", "/api/v1/tasks", nil); status != http.StatusUnauthorized {
		t.Errorf("tasks after signout status = %d, want 401", status)
	}
}

func TestStorageMissingObject(t *testing.T) {
	s := newServer(t)

	status, env := s.doJSON(t, "GET", "/storage/v1/object/public/tasks-images/nope.png-1", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (body %+v)", status, env)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	if status, _ := s.doJSON(t, "GET", "/health", nil); status != http.StatusServiceUnavailable {
		t.Errorf("before first check status = %d, want 503", status)
	}

	s.mon.Refresh()
	if status, env := s.doJSON(t, "GET", "/health", nil); status != http.StatusOK {
		t.Errorf("status = %d, body = %+v", status, env)
	}
}
