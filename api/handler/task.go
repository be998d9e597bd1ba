package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskboard/api/transport"
	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/pkg/httpcontext"
	"github.com/fastygo/taskboard/usecase/board"
)

// imageField is the multipart file field carrying the optional task image.
const imageField = "image"

type TaskHandler struct {
	baseHandler
	maxUpload int64
}

func NewTaskHandler(maxUpload int64, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		maxUpload:   maxUpload,
	}
}

// @Summary List tasks
// @Tags tasks
// @Router /api/v1/tasks [get]
func (h *TaskHandler) List(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}
	h.respondSuccess(ctx, http.StatusOK, b.Snapshot())
}

// @Summary Reload tasks from the store
// @Tags tasks
// @Router /api/v1/tasks/reload [post]
func (h *TaskHandler) Reload(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := b.Load(stdCtx); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, b.Snapshot())
}

// @Summary Create task
// @Tags tasks
// @Accept json,mpfd
// @Router /api/v1/tasks [post]
func (h *TaskHandler) Create(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}

	draft, ok := h.parseDraft(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := b.Create(stdCtx, draft)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Update task description
// @Tags tasks
// @Router /api/v1/tasks/{id} [put]
func (h *TaskHandler) Update(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}
	id, ok := h.taskID(ctx)
	if !ok {
		return
	}

	var req transport.UpdateTaskRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Description == nil {
		h.respondInvalid(ctx, "description is required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := b.Update(stdCtx, id, *req.Description); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, b.Snapshot())
}

// @Summary Delete task
// @Tags tasks
// @Router /api/v1/tasks/{id} [delete]
func (h *TaskHandler) Delete(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}
	id, ok := h.taskID(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := b.Delete(stdCtx, id); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusNoContent, nil)
}

func (h *TaskHandler) parseDraft(ctx *fasthttp.RequestCtx) (board.Draft, bool) {
	if !isMultipart(ctx) {
		var req transport.CreateTaskRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			h.respondInvalid(ctx, "invalid payload")
			return board.Draft{}, false
		}
		return board.Draft{Title: req.Title, Description: req.Description}, true
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		h.respondInvalid(ctx, "invalid multipart form")
		return board.Draft{}, false
	}
	draft := board.Draft{
		Title:       firstValue(form, "title"),
		Description: firstValue(form, "description"),
	}
	upload, err := h.readUpload(form)
	if err != nil {
		h.respondInvalid(ctx, err.Error())
		return board.Draft{}, false
	}
	draft.File = upload
	return draft, true
}

// readUpload returns the image part of form, or nil when none was sent.
func (h *TaskHandler) readUpload(form *multipart.Form) (*domain.PendingUpload, error) {
	files := form.File[imageField]
	if len(files) == 0 || files[0].Size == 0 {
		return nil, nil
	}
	fh := files[0]

	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("unreadable image part")
	}
	defer f.Close()

	limit := h.maxUpload
	if limit <= 0 {
		limit = fh.Size
	}
	// read one byte past the limit so the storage layer sees the oversize and degrades
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, errors.New("unreadable image part")
	}

	return &domain.PendingUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *TaskHandler) taskID(ctx *fasthttp.RequestCtx) (int64, bool) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.respondInvalid(ctx, "invalid task id")
		return 0, false
	}
	return id, true
}

func isMultipart(ctx *fasthttp.RequestCtx) bool {
	return bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("multipart/form-data"))
}

func firstValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
