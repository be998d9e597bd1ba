package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskboard/api/transport"
	"github.com/fastygo/taskboard/pkg/httpcontext"
)

// ComposeHandler drives the add-task form kept on the board between requests.
type ComposeHandler struct {
	baseHandler
	tasks *TaskHandler
}

func NewComposeHandler(tasks *TaskHandler, adapter *httpcontext.Adapter, logger *zap.Logger) *ComposeHandler {
	return &ComposeHandler{
		baseHandler: newBaseHandler(adapter, logger),
		tasks:       tasks,
	}
}

// @Summary Current compose form
// @Tags compose
// @Router /api/v1/draft [get]
func (h *ComposeHandler) Get(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}
	h.respondSuccess(ctx, http.StatusOK, b.Snapshot().Draft)
}

// @Summary Set compose text fields
// @Tags compose
// @Router /api/v1/draft [put]
func (h *ComposeHandler) Set(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}
	var req transport.DraftRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}
	b.SetDraft(req.Title, req.Description)
	h.respondSuccess(ctx, http.StatusOK, b.Snapshot().Draft)
}

// @Summary Attach the pending image
// @Tags compose
// @Accept mpfd
// @Router /api/v1/draft/image [put]
func (h *ComposeHandler) Attach(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}
	form, err := ctx.MultipartForm()
	if err != nil {
		h.respondInvalid(ctx, "invalid multipart form")
		return
	}
	upload, err := h.tasks.readUpload(form)
	if err != nil {
		h.respondInvalid(ctx, err.Error())
		return
	}
	if upload == nil {
		h.respondInvalid(ctx, "image part is required")
		return
	}
	b.AttachFile(upload)
	h.respondSuccess(ctx, http.StatusOK, b.Snapshot().Draft)
}

// @Summary Discard the pending image
// @Tags compose
// @Router /api/v1/draft/image [delete]
func (h *ComposeHandler) Detach(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}
	b.AttachFile(nil)
	h.respondSuccess(ctx, http.StatusOK, b.Snapshot().Draft)
}

// @Summary Submit the compose form
// @Tags compose
// @Router /api/v1/draft/submit [post]
func (h *ComposeHandler) Submit(ctx *fasthttp.RequestCtx) {
	b, ok := h.board(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := b.Submit(stdCtx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}
