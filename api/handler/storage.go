package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskboard/internal/platform/storage"
	"github.com/fastygo/taskboard/pkg/httpcontext"
)

type StorageHandler struct {
	baseHandler
	storage *storage.Service
}

func NewStorageHandler(svc *storage.Service, adapter *httpcontext.Adapter, logger *zap.Logger) *StorageHandler {
	return &StorageHandler{
		baseHandler: newBaseHandler(adapter, logger),
		storage:     svc,
	}
}

// @Summary Serve a public object
// @Tags storage
// @Router /storage/v1/object/public/{bucket}/{key} [get]
func (h *StorageHandler) Object(ctx *fasthttp.RequestCtx) {
	bucket, _ := ctx.UserValue("bucket").(string)
	key, _ := ctx.UserValue("key").(string)
	if bucket == "" || key == "" {
		h.respondInvalid(ctx, "bucket and key are required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	obj, err := h.storage.Open(stdCtx, bucket, key)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	ctx.Response.Header.SetContentType(obj.ContentType)
	// keys embed an upload timestamp and are never overwritten
	ctx.Response.Header.Set("Cache-Control", "public, max-age=31536000, immutable")
	ctx.SetStatusCode(http.StatusOK)
	ctx.SetBody(obj.Data)
}
