package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskboard/internal/notify"
	"github.com/fastygo/taskboard/pkg/httpcontext"
	"github.com/fastygo/taskboard/usecase/app"
)

type ViewHandler struct {
	baseHandler
	app           *app.App
	notifications *notify.Center
}

func NewViewHandler(a *app.App, center *notify.Center, adapter *httpcontext.Adapter, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{
		baseHandler:   newBaseHandler(adapter, logger),
		app:           a,
		notifications: center,
	}
}

// @Summary Current screen state
// @Tags view
// @Router /api/v1/view [get]
func (h *ViewHandler) View(ctx *fasthttp.RequestCtx) {
	h.respondSuccess(ctx, http.StatusOK, h.app.View())
}

// @Summary Drain pending notifications
// @Tags view
// @Router /api/v1/notifications [get]
func (h *ViewHandler) Notifications(ctx *fasthttp.RequestCtx) {
	h.respondSuccess(ctx, http.StatusOK, h.notifications.Drain())
}
