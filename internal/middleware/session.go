package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskboard/api/transport"
	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/usecase/app"
	"github.com/fastygo/taskboard/usecase/board"
)

const boardKey = "taskboard.board"

// RequireSession rejects requests while no board is mounted and hands the
// mounted board to the next handler.
func RequireSession(a *app.App, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			b, ok := a.Board()
			if !ok {
				logger.Debug("board request without session", zap.ByteString("path", ctx.Path()))
				body, _ := json.Marshal(transport.NewError(
					string(domain.ErrCodeUnauthorized),
					transport.ErrorBody{Kind: string(domain.KindAuth), Message: "sign in to access tasks"},
					nil,
				))
				ctx.Response.Header.SetContentType("application/json")
				ctx.SetStatusCode(http.StatusUnauthorized)
				ctx.SetBody(body)
				return
			}
			ctx.SetUserValue(boardKey, b)
			next(ctx)
		}
	}
}

// BoardFrom returns the board attached by RequireSession.
func BoardFrom(ctx *fasthttp.RequestCtx) (*board.Board, bool) {
	b, ok := ctx.UserValue(boardKey).(*board.Board)
	return b, ok && b != nil
}
