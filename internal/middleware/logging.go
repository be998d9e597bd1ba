package middleware

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskboard/pkg/httpcontext"
)

// AccessLog logs one line per request and recovers handler panics as 500s.
func AccessLog(logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			started := time.Now()
			reqID := httpcontext.RequestID(ctx)

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic",
						zap.String("request_id", reqID),
						zap.Any("panic", rec),
						zap.Stack("stack"))
					ctx.ResetBody()
					ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				}

				status := ctx.Response.StatusCode()
				fields := []zap.Field{
					zap.String("request_id", reqID),
					zap.ByteString("method", ctx.Method()),
					zap.ByteString("path", ctx.Path()),
					zap.Int("status", status),
					zap.Duration("duration", time.Since(started)),
				}
				if status >= fasthttp.StatusInternalServerError {
					logger.Warn("request failed", fields...)
					return
				}
				logger.Debug("request served", fields...)
			}()

			next(ctx)
		}
	}
}
