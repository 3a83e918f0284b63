package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"shortener.local/gee"
)

// AccessLog 每个请求一行结构化日志。5xx 记 Error，4xx 记 Warn，其余 Info。
func AccessLog() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		start := time.Now()

		ctx.Next()

		status := ctx.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		slog.Log(ctx.Req.Context(), level, "access",
			"request_id", RequestID(ctx),
			"method", ctx.Method,
			"path", ctx.Path,
			"route", ctx.RoutePattern,
			"status", status,
			"bytes", ctx.Writer.Size(),
			"latency_ms", time.Since(start).Milliseconds())
	}
}
