package gee

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
)

// print stack trace for debug，跳过 runtime 自身的帧
func trace(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:]) // skip first 3 caller
	frames := runtime.CallersFrames(pcs[:n])

	var str strings.Builder
	str.WriteString(message + "\nTraceback:")
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&str, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return str.String()
}

// Recovery 把 handler 的 panic 转成 500 JSON 响应。
// http.ErrAbortHandler 是主动中断连接，照 net/http 的约定继续向上抛。
func Recovery() HandlerFunc {
	return func(ctx *Context) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(err)
			}
			message := fmt.Sprintf("%v", err)
			slog.ErrorContext(ctx.Req.Context(), "panic recovered",
				"request_id", ctx.Req.Header.Get("X-Request-ID"),
				"method", ctx.Method,
				"path", ctx.Path,
				"route", ctx.RoutePattern,
				"panic", message,
				"stack", trace(message),
			)
			if ctx.Writer.Written() {
				ctx.Abort()
				return
			}
			ctx.AbortWithError(http.StatusInternalServerError, "Internal Server Error")
		}()
		ctx.Next()
	}
}
