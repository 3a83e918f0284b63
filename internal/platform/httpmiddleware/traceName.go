package httpmiddleware

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"shortener.local/gee"
)

// TraceName 把 otelhttp 建的 span 改名为 "METHOD /route/:param"，避免按具体短码产生高基数 span 名。
// 没有命中路由时保留原名。
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		span := trace.SpanFromContext(ctx.Req.Context())
		if ctx.RoutePattern != "" {
			span.SetName(ctx.Method + " " + ctx.RoutePattern)
			span.SetAttributes(attribute.String("http.route", ctx.RoutePattern))
		}
		ctx.Next()
	}
}
