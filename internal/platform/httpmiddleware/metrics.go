package httpmiddleware

import (
	"strconv"
	"time"

	"shortener.local/gee"
	"shortener.local/internal/platform/metrics"
)

// Metrics 记录请求数、耗时和在途请求。skip 里的路由模板（例如 /healthz）不计入，
// 探针每秒打一次会把 QPS 曲线垫高。
func Metrics(skip ...string) gee.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(ctx *gee.Context) {
		if _, ok := skipped[ctx.RoutePattern]; ok {
			ctx.Next()
			return
		}
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()       //正在处理的请求数+1
		defer metrics.HTTPInflightRequests.Dec() //请求处理结束
		defer func() {
			routePattern := ctx.RoutePattern
			if routePattern == "" {
				// 未命中路由的 path 是任意字符串，不能直接当 label
				routePattern = "UNMATCHED"
			}
			duration := time.Since(start).Seconds()
			status := ctx.Writer.Status()
			metrics.HTTPRequestsTotal.WithLabelValues(ctx.Method, routePattern, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(ctx.Method, routePattern).Observe(duration)
		}()
		ctx.Next()
	}
}
