package httpapi

import (
	"strings"

	"shortener.local/gee"
	"shortener.local/internal/app/shortlink/events"
)

// Options 是传输层自己的配置，在 cmd/api 里从 config.Config 映射过来。
type Options struct {
	// BaseURL 拼接返回给客户端的短链：BaseURL + "/" + code
	BaseURL string
	// RequireHTTPURL 为 true 时拒绝非 http/https 的 URL
	RequireHTTPURL bool
	// Events 为 nil 时不投递事件
	Events events.Publisher
}

// RegisterRoutes 挂载短链的全部路由。
//
// 约定：本包只做"传输层"工作（解析请求、校验、错误映射、响应格式），
// 领域逻辑在 internal/app/shortlink，存储在 repo / memstore。
//
// 路由：
//   - POST /api/shorten           创建短链
//   - GET  /api/links/:shortCode  只读查看记录，不计数
//   - GET  /api/:shortCode        跳转
//   - GET  /:shortCode            跳转（浏览器直接访问短链）
//
// /healthz 等静态路由在 trie 里优先于 /:shortCode，所以能共存；
// 与之冲突的别名已在 shortlink.ValidateAlias 里保留。
func RegisterRoutes(r *gee.Engine, svc Shortener, opts Options) {
	h := newHandler(svc, opts)

	api := r.Group("/api")
	api.POST("/shorten", h.Shorten)
	api.GET("/links/:shortCode", h.Lookup)
	api.GET("/:shortCode", h.Redirect)

	r.GET("/:shortCode", h.Redirect)
}

func newHandler(svc Shortener, opts Options) *Handler {
	pub := opts.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Handler{
		svc:            svc,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		requireHTTPURL: opts.RequireHTTPURL,
		events:         pub,
	}
}
