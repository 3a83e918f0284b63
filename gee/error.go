package gee

// ErrorResponse 是所有失败响应的统一结构：{"error": "...", "request_id": "..."}。
// 状态码已经在 HTTP 头里，这里不再重复。
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"` // 没有就省略
}

func NewErrorResponse(c *Context, message string) ErrorResponse {
	return ErrorResponse{
		Error:     message,
		RequestID: c.Req.Header.Get("X-Request-ID"),
	}
}
