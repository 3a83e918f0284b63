package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"shortener.local/gee"
)

const RequestIDHeader = "X-Request-ID"

// ReqID 沿用上游传入的 X-Request-ID，没有就生成一个，
// 同时写回请求头（供日志/错误体读取）和响应头。
func ReqID() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Req.Header.Get(RequestIDHeader)
		if id == "" {
			id = GenerateReqID()
			if id == "" {
				id = strconv.FormatInt(time.Now().UnixNano(), 10)
			}
			ctx.Req.Header.Set(RequestIDHeader, id)
		}
		ctx.SetHeader(RequestIDHeader, id)

		ctx.Next()
	}
}

// RequestID 返回当前请求的 ID，未经过 ReqID 时可能为空。
func RequestID(ctx *gee.Context) string {
	return ctx.Req.Header.Get(RequestIDHeader)
}

func GenerateReqID() string {
	src := make([]byte, 16)
	if _, err := rand.Read(src); err != nil {
		return ""
	}

	return hex.EncodeToString(src) // 32 个十六进制字符
}
