package gee

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodyBytes 是 ShouldBindJSON 读取请求体的上限，超过按 413 处理。
var MaxBodyBytes int64 = 1 << 20

var (
	ErrEmptyBody    = errors.New("empty body")
	ErrTrailingData = errors.New("body must contain only one JSON value")
	ErrBodyTooLarge = errors.New("body too large")
)

type bindConfig struct {
	allowEmpty   bool
	allowUnknown bool
}

type BindOption func(*bindConfig)

// AllowEmptyBody 把空 body 当成 {}，dst 保持零值。
func AllowEmptyBody() BindOption {
	return func(c *bindConfig) { c.allowEmpty = true }
}

// AllowUnknownFields 忽略结构体里没有的字段。
func AllowUnknownFields() BindOption {
	return func(c *bindConfig) { c.allowUnknown = true }
}

// 只解析json，默认未知字段和空 body 都视为错误
func (c *Context) ShouldBindJSON(dst any, opts ...BindOption) error {
	var cfg bindConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	body := http.MaxBytesReader(c.Writer, c.Req.Body, MaxBodyBytes)
	decoder := json.NewDecoder(body)
	if !cfg.allowUnknown {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(dst); err != nil {
		err = bindError(err)
		if cfg.allowEmpty && errors.Is(err, ErrEmptyBody) {
			return nil
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err != nil {
			if e := bindError(err); errors.Is(e, ErrBodyTooLarge) {
				return e
			}
		}
		return ErrTrailingData
	}
	return nil
}

func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return ErrEmptyBody
	case errors.As(err, &tooLarge):
		return ErrBodyTooLarge
	}
	return err
}

// 解析json+处理失败
func (c *Context) BindJSON(dst any, opts ...BindOption) error {
	if err := c.ShouldBindJSON(dst, opts...); err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			c.AbortWithError(http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return err
		}
		c.AbortWithError(http.StatusBadRequest, "Invalid json")
		return err
	}
	return nil
}
