package shortlink

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

// 传输层校验用的错误。Service 本身只要求 URL 非空；
// 这些更严格的规则由 HTTP 层按配置启用。
var ErrInvalidURL = errors.New("invalid url")
var ErrInvalidAlias = errors.New("invalid alias")

// ValidateURL 要求 scheme 为 http/https 且 host 非空。
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return ErrInvalidURL
	}
	return nil
}

// 与站点已有路由段冲突的别名，注册了会被静态路由遮住。
var reservedAliases = map[string]struct{}{
	"api":     {},
	"healthz": {},
	"links":   {},
	"shorten": {},
	"favicon": {},
}

// ValidateAlias 校验用户自定义别名。
//
// 任意非空字符串都可以，只要它能原样作为一个路径段被解析回来：
// - 不含 / ? # % 以及空白、控制字符
// - 不是 . 或 ..
// - 不与路由前缀冲突（例如 /api、/healthz）
func ValidateAlias(alias string) error {
	if alias == "" || alias == "." || alias == ".." {
		return ErrInvalidAlias
	}
	if strings.ContainsAny(alias, "/?#%") {
		return ErrInvalidAlias
	}
	for _, r := range alias {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidAlias
		}
	}
	if _, ok := reservedAliases[strings.ToLower(alias)]; ok {
		return ErrInvalidAlias
	}
	return nil
}
