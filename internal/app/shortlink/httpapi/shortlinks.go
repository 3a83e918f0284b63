package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"shortener.local/gee"
	"shortener.local/gee/middleware"
	"shortener.local/internal/app/shortlink"
	"shortener.local/internal/app/shortlink/events"
	"shortener.local/internal/platform/metrics"
)

// 对外的固定错误文案，客户端按字符串匹配，不要改。
const (
	msgURLRequired   = "URL is required"
	msgAliasTaken    = "Alias is already taken"
	msgNotFound      = "URL not found or expired"
	msgInternalError = "Internal Server Error"
	msgInvalidURL    = "Invalid URL"
	msgInvalidAlias  = "Invalid alias"
)

// Shortener 是 handler 依赖的用例集合，*shortlink.Service 实现了它。
type Shortener interface {
	shortlink.Creator
	shortlink.Resolver
	Lookup(ctx context.Context, code string) (shortlink.Record, error)
}

type ShortenRequest struct {
	URL   string `json:"url"`
	Alias string `json:"alias,omitempty"` // 空串等同于没传
}

type ShortenResponse struct {
	ShortURL string `json:"shortUrl"`
}

// LinkResponse 是 GET /api/links/:shortCode 的返回体。
type LinkResponse struct {
	OriginalURL string     `json:"originalUrl"`
	ShortCode   string     `json:"shortCode"`
	ShortURL    string     `json:"shortUrl"`
	CustomAlias string     `json:"customAlias,omitempty"`
	VisitCount  int64      `json:"visitCount"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	Expired     bool       `json:"expired"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Handler struct {
	svc            Shortener
	baseURL        string
	requireHTTPURL bool
	events         events.Publisher
}

func (h *Handler) Shorten(ctx *gee.Context) {
	// 空 body 等同 {}，交给 Service 报 "URL is required"；多余字段忽略
	var req ShortenRequest
	if err := ctx.BindJSON(&req, gee.AllowEmptyBody(), gee.AllowUnknownFields()); err != nil {
		metrics.ShortlinksCreated.WithLabelValues("invalid").Inc()
		return
	}

	if h.requireHTTPURL && req.URL != "" {
		if err := shortlink.ValidateURL(req.URL); err != nil {
			metrics.ShortlinksCreated.WithLabelValues("invalid").Inc()
			ctx.AbortWithError(http.StatusBadRequest, msgInvalidURL)
			return
		}
	}
	if req.Alias != "" {
		if err := shortlink.ValidateAlias(req.Alias); err != nil {
			metrics.ShortlinksCreated.WithLabelValues("invalid").Inc()
			ctx.AbortWithError(http.StatusBadRequest, msgInvalidAlias)
			return
		}
	}

	rec, err := h.svc.CreateShortLink(ctx.Req.Context(), req.URL, req.Alias)
	if err != nil {
		switch {
		case errors.Is(err, shortlink.ErrMissingURL):
			metrics.ShortlinksCreated.WithLabelValues("missing_url").Inc()
		case errors.Is(err, shortlink.ErrAliasTaken):
			metrics.ShortlinksCreated.WithLabelValues("alias_taken").Inc()
		default:
			metrics.ShortlinksCreated.WithLabelValues("error").Inc()
		}
		h.writeError(ctx, err)
		return
	}
	metrics.ShortlinksCreated.WithLabelValues("ok").Inc()

	h.events.Publish(events.Event{
		Type:      events.TypeShortened,
		Code:      rec.ShortCode,
		URL:       rec.OriginalURL,
		At:        time.Now(),
		RequestID: middleware.RequestID(ctx),
	})

	ctx.JSON(http.StatusOK, ShortenResponse{ShortURL: h.shortURL(rec.ShortCode)})
}

func (h *Handler) Redirect(ctx *gee.Context) {
	code := ctx.Param("shortCode")
	target, err := h.svc.ResolveShortLink(ctx.Req.Context(), code)
	if err != nil {
		if errors.Is(err, shortlink.ErrNotFound) {
			metrics.ShortlinkRedirects.WithLabelValues("not_found").Inc()
		} else {
			metrics.ShortlinkRedirects.WithLabelValues("error").Inc()
		}
		h.writeError(ctx, err)
		return
	}
	metrics.ShortlinkRedirects.WithLabelValues("ok").Inc()

	h.events.Publish(events.Event{
		Type:      events.TypeVisited,
		Code:      code,
		URL:       target,
		At:        time.Now(),
		RequestID: middleware.RequestID(ctx),
	})

	ctx.Redirect(http.StatusFound, target)
}

func (h *Handler) Lookup(ctx *gee.Context) {
	code := ctx.Param("shortCode")
	rec, err := h.svc.Lookup(ctx.Req.Context(), code)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, LinkResponse{
		OriginalURL: rec.OriginalURL,
		ShortCode:   rec.ShortCode,
		ShortURL:    h.shortURL(rec.ShortCode),
		CustomAlias: rec.CustomAlias,
		VisitCount:  rec.VisitCount,
		Expiry:      rec.Expiry,
		Expired:     rec.Expired(time.Now()),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	})
}

func (h *Handler) shortURL(code string) string {
	return h.baseURL + "/" + code
}

// writeError 把用例错误映射成状态码和固定文案；未归类的错误只记日志，不把细节返回给客户端。
func (h *Handler) writeError(ctx *gee.Context, err error) {
	switch {
	case errors.Is(err, shortlink.ErrMissingURL):
		ctx.AbortWithError(http.StatusBadRequest, msgURLRequired)
	case errors.Is(err, shortlink.ErrAliasTaken):
		ctx.AbortWithError(http.StatusBadRequest, msgAliasTaken)
	case errors.Is(err, shortlink.ErrNotFound):
		ctx.AbortWithError(http.StatusNotFound, msgNotFound)
	default:
		slog.Error("shortlink request failed",
			"request_id", middleware.RequestID(ctx),
			"method", ctx.Method,
			"path", ctx.Path,
			"persistence", shortlink.IsPersistence(err),
			"err", err)
		ctx.AbortWithError(http.StatusInternalServerError, msgInternalError)
	}
}
