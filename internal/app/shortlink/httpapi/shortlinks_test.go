package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shortener.local/gee"
	"shortener.local/gee/middleware"
	"shortener.local/internal/app/shortlink"
	"shortener.local/internal/app/shortlink/events"
	"shortener.local/internal/app/shortlink/memstore"
)

const testBaseURL = "https://s.example.com"

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testServer struct {
	engine *gee.Engine
	store  *memstore.Store
	pub    *capturePublisher
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := memstore.New()
	svc := shortlink.NewService(store, shortlink.NewRandomGenerator(7))
	return setupWithService(t, svc, store, opts)
}

func setupWithService(t *testing.T, svc Shortener, store *memstore.Store, opts Options) *testServer {
	t.Helper()
	pub := &capturePublisher{}
	if opts.BaseURL == "" {
		opts.BaseURL = testBaseURL
	}
	opts.Events = pub

	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID())
	RegisterRoutes(r, svc, opts)
	r.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	return &testServer{engine: r, store: store, pub: pub}
}

func (s *testServer) do(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) shorten(t *testing.T, body string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/shorten", body)
	if w.Code != http.StatusOK {
		t.Fatalf("shorten %s: status %d, body=%s", body, w.Code, w.Body.String())
	}
	var resp ShortenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasPrefix(resp.ShortURL, testBaseURL+"/") {
		t.Fatalf("shortUrl %q does not start with base url", resp.ShortURL)
	}
	return strings.TrimPrefix(resp.ShortURL, testBaseURL+"/")
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body gee.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v, raw=%s", err, w.Body.String())
	}
	return body.Error
}

func TestShorten_ThenRedirect(t *testing.T) {
	s := setupTestServer(t, Options{})
	code := s.shorten(t, `{"url":"https://example.com/a?b=1"}`)
	if len(code) != 7 {
		t.Fatalf("code length: got %d (%q)", len(code), code)
	}

	for _, path := range []string{"/" + code, "/api/" + code} {
		w := s.do(http.MethodGet, path, "")
		if w.Code != http.StatusFound {
			t.Fatalf("GET %s: status %d, body=%s", path, w.Code, w.Body.String())
		}
		if got := w.Header().Get("Location"); got != "https://example.com/a?b=1" {
			t.Fatalf("GET %s: Location %q", path, got)
		}
	}

	rec, err := s.store.FindByCode(context.Background(), code)
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if rec.VisitCount != 2 {
		t.Fatalf("VisitCount: got %d, want 2", rec.VisitCount)
	}

	got := s.pub.types()
	want := []events.Type{events.TypeShortened, events.TypeVisited, events.TypeVisited}
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events: got %v, want %v", got, want)
		}
	}
}

func TestShorten_DedupReturnsSameShortURL(t *testing.T) {
	s := setupTestServer(t, Options{})
	a := s.shorten(t, `{"url":"https://example.com"}`)
	b := s.shorten(t, `{"url":"https://example.com"}`)
	if a != b {
		t.Fatalf("dedup: got %q and %q", a, b)
	}
	if n := s.store.Len(); n != 1 {
		t.Fatalf("records: got %d, want 1", n)
	}
}

func TestShorten_WithAlias(t *testing.T) {
	s := setupTestServer(t, Options{})
	code := s.shorten(t, `{"url":"https://example.com/promo","alias":"promo"}`)
	if code != "promo" {
		t.Fatalf("code: got %q, want promo", code)
	}

	w := s.do(http.MethodPost, "/api/shorten", `{"url":"https://example.com/other","alias":"promo"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Alias is already taken" {
		t.Fatalf("error: got %q", msg)
	}
	if n := s.store.Len(); n != 1 {
		t.Fatalf("records: got %d, want 1", n)
	}
}

func TestShorten_IgnoresUnknownFields(t *testing.T) {
	s := setupTestServer(t, Options{})
	code := s.shorten(t, `{"url":"https://a.com","extra":1}`)

	w := s.do(http.MethodGet, "/"+code, "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "https://a.com" {
		t.Fatalf("redirect: got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestShorten_ShortAliasRoundTrip(t *testing.T) {
	s := setupTestServer(t, Options{})
	if code := s.shorten(t, `{"url":"https://example.com/x","alias":"x"}`); code != "x" {
		t.Fatalf("code: got %q, want x", code)
	}
	w := s.do(http.MethodGet, "/x", "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "https://example.com/x" {
		t.Fatalf("redirect: got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestShorten_BadRequests(t *testing.T) {
	cases := []struct {
		name    string
		opts    Options
		body    string
		wantMsg string
	}{
		{"missing url", Options{}, `{}`, "URL is required"},
		{"empty url", Options{}, `{"url":""}`, "URL is required"},
		{"empty url with alias", Options{}, `{"url":"","alias":"promo"}`, "URL is required"},
		{"invalid json", Options{}, `{"url":`, "Invalid json"},
		{"empty body", Options{}, ``, "URL is required"},
		{"trailing data", Options{}, `{"url":"https://a.b"}{}`, "Invalid json"},
		{"alias with slash", Options{}, `{"url":"https://a.b","alias":"a/b"}`, "Invalid alias"},
		{"reserved alias", Options{}, `{"url":"https://a.b","alias":"healthz"}`, "Invalid alias"},
		{"non http url", Options{RequireHTTPURL: true}, `{"url":"ftp://a.b/x"}`, "Invalid URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := setupTestServer(t, tc.opts)
			w := s.do(http.MethodPost, "/api/shorten", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400, body=%s", w.Code, w.Body.String())
			}
			if msg := errorMessage(t, w); msg != tc.wantMsg {
				t.Fatalf("error: got %q, want %q", msg, tc.wantMsg)
			}
			if n := s.store.Len(); n != 0 {
				t.Fatalf("records: got %d, want 0", n)
			}
		})
	}
}

func TestShorten_NonHTTPAllowedByDefault(t *testing.T) {
	s := setupTestServer(t, Options{})
	code := s.shorten(t, `{"url":"mailto:someone@example.com"}`)
	w := s.do(http.MethodGet, "/"+code, "")
	if got := w.Header().Get("Location"); got != "mailto:someone@example.com" {
		t.Fatalf("Location: got %q", got)
	}
}

func TestRedirect_NotFound(t *testing.T) {
	s := setupTestServer(t, Options{})
	w := s.do(http.MethodGet, "/nope123", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
	if msg := errorMessage(t, w); msg != "URL not found or expired" {
		t.Fatalf("error: got %q", msg)
	}
}

func TestRedirect_Expired(t *testing.T) {
	s := setupTestServer(t, Options{})
	past := time.Now().Add(-time.Hour)
	if err := s.store.Put(shortlink.Record{
		OriginalURL: "https://example.com/old",
		ShortCode:   "old1234",
		Expiry:      &past,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	w := s.do(http.MethodGet, "/old1234", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
	if msg := errorMessage(t, w); msg != "URL not found or expired" {
		t.Fatalf("error: got %q", msg)
	}

	// 过期记录仍然在，只是不可解析，计数也不变
	w = s.do(http.MethodGet, "/api/links/old1234", "")
	if w.Code != http.StatusOK {
		t.Fatalf("lookup status: got %d", w.Code)
	}
	var link LinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &link); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !link.Expired || link.VisitCount != 0 {
		t.Fatalf("lookup: expired=%v visitCount=%d", link.Expired, link.VisitCount)
	}
}

func TestLookup_DoesNotCountVisits(t *testing.T) {
	s := setupTestServer(t, Options{})
	code := s.shorten(t, `{"url":"https://example.com/l","alias":"look-up"}`)

	for i := 0; i < 3; i++ {
		w := s.do(http.MethodGet, "/api/links/"+code, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status: got %d", w.Code)
		}
	}
	w := s.do(http.MethodGet, "/api/links/"+code, "")
	var link LinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &link); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if link.VisitCount != 0 {
		t.Fatalf("VisitCount: got %d, want 0", link.VisitCount)
	}
	if link.CustomAlias != "look-up" || link.ShortURL != testBaseURL+"/look-up" {
		t.Fatalf("unexpected link: %+v", link)
	}

	w = s.do(http.MethodGet, "/api/links/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing lookup status: got %d", w.Code)
	}
}

func TestHealthzNotShadowedByShortCode(t *testing.T) {
	s := setupTestServer(t, Options{})
	w := s.do(http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
}

type failingShortener struct {
	err error
}

func (f failingShortener) CreateShortLink(context.Context, string, string) (shortlink.Record, error) {
	return shortlink.Record{}, f.err
}

func (f failingShortener) ResolveShortLink(context.Context, string) (string, error) {
	return "", f.err
}

func (f failingShortener) Lookup(context.Context, string) (shortlink.Record, error) {
	return shortlink.Record{}, f.err
}

func TestStoreFailureMapsToInternalServerError(t *testing.T) {
	storeErr := &shortlink.PersistenceError{Op: "insert", Err: errors.New("connection refused")}
	s := setupWithService(t, failingShortener{err: storeErr}, memstore.New(), Options{})

	for _, req := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/shorten", `{"url":"https://example.com"}`},
		{http.MethodGet, "/abc1234", ""},
		{http.MethodGet, "/api/links/abc1234", ""},
	} {
		w := s.do(req.method, req.path, req.body)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s: status %d", req.method, req.path, w.Code)
		}
		if msg := errorMessage(t, w); msg != "Internal Server Error" {
			t.Fatalf("%s %s: error %q", req.method, req.path, msg)
		}
		if strings.Contains(w.Body.String(), "connection refused") {
			t.Fatalf("internal error leaked: %s", w.Body.String())
		}
	}
	if got := s.pub.types(); len(got) != 0 {
		t.Fatalf("events on failure: %v", got)
	}
}
