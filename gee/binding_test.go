package gee

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type bindTarget struct {
	URL string `json:"url"`
}

func bindContext(body string) (*Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/shorten", strings.NewReader(body))
	return newContext(w, req), w
}

func TestShouldBindJSON(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		opts     []BindOption
		wantErr  error
		anyErr   bool
		wantZero bool
	}{
		{name: "ok", body: `{"url":"https://example.com"}`},
		{name: "empty", body: ``, wantErr: ErrEmptyBody},
		{name: "trailing", body: `{"url":"a"}{"url":"b"}`, wantErr: ErrTrailingData},
		{name: "unknown field", body: `{"url":"a","ttl":3}`, anyErr: true},
		{name: "malformed", body: `{"url":`, anyErr: true},
		{name: "empty allowed", body: ``, opts: []BindOption{AllowEmptyBody()}, wantZero: true},
		{name: "unknown field allowed", body: `{"url":"https://example.com","extra":1}`, opts: []BindOption{AllowUnknownFields()}},
		{name: "malformed with options", body: `{"url":`, opts: []BindOption{AllowEmptyBody(), AllowUnknownFields()}, anyErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := bindContext(tc.body)
			var dst bindTarget
			err := c.ShouldBindJSON(&dst, tc.opts...)
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %v, want %v", err, tc.wantErr)
				}
			case tc.anyErr:
				if err == nil {
					t.Fatal("expected error")
				}
			case tc.wantZero:
				if err != nil || dst.URL != "" {
					t.Fatalf("got %+v, %v", dst, err)
				}
			default:
				if err != nil || dst.URL != "https://example.com" {
					t.Fatalf("got %+v, %v", dst, err)
				}
			}
		})
	}
}

func TestBindJSONTooLarge(t *testing.T) {
	old := MaxBodyBytes
	MaxBodyBytes = 32
	t.Cleanup(func() { MaxBodyBytes = old })

	c, w := bindContext(`{"url":"https://example.com/` + strings.Repeat("a", 64) + `"}`)
	var dst bindTarget
	if err := c.BindJSON(&dst); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("got %v, want ErrBodyTooLarge", err)
	}
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d", w.Code)
	}
}

func TestBindJSONInvalidIs400(t *testing.T) {
	c, w := bindContext(`not json`)
	var dst bindTarget
	if err := c.BindJSON(&dst); err == nil {
		t.Fatal("expected error")
	}
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Invalid json") {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
