package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shortener.local/internal/app/shortlink"
)

func TestInsert_SetsTimestampsAndFinds(t *testing.T) {
	s := New()
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	rec := shortlink.Record{OriginalURL: "https://example.com", ShortCode: "abc1234"}
	if err := s.Insert(ctx, &rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !rec.CreatedAt.Equal(fixed) || !rec.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps not set: %+v", rec)
	}

	got, err := s.FindByCode(ctx, "abc1234")
	if err != nil || got.OriginalURL != "https://example.com" {
		t.Fatalf("FindByCode: %+v, %v", got, err)
	}
	got, err = s.FindByURL(ctx, "https://example.com")
	if err != nil || got.ShortCode != "abc1234" {
		t.Fatalf("FindByURL: %+v, %v", got, err)
	}
}

func TestNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.FindByCode(ctx, "x"); !errors.Is(err, shortlink.ErrRecordNotFound) {
		t.Fatalf("FindByCode: %v", err)
	}
	if _, err := s.FindByURL(ctx, "x"); !errors.Is(err, shortlink.ErrRecordNotFound) {
		t.Fatalf("FindByURL: %v", err)
	}
	if _, err := s.IncrementVisits(ctx, "x"); !errors.Is(err, shortlink.ErrRecordNotFound) {
		t.Fatalf("IncrementVisits: %v", err)
	}
}

func TestInsert_UniqueConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := shortlink.Record{OriginalURL: "https://a", ShortCode: "promo", CustomAlias: "promo"}
	if err := s.Insert(ctx, &first); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// 空别名不参与唯一约束
	for i, code := range []string{"gen0001", "gen0002"} {
		rec := shortlink.Record{OriginalURL: "https://b", ShortCode: code}
		if err := s.Insert(ctx, &rec); err != nil {
			t.Fatalf("Insert #%d with empty alias: %v", i, err)
		}
	}

	dupCode := shortlink.Record{OriginalURL: "https://c", ShortCode: "gen0001"}
	if err := s.Insert(ctx, &dupCode); !errors.Is(err, shortlink.ErrCodeConflict) {
		t.Fatalf("duplicate code: got %v", err)
	}
	dupAlias := shortlink.Record{OriginalURL: "https://d", ShortCode: "other", CustomAlias: "promo"}
	if err := s.Insert(ctx, &dupAlias); !errors.Is(err, shortlink.ErrAliasConflict) {
		t.Fatalf("duplicate alias: got %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", s.Len())
	}
}

func TestFindByURL_ReturnsOldest(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, code := range []string{"first01", "second1"} {
		rec := shortlink.Record{OriginalURL: "https://same", ShortCode: code}
		if err := s.Insert(ctx, &rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	got, err := s.FindByURL(ctx, "https://same")
	if err != nil || got.ShortCode != "first01" {
		t.Fatalf("FindByURL: %+v, %v", got, err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	if err := s.Put(shortlink.Record{OriginalURL: "https://a", ShortCode: "c1", Expiry: &exp}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, _ := s.FindByCode(ctx, "c1")
	got.VisitCount = 99
	*got.Expiry = time.Time{}

	again, _ := s.FindByCode(ctx, "c1")
	if again.VisitCount != 0 || again.Expiry.IsZero() {
		t.Fatalf("store mutated through returned record: %+v", again)
	}
}

func TestIncrementVisits_Concurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Put(shortlink.Record{OriginalURL: "https://a", ShortCode: "hot"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementVisits(ctx, "hot"); err != nil {
				t.Errorf("IncrementVisits: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.FindByCode(ctx, "hot")
	if got.VisitCount != n {
		t.Fatalf("VisitCount: got %d, want %d", got.VisitCount, n)
	}
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := shortlink.Record{OriginalURL: "https://a", ShortCode: "c"}
	if err := s.Insert(ctx, &rec); !errors.Is(err, context.Canceled) {
		t.Fatalf("Insert: got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len: got %d", s.Len())
	}
}

func TestForEachCode(t *testing.T) {
	s := New()
	for _, code := range []string{"a", "b", "c"} {
		if err := s.Put(shortlink.Record{OriginalURL: "https://" + code, ShortCode: code}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	seen := map[string]bool{}
	if err := s.ForEachCode(context.Background(), func(code string) error {
		seen[code] = true
		return nil
	}); err != nil {
		t.Fatalf("ForEachCode: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("seen: %v", seen)
	}

	stop := errors.New("stop")
	calls := 0
	err := s.ForEachCode(context.Background(), func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("early stop: err=%v calls=%d", err, calls)
	}
}
