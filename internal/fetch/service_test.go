package fetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingFetcher struct {
	repoCalls atomic.Int64
	taCalls   atomic.Int64
	failNext  atomic.Bool
}

func (f *countingFetcher) FetchRepo(ctx context.Context, uri string) error {
	if f.failNext.Swap(false) {
		return errBoom
	}
	f.repoCalls.Add(1)
	return nil
}

func (f *countingFetcher) FetchTrustAnchorCertificate(ctx context.Context, uri string) error {
	f.taCalls.Add(1)
	return nil
}

var errBoom = fetchError("boom")

type fetchError string

func (e fetchError) Error() string { return string(e) }

// TestRepeatedVisitsDedupeUntilForced: two visits to the same repository
// within one pass share a single underlying fetch, until force=true.
func TestRepeatedVisitsDedupeUntilForced(t *testing.T) {
	f := &countingFetcher{}
	s := NewService(f, time.Minute, nil, zerolog.Nop())

	base := time.Now()
	ctx := context.Background()

	if err := s.VisitRepo(ctx, "rsync://repo/", false, base); err != nil {
		t.Fatalf("first visit: %v", err)
	}
	if f.repoCalls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", f.repoCalls.Load())
	}

	if err := s.VisitRepo(ctx, "rsync://repo/", false, base.Add(time.Second)); err != nil {
		t.Fatalf("second visit: %v", err)
	}
	if f.repoCalls.Load() != 1 {
		t.Fatalf("expected still 1 call, got %d", f.repoCalls.Load())
	}

	if err := s.VisitRepo(ctx, "rsync://repo/", true, base.Add(2*time.Second)); err != nil {
		t.Fatalf("forced visit: %v", err)
	}
	if f.repoCalls.Load() != 2 {
		t.Fatalf("expected 2 calls after force, got %d", f.repoCalls.Load())
	}
}

// TestTimeIsRecent: a repository fetched more recently than maxAge is
// not re-fetched.
func TestTimeIsRecent(t *testing.T) {
	T := time.Now()

	if !TimeIsRecent(T.Add(-time.Minute), 2*time.Minute, T, false) {
		t.Fatal("expected recent")
	}
	if TimeIsRecent(T.Add(-2*time.Minute), time.Minute, T, false) {
		t.Fatal("expected not recent")
	}
	if TimeIsRecent(T.Add(-time.Minute), 2*time.Minute, T, true) {
		t.Fatal("expected forceFetch to always be not-recent")
	}
}

func TestVisitRetriesAfterFailure(t *testing.T) {
	f := &countingFetcher{}
	f.failNext.Store(true)
	s := NewService(f, time.Minute, nil, zerolog.Nop())

	now := time.Now()
	ctx := context.Background()

	if err := s.VisitRepo(ctx, "rsync://repo/", false, now); err == nil {
		t.Fatal("expected an error from the first, failing fetch")
	}
	if f.repoCalls.Load() != 0 {
		t.Fatalf("expected no successful calls recorded, got %d", f.repoCalls.Load())
	}

	if err := s.VisitRepo(ctx, "rsync://repo/", false, now.Add(time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.repoCalls.Load() != 1 {
		t.Fatalf("expected 1 successful call after retry, got %d", f.repoCalls.Load())
	}
}

func TestVisitTrustAnchorCertificateIndependentOfRepo(t *testing.T) {
	f := &countingFetcher{}
	s := NewService(f, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()
	now := time.Now()

	if err := s.VisitTrustAnchorCertificate(ctx, "rsync://repo/ta.cer", false, now); err != nil {
		t.Fatalf("visit: %v", err)
	}
	if f.taCalls.Load() != 1 {
		t.Fatalf("expected 1 TA call, got %d", f.taCalls.Load())
	}
	if err := s.VisitRepo(ctx, "rsync://repo/", false, now); err != nil {
		t.Fatalf("visit repo: %v", err)
	}
	if f.repoCalls.Load() != 1 {
		t.Fatalf("expected 1 repo call, got %d", f.repoCalls.Load())
	}
}
