// Package fetch implements the repository fetch deduplication service:
// at-most-one fetch per repository or trust-anchor-certificate URI
// within a validation pass, with an explicit force override.
package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yaoyj11/rpki-validator/internal/store"
)

// Service is process-wide: one instance is shared by every trust-anchor
// walk in a run, so concurrent walks share no mutable state except the
// fetch-dedup table. Its zero value is not usable; build one with
// NewService.
type Service struct {
	fetcher store.RepoFetcher
	maxAge  time.Duration
	log     zerolog.Logger

	// limiter throttles RepoFetcher.FetchRepo/FetchTrustAnchorCertificate
	// calls process-wide, so a pathological or misconfigured tree can't
	// hammer the transport even across many distinct URIs.
	limiter *rate.Limiter

	lastVisited *xsync.Map[string, time.Time]
	locks       *xsync.Map[string, *sync.Mutex]
}

// NewService builds a Service. maxAge is the freshness window: a URI
// visited within maxAge of now is not refetched unless forceFetch is
// set. A nil limiter disables rate limiting.
func NewService(fetcher store.RepoFetcher, maxAge time.Duration, limiter *rate.Limiter, log zerolog.Logger) *Service {
	return &Service{
		fetcher:     fetcher,
		maxAge:      maxAge,
		log:         log,
		limiter:     limiter,
		lastVisited: xsync.NewMap[string, time.Time](),
		locks:       xsync.NewMap[string, *sync.Mutex](),
	}
}

// Reset clears all recorded visits. It exists only for tests: production
// callers build one Service per validation pass.
func (s *Service) Reset() {
	s.lastVisited = xsync.NewMap[string, time.Time]()
	s.locks = xsync.NewMap[string, *sync.Mutex]()
}

func (s *Service) lockFor(uri string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(uri, &sync.Mutex{})
	return mu
}

// TimeIsRecent reports whether a visit at lastVisited is still within
// maxAge of now: true iff now-lastVisited <= maxAge and forceFetch is
// false. forceFetch=true always returns false.
func TimeIsRecent(lastVisited time.Time, maxAge time.Duration, now time.Time, forceFetch bool) bool {
	if forceFetch {
		return false
	}
	return now.Sub(lastVisited) <= maxAge
}

// VisitRepo ensures the repository at uri has been fetched since the
// start of the pass (or unconditionally, if forceFetch is true).
func (s *Service) VisitRepo(ctx context.Context, uri string, forceFetch bool, now time.Time) error {
	return s.visit(ctx, uri, forceFetch, now, s.fetcher.FetchRepo)
}

// VisitTrustAnchorCertificate is the same contract as VisitRepo, for a
// single trust-anchor certificate URI.
func (s *Service) VisitTrustAnchorCertificate(ctx context.Context, uri string, forceFetch bool, now time.Time) error {
	return s.visit(ctx, uri, forceFetch, now, s.fetcher.FetchTrustAnchorCertificate)
}

func (s *Service) visit(ctx context.Context, uri string, forceFetch bool, now time.Time, do func(context.Context, string) error) error {
	mu := s.lockFor(uri)
	mu.Lock()
	defer mu.Unlock()

	if last, ok := s.lastVisited.Load(uri); ok && TimeIsRecent(last, s.maxAge, now, forceFetch) {
		s.log.Debug().Str("uri", uri).Msg("fetch dedup: skipping, still fresh")
		return nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	s.log.Debug().Str("uri", uri).Bool("force", forceFetch).Msg("fetch dedup: fetching")
	if err := do(ctx, uri); err != nil {
		// do not record the visit on failure, so the next call retries.
		return err
	}

	s.lastVisited.Store(uri, now)
	return nil
}
