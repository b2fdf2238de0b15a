package scrape_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/infra/adapter/persistence/memory"
	"rsd-scraper/internal/resilience/retry"
	"rsd-scraper/internal/usecase/scrape"

	"github.com/google/uuid"
)

var (
	statsField = entity.FreshnessField{ScrapedAtColumn: "basic_data_scraped_at", ErrorColumn: "basic_data_last_error"}
	past       = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now        = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
)

func ptr[T any](v T) *T { return &v }

func fixedClock() time.Time { return now }

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func statsJob(f scrape.Fetcher) *scrape.Job {
	return &scrape.Job{
		Name:       "github-stats",
		Origin:     "github-stats",
		Collection: entity.RepositoryURLs,
		Filters:    []entity.Filter{entity.Eq("code_platform", "github")},
		Field:      statsField,
		Fetcher:    f,
	}
}

// seedRepository inserts a github repository row and returns its id.
func seedRepository(s *memory.Store, url string, scrapedAt any, license any) uuid.UUID {
	id := uuid.New()
	s.Insert("repository_url", memory.Row{
		"software":              id,
		"url":                   url,
		"code_platform":         "github",
		"basic_data_scraped_at": scrapedAt,
		"license":               license,
	})
	return id
}

// stubFetcher answers per reference; unknown references get ErrNoData.
type stubFetcher struct {
	mu      sync.Mutex
	results map[string]stubAnswer
	calls   map[string]int
}

type stubAnswer struct {
	payload entity.Payload
	err     error
	panic   any
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{results: map[string]stubAnswer{}, calls: map[string]int{}}
}

func (f *stubFetcher) on(ref string, a stubAnswer) *stubFetcher {
	f.results[ref] = a
	return f
}

func (f *stubFetcher) Fetch(_ context.Context, ref string) (entity.Payload, error) {
	f.mu.Lock()
	f.calls[ref]++
	a, ok := f.results[ref]
	f.mu.Unlock()
	if !ok {
		return nil, scrape.ErrNoData
	}
	if a.panic != nil {
		panic(a.panic)
	}
	return a.payload, a.err
}

// flakyStore wraps the memory store with injectable failures.
type flakyStore struct {
	*memory.Store

	listErr      error
	listCalls    atomic.Int32
	extraTargets []entity.Target

	mu             sync.Mutex
	patchFailures  int // fail this many Patch calls, then succeed
	patchErr       error
	upsertErr      error
	appendErr      error
	findByDOICalls int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New()}
}

func (s *flakyStore) ListStale(ctx context.Context, q entity.StalenessQuery) ([]entity.Target, error) {
	s.listCalls.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	out, err := s.Store.ListStale(ctx, q)
	return append(out, s.extraTargets...), err
}

func (s *flakyStore) Patch(ctx context.Context, c entity.Collection, id uuid.UUID, fields map[string]any) error {
	s.mu.Lock()
	if s.patchFailures > 0 {
		s.patchFailures--
		s.mu.Unlock()
		return s.patchErr
	}
	s.mu.Unlock()
	return s.Store.Patch(ctx, c, id, fields)
}

func (s *flakyStore) Upsert(ctx context.Context, m *entity.MentionRecord, cols []string) (uuid.UUID, error) {
	if s.upsertErr != nil {
		return uuid.Nil, s.upsertErr
	}
	return s.Store.Upsert(ctx, m, cols)
}

func (s *flakyStore) FindIDByDOI(ctx context.Context, doi string) (uuid.UUID, error) {
	s.mu.Lock()
	s.findByDOICalls++
	s.mu.Unlock()
	return s.Store.FindIDByDOI(ctx, doi)
}

func (s *flakyStore) Append(ctx context.Context, rec *entity.ErrorRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.Append(ctx, rec)
}

func newWriter(s *flakyStore) *scrape.Writer {
	return scrape.NewWriter(s, s, scrape.NewFailureRecorder(s, s, fixedClock))
}
