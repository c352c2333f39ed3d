package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/discovery-service/internal/cache"
	"github.com/paperscope/discovery-service/internal/config"
	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/observability"
	"github.com/paperscope/discovery-service/internal/sources"
)

// fakeWriter mimics the repository's id-assigning bulk upsert.
type fakeWriter struct {
	err   error
	calls int
	saved []*domain.Paper
}

func (f *fakeWriter) BulkUpsert(_ context.Context, papers []*domain.Paper) ([]*domain.Paper, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range papers {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
	}
	f.saved = append(f.saved, papers...)
	return papers, nil
}

// fakeResultCache is an in-memory ResultCache.
type fakeResultCache struct {
	entries  map[string]*cache.SearchEntry
	setCalls int
}

func newFakeResultCache() *fakeResultCache {
	return &fakeResultCache{entries: make(map[string]*cache.SearchEntry)}
}

func (f *fakeResultCache) Get(_ context.Context, key string) (*cache.SearchEntry, bool) {
	entry, ok := f.entries[key]
	return entry, ok
}

func (f *fakeResultCache) Set(_ context.Context, key string, entry *cache.SearchEntry) {
	f.setCalls++
	f.entries[key] = entry
}

// fakeScheduler reports scheduled batches on a channel.
type fakeScheduler struct {
	batches chan []uuid.UUID
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{batches: make(chan []uuid.UUID, 4)}
}

func (f *fakeScheduler) Schedule(_ context.Context, ids []uuid.UUID) error {
	f.batches <- ids
	return nil
}

type serviceFixture struct {
	service   *Service
	writer    *fakeWriter
	cache     *fakeResultCache
	scheduler *fakeScheduler
}

func newServiceFixture(t *testing.T, namespace string, registry *sources.Registry, idx LocalSearcher) *serviceFixture {
	t.Helper()

	metrics := observability.NewMetrics(namespace)
	writer := &fakeWriter{}
	resultCache := newFakeResultCache()
	scheduler := newFakeScheduler()

	orchestrator := NewOrchestrator(idx, registry, time.Second, metrics, zerolog.Nop())
	merger := NewMerger(0, metrics)
	cfg := config.SearchConfig{DefaultLimit: 20, MaxLimit: 100}

	return &serviceFixture{
		service:   NewService(orchestrator, merger, writer, resultCache, scheduler, cfg, metrics, zerolog.Nop()),
		writer:    writer,
		cache:     resultCache,
		scheduler: scheduler,
	}
}

func registryWith(srcs ...sources.Source) *sources.Registry {
	registry := sources.NewRegistry()
	for _, src := range srcs {
		registry.Register(src)
	}
	return registry
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("merges, persists, and caches a fresh search", func(t *testing.T) {
		registry := registryWith(
			&fakeSource{
				sourceType: domain.SourceTypeArXiv,
				records: []*domain.RawRecord{{
					Source:      domain.SourceTypeArXiv,
					Identifiers: domain.PaperIdentifiers{DOI: "10.1234/one", ArXivID: "2403.20001"},
					Title:       "Shared Paper",
				}},
				enabled: true,
			},
			&fakeSource{
				sourceType: domain.SourceTypeSemanticScholar,
				records: []*domain.RawRecord{{
					Source:        domain.SourceTypeSemanticScholar,
					Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/one"},
					Title:         "Shared Paper",
					CitationCount: 42,
				}},
				enabled: true,
			},
		)
		f := newServiceFixture(t, "test_service_fresh", registry, nil)

		resp, err := f.service.Search(ctx, SearchRequest{Query: "shared paper"})
		require.NoError(t, err)

		require.Len(t, resp.Papers, 1)
		assert.Equal(t, 42, resp.Papers[0].CitationCount)
		assert.True(t, resp.Papers[0].IsPersisted())
		assert.Equal(t, 1, resp.Total)
		assert.False(t, resp.Metadata.CacheHit)
		assert.False(t, resp.Metadata.AllSourcesFailed)
		assert.Equal(t, []domain.SourceType{
			domain.SourceTypeArXiv,
			domain.SourceTypeSemanticScholar,
		}, resp.Metadata.SourcesUsed)

		assert.Equal(t, 1, f.writer.calls)
		assert.Equal(t, 1, f.cache.setCalls)
	})

	t.Run("serves the second identical search from cache", func(t *testing.T) {
		registry := registryWith(&fakeSource{
			sourceType: domain.SourceTypeArXiv,
			records: []*domain.RawRecord{{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.20002"},
				Title:       "Cached Paper",
			}},
			enabled: true,
		})
		f := newServiceFixture(t, "test_service_cached", registry, nil)

		first, err := f.service.Search(ctx, SearchRequest{Query: "Cached Paper"})
		require.NoError(t, err)
		assert.False(t, first.Metadata.CacheHit)

		// Different spacing and case still hit the same entry.
		second, err := f.service.Search(ctx, SearchRequest{Query: "  cached   paper "})
		require.NoError(t, err)
		assert.True(t, second.Metadata.CacheHit)
		assert.Equal(t, first.Total, second.Total)
		assert.Equal(t, 1, f.writer.calls)
	})

	t.Run("all sources failed yields an empty flagged response, not an error", func(t *testing.T) {
		registry := registryWith(&fakeSource{
			sourceType: domain.SourceTypeArXiv,
			err:        errors.New("network down"),
			enabled:    true,
		})
		f := newServiceFixture(t, "test_service_allfailed", registry, nil)

		resp, err := f.service.Search(ctx, SearchRequest{Query: "anything at all"})
		require.NoError(t, err)

		assert.Empty(t, resp.Papers)
		assert.Zero(t, resp.Total)
		assert.True(t, resp.Metadata.AllSourcesFailed)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeArXiv}, resp.Metadata.SourcesFailed)

		// Total failures are never cached; the next search retries.
		assert.Zero(t, f.cache.setCalls)
		assert.Zero(t, f.writer.calls)
	})

	t.Run("partial failure reports the failed source alongside results", func(t *testing.T) {
		registry := registryWith(
			&fakeSource{
				sourceType: domain.SourceTypeArXiv,
				records: []*domain.RawRecord{{
					Source:      domain.SourceTypeArXiv,
					Identifiers: domain.PaperIdentifiers{ArXivID: "2403.20003"},
					Title:       "Partial Result",
				}},
				enabled: true,
			},
			&fakeSource{
				sourceType: domain.SourceTypeOpenAlex,
				err:        domain.NewRateLimitError("openalex", time.Minute),
				enabled:    true,
			},
		)
		f := newServiceFixture(t, "test_service_partial", registry, nil)

		resp, err := f.service.Search(ctx, SearchRequest{Query: "partial result"})
		require.NoError(t, err)

		assert.Len(t, resp.Papers, 1)
		assert.False(t, resp.Metadata.AllSourcesFailed)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeOpenAlex}, resp.Metadata.SourcesFailed)
	})

	t.Run("persistence failure still serves results", func(t *testing.T) {
		registry := registryWith(&fakeSource{
			sourceType: domain.SourceTypeArXiv,
			records: []*domain.RawRecord{{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.20004"},
				Title:       "Unpersisted Result",
			}},
			enabled: true,
		})
		f := newServiceFixture(t, "test_service_persistfail", registry, nil)
		f.writer.err = errors.New("database down")

		resp, err := f.service.Search(ctx, SearchRequest{Query: "unpersisted result"})
		require.NoError(t, err)

		require.Len(t, resp.Papers, 1)
		assert.False(t, resp.Papers[0].IsPersisted())
	})

	t.Run("already persisted papers are not re-upserted", func(t *testing.T) {
		localID := uuid.New()
		idx := &fakeIndex{records: []*domain.RawRecord{{
			Source:      domain.SourceTypeLocal,
			PaperID:     localID,
			IsEmbedded:  true,
			Identifiers: domain.PaperIdentifiers{DOI: "10.1234/stored"},
			Title:       "Stored Paper",
		}}}
		f := newServiceFixture(t, "test_service_nopersist", sources.NewRegistry(), idx)

		resp, err := f.service.Search(ctx, SearchRequest{Query: "stored paper"})
		require.NoError(t, err)

		require.Len(t, resp.Papers, 1)
		assert.Equal(t, localID, resp.Papers[0].ID)
		assert.Zero(t, f.writer.calls)
	})

	t.Run("schedules enrichment for newly persisted papers only", func(t *testing.T) {
		idx := &fakeIndex{records: []*domain.RawRecord{{
			Source:      domain.SourceTypeLocal,
			PaperID:     uuid.New(),
			IsEmbedded:  true,
			Identifiers: domain.PaperIdentifiers{DOI: "10.1234/embedded"},
			Title:       "Embedded Paper",
		}}}
		registry := registryWith(&fakeSource{
			sourceType: domain.SourceTypeArXiv,
			records: []*domain.RawRecord{{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.20005"},
				Title:       "Fresh Paper",
			}},
			enabled: true,
		})
		f := newServiceFixture(t, "test_service_enrich", registry, idx)

		resp, err := f.service.Search(ctx, SearchRequest{Query: "fresh paper"})
		require.NoError(t, err)
		require.Len(t, resp.Papers, 2)

		select {
		case ids := <-f.scheduler.batches:
			require.Len(t, ids, 1)
			assert.NotEqual(t, uuid.Nil, ids[0])
		case <-time.After(2 * time.Second):
			t.Fatal("enrichment was never scheduled")
		}
	})

	t.Run("truncates results to the requested limit", func(t *testing.T) {
		records := make([]*domain.RawRecord, 5)
		for i := range records {
			records[i] = &domain.RawRecord{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: uuid.NewString()},
				Title:       "Distinct Paper " + uuid.NewString(),
			}
		}
		registry := registryWith(&fakeSource{
			sourceType: domain.SourceTypeArXiv,
			records:    records,
			enabled:    true,
		})
		f := newServiceFixture(t, "test_service_limit", registry, nil)

		resp, err := f.service.Search(ctx, SearchRequest{Query: "distinct paper", Limit: 2})
		require.NoError(t, err)

		assert.Len(t, resp.Papers, 2)
		assert.Equal(t, 5, resp.Total)
	})
}

func TestService_Search_Validation(t *testing.T) {
	ctx := context.Background()

	f := newServiceFixture(t, "test_service_validation", sources.NewRegistry(), nil)

	t.Run("query too short", func(t *testing.T) {
		_, err := f.service.Search(ctx, SearchRequest{Query: " x "})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := f.service.Search(ctx, SearchRequest{
			Query:    "valid query",
			Category: domain.Category("astrology"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := f.service.Search(ctx, SearchRequest{
			Query: "valid query",
			Mode:  domain.SearchMode("turbo"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
