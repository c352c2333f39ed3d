package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/paperscope/discovery-service/internal/cache"
	"github.com/paperscope/discovery-service/internal/config"
	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/observability"
	"github.com/paperscope/discovery-service/internal/sources"
)

// Default request limits when the config leaves them unset.
const (
	defaultResultLimit = 20
	maxResultLimit     = 100
)

// enrichmentScheduleTimeout bounds the detached enrichment scheduling call
// that runs after the response has been served.
const enrichmentScheduleTimeout = 10 * time.Second

// PaperWriter is the slice of the repository the service needs.
type PaperWriter interface {
	BulkUpsert(ctx context.Context, papers []*domain.Paper) ([]*domain.Paper, error)
}

// ResultCache is the search result cache as the service sees it.
type ResultCache interface {
	Get(ctx context.Context, key string) (*cache.SearchEntry, bool)
	Set(ctx context.Context, key string, entry *cache.SearchEntry)
}

// EnrichmentScheduler queues papers for background embedding.
type EnrichmentScheduler interface {
	Schedule(ctx context.Context, paperIDs []uuid.UUID) error
}

// SearchRequest is a unified search as received from the transport layer.
type SearchRequest struct {
	Query    string
	Category domain.Category
	Mode     domain.SearchMode
	Limit    int
}

// SearchMetadata describes how a result set was produced.
type SearchMetadata struct {
	SearchTimeMS     int64               `json:"search_time_ms"`
	CacheHit         bool                `json:"cache_hit"`
	SourcesUsed      []domain.SourceType `json:"sources_used"`
	SourcesFailed    []domain.SourceType `json:"sources_failed,omitempty"`
	AllSourcesFailed bool                `json:"all_sources_failed,omitempty"`
}

// SearchResponse is the merged, deduplicated result set.
type SearchResponse struct {
	Papers   []*domain.Paper `json:"papers"`
	Total    int             `json:"total"`
	Metadata SearchMetadata  `json:"metadata"`
}

// Service runs the unified search pipeline: cache consult, concurrent
// fan-out, merge, bulk persistence, and background enrichment scheduling.
type Service struct {
	orchestrator *Orchestrator
	merger       *Merger
	store        PaperWriter
	cache        ResultCache
	scheduler    EnrichmentScheduler
	cfg          config.SearchConfig
	metrics      *observability.Metrics
	logger       zerolog.Logger

	group singleflight.Group
}

// NewService creates the search service. The cache and scheduler may be nil;
// the pipeline then skips caching and enrichment respectively.
func NewService(
	orchestrator *Orchestrator,
	merger *Merger,
	store PaperWriter,
	resultCache ResultCache,
	scheduler EnrichmentScheduler,
	cfg config.SearchConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultResultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = maxResultLimit
	}

	return &Service{
		orchestrator: orchestrator,
		merger:       merger,
		store:        store,
		cache:        resultCache,
		scheduler:    scheduler,
		cfg:          cfg,
		metrics:      metrics,
		logger:       logger,
	}
}

// Search runs a unified search. A fresh fan-out for the same normalized
// query and category is coalesced across concurrent callers; each caller
// still gets its own limit applied.
//
// When every source fails the response is an empty result set flagged with
// AllSourcesFailed, not an error: the request itself succeeded.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	s.metrics.RecordSearchStarted()

	key := cache.Key(req.Query, req.Category)
	if s.cache != nil {
		if entry, ok := s.cache.Get(ctx, key); ok {
			s.metrics.RecordCacheHit()
			resp := s.buildResponse(entry, req.Limit, true, false, start)
			s.metrics.RecordSearchCompleted(len(resp.Papers), time.Since(start).Seconds())
			return resp, nil
		}
		s.metrics.RecordCacheMiss()
	}

	// Coalesce identical in-flight fan-outs. Mode is part of the key so a
	// quick search never piggybacks on a semantic one.
	flightKey := key + ":" + string(req.Mode)
	v, err, shared := s.group.Do(flightKey, func() (interface{}, error) {
		return s.searchSources(ctx, req, key)
	})
	if err != nil {
		s.metrics.RecordSearchFailed(time.Since(start).Seconds())
		return nil, err
	}
	if shared {
		s.logger.Debug().Str("key", flightKey).Msg("search coalesced with concurrent request")
	}

	outcome := v.(*searchOutcome)
	resp := s.buildResponse(outcome.entry, req.Limit, false, outcome.allFailed, start)

	if outcome.allFailed {
		s.metrics.RecordSearchFailed(time.Since(start).Seconds())
	} else {
		s.metrics.RecordSearchCompleted(len(resp.Papers), time.Since(start).Seconds())
	}

	return resp, nil
}

// searchOutcome is the shared result of one coalesced fan-out.
type searchOutcome struct {
	entry     *cache.SearchEntry
	allFailed bool
}

// searchSources runs fan-out, merge, and persistence, then caches the entry
// and schedules enrichment. It is executed once per coalesced flight.
func (s *Service) searchSources(ctx context.Context, req SearchRequest, key string) (*searchOutcome, error) {
	params := sources.SearchParams{
		Query:      req.Query,
		Category:   req.Category,
		MaxResults: s.cfg.MaxLimit,
	}

	fanout := s.orchestrator.FanOut(ctx, params, req.Mode != domain.SearchModeQuick)
	if fanout.AllFailed() {
		s.logger.Error().
			Str("query", req.Query).
			Interface("sources_failed", fanout.SourcesFailed).
			Msg("all sources failed")
		return &searchOutcome{
			entry: &cache.SearchEntry{
				SourcesFailed: fanout.SourcesFailed,
			},
			allFailed: true,
		}, nil
	}

	papers := s.merger.Merge(fanout.Records)
	s.persist(ctx, papers)

	entry := &cache.SearchEntry{
		Papers:        papers,
		TotalResults:  len(papers),
		SourcesUsed:   fanout.SourcesUsed,
		SourcesFailed: fanout.SourcesFailed,
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, entry)
	}

	s.scheduleEnrichment(papers)

	return &searchOutcome{entry: entry}, nil
}

// persist bulk-upserts the papers not yet stored. Persistence failures are
// logged and counted but never fail the search; results are still served.
func (s *Service) persist(ctx context.Context, papers []*domain.Paper) {
	var fresh []*domain.Paper
	for _, p := range papers {
		if !p.IsPersisted() {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return
	}

	if _, err := s.store.BulkUpsert(ctx, fresh); err != nil {
		s.metrics.RecordPersistFailure()
		s.logger.Error().Err(err).Int("papers", len(fresh)).Msg("bulk upsert failed, serving unpersisted results")
		return
	}

	s.metrics.RecordPapersPersisted(len(fresh))
}

// scheduleEnrichment queues unembedded persisted papers for background
// embedding. It runs detached from the request; failures only log.
func (s *Service) scheduleEnrichment(papers []*domain.Paper) {
	if s.scheduler == nil {
		return
	}

	var ids []uuid.UUID
	for _, p := range papers {
		if p.IsPersisted() && !p.IsEmbedded {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), enrichmentScheduleTimeout)
		defer cancel()

		if err := s.scheduler.Schedule(ctx, ids); err != nil {
			s.logger.Warn().Err(err).Int("papers", len(ids)).Msg("failed to schedule enrichment")
		}
	}()
}

// buildResponse applies the caller's limit to a (possibly shared) entry.
func (s *Service) buildResponse(entry *cache.SearchEntry, limit int, cacheHit, allFailed bool, start time.Time) *SearchResponse {
	papers := entry.Papers
	if len(papers) > limit {
		papers = papers[:limit]
	}
	if papers == nil {
		papers = []*domain.Paper{}
	}

	return &SearchResponse{
		Papers: papers,
		Total:  entry.TotalResults,
		Metadata: SearchMetadata{
			SearchTimeMS:     time.Since(start).Milliseconds(),
			CacheHit:         cacheHit,
			SourcesUsed:      entry.SourcesUsed,
			SourcesFailed:    entry.SourcesFailed,
			AllSourcesFailed: allFailed,
		},
	}
}

// normalize validates the request and fills in defaults.
func (s *Service) normalize(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if len(req.Query) < 2 {
		return domain.NewValidationError("query", "must be at least 2 characters")
	}

	if req.Category == "" {
		req.Category = domain.CategoryGeneral
	}
	if !req.Category.IsValid() {
		return domain.NewValidationError("category", "unknown category: "+string(req.Category))
	}

	if req.Mode == "" {
		req.Mode = domain.SearchModeAuto
	}
	if !req.Mode.IsValid() {
		return domain.NewValidationError("mode", "unknown search mode: "+string(req.Mode))
	}

	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if req.Limit > s.cfg.MaxLimit {
		req.Limit = s.cfg.MaxLimit
	}

	return nil
}
