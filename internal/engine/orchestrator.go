package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/observability"
	"github.com/paperscope/discovery-service/internal/sources"
)

// DefaultSearchDeadline bounds the whole fan-out when no deadline is
// configured. Slow sources are dropped, not waited for.
const DefaultSearchDeadline = 8 * time.Second

// LocalSearcher is the local hybrid index as the fan-out sees it.
type LocalSearcher interface {
	Search(ctx context.Context, params sources.SearchParams, useVector bool) (*sources.SearchResult, error)
}

// Orchestrator fans a query out to the local index and every enabled
// external source concurrently under a single shared deadline.
type Orchestrator struct {
	index    LocalSearcher
	registry *sources.Registry
	deadline time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewOrchestrator creates an orchestrator. The local index may be nil, in
// which case only external sources are queried. A deadline <= 0 uses
// DefaultSearchDeadline.
func NewOrchestrator(index LocalSearcher, registry *sources.Registry, deadline time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *Orchestrator {
	if deadline <= 0 {
		deadline = DefaultSearchDeadline
	}
	return &Orchestrator{
		index:    index,
		registry: registry,
		deadline: deadline,
		metrics:  metrics,
		logger:   logger,
	}
}

// FanOutResult carries the concatenated raw records and the per-source
// accounting. Every launched source lands in exactly one of SourcesUsed or
// SourcesFailed.
type FanOutResult struct {
	Records       []*domain.RawRecord
	SourcesUsed   []domain.SourceType
	SourcesFailed []domain.SourceType
}

// AllFailed reports whether no source returned a usable result.
func (r *FanOutResult) AllFailed() bool {
	return len(r.SourcesUsed) == 0
}

// sourceOutcome is one source's contribution to the fan-out.
type sourceOutcome struct {
	source  domain.SourceType
	records []*domain.RawRecord
	err     error
}

// FanOut queries the local index and all enabled external sources in
// parallel and waits for all of them or the deadline, whichever comes
// first. A source that errors or times out is recorded in SourcesFailed;
// FanOut itself never fails.
func (o *Orchestrator) FanOut(ctx context.Context, params sources.SearchParams, useVector bool) *FanOutResult {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	var enabled []sources.Source
	if o.registry != nil {
		enabled = o.registry.EnabledSources()
	}

	launches := len(enabled)
	if o.index != nil {
		launches++
	}

	outcomes := make(chan sourceOutcome, launches)
	var wg sync.WaitGroup

	if o.index != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- o.searchLocal(ctx, params, useVector)
		}()
	}

	for _, src := range enabled {
		wg.Add(1)
		go func(src sources.Source) {
			defer wg.Done()
			outcomes <- o.searchSource(ctx, src, params)
		}(src)
	}

	wg.Wait()
	close(outcomes)

	result := &FanOutResult{}
	for outcome := range outcomes {
		if outcome.err != nil {
			result.SourcesFailed = append(result.SourcesFailed, outcome.source)
			continue
		}
		result.SourcesUsed = append(result.SourcesUsed, outcome.source)
		result.Records = append(result.Records, outcome.records...)
	}

	// Channel drain order is nondeterministic; fix it for callers.
	sortSourceTypes(result.SourcesUsed)
	sortSourceTypes(result.SourcesFailed)

	return result
}

func (o *Orchestrator) searchLocal(ctx context.Context, params sources.SearchParams, useVector bool) sourceOutcome {
	start := time.Now()
	o.metrics.RecordSourceSearchStarted(string(domain.SourceTypeLocal))

	result, err := o.index.Search(ctx, params, useVector)
	duration := time.Since(start)
	if err != nil {
		o.metrics.RecordSourceSearchFailed(string(domain.SourceTypeLocal), duration.Seconds())
		o.logger.Warn().Err(err).Msg("local index search failed")
		return sourceOutcome{source: domain.SourceTypeLocal, err: err}
	}

	o.metrics.RecordSourceSearchCompleted(string(domain.SourceTypeLocal), duration.Seconds())
	return sourceOutcome{source: domain.SourceTypeLocal, records: result.Records}
}

func (o *Orchestrator) searchSource(ctx context.Context, src sources.Source, params sources.SearchParams) sourceOutcome {
	sourceType := src.SourceType()
	start := time.Now()
	o.metrics.RecordSourceSearchStarted(string(sourceType))

	result, err := src.Search(ctx, params)
	duration := time.Since(start)
	if err != nil {
		o.metrics.RecordSourceSearchFailed(string(sourceType), duration.Seconds())
		o.logger.Warn().
			Err(err).
			Str("source", src.Name()).
			Dur("duration", duration).
			Msg("source search failed")
		return sourceOutcome{source: sourceType, err: err}
	}

	o.metrics.RecordSourceSearchCompleted(string(sourceType), duration.Seconds())
	o.logger.Debug().
		Str("source", src.Name()).
		Int("records", len(result.Records)).
		Dur("duration", duration).
		Msg("source search completed")
	return sourceOutcome{source: sourceType, records: result.Records}
}

func sortSourceTypes(types []domain.SourceType) {
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
}
