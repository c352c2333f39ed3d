// Package index implements the local hybrid search index. It unions keyword
// matches from PostgreSQL with semantic matches from the Qdrant vector store,
// keeping keyword hits ranked first.
package index

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/embedding"
	"github.com/paperscope/discovery-service/internal/qdrant"
	"github.com/paperscope/discovery-service/internal/sources"
)

// Default values for the local index.
const (
	// DefaultMinScore is the cosine similarity below which vector matches
	// are discarded.
	DefaultMinScore = 0.7
	// DefaultMaxResults bounds the result set when the caller does not.
	DefaultMaxResults = 50
)

// PaperSearcher is the slice of the paper repository the index needs.
type PaperSearcher interface {
	SearchKeyword(ctx context.Context, query string, category domain.Category, limit int) ([]*domain.Paper, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Paper, error)
}

// VectorSearcher is the slice of the vector store the index needs.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK uint64, category string) ([]qdrant.SearchResult, error)
}

// Config holds the tunables for the local index.
type Config struct {
	// MinScore is the minimum cosine similarity for vector matches.
	MinScore float32
	// MaxResults bounds the result set when params do not specify one.
	MaxResults int
}

// LocalIndex searches the locally persisted paper corpus.
type LocalIndex struct {
	papers   PaperSearcher
	vectors  VectorSearcher
	embedder embedding.Embedder
	cfg      Config
	logger   zerolog.Logger
}

// New creates a local hybrid index. The vector searcher and embedder may be
// nil, in which case only keyword search is performed.
func New(papers PaperSearcher, vectors VectorSearcher, embedder embedding.Embedder, cfg Config, logger zerolog.Logger) *LocalIndex {
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	return &LocalIndex{
		papers:   papers,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs the hybrid query. Keyword matches come first in ranked order,
// followed by semantic matches not already present. When useVector is false
// (quick mode) or the vector stack is unavailable, only keyword search runs.
// Vector stage failures degrade to keyword-only results.
func (idx *LocalIndex) Search(ctx context.Context, params sources.SearchParams, useVector bool) (*sources.SearchResult, error) {
	start := time.Now()

	limit := params.MaxResults
	if limit <= 0 {
		limit = idx.cfg.MaxResults
	}

	keywordPapers, err := idx.papers.SearchKeyword(ctx, params.Query, params.Category, limit)
	if err != nil {
		return nil, err
	}

	papers := keywordPapers
	if useVector && idx.vectors != nil && idx.embedder != nil && len(papers) < limit {
		semantic := idx.semanticMatches(ctx, params, limit)
		papers = appendNew(papers, semantic, limit)
	}

	records := make([]*domain.RawRecord, 0, len(papers))
	for _, p := range papers {
		records = append(records, domain.RecordFromPaper(p))
	}

	return &sources.SearchResult{
		Records:        records,
		TotalResults:   len(records),
		HasMore:        false,
		Source:         domain.SourceTypeLocal,
		SearchDuration: time.Since(start),
	}, nil
}

// semanticMatches embeds the query and resolves vector hits back to papers.
// Any failure returns nil so the caller falls back to keyword-only results.
func (idx *LocalIndex) semanticMatches(ctx context.Context, params sources.SearchParams, limit int) []*domain.Paper {
	vectors, err := idx.embedder.Embed(ctx, []string{params.Query})
	if err != nil {
		idx.logger.Warn().Err(err).Msg("query embedding failed, keyword results only")
		return nil
	}

	category := ""
	if params.Category != "" && params.Category != domain.CategoryGeneral {
		category = string(params.Category)
	}

	hits, err := idx.vectors.Search(ctx, vectors[0], uint64(limit), category)
	if err != nil {
		idx.logger.Warn().Err(err).Msg("vector search failed, keyword results only")
		return nil
	}

	ids := make([]uuid.UUID, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < idx.cfg.MinScore {
			continue
		}
		ids = append(ids, hit.PaperID)
	}
	if len(ids) == 0 {
		return nil
	}

	papers, err := idx.papers.GetByIDs(ctx, ids)
	if err != nil {
		idx.logger.Warn().Err(err).Msg("failed to resolve vector matches, keyword results only")
		return nil
	}

	// Restore similarity order; GetByIDs does not guarantee it.
	byID := make(map[uuid.UUID]*domain.Paper, len(papers))
	for _, p := range papers {
		byID[p.ID] = p
	}
	ordered := make([]*domain.Paper, 0, len(papers))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}

	return ordered
}

// appendNew appends papers from extra that are not already present, up to limit.
func appendNew(papers, extra []*domain.Paper, limit int) []*domain.Paper {
	seen := make(map[uuid.UUID]struct{}, len(papers))
	for _, p := range papers {
		seen[p.ID] = struct{}{}
	}

	for _, p := range extra {
		if len(papers) >= limit {
			break
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		papers = append(papers, p)
	}

	return papers
}
