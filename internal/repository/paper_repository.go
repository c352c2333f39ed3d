package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/paperscope/discovery-service/internal/domain"
)

// PaperRepository handles paper persistence and deduplicated lookup.
// Papers are keyed by canonical_id, a normalized identifier derived from
// DOI, arXiv ID, Semantic Scholar ID, or OpenAlex ID.
type PaperRepository interface {
	// BulkUpsert creates or updates multiple papers in a single batch.
	// Papers are matched by canonical_id; on conflict the stored row is
	// merged field-by-field (missing fields are filled, citation counts
	// take the maximum, contributing sources accumulate).
	// Returns domain.ErrInvalidInput if any paper has no canonical ID.
	//
	// Return contract:
	//   - Returned papers are in the same order as the input slice.
	//   - Database-generated fields (ID, CreatedAt, UpdatedAt) are populated
	//     on all returned papers, reflecting the final database state.
	BulkUpsert(ctx context.Context, papers []*domain.Paper) ([]*domain.Paper, error)

	// GetByID retrieves a paper by its internal UUID.
	// Returns domain.ErrNotFound if no matching paper exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error)

	// GetByIDs retrieves multiple papers by their internal UUIDs.
	// Missing IDs are silently skipped; returns nil, nil for empty input.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Paper, error)

	// GetByCanonicalID retrieves a paper by its canonical identifier.
	// Returns domain.ErrNotFound if no matching paper exists.
	GetByCanonicalID(ctx context.Context, canonicalID string) (*domain.Paper, error)

	// List retrieves papers matching the filter criteria.
	// Returns the matching papers and total count for pagination.
	// The total count reflects all matching records regardless of limit/offset.
	List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, int64, error)

	// SearchKeyword performs a full-text search over paper titles and
	// abstracts, ranked by relevance. An empty category searches all
	// categories. Returns at most limit papers.
	SearchKeyword(ctx context.Context, query string, category domain.Category, limit int) ([]*domain.Paper, error)

	// ListUnembedded returns papers that have not yet been embedded,
	// oldest first, up to limit.
	ListUnembedded(ctx context.Context, limit int) ([]*domain.Paper, error)

	// MarkEmbedded flags the given papers as embedded.
	// IDs that do not exist are silently skipped.
	MarkEmbedded(ctx context.Context, ids []uuid.UUID) error

	// EmbeddingStats reports how many papers are stored and how many of
	// them have embeddings.
	EmbeddingStats(ctx context.Context) (*EmbeddingStats, error)
}

// EmbeddingStats summarizes enrichment progress over the paper corpus.
type EmbeddingStats struct {
	TotalPapers    int64 `json:"total_papers"`
	EmbeddedPapers int64 `json:"embedded_papers"`
	PendingPapers  int64 `json:"pending_papers"`
}

// PaperFilter specifies criteria for listing papers.
type PaperFilter struct {
	// Category filters to papers in a specific category (optional).
	Category *domain.Category

	// Source filters to papers that a specific source contributed to (optional).
	Source *domain.SourceType

	// IsEmbedded filters by embedding status (optional).
	// When nil, no filtering is applied.
	IsEmbedded *bool

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *PaperFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
