// Package sources provides interfaces and types for academic paper source clients.
//
// This package defines the foundational abstractions that all paper source
// implementations must follow. Each external provider (arXiv, Semantic Scholar,
// OpenAlex) implements the Source interface, allowing the search engine to fan
// out to multiple sources concurrently with a unified API.
//
// Example usage:
//
//	source := semanticscholar.New(cfg, httpClient)
//	params := sources.SearchParams{
//		Query:      "CRISPR gene editing",
//		Category:   domain.CategoryBiomed,
//		MaxResults: 100,
//	}
//	result, err := source.Search(ctx, params)
package sources

import (
	"context"
	"time"

	"github.com/paperscope/discovery-service/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
// All fields except Query are optional and support filtering the search results.
type SearchParams struct {
	// Query is the search query string (required).
	// The format may vary by source - some support boolean operators
	// or field-specific searches.
	Query string

	// Category scopes the search to a research category. Sources translate
	// the category to their own subject filters where supported; sources
	// without subject filtering may ignore it.
	Category domain.Category

	// DateFrom filters papers published on or after this date.
	// If nil, no lower date bound is applied.
	DateFrom *time.Time

	// DateTo filters papers published on or before this date.
	// If nil, no upper date bound is applied.
	DateTo *time.Time

	// MaxResults limits the number of records returned in a single request.
	// Sources may have their own maximum limits that override this value.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// Offset specifies the starting position for paginated results.
	// Used in conjunction with MaxResults for pagination.
	Offset int
}

// SearchResult contains the results from a paper source search operation.
type SearchResult struct {
	// Records contains the raw records returned by the search, before
	// deduplication and merging. May be empty if nothing matched.
	Records []*domain.RawRecord

	// TotalResults is the total number of papers matching the query,
	// regardless of pagination limits. This value is provided by the
	// source API and may be an estimate for large result sets.
	TotalResults int

	// HasMore indicates whether additional results are available
	// beyond the current page.
	HasMore bool

	// NextOffset is the offset value to use for fetching the next page
	// of results. Only meaningful when HasMore is true.
	NextOffset int

	// Source identifies which paper source provided these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search,
	// including network latency and response parsing.
	SearchDuration time.Duration
}

// Source defines the interface that all paper source clients must implement.
// Each external provider (arXiv, Semantic Scholar, OpenAlex) provides its own
// implementation of this interface.
type Source interface {
	// Search queries the paper source for papers matching the given parameters.
	// Returns a SearchResult containing the matching records and pagination info.
	// The context should be used for cancellation and deadline propagation.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.RawRecord
	//   - Include appropriate error wrapping with source context
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// GetByID retrieves a specific paper by its source-specific identifier.
	// Returns the record if found, or an error if not found or on failure.
	// The id format is source-specific (e.g., DOI, arXiv id).
	//
	// Returns domain.ErrNotFound if the paper does not exist.
	GetByID(ctx context.Context, id string) (*domain.RawRecord, error)

	// SourceType returns the type identifier for this paper source.
	// Used for attribution, deduplication, and routing.
	SourceType() domain.SourceType

	// Name returns a human-readable name for this paper source.
	// Used for logging, metrics, and display purposes.
	Name() string

	// IsEnabled returns whether this paper source is currently enabled
	// and available for searches. A source may be disabled due to
	// configuration or missing API keys.
	IsEnabled() bool
}
