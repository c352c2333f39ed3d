// Package domain provides domain models and business logic for the Paper Discovery Service.
package domain

// SourceType represents the source that provided paper data.
// These values must match the database enum source_type.
type SourceType string

const (
	SourceTypeLocal           SourceType = "local"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
)

// TrustRank returns the merge trust priority for a source. Lower is more
// trusted. When two sources disagree on a field, the more trusted source wins.
func (s SourceType) TrustRank() int {
	switch s {
	case SourceTypeLocal:
		return 0
	case SourceTypeSemanticScholar:
		return 1
	case SourceTypeArXiv:
		return 2
	case SourceTypeOpenAlex:
		return 3
	default:
		return 100
	}
}

// IdentifierType represents the type of academic paper identifier.
type IdentifierType string

const (
	IdentifierTypeDOI               IdentifierType = "doi"
	IdentifierTypeArXivID           IdentifierType = "arxiv_id"
	IdentifierTypeSemanticScholarID IdentifierType = "semantic_scholar_id"
	IdentifierTypeOpenAlexID        IdentifierType = "openalex_id"
)

// Category represents the research category a search is scoped to.
// These values must match the database enum paper_category.
type Category string

const (
	CategoryAICS           Category = "ai_cs"
	CategoryBiomed         Category = "biomed"
	CategoryPhysics        Category = "physics"
	CategoryMath           Category = "math"
	CategorySocialSciences Category = "social_sciences"
	CategoryGeneral        Category = "general"
)

// AllCategories lists every valid category in a stable order.
var AllCategories = []Category{
	CategoryAICS,
	CategoryBiomed,
	CategoryPhysics,
	CategoryMath,
	CategorySocialSciences,
	CategoryGeneral,
}

// IsValid returns true if the category is one of the known values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryAICS, CategoryBiomed, CategoryPhysics, CategoryMath,
		CategorySocialSciences, CategoryGeneral:
		return true
	default:
		return false
	}
}

// SearchMode selects how the local index participates in a search.
type SearchMode string

const (
	// SearchModeAuto runs the full hybrid index (keyword + vector).
	SearchModeAuto SearchMode = "auto"
	// SearchModeQuick skips the vector sub-query for lower latency.
	SearchModeQuick SearchMode = "quick"
	// SearchModeAI forces the full hybrid index.
	SearchModeAI SearchMode = "ai"
)

// IsValid returns true if the mode is one of the known values.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeAuto, SearchModeQuick, SearchModeAI:
		return true
	default:
		return false
	}
}

// EmbeddingStatus represents the enrichment state of a paper.
type EmbeddingStatus string

const (
	EmbeddingStatusUnembedded EmbeddingStatus = "unembedded"
	EmbeddingStatusQueued     EmbeddingStatus = "queued"
	EmbeddingStatusEmbedding  EmbeddingStatus = "embedding"
	EmbeddingStatusEmbedded   EmbeddingStatus = "embedded"
	EmbeddingStatusFailed     EmbeddingStatus = "failed"
)
