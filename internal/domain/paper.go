package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaperIdentifiers holds all possible identifiers for an academic paper.
type PaperIdentifiers struct {
	DOI               string `json:"doi,omitempty"`
	ArXivID           string `json:"arxiv_id,omitempty"`
	SemanticScholarID string `json:"semantic_scholar_id,omitempty"`
	OpenAlexID        string `json:"openalex_id,omitempty"`
}

// IsEmpty returns true if no identifier is set.
func (ids PaperIdentifiers) IsEmpty() bool {
	return GenerateCanonicalID(ids) == ""
}

// GenerateCanonicalID generates a canonical identifier from paper identifiers.
// Priority order: DOI > ArXiv > SemanticScholar > OpenAlex.
// Returns empty string if no identifiers are available.
func GenerateCanonicalID(ids PaperIdentifiers) string {
	// Check DOI first (highest priority)
	if doi := strings.TrimSpace(ids.DOI); doi != "" {
		// Normalize DOI to lowercase
		return "doi:" + strings.ToLower(doi)
	}

	// ArXiv ID
	if arxiv := strings.TrimSpace(ids.ArXivID); arxiv != "" {
		return "arxiv:" + arxiv
	}

	// Semantic Scholar ID
	if s2 := strings.TrimSpace(ids.SemanticScholarID); s2 != "" {
		return "s2:" + s2
	}

	// OpenAlex ID (lowest priority)
	if openalex := strings.TrimSpace(ids.OpenAlexID); openalex != "" {
		return "openalex:" + openalex
	}

	// No identifier available
	return ""
}

// MergeIdentifiers combines two identifier sets, preferring values from a.
func MergeIdentifiers(a, b PaperIdentifiers) PaperIdentifiers {
	out := a
	if out.DOI == "" {
		out.DOI = b.DOI
	}
	if out.ArXivID == "" {
		out.ArXivID = b.ArXivID
	}
	if out.SemanticScholarID == "" {
		out.SemanticScholarID = b.SemanticScholarID
	}
	if out.OpenAlexID == "" {
		out.OpenAlexID = b.OpenAlexID
	}
	return out
}

// Author represents a paper author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// Paper represents a deduplicated academic paper in the central store.
type Paper struct {
	ID              uuid.UUID              `json:"id"`
	CanonicalID     string                 `json:"canonical_id"`
	Identifiers     PaperIdentifiers       `json:"identifiers"`
	Title           string                 `json:"title"`
	Abstract        string                 `json:"abstract,omitempty"`
	Authors         []Author               `json:"authors,omitempty"`
	PublicationDate *time.Time             `json:"publication_date,omitempty"`
	Venue           string                 `json:"venue,omitempty"`
	Category        Category               `json:"category"`
	CitationCount   int                    `json:"citation_count"`
	PDFURL          string                 `json:"pdf_url,omitempty"`
	IsEmbedded      bool                   `json:"is_embedded"`
	Sources         []SourceType           `json:"sources,omitempty"`
	RawMetadata     map[string]interface{} `json:"-"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// HasIdentifier returns true if the paper has at least one identifier.
func (p *Paper) HasIdentifier() bool {
	return p.CanonicalID != ""
}

// IsPersisted returns true if the paper has been assigned a surrogate id.
func (p *Paper) IsPersisted() bool {
	return p.ID != uuid.Nil
}

// HasSource reports whether the given source contributed to this paper.
func (p *Paper) HasSource(s SourceType) bool {
	for _, src := range p.Sources {
		if src == s {
			return true
		}
	}
	return false
}

// AddSource records a contributing source, ignoring duplicates.
func (p *Paper) AddSource(s SourceType) {
	if !p.HasSource(s) {
		p.Sources = append(p.Sources, s)
	}
}

// RawRecord is a single paper record as returned by one source, before
// deduplication and merging. Records from the local store carry the
// surrogate PaperID; external records do not.
type RawRecord struct {
	Source          SourceType
	SourceID        string
	PaperID         uuid.UUID
	Identifiers     PaperIdentifiers
	Title           string
	Abstract        string
	Authors         []Author
	PublicationDate *time.Time
	Venue           string
	Category        Category
	CitationCount   int
	PDFURL          string
	IsEmbedded      bool
	RawMetadata     map[string]interface{}
}

// CanonicalID returns the canonical identifier for the record, or empty
// if the record carries no strong identifier.
func (r *RawRecord) CanonicalID() string {
	return GenerateCanonicalID(r.Identifiers)
}

// FromLocal returns true if the record came from the local store.
func (r *RawRecord) FromLocal() bool {
	return r.Source == SourceTypeLocal
}

// RecordFromPaper converts a persisted paper into a raw record so it can
// flow through the same merge pipeline as external results.
func RecordFromPaper(p *Paper) *RawRecord {
	return &RawRecord{
		Source:          SourceTypeLocal,
		SourceID:        p.CanonicalID,
		PaperID:         p.ID,
		Identifiers:     p.Identifiers,
		Title:           p.Title,
		Abstract:        p.Abstract,
		Authors:         p.Authors,
		PublicationDate: p.PublicationDate,
		Venue:           p.Venue,
		Category:        p.Category,
		CitationCount:   p.CitationCount,
		PDFURL:          p.PDFURL,
		IsEmbedded:      p.IsEmbedded,
		RawMetadata:     p.RawMetadata,
	}
}
