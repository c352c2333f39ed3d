package httpserver

import (
	"time"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/engine"
)

// Response types for JSON serialization.

type paperResponse struct {
	ID              string           `json:"id"`
	CanonicalID     string           `json:"canonical_id,omitempty"`
	DOI             string           `json:"doi,omitempty"`
	ArXivID         string           `json:"arxiv_id,omitempty"`
	Title           string           `json:"title"`
	Abstract        string           `json:"abstract,omitempty"`
	Authors         []authorResponse `json:"authors,omitempty"`
	PublicationDate *time.Time       `json:"publication_date,omitempty"`
	Venue           string           `json:"venue,omitempty"`
	Category        string           `json:"category"`
	CitationCount   int              `json:"citation_count"`
	PdfURL          string           `json:"pdf_url,omitempty"`
	IsEmbedded      bool             `json:"is_embedded"`
	Sources         []string         `json:"sources,omitempty"`
}

type authorResponse struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

type searchMetadataResponse struct {
	SearchTimeMS     int64    `json:"search_time_ms"`
	CacheHit         bool     `json:"cache_hit"`
	SourcesUsed      []string `json:"sources_used"`
	SourcesFailed    []string `json:"sources_failed,omitempty"`
	AllSourcesFailed bool     `json:"all_sources_failed,omitempty"`
}

type searchResponse struct {
	Papers   []paperResponse        `json:"papers"`
	Total    int                    `json:"total"`
	Metadata searchMetadataResponse `json:"metadata"`
}

type listPapersResponse struct {
	Papers        []paperResponse `json:"papers"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	TotalCount    int             `json:"total_count"`
}

type embeddingStatsResponse struct {
	TotalPapers    int64 `json:"total_papers"`
	EmbeddedPapers int64 `json:"embedded_papers"`
	PendingPapers  int64 `json:"pending_papers"`
}

// Converter functions

func domainPaperToResponse(p *domain.Paper) paperResponse {
	authors := make([]authorResponse, len(p.Authors))
	for i, a := range p.Authors {
		authors[i] = authorResponse{
			Name:        a.Name,
			Affiliation: a.Affiliation,
			ORCID:       a.ORCID,
		}
	}

	sources := make([]string, len(p.Sources))
	for i, s := range p.Sources {
		sources[i] = string(s)
	}

	return paperResponse{
		ID:              p.ID.String(),
		CanonicalID:     p.CanonicalID,
		DOI:             p.Identifiers.DOI,
		ArXivID:         p.Identifiers.ArXivID,
		Title:           p.Title,
		Abstract:        p.Abstract,
		Authors:         authors,
		PublicationDate: p.PublicationDate,
		Venue:           p.Venue,
		Category:        string(p.Category),
		CitationCount:   p.CitationCount,
		PdfURL:          p.PDFURL,
		IsEmbedded:      p.IsEmbedded,
		Sources:         sources,
	}
}

func engineResponseToSearchResponse(resp *engine.SearchResponse) searchResponse {
	papers := make([]paperResponse, len(resp.Papers))
	for i, p := range resp.Papers {
		papers[i] = domainPaperToResponse(p)
	}

	return searchResponse{
		Papers: papers,
		Total:  resp.Total,
		Metadata: searchMetadataResponse{
			SearchTimeMS:     resp.Metadata.SearchTimeMS,
			CacheHit:         resp.Metadata.CacheHit,
			SourcesUsed:      sourceTypeStrings(resp.Metadata.SourcesUsed),
			SourcesFailed:    sourceTypeStrings(resp.Metadata.SourcesFailed),
			AllSourcesFailed: resp.Metadata.AllSourcesFailed,
		},
	}
}

func sourceTypeStrings(types []domain.SourceType) []string {
	if types == nil {
		return []string{}
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
