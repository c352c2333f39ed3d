package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/observability"
)

func newTestMerger(t *testing.T, namespace string) *Merger {
	t.Helper()
	return NewMerger(0, observability.NewMetrics(namespace))
}

func authors(names ...string) []domain.Author {
	out := make([]domain.Author, len(names))
	for i, n := range names {
		out[i] = domain.Author{Name: n}
	}
	return out
}

func TestMerger_Merge_IdentifierGrouping(t *testing.T) {
	m := newTestMerger(t, "test_merge_identifier")

	t.Run("records sharing a DOI become one paper", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{DOI: "10.1234/abc", ArXivID: "2403.00001"},
				Title:       "Attention Is All You Need",
				Authors:     authors("Ashish Vaswani"),
			},
			{
				Source:        domain.SourceTypeSemanticScholar,
				Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/abc", SemanticScholarID: "s2-1"},
				Title:         "Attention Is All You Need",
				Authors:       authors("Ashish Vaswani", "Noam Shazeer"),
				CitationCount: 90000,
			},
		}

		papers := m.Merge(records)
		require.Len(t, papers, 1)

		p := papers[0]
		assert.Equal(t, "10.1234/abc", p.Identifiers.DOI)
		assert.Equal(t, "2403.00001", p.Identifiers.ArXivID)
		assert.Equal(t, "s2-1", p.Identifiers.SemanticScholarID)
		assert.ElementsMatch(t,
			[]domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeSemanticScholar},
			p.Sources)
	})

	t.Run("DOI case differences do not split groups", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:      domain.SourceTypeOpenAlex,
				Identifiers: domain.PaperIdentifiers{DOI: "10.1234/MiXeD"},
				Title:       "A Paper",
			},
			{
				Source:      domain.SourceTypeSemanticScholar,
				Identifiers: domain.PaperIdentifiers{DOI: "10.1234/mixed"},
				Title:       "A Paper",
			},
		}

		papers := m.Merge(records)
		assert.Len(t, papers, 1)
	})

	t.Run("secondary identifier links records without a shared DOI", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.00002"},
				Title:       "Preprint Title",
			},
			{
				Source:      domain.SourceTypeSemanticScholar,
				Identifiers: domain.PaperIdentifiers{DOI: "10.5555/pub", ArXivID: "2403.00002"},
				Title:       "Published Title",
			},
			{
				Source:      domain.SourceTypeOpenAlex,
				Identifiers: domain.PaperIdentifiers{DOI: "10.5555/pub", OpenAlexID: "W123"},
				Title:       "Published Title",
			},
		}

		papers := m.Merge(records)
		require.Len(t, papers, 1)
		assert.Equal(t, "W123", papers[0].Identifiers.OpenAlexID)
	})

	t.Run("different identifiers stay separate papers", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.00003"},
				Title:       "Graph Neural Networks for Molecules",
				Authors:     authors("Alice Chen"),
			},
			{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.00004"},
				Title:       "Diffusion Models for Protein Design",
				Authors:     authors("Bob Park"),
			},
		}

		papers := m.Merge(records)
		assert.Len(t, papers, 2)
	})
}

func TestMerger_Merge_FuzzyFallback(t *testing.T) {
	m := newTestMerger(t, "test_merge_fuzzy")

	t.Run("identifier-less record joins by title and first author", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:      domain.SourceTypeSemanticScholar,
				Identifiers: domain.PaperIdentifiers{DOI: "10.1234/fuzzy"},
				Title:       "Deep Residual Learning for Image Recognition",
				Authors:     authors("Kaiming He", "Xiangyu Zhang"),
			},
			{
				Source:  domain.SourceTypeOpenAlex,
				Title:   "Deep Residual Learning for Image Recognition.",
				Authors: authors("Kaiming He"),
			},
		}

		papers := m.Merge(records)
		require.Len(t, papers, 1)
		assert.ElementsMatch(t,
			[]domain.SourceType{domain.SourceTypeSemanticScholar, domain.SourceTypeOpenAlex},
			papers[0].Sources)
	})

	t.Run("same title different first author stays separate", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:  domain.SourceTypeArXiv,
				Title:   "A Survey of Reinforcement Learning",
				Authors: authors("Carol White"),
			},
			{
				Source:  domain.SourceTypeOpenAlex,
				Title:   "A Survey of Reinforcement Learning",
				Authors: authors("Dan Brown"),
			},
		}

		papers := m.Merge(records)
		assert.Len(t, papers, 2)
	})

	t.Run("dissimilar titles stay separate", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:  domain.SourceTypeArXiv,
				Title:   "Quantum Error Correction Codes",
				Authors: authors("Eve Adams"),
			},
			{
				Source:  domain.SourceTypeOpenAlex,
				Title:   "Classical Coding Theory",
				Authors: authors("Eve Adams"),
			},
		}

		papers := m.Merge(records)
		assert.Len(t, papers, 2)
	})
}

func TestMerger_Merge_RichestWins(t *testing.T) {
	m := newTestMerger(t, "test_merge_richest")

	pubDate := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("trusted source wins conflicting fields, gaps filled from others", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:      domain.SourceTypeOpenAlex,
				Identifiers: domain.PaperIdentifiers{DOI: "10.1234/rich"},
				Title:       "openalex title",
				Abstract:    "An abstract only OpenAlex has.",
				Venue:       "NeurIPS",
				Authors:     authors("Jane Doe", "John Roe", "Jim Poe"),
			},
			{
				Source:          domain.SourceTypeArXiv,
				Identifiers:     domain.PaperIdentifiers{DOI: "10.1234/rich", ArXivID: "2306.00001"},
				Title:           "ArXiv Title",
				PublicationDate: &pubDate,
				PDFURL:          "https://arxiv.org/pdf/2306.00001",
				Authors:         authors("Jane Doe"),
				Category:        domain.CategoryAICS,
			},
		}

		papers := m.Merge(records)
		require.Len(t, papers, 1)

		p := papers[0]
		assert.Equal(t, "ArXiv Title", p.Title)
		assert.Equal(t, "An abstract only OpenAlex has.", p.Abstract)
		assert.Equal(t, "NeurIPS", p.Venue)
		assert.Equal(t, "https://arxiv.org/pdf/2306.00001", p.PDFURL)
		assert.Equal(t, &pubDate, p.PublicationDate)
		assert.Equal(t, domain.CategoryAICS, p.Category)
		assert.Len(t, p.Authors, 3)
	})

	t.Run("citation count comes from the most trusted source reporting one", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:        domain.SourceTypeArXiv,
				Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/cites"},
				Title:         "Cited Paper",
				CitationCount: 0,
			},
			{
				Source:        domain.SourceTypeSemanticScholar,
				Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/cites"},
				Title:         "Cited Paper",
				CitationCount: 512,
			},
			{
				Source:        domain.SourceTypeOpenAlex,
				Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/cites"},
				Title:         "Cited Paper",
				CitationCount: 498,
			},
		}

		papers := m.Merge(records)
		require.Len(t, papers, 1)
		assert.Equal(t, 512, papers[0].CitationCount)
	})

	t.Run("local record keeps its id and embedding state", func(t *testing.T) {
		localID := uuid.New()
		records := []*domain.RawRecord{
			{
				Source:        domain.SourceTypeSemanticScholar,
				Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/local"},
				Title:         "Already Stored",
				CitationCount: 10,
			},
			{
				Source:      domain.SourceTypeLocal,
				PaperID:     localID,
				IsEmbedded:  true,
				Identifiers: domain.PaperIdentifiers{DOI: "10.1234/local"},
				Title:       "Already Stored",
			},
		}

		papers := m.Merge(records)
		require.Len(t, papers, 1)
		assert.Equal(t, localID, papers[0].ID)
		assert.True(t, papers[0].IsEmbedded)
		assert.True(t, papers[0].IsPersisted())
		assert.Equal(t, 10, papers[0].CitationCount)
	})

	t.Run("canonical id follows merged identifiers", func(t *testing.T) {
		records := []*domain.RawRecord{
			{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.00005"},
				Title:       "Canonical Test",
			},
			{
				Source:      domain.SourceTypeOpenAlex,
				Identifiers: domain.PaperIdentifiers{DOI: "10.1234/Canon", ArXivID: "2403.00005"},
				Title:       "Canonical Test",
			},
		}

		papers := m.Merge(records)
		require.Len(t, papers, 1)
		assert.Equal(t, "doi:10.1234/canon", papers[0].CanonicalID)
	})

	t.Run("nil records are skipped", func(t *testing.T) {
		records := []*domain.RawRecord{
			nil,
			{
				Source:      domain.SourceTypeArXiv,
				Identifiers: domain.PaperIdentifiers{ArXivID: "2403.00006"},
				Title:       "Survivor",
			},
			nil,
		}

		papers := m.Merge(records)
		assert.Len(t, papers, 1)
	})
}

func TestSortPapers(t *testing.T) {
	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	papers := []*domain.Paper{
		{CanonicalID: "doi:b", CitationCount: 5},
		{CanonicalID: "doi:a", CitationCount: 5},
		{CanonicalID: "doi:c", CitationCount: 100},
		{CanonicalID: "doi:d", CitationCount: 5, PublicationDate: &older},
		{CanonicalID: "doi:e", CitationCount: 5, PublicationDate: &newer},
	}

	SortPapers(papers)

	got := make([]string, len(papers))
	for i, p := range papers {
		got[i] = p.CanonicalID
	}

	// Citations first, then newest date, dated before undated, canonical id last.
	assert.Equal(t, []string{"doi:c", "doi:e", "doi:d", "doi:a", "doi:b"}, got)
}
