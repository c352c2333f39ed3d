//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/repository"
)

func TestPgPaperRepository_Integration(t *testing.T) {
	cleanTable(t, "papers")
	repo := repository.NewPgPaperRepository(testPool)
	ctx := context.Background()

	t.Run("BulkUpsert and GetByCanonicalID roundtrip", func(t *testing.T) {
		pubDate := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
		paper := &domain.Paper{
			CanonicalID: "doi:10.1234/integration-roundtrip",
			Identifiers: domain.PaperIdentifiers{DOI: "10.1234/integration-roundtrip"},
			Title:       "Integration Roundtrip Paper",
			Abstract:    "An abstract for the roundtrip test.",
			Authors: []domain.Author{
				{Name: "Ada Lovelace", Affiliation: "Analytical Engine Lab"},
			},
			PublicationDate: &pubDate,
			Venue:           "Journal of Integration Testing",
			Category:        domain.CategoryAICS,
			CitationCount:   7,
			Sources:         []domain.SourceType{domain.SourceTypeArXiv},
		}

		result, err := repo.BulkUpsert(ctx, []*domain.Paper{paper})
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.NotEqual(t, uuid.Nil, result[0].ID)
		assert.False(t, result[0].CreatedAt.IsZero())

		got, err := repo.GetByCanonicalID(ctx, "doi:10.1234/integration-roundtrip")
		require.NoError(t, err)
		assert.Equal(t, result[0].ID, got.ID)
		assert.Equal(t, "Integration Roundtrip Paper", got.Title)
		assert.Equal(t, "10.1234/integration-roundtrip", got.Identifiers.DOI)
		assert.Equal(t, domain.CategoryAICS, got.Category)
		assert.Equal(t, 7, got.CitationCount)
		require.Len(t, got.Authors, 1)
		assert.Equal(t, "Ada Lovelace", got.Authors[0].Name)
	})

	t.Run("BulkUpsert merges on canonical ID conflict", func(t *testing.T) {
		first := &domain.Paper{
			CanonicalID:   "doi:10.1234/integration-merge",
			Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/integration-merge"},
			Title:         "Merge Target",
			CitationCount: 10,
			Sources:       []domain.SourceType{domain.SourceTypeArXiv},
		}
		result, err := repo.BulkUpsert(ctx, []*domain.Paper{first})
		require.NoError(t, err)
		firstID := result[0].ID

		// Same canonical ID from another source: abstract fills in, citation
		// count takes the maximum, sources accumulate, ID is stable.
		second := &domain.Paper{
			CanonicalID:   "doi:10.1234/integration-merge",
			Identifiers:   domain.PaperIdentifiers{DOI: "10.1234/integration-merge", OpenAlexID: "W42"},
			Title:         "Merge Target",
			Abstract:      "Filled in on the second pass.",
			CitationCount: 5,
			Sources:       []domain.SourceType{domain.SourceTypeOpenAlex},
		}
		result2, err := repo.BulkUpsert(ctx, []*domain.Paper{second})
		require.NoError(t, err)
		assert.Equal(t, firstID, result2[0].ID, "upsert should keep the stored ID")

		got, err := repo.GetByCanonicalID(ctx, "doi:10.1234/integration-merge")
		require.NoError(t, err)
		assert.Equal(t, "Filled in on the second pass.", got.Abstract)
		assert.Equal(t, 10, got.CitationCount, "should keep the greater citation count")
		assert.Contains(t, got.Sources, domain.SourceTypeArXiv)
		assert.Contains(t, got.Sources, domain.SourceTypeOpenAlex)
	})

	t.Run("BulkUpsert idempotency", func(t *testing.T) {
		papers := []*domain.Paper{
			{CanonicalID: "arxiv:2301.00001", Identifiers: domain.PaperIdentifiers{ArXivID: "2301.00001"}, Title: "Idempotent One"},
			{CanonicalID: "arxiv:2301.00002", Identifiers: domain.PaperIdentifiers{ArXivID: "2301.00002"}, Title: "Idempotent Two"},
		}

		result, err := repo.BulkUpsert(ctx, papers)
		require.NoError(t, err)
		require.Len(t, result, 2)
		firstIDs := []uuid.UUID{result[0].ID, result[1].ID}

		result2, err := repo.BulkUpsert(ctx, papers)
		require.NoError(t, err)
		require.Len(t, result2, 2)
		assert.Equal(t, firstIDs[0], result2[0].ID)
		assert.Equal(t, firstIDs[1], result2[1].ID)
	})

	t.Run("BulkUpsert empty slice returns empty", func(t *testing.T) {
		result, err := repo.BulkUpsert(ctx, []*domain.Paper{})
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("BulkUpsert rejects paper without canonical ID", func(t *testing.T) {
		_, err := repo.BulkUpsert(ctx, []*domain.Paper{{Title: "No Identifier"}})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("GetByID nonexistent returns not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("GetByIDs returns matching papers", func(t *testing.T) {
		papers := []*domain.Paper{
			{CanonicalID: "doi:10.1234/getbyids-1", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/getbyids-1"}, Title: "Batch Get One"},
			{CanonicalID: "doi:10.1234/getbyids-2", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/getbyids-2"}, Title: "Batch Get Two"},
		}
		result, err := repo.BulkUpsert(ctx, papers)
		require.NoError(t, err)

		got, err := repo.GetByIDs(ctx, []uuid.UUID{result[0].ID, result[1].ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, got, 2, "unknown IDs are silently skipped")
	})

	t.Run("List with filters", func(t *testing.T) {
		cleanTable(t, "papers")

		papers := []*domain.Paper{
			{CanonicalID: "doi:10.1234/list-ai", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/list-ai"}, Title: "AI Paper", Category: domain.CategoryAICS, Sources: []domain.SourceType{domain.SourceTypeArXiv}},
			{CanonicalID: "doi:10.1234/list-bio", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/list-bio"}, Title: "Bio Paper", Category: domain.CategoryBiomed, Sources: []domain.SourceType{domain.SourceTypeOpenAlex}},
		}
		_, err := repo.BulkUpsert(ctx, papers)
		require.NoError(t, err)

		category := domain.CategoryAICS
		got, total, err := repo.List(ctx, repository.PaperFilter{Category: &category, Limit: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, got, 1)
		assert.Equal(t, "AI Paper", got[0].Title)

		source := domain.SourceTypeOpenAlex
		got, total, err = repo.List(ctx, repository.PaperFilter{Source: &source, Limit: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, got, 1)
		assert.Equal(t, "Bio Paper", got[0].Title)
	})

	t.Run("SearchKeyword full-text search", func(t *testing.T) {
		cleanTable(t, "papers")

		papers := []*domain.Paper{
			{CanonicalID: "doi:10.1234/fts-1", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/fts-1"}, Title: "Attention Is All You Need", Abstract: "Transformer architectures for sequence transduction.", Category: domain.CategoryAICS},
			{CanonicalID: "doi:10.1234/fts-2", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/fts-2"}, Title: "Protein Structure Prediction", Abstract: "Deep learning applied to folding.", Category: domain.CategoryBiomed},
		}
		_, err := repo.BulkUpsert(ctx, papers)
		require.NoError(t, err)

		got, err := repo.SearchKeyword(ctx, "transformer sequence", domain.CategoryGeneral, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Attention Is All You Need", got[0].Title)

		// Category filter excludes the AI paper.
		got, err = repo.SearchKeyword(ctx, "deep learning", domain.CategoryBiomed, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Protein Structure Prediction", got[0].Title)
	})

	t.Run("ListUnembedded and MarkEmbedded", func(t *testing.T) {
		cleanTable(t, "papers")

		papers := []*domain.Paper{
			{CanonicalID: "doi:10.1234/embed-1", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/embed-1"}, Title: "Pending Embedding"},
			{CanonicalID: "doi:10.1234/embed-2", Identifiers: domain.PaperIdentifiers{DOI: "10.1234/embed-2"}, Title: "Also Pending"},
		}
		result, err := repo.BulkUpsert(ctx, papers)
		require.NoError(t, err)

		pending, err := repo.ListUnembedded(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		require.NoError(t, repo.MarkEmbedded(ctx, []uuid.UUID{result[0].ID}))

		pending, err = repo.ListUnembedded(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, result[1].ID, pending[0].ID)

		stats, err := repo.EmbeddingStats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, stats.TotalPapers)
		assert.EqualValues(t, 1, stats.EmbeddedPapers)
		assert.EqualValues(t, 1, stats.PendingPapers)
	})
}
