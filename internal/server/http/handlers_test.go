package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/engine"
	"github.com/paperscope/discovery-service/internal/repository"
)

// fakeSearchService records the last request and returns a canned response.
type fakeSearchService struct {
	lastReq engine.SearchRequest
	resp    *engine.SearchResponse
	err     error
}

func (f *fakeSearchService) Search(_ context.Context, req engine.SearchRequest) (*engine.SearchResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// fakePaperRepo is a canned repository.PaperRepository.
type fakePaperRepo struct {
	papers     []*domain.Paper
	total      int64
	paper      *domain.Paper
	stats      repository.EmbeddingStats
	err        error
	lastFilter repository.PaperFilter
}

func (f *fakePaperRepo) BulkUpsert(_ context.Context, papers []*domain.Paper) ([]*domain.Paper, error) {
	return papers, f.err
}

func (f *fakePaperRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Paper, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.paper == nil || f.paper.ID != id {
		return nil, domain.NewNotFoundError("paper", id.String())
	}
	return f.paper, nil
}

func (f *fakePaperRepo) GetByIDs(_ context.Context, _ []uuid.UUID) ([]*domain.Paper, error) {
	return f.papers, f.err
}

func (f *fakePaperRepo) GetByCanonicalID(_ context.Context, _ string) (*domain.Paper, error) {
	return f.paper, f.err
}

func (f *fakePaperRepo) List(_ context.Context, filter repository.PaperFilter) ([]*domain.Paper, int64, error) {
	f.lastFilter = filter
	return f.papers, f.total, f.err
}

func (f *fakePaperRepo) SearchKeyword(_ context.Context, _ string, _ domain.Category, _ int) ([]*domain.Paper, error) {
	return f.papers, f.err
}

func (f *fakePaperRepo) ListUnembedded(_ context.Context, _ int) ([]*domain.Paper, error) {
	return f.papers, f.err
}

func (f *fakePaperRepo) MarkEmbedded(_ context.Context, _ []uuid.UUID) error {
	return f.err
}

func (f *fakePaperRepo) EmbeddingStats(_ context.Context) (*repository.EmbeddingStats, error) {
	return &f.stats, f.err
}

func newTestServer(search SearchService, repo repository.PaperRepository) *Server {
	return NewServer(Config{Address: "127.0.0.1:0"}, search, repo, nil, nil, zerolog.Nop())
}

func testPaper() *domain.Paper {
	pubDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Paper{
		ID:          uuid.New(),
		CanonicalID: "doi:10.1234/test",
		Identifiers: domain.PaperIdentifiers{DOI: "10.1234/test", ArXivID: "2403.00001"},
		Title:       "A Test Paper",
		Abstract:    "An abstract.",
		Authors: []domain.Author{
			{Name: "Jane Doe", Affiliation: "Test University"},
		},
		PublicationDate: &pubDate,
		Venue:           "Test Conference",
		Category:        domain.CategoryAICS,
		CitationCount:   17,
		Sources:         []domain.SourceType{domain.SourceTypeArXiv},
	}
}

func doSearch(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestSearchPapers(t *testing.T) {
	t.Run("returns the merged result set", func(t *testing.T) {
		paper := testPaper()
		search := &fakeSearchService{resp: &engine.SearchResponse{
			Papers: []*domain.Paper{paper},
			Total:  1,
			Metadata: engine.SearchMetadata{
				SearchTimeMS: 120,
				SourcesUsed:  []domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeLocal},
			},
		}}
		srv := newTestServer(search, &fakePaperRepo{})

		rec := doSearch(t, srv, `{"query":"test paper","category":"ai_cs","mode":"quick","limit":10}`)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, engine.SearchRequest{
			Query:    "test paper",
			Category: domain.CategoryAICS,
			Mode:     domain.SearchModeQuick,
			Limit:    10,
		}, search.lastReq)

		var resp searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Papers, 1)
		assert.Equal(t, paper.ID.String(), resp.Papers[0].ID)
		assert.Equal(t, "10.1234/test", resp.Papers[0].DOI)
		assert.Equal(t, 1, resp.Total)
		assert.Equal(t, []string{"arxiv", "local"}, resp.Metadata.SourcesUsed)
		assert.False(t, resp.Metadata.AllSourcesFailed)
	})

	t.Run("all sources failed is a 200 with the flag set", func(t *testing.T) {
		search := &fakeSearchService{resp: &engine.SearchResponse{
			Papers: []*domain.Paper{},
			Metadata: engine.SearchMetadata{
				SourcesFailed:    []domain.SourceType{domain.SourceTypeArXiv},
				AllSourcesFailed: true,
			},
		}}
		srv := newTestServer(search, &fakePaperRepo{})

		rec := doSearch(t, srv, `{"query":"anything"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Papers)
		assert.True(t, resp.Metadata.AllSourcesFailed)
		assert.Equal(t, []string{"arxiv"}, resp.Metadata.SourcesFailed)
	})

	t.Run("validation failures", func(t *testing.T) {
		srv := newTestServer(&fakeSearchService{}, &fakePaperRepo{})

		tests := []struct {
			name string
			body string
			want string
		}{
			{"missing query", `{}`, "Query is required"},
			{"query too short", `{"query":"x"}`, "Query must be at least 2"},
			{"unknown category", `{"query":"ok query","category":"astrology"}`, "Category must be one of"},
			{"unknown mode", `{"query":"ok query","mode":"turbo"}`, "Mode must be one of"},
			{"limit too large", `{"query":"ok query","limit":500}`, "Limit must be at most 100"},
			{"invalid json", `{"query":`, "invalid JSON"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := doSearch(t, srv, tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, rec.Body.String(), tt.want)
			})
		}
	})

	t.Run("service validation error maps to 400", func(t *testing.T) {
		search := &fakeSearchService{err: domain.NewValidationError("query", "must be at least 2 characters")}
		srv := newTestServer(search, &fakePaperRepo{})

		rec := doSearch(t, srv, `{"query":"ok query"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unexpected service error maps to 500 without details", func(t *testing.T) {
		search := &fakeSearchService{err: assert.AnError}
		srv := newTestServer(search, &fakePaperRepo{})

		rec := doSearch(t, srv, `{"query":"ok query"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})

	t.Run("request id header is set", func(t *testing.T) {
		search := &fakeSearchService{resp: &engine.SearchResponse{Papers: []*domain.Paper{}}}
		srv := newTestServer(search, &fakePaperRepo{})

		rec := doSearch(t, srv, `{"query":"ok query"}`)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})
}

func TestGetPaper(t *testing.T) {
	t.Run("returns the paper", func(t *testing.T) {
		paper := testPaper()
		srv := newTestServer(&fakeSearchService{}, &fakePaperRepo{paper: paper})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/"+paper.ID.String(), nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp paperResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, paper.Title, resp.Title)
		assert.Equal(t, "ai_cs", resp.Category)
	})

	t.Run("invalid uuid is a 400", func(t *testing.T) {
		srv := newTestServer(&fakeSearchService{}, &fakePaperRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "paper_id must be a valid UUID")
	})

	t.Run("unknown paper is a 404", func(t *testing.T) {
		srv := newTestServer(&fakeSearchService{}, &fakePaperRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListPapers(t *testing.T) {
	t.Run("applies filters and pagination", func(t *testing.T) {
		repo := &fakePaperRepo{papers: []*domain.Paper{testPaper()}, total: 120}
		srv := newTestServer(&fakeSearchService{}, repo)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/papers?category=biomed&embedded=true&page_size=10", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		require.NotNil(t, repo.lastFilter.Category)
		assert.Equal(t, domain.CategoryBiomed, *repo.lastFilter.Category)
		require.NotNil(t, repo.lastFilter.IsEmbedded)
		assert.True(t, *repo.lastFilter.IsEmbedded)
		assert.Equal(t, 10, repo.lastFilter.Limit)

		var resp listPapersResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 120, resp.TotalCount)
		assert.NotEmpty(t, resp.NextPageToken)
	})

	t.Run("unknown category is a 400", func(t *testing.T) {
		srv := newTestServer(&fakeSearchService{}, &fakePaperRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/papers?category=astrology", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed embedded flag is a 400", func(t *testing.T) {
		srv := newTestServer(&fakeSearchService{}, &fakePaperRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/papers?embedded=maybe", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no more results omits the page token", func(t *testing.T) {
		repo := &fakePaperRepo{papers: []*domain.Paper{testPaper()}, total: 1}
		srv := newTestServer(&fakeSearchService{}, repo)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/papers", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		var resp listPapersResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.NextPageToken)
	})
}

func TestGetEmbeddingStats(t *testing.T) {
	repo := &fakePaperRepo{stats: repository.EmbeddingStats{
		TotalPapers:    100,
		EmbeddedPapers: 80,
		PendingPapers:  20,
	}}
	srv := newTestServer(&fakeSearchService{}, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/embeddings/stats", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp embeddingStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp.TotalPapers)
	assert.Equal(t, int64(80), resp.EmbeddedPapers)
	assert.Equal(t, int64(20), resp.PendingPapers)
}
