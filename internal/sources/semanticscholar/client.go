package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests (100 req/5 min).
	// With an API key, this can be increased.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum number of results per request.
	DefaultMaxResults = 100

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,title,abstract,year,publicationDate,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf,fieldsOfStudy"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// categoryFields maps research categories to Semantic Scholar fieldsOfStudy
// filter values. CategoryGeneral has no entry so general searches are unfiltered.
var categoryFields = map[domain.Category]string{
	domain.CategoryAICS:           "Computer Science",
	domain.CategoryBiomed:         "Medicine,Biology",
	domain.CategoryPhysics:        "Physics",
	domain.CategoryMath:           "Mathematics",
	domain.CategorySocialSciences: "Sociology,Economics,Political Science,Psychology",
}

// fieldCategories maps Semantic Scholar field names back to research categories.
var fieldCategories = map[string]domain.Category{
	"Computer Science":  domain.CategoryAICS,
	"Medicine":          domain.CategoryBiomed,
	"Biology":           domain.CategoryBiomed,
	"Physics":           domain.CategoryPhysics,
	"Mathematics":       domain.CategoryMath,
	"Sociology":         domain.CategorySocialSciences,
	"Economics":         domain.CategorySocialSciences,
	"Political Science": domain.CategorySocialSciences,
	"Psychology":        domain.CategorySocialSciences,
}

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	// Authenticated requests have higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults is the maximum number of results to return per search.
	// Defaults to DefaultMaxResults if zero.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the sources.Source interface for Semantic Scholar.
type Client struct {
	httpClient *sources.HTTPClient
	config     Config
}

// Compile-time check that Client implements sources.Source.
var _ sources.Source = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	// Apply defaults
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	// Create HTTP client if not provided
	if httpClient == nil {
		httpClient = sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	start := time.Now()

	// Build the search URL
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	// Create the request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	// Execute the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	// Handle error responses
	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Parse the response (limit body to 10MB to prevent resource exhaustion).
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	// Convert to raw records
	records := c.convertToRecords(searchResp.Data)

	// Apply date filtering client-side if needed
	if params.DateFrom != nil || params.DateTo != nil {
		records = filterByDate(records, params.DateFrom, params.DateTo)
	}

	// Determine if there are more results
	hasMore := searchResp.Next > 0

	return &sources.SearchResult{
		Records:        records,
		TotalResults:   searchResp.Total,
		HasMore:        hasMore,
		NextOffset:     searchResp.Next,
		Source:         domain.SourceTypeSemanticScholar,
		SearchDuration: time.Since(start),
	}, nil
}

// GetByID retrieves a specific paper by its Semantic Scholar ID or other identifier.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.RawRecord, error) {
	// Build the paper URL
	paperURL := fmt.Sprintf("%s/paper/%s?fields=%s", c.config.BaseURL, url.PathEscape(id), paperFields)

	// Create the request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, paperURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	// Execute the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	// Handle 404 as not found
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("paper", id)
	}

	// Handle other error responses
	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Parse the response (limit body to 10MB to prevent resource exhaustion).
	var paperResult PaperResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&paperResult); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return c.convertToRecord(paperResult), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(params sources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	// Build the search endpoint
	searchURL := baseURL.JoinPath("paper", "search")

	// Build query parameters
	q := searchURL.Query()
	q.Set("query", params.Query)
	q.Set("fields", paperFields)

	// Scope to fields of study when the search is categorized
	if fields, ok := categoryFields[params.Category]; ok {
		q.Set("fieldsOfStudy", fields)
	}

	// Set limit
	limit := params.MaxResults
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}
	q.Set("limit", strconv.Itoa(limit))

	// Set offset
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	// Set year range for date filtering (Semantic Scholar uses year-based filtering)
	if params.DateFrom != nil {
		q.Set("year", fmt.Sprintf("%d-", params.DateFrom.Year()))
	}
	if params.DateTo != nil {
		existingYear := q.Get("year")
		if existingYear != "" {
			// Already has a start year, add end year
			q.Set("year", fmt.Sprintf("%s%d", existingYear, params.DateTo.Year()))
		} else {
			q.Set("year", fmt.Sprintf("-%d", params.DateTo.Year()))
		}
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read the error body (limit to 1MB to prevent resource exhaustion)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	// Try to parse as JSON error
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
	}

	// Return raw body as error message
	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// convertToRecords converts a slice of API paper results to raw records.
func (c *Client) convertToRecords(results []PaperResult) []*domain.RawRecord {
	records := make([]*domain.RawRecord, 0, len(results))
	for _, result := range results {
		records = append(records, c.convertToRecord(result))
	}
	return records
}

// convertToRecord converts a single API paper result to a raw record.
func (c *Client) convertToRecord(result PaperResult) *domain.RawRecord {
	record := &domain.RawRecord{
		Source:        domain.SourceTypeSemanticScholar,
		SourceID:      result.PaperID,
		Title:         result.Title,
		Abstract:      result.Abstract,
		Venue:         result.Venue,
		Category:      inferCategory(result.FieldsOfStudy),
		CitationCount: result.CitationCount,
		RawMetadata: map[string]interface{}{
			"semantic_scholar_id": result.PaperID,
			"is_open_access":      result.IsOpenAccess,
		},
	}

	// Parse publication date, falling back to January 1 of the year
	if result.PublicationDate != "" {
		if pubDate, err := time.Parse("2006-01-02", result.PublicationDate); err == nil {
			record.PublicationDate = &pubDate
		}
	}
	if record.PublicationDate == nil && result.Year > 0 {
		yearStart := time.Date(result.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		record.PublicationDate = &yearStart
	}

	// Prefer journal name over venue when present
	if result.Journal != nil && result.Journal.Name != "" {
		record.Venue = result.Journal.Name
	}

	// Set PDF URL
	if result.OpenAccessPDF != nil && result.OpenAccessPDF.URL != "" {
		record.PDFURL = result.OpenAccessPDF.URL
	}

	// Convert authors
	record.Authors = convertAuthors(result.Authors)

	// Collect identifiers
	record.Identifiers = domain.PaperIdentifiers{
		SemanticScholarID: result.PaperID,
	}
	if result.ExternalIDs != nil {
		record.Identifiers.DOI = result.ExternalIDs.DOI
		record.Identifiers.ArXivID = result.ExternalIDs.ArXiv
	}

	return record
}

// convertAuthors converts API authors to domain authors.
func convertAuthors(apiAuthors []Author) []domain.Author {
	authors := make([]domain.Author, 0, len(apiAuthors))
	for _, a := range apiAuthors {
		authors = append(authors, domain.Author{
			Name: a.Name,
		})
	}
	return authors
}

// inferCategory maps Semantic Scholar fields of study to a research category.
// The first recognized field wins.
func inferCategory(fields []string) domain.Category {
	for _, f := range fields {
		if cat, ok := fieldCategories[f]; ok {
			return cat
		}
	}
	return domain.CategoryGeneral
}

// filterByDate filters records by publication date.
// This is needed because Semantic Scholar only supports year-based filtering via the API.
func filterByDate(records []*domain.RawRecord, dateFrom, dateTo *time.Time) []*domain.RawRecord {
	if dateFrom == nil && dateTo == nil {
		return records
	}

	filtered := make([]*domain.RawRecord, 0, len(records))
	for _, record := range records {
		if record.PublicationDate == nil {
			// No date information, include the record
			filtered = append(filtered, record)
			continue
		}

		// Check date bounds
		if dateFrom != nil && record.PublicationDate.Before(*dateFrom) {
			continue
		}
		if dateTo != nil && record.PublicationDate.After(*dateTo) {
			continue
		}

		filtered = append(filtered, record)
	}

	return filtered
}
