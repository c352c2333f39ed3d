package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paperscope/discovery-service/internal/domain"
)

// uniqueViolationCode is the PostgreSQL error code for unique constraint violations.
const uniqueViolationCode = "23505"

// identifierConstraintColumns maps the secondary unique indexes on the papers
// table to the identifier column they guard. A violation on one of these means
// the incoming record aliases a stored row under a different canonical id.
var identifierConstraintColumns = map[string]string{
	"idx_papers_doi":                 "doi",
	"idx_papers_arxiv_id":            "arxiv_id",
	"idx_papers_semantic_scholar_id": "semantic_scholar_id",
	"idx_papers_openalex_id":         "openalex_id",
}

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// paperColumns is the canonical column list for SELECT queries.
const paperColumns = `id, canonical_id, doi, arxiv_id, semantic_scholar_id, openalex_id,
		title, abstract, authors, publication_date, venue, category,
		citation_count, pdf_url, is_embedded, sources, raw_metadata,
		created_at, updated_at`

// upsertQuery merges an incoming paper into the stored row on canonical_id
// conflict. Identifier columns keep the stored value once set, descriptive
// fields are filled when the stored value is empty, citation counts take the
// maximum, and contributing sources accumulate.
const upsertQuery = `
	INSERT INTO papers (
		id, canonical_id, doi, arxiv_id, semantic_scholar_id, openalex_id,
		title, abstract, authors, publication_date, venue, category,
		citation_count, pdf_url, is_embedded, sources, raw_metadata,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
	)
	ON CONFLICT (canonical_id) DO UPDATE SET
		doi = COALESCE(papers.doi, EXCLUDED.doi),
		arxiv_id = COALESCE(papers.arxiv_id, EXCLUDED.arxiv_id),
		semantic_scholar_id = COALESCE(papers.semantic_scholar_id, EXCLUDED.semantic_scholar_id),
		openalex_id = COALESCE(papers.openalex_id, EXCLUDED.openalex_id),
		title = EXCLUDED.title,
		abstract = CASE WHEN EXCLUDED.abstract <> '' THEN EXCLUDED.abstract ELSE papers.abstract END,
		authors = CASE WHEN jsonb_array_length(EXCLUDED.authors) > 0 THEN EXCLUDED.authors ELSE papers.authors END,
		publication_date = COALESCE(EXCLUDED.publication_date, papers.publication_date),
		venue = CASE WHEN EXCLUDED.venue <> '' THEN EXCLUDED.venue ELSE papers.venue END,
		category = CASE WHEN EXCLUDED.category <> 'general' THEN EXCLUDED.category ELSE papers.category END,
		citation_count = GREATEST(EXCLUDED.citation_count, papers.citation_count),
		pdf_url = CASE WHEN EXCLUDED.pdf_url <> '' THEN EXCLUDED.pdf_url ELSE papers.pdf_url END,
		sources = ARRAY(SELECT DISTINCT s FROM unnest(papers.sources || EXCLUDED.sources) AS s ORDER BY s),
		raw_metadata = papers.raw_metadata || EXCLUDED.raw_metadata,
		updated_at = NOW()
	RETURNING id, is_embedded, created_at, updated_at`

// BulkUpsert creates or updates multiple papers in a single batch.
// Uses pgx.Batch to send all upserts in a single network roundtrip. A record
// whose secondary identifier already exists under a different canonical id is
// folded into the stored row rather than failing the batch.
func (r *PgPaperRepository) BulkUpsert(ctx context.Context, papers []*domain.Paper) ([]*domain.Paper, error) {
	if len(papers) == 0 {
		return []*domain.Paper{}, nil
	}

	for i, paper := range papers {
		if paper == nil {
			return nil, domain.NewValidationError("paper", fmt.Sprintf("paper at index %d is nil", i))
		}
		if paper.CanonicalID == "" {
			return nil, domain.NewValidationError("canonical_id", fmt.Sprintf("paper at index %d has no canonical ID", i))
		}
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}

	for _, paper := range papers {
		args, err := upsertArgs(paper, now)
		if err != nil {
			return nil, err
		}
		batch.Queue(upsertQuery, args...)
	}

	br := r.db.SendBatch(ctx, batch)

	results := make([]*domain.Paper, len(papers))
	var batchErr error
	for i, paper := range papers {
		err := br.QueryRow().Scan(&paper.ID, &paper.IsEmbedded, &paper.CreatedAt, &paper.UpdatedAt)
		if err != nil {
			batchErr = fmt.Errorf("failed to upsert paper at index %d: %w", i, err)
			break
		}
		results[i] = paper
	}
	if closeErr := br.Close(); closeErr != nil && batchErr == nil {
		batchErr = fmt.Errorf("failed to close upsert batch: %w", closeErr)
	}
	if batchErr == nil {
		return results, nil
	}

	if !isIdentifierConflict(batchErr) {
		return nil, batchErr
	}

	// The batch runs in one implicit transaction, so a single identifier
	// collision aborts every queued row. Retry row by row (the upsert is
	// idempotent) and resolve collisions against the stored paper.
	for i, paper := range papers {
		if err := r.upsertResolvingAliases(ctx, paper, now); err != nil {
			return nil, fmt.Errorf("failed to upsert paper at index %d: %w", i, err)
		}
		results[i] = paper
	}

	return results, nil
}

// isIdentifierConflict reports whether err is a unique violation on one of
// the secondary identifier indexes.
func isIdentifierConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return false
	}
	_, ok := identifierConstraintColumns[pgErr.ConstraintName]
	return ok
}

// upsertResolvingAliases upserts one paper. When a secondary identifier
// already exists under a different canonical id, the stored row's canonical
// id is adopted and the upsert retried, so the ON CONFLICT merge folds the
// record into that row. Each pass resolves one identifier column; the bound
// covers a record aliasing several stored rows at once.
func (r *PgPaperRepository) upsertResolvingAliases(ctx context.Context, paper *domain.Paper, now time.Time) error {
	for attempt := 0; attempt <= len(identifierConstraintColumns); attempt++ {
		args, err := upsertArgs(paper, now)
		if err != nil {
			return err
		}

		err = r.db.QueryRow(ctx, upsertQuery, args...).
			Scan(&paper.ID, &paper.IsEmbedded, &paper.CreatedAt, &paper.UpdatedAt)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
			return err
		}
		column, ok := identifierConstraintColumns[pgErr.ConstraintName]
		if !ok {
			return err
		}

		canonical, lookupErr := r.canonicalIDByIdentifier(ctx, column, paper.Identifiers)
		if lookupErr != nil {
			return fmt.Errorf("failed to resolve %s collision: %w", column, lookupErr)
		}
		paper.CanonicalID = canonical
	}

	return domain.NewAlreadyExistsError("paper", paper.CanonicalID)
}

// canonicalIDByIdentifier looks up the canonical id of the stored paper
// holding the given identifier value.
func (r *PgPaperRepository) canonicalIDByIdentifier(ctx context.Context, column string, ids domain.PaperIdentifiers) (string, error) {
	var value string
	switch column {
	case "doi":
		value = ids.DOI
	case "arxiv_id":
		value = ids.ArXivID
	case "semantic_scholar_id":
		value = ids.SemanticScholarID
	case "openalex_id":
		value = ids.OpenAlexID
	}
	if value == "" {
		return "", fmt.Errorf("incoming record carries no %s", column)
	}

	query := fmt.Sprintf(`SELECT canonical_id FROM papers WHERE %s = $1`, column)

	var canonical string
	if err := r.db.QueryRow(ctx, query, value).Scan(&canonical); err != nil {
		return "", err
	}
	return canonical, nil
}

// upsertArgs builds the argument list for one upsert statement.
func upsertArgs(paper *domain.Paper, now time.Time) ([]interface{}, error) {
	authorsJSON, err := json.Marshal(paper.Authors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authors: %w", err)
	}

	metadataJSON := []byte("{}")
	if paper.RawMetadata != nil {
		metadataJSON, err = json.Marshal(paper.RawMetadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	if paper.Category == "" {
		paper.Category = domain.CategoryGeneral
	}

	sources := make([]string, len(paper.Sources))
	for i, s := range paper.Sources {
		sources[i] = string(s)
	}

	return []interface{}{
		paper.ID,
		paper.CanonicalID,
		nullableString(paper.Identifiers.DOI),
		nullableString(paper.Identifiers.ArXivID),
		nullableString(paper.Identifiers.SemanticScholarID),
		nullableString(paper.Identifiers.OpenAlexID),
		paper.Title,
		paper.Abstract,
		authorsJSON,
		paper.PublicationDate,
		paper.Venue,
		string(paper.Category),
		paper.CitationCount,
		paper.PDFURL,
		paper.IsEmbedded,
		sources,
		metadataJSON,
		now,
		now,
	}, nil
}

// GetByID retrieves a paper by its UUID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error) {
	query := fmt.Sprintf(`SELECT %s FROM papers WHERE id = $1`, paperColumns)

	row := r.db.QueryRow(ctx, query, id)
	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper by ID: %w", err)
	}

	return paper, nil
}

// GetByIDs retrieves multiple papers by their internal UUIDs.
func (r *PgPaperRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM papers WHERE id = ANY($1)`, paperColumns)

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get papers by IDs: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows, len(ids))
}

// GetByCanonicalID retrieves a paper by its canonical identifier.
func (r *PgPaperRepository) GetByCanonicalID(ctx context.Context, canonicalID string) (*domain.Paper, error) {
	if canonicalID == "" {
		return nil, domain.NewValidationError("canonical_id", "canonical ID is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM papers WHERE canonical_id = $1`, paperColumns)

	row := r.db.QueryRow(ctx, query, canonicalID)
	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", canonicalID)
		}
		return nil, fmt.Errorf("failed to get paper by canonical ID: %w", err)
	}

	return paper, nil
}

// List retrieves papers matching the filter criteria.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, string(*filter.Category))
		argIndex++
	}

	if filter.Source != nil {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(sources)", argIndex))
		args = append(args, string(*filter.Source))
		argIndex++
	}

	if filter.IsEmbedded != nil {
		conditions = append(conditions, fmt.Sprintf("is_embedded = $%d", argIndex))
		args = append(args, *filter.IsEmbedded)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM papers %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM papers %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paperColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers, err := collectPapers(rows, filter.Limit)
	if err != nil {
		return nil, 0, err
	}

	return papers, totalCount, nil
}

// SearchKeyword performs a full-text search over paper titles and abstracts.
func (r *PgPaperRepository) SearchKeyword(ctx context.Context, query string, category domain.Category, limit int) ([]*domain.Paper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewValidationError("query", "search query is required")
	}
	if limit <= 0 {
		limit = defaultFilterLimit
	}
	if limit > maxFilterLimit {
		limit = maxFilterLimit
	}

	args := []interface{}{query}
	categoryClause := ""
	if category != "" && category != domain.CategoryGeneral {
		categoryClause = "AND category = $2"
		args = append(args, string(category))
	}
	args = append(args, limit)

	searchQuery := fmt.Sprintf(`
		SELECT %s
		FROM papers
		WHERE to_tsvector('english', title || ' ' || abstract) @@ plainto_tsquery('english', $1)
		%s
		ORDER BY ts_rank(to_tsvector('english', title || ' ' || abstract), plainto_tsquery('english', $1)) DESC
		LIMIT $%d`,
		paperColumns, categoryClause, len(args))

	rows, err := r.db.Query(ctx, searchQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search papers: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows, limit)
}

// ListUnembedded returns papers awaiting embedding enrichment, oldest first.
func (r *PgPaperRepository) ListUnembedded(ctx context.Context, limit int) ([]*domain.Paper, error) {
	if limit <= 0 {
		limit = defaultFilterLimit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM papers
		WHERE is_embedded = FALSE
		ORDER BY created_at ASC
		LIMIT $1`, paperColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unembedded papers: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows, limit)
}

// MarkEmbedded flags the given papers as embedded.
func (r *PgPaperRepository) MarkEmbedded(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE papers
		SET is_embedded = TRUE, updated_at = $1
		WHERE id = ANY($2)`

	if _, err := r.db.Exec(ctx, query, time.Now().UTC(), ids); err != nil {
		return fmt.Errorf("failed to mark papers embedded: %w", err)
	}

	return nil
}

// EmbeddingStats reports corpus-wide enrichment progress.
func (r *PgPaperRepository) EmbeddingStats(ctx context.Context) (*EmbeddingStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_embedded),
			COUNT(*) FILTER (WHERE NOT is_embedded)
		FROM papers`

	var stats EmbeddingStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.TotalPapers, &stats.EmbeddedPapers, &stats.PendingPapers)
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding stats: %w", err)
	}

	return &stats, nil
}

// nullableString converts an empty string to nil so it is stored as NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// paperScanDest holds the destination pointers for scanning a paper row.
type paperScanDest struct {
	paper        domain.Paper
	doi          *string
	arxivID      *string
	s2ID         *string
	openAlexID   *string
	category     string
	sources      []string
	authorsJSON  []byte
	metadataJSON []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.CanonicalID, &d.doi, &d.arxivID, &d.s2ID, &d.openAlexID,
		&d.paper.Title, &d.paper.Abstract, &d.authorsJSON, &d.paper.PublicationDate,
		&d.paper.Venue, &d.category, &d.paper.CitationCount, &d.paper.PDFURL,
		&d.paper.IsEmbedded, &d.sources, &d.metadataJSON,
		&d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

// finalize performs post-scan processing: identifier assembly and JSON decoding.
func (d *paperScanDest) finalize() (*domain.Paper, error) {
	if d.doi != nil {
		d.paper.Identifiers.DOI = *d.doi
	}
	if d.arxivID != nil {
		d.paper.Identifiers.ArXivID = *d.arxivID
	}
	if d.s2ID != nil {
		d.paper.Identifiers.SemanticScholarID = *d.s2ID
	}
	if d.openAlexID != nil {
		d.paper.Identifiers.OpenAlexID = *d.openAlexID
	}

	d.paper.Category = domain.Category(d.category)

	if len(d.sources) > 0 {
		d.paper.Sources = make([]domain.SourceType, len(d.sources))
		for i, s := range d.sources {
			d.paper.Sources[i] = domain.SourceType(s)
		}
	}

	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.paper.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}

	if len(d.metadataJSON) > 0 {
		if err := json.Unmarshal(d.metadataJSON, &d.paper.RawMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &d.paper, nil
}

// scanPaper scans a single row into a Paper.
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// collectPapers drains pgx.Rows into a slice of papers.
func collectPapers(rows pgx.Rows, sizeHint int) ([]*domain.Paper, error) {
	papers := make([]*domain.Paper, 0, sizeHint)
	for rows.Next() {
		var dest paperScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		paper, err := dest.finalize()
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, nil
}
