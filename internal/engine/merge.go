// Package engine implements the unified search pipeline: cache consult,
// concurrent source fan-out, deduplication and merging, bulk persistence,
// and background enrichment scheduling.
package engine

import (
	"sort"
	"strings"

	"github.com/paperscope/discovery-service/internal/dedup"
	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/observability"
)

// Merger folds raw records from all sources into deduplicated papers.
// Records sharing a strong identifier are grouped directly; the rest fall
// back to fuzzy title matching confirmed by the first-author surname.
type Merger struct {
	titleThreshold float64
	metrics        *observability.Metrics
}

// NewMerger creates a merger. A threshold <= 0 uses the dedup default.
func NewMerger(titleThreshold float64, metrics *observability.Metrics) *Merger {
	if titleThreshold <= 0 {
		titleThreshold = dedup.DefaultTitleThreshold
	}
	return &Merger{
		titleThreshold: titleThreshold,
		metrics:        metrics,
	}
}

// mergeGroup accumulates the raw records identified as one paper.
type mergeGroup struct {
	records []*domain.RawRecord
}

// representative returns the record fuzzy candidates are compared against.
func (g *mergeGroup) representative() *domain.RawRecord {
	return g.records[0]
}

// identifierKeys returns the typed identifier keys a record carries, in
// priority order (DOI first).
func identifierKeys(ids domain.PaperIdentifiers) []string {
	var keys []string
	if ids.DOI != "" {
		keys = append(keys, "doi:"+strings.ToLower(ids.DOI))
	}
	if ids.ArXivID != "" {
		keys = append(keys, "arxiv:"+ids.ArXivID)
	}
	if ids.SemanticScholarID != "" {
		keys = append(keys, "s2:"+ids.SemanticScholarID)
	}
	if ids.OpenAlexID != "" {
		keys = append(keys, "openalex:"+ids.OpenAlexID)
	}
	return keys
}

// Merge deduplicates the concatenated records from all sources and returns
// one merged paper per group, sorted by citation count descending with
// publication date and canonical id as tie-breaks.
func (m *Merger) Merge(records []*domain.RawRecord) []*domain.Paper {
	var groups []*mergeGroup
	byIdentifier := make(map[string]*mergeGroup)

	for _, record := range records {
		if record == nil {
			continue
		}

		group := m.findGroup(record, byIdentifier, groups)
		if group == nil {
			group = &mergeGroup{}
			groups = append(groups, group)
		} else {
			m.metrics.RecordPapersMerged(1)
		}

		group.records = append(group.records, record)
		for _, key := range identifierKeys(record.Identifiers) {
			if _, taken := byIdentifier[key]; !taken {
				byIdentifier[key] = group
			}
		}
	}

	papers := make([]*domain.Paper, 0, len(groups))
	for _, group := range groups {
		papers = append(papers, mergeRecords(group.records))
	}

	SortPapers(papers)
	return papers
}

// findGroup locates the group a record belongs to: first by strong
// identifier in priority order, then by fuzzy title + first-author match
// against each group representative.
func (m *Merger) findGroup(record *domain.RawRecord, byIdentifier map[string]*mergeGroup, groups []*mergeGroup) *mergeGroup {
	for _, key := range identifierKeys(record.Identifiers) {
		if group, ok := byIdentifier[key]; ok {
			return group
		}
	}

	for _, group := range groups {
		rep := group.representative()
		if dedup.TitlesMatch(record.Title, rep.Title, m.titleThreshold) &&
			dedup.SameFirstAuthor(record.Authors, rep.Authors) {
			m.metrics.RecordFuzzyMatch()
			return group
		}
	}

	return nil
}

// mergeRecords folds a group's records into one paper using richest-wins
// semantics: prefer non-null values, break conflicts by source trust
// priority, and take the larger citation count on equal trust.
func mergeRecords(records []*domain.RawRecord) *domain.Paper {
	// Most trusted first; larger citation count first within equal trust.
	sorted := make([]*domain.RawRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Source.TrustRank(), sorted[j].Source.TrustRank()
		if ri != rj {
			return ri < rj
		}
		return sorted[i].CitationCount > sorted[j].CitationCount
	})

	paper := &domain.Paper{}

	for _, r := range sorted {
		if r.FromLocal() && !paper.IsPersisted() {
			paper.ID = r.PaperID
			paper.IsEmbedded = r.IsEmbedded
		}

		paper.Identifiers = domain.MergeIdentifiers(paper.Identifiers, r.Identifiers)

		if paper.Title == "" {
			paper.Title = r.Title
		}
		// Empty abstracts count as null for merge purposes.
		if paper.Abstract == "" && r.Abstract != "" {
			paper.Abstract = r.Abstract
		}
		// The longest author list wins: more complete attribution.
		if len(r.Authors) > len(paper.Authors) {
			paper.Authors = r.Authors
		}
		if paper.PublicationDate == nil && r.PublicationDate != nil {
			paper.PublicationDate = r.PublicationDate
		}
		if paper.Venue == "" {
			paper.Venue = r.Venue
		}
		if paper.PDFURL == "" {
			paper.PDFURL = r.PDFURL
		}
		if paper.Category == "" || paper.Category == domain.CategoryGeneral {
			if r.Category != "" {
				paper.Category = r.Category
			}
		}
		if paper.CitationCount == 0 && r.CitationCount > 0 {
			paper.CitationCount = r.CitationCount
		}
		if paper.RawMetadata == nil && r.RawMetadata != nil {
			paper.RawMetadata = r.RawMetadata
		}

		paper.AddSource(r.Source)
	}

	paper.CanonicalID = domain.GenerateCanonicalID(paper.Identifiers)
	if paper.Category == "" {
		paper.Category = domain.CategoryGeneral
	}

	return paper
}

// SortPapers orders papers deterministically: citation count descending,
// then most recent publication date, then canonical id ascending so equal
// papers always land in the same order.
func SortPapers(papers []*domain.Paper) {
	sort.SliceStable(papers, func(i, j int) bool {
		if papers[i].CitationCount != papers[j].CitationCount {
			return papers[i].CitationCount > papers[j].CitationCount
		}

		di, dj := papers[i].PublicationDate, papers[j].PublicationDate
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.After(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}

		return papers[i].CanonicalID < papers[j].CanonicalID
	})
}
