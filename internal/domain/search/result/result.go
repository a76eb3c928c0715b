package result

import (
	"time"

	"github.com/kailas-cloud/trialdex/internal/domain/search/mode"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// MatchSource tells which candidate sets a hit came from.
type MatchSource string

// Match sources.
const (
	MatchBoth    MatchSource = "both"
	MatchVector  MatchSource = "vector"
	MatchKeyword MatchSource = "keyword"
	MatchFilter  MatchSource = "filter"
)

// Candidate is a vector-similarity candidate before merging.
type Candidate struct {
	ID         string
	Similarity float64
	LastUpdate *time.Time
	// KeywordHit is set when the record also matches the keyword predicate.
	KeywordHit bool
}

// Hit is one ranked search result.
type Hit struct {
	Record trial.Record
	// Similarity is nil for records that were not vector candidates.
	Similarity *float64
	Source     MatchSource
}

// Page is one page of ranked hits plus the pre-pagination candidate count.
type Page struct {
	Items    []Hit
	Total    int
	Page     int
	PageSize int
	Mode     mode.Mode
	// Degraded is set when free text was given but vector retrieval was unavailable.
	Degraded bool
}
