package facet

import "github.com/kailas-cloud/trialdex/internal/domain/search/filter"

// Dimensions is the fixed dashboard dimension set, in display order.
var Dimensions = []filter.Key{
	filter.KeyStatus,
	filter.KeyPhase,
	filter.KeyCondition,
	filter.KeySponsorClass,
	filter.KeyStartYear,
}

// Reserved bucket codes for grouping values that have no code of their own.
const (
	// UnknownCode groups records with no value in a dimension.
	UnknownCode = ""
	// OtherCode folds the tail of a truncated dimension into one bucket.
	OtherCode = "__other__"
)

// Bucket labels for the reserved codes.
const (
	UnknownLabel = "Unknown"
	OtherLabel   = "Other conditions"
)

// Count is one raw grouped count as returned by a store.
type Count struct {
	Code  string
	Count int
}

// Bucket is one labeled facet entry.
type Bucket struct {
	Code  string
	Label string
	Count int
}

// Facets maps each dimension to its ordered buckets.
type Facets map[filter.Key][]Bucket

// Sum returns the total count across a dimension's buckets.
func (f Facets) Sum(dim filter.Key) int {
	n := 0
	for _, b := range f[dim] {
		n += b.Count
	}
	return n
}

// EnrollmentStats summarizes enrollment counts over records that report one.
type EnrollmentStats struct {
	Reported int
	Avg      *float64
	Min      *int
	Max      *int
	Sum      int64
}

// Landscape is the condition-landscape summary for a predicate set.
type Landscape struct {
	Total            int
	Facets           Facets
	TopSponsors      []Bucket
	TopInterventions []Bucket
	Enrollment       EnrollmentStats
}
