package mode

// Mode is the retrieval strategy a search request was answered with.
type Mode string

// Search mode constants.
const (
	// Hybrid merges vector-similarity and keyword candidates.
	Hybrid Mode = "hybrid"
	// Keyword uses keyword candidates only, e.g. when the query embedding failed.
	Keyword Mode = "keyword"
	// Browse returns every record satisfying the structured predicate.
	Browse Mode = "browse"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Keyword || m == Browse
}
