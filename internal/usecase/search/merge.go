package search

import (
	"sort"
	"time"

	"github.com/kailas-cloud/trialdex/internal/domain/search/result"
)

// rankCandidates orders vector candidates for the merge: records that also match the
// keyword predicate come first, then vector-only ones. Within a tier the order is
// similarity desc, last update desc (unknown last), id asc.
func rankCandidates(cands []result.Candidate) []result.Candidate {
	out := make([]result.Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.KeywordHit != b.KeywordHit {
			return a.KeywordHit
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if c := compareUpdated(a.LastUpdate, b.LastUpdate); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	return out
}

// compareUpdated returns -1 when a sorts first under "newest first, unknown last".
func compareUpdated(a, b *time.Time) int {
	switch {
	case a != nil && b != nil:
		if a.After(*b) {
			return -1
		}
		if b.After(*a) {
			return 1
		}
		return 0
	case a != nil:
		return -1
	case b != nil:
		return 1
	}
	return 0
}

// keywordHits counts candidates that are also in the keyword set.
func keywordHits(cands []result.Candidate) int {
	n := 0
	for _, c := range cands {
		if c.KeywordHit {
			n++
		}
	}
	return n
}

// window is the part of a page served from vector candidates plus the offset and limit
// left for the keyword-only remainder.
type window struct {
	vector     []result.Candidate
	restOffset int
	restLimit  int
}

// cut splits the page [offset, offset+size) of the merged sequence. Vector candidates
// occupy the head of the sequence.
func cut(ranked []result.Candidate, offset, size int) window {
	n := len(ranked)
	if offset >= n {
		return window{restOffset: offset - n, restLimit: size}
	}
	end := min(offset+size, n)
	return window{vector: ranked[offset:end], restLimit: size - (end - offset)}
}

func candidateIDs(cands []result.Candidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return ids
}
