package facet

import (
	"sort"
	"strconv"

	domfacet "github.com/kailas-cloud/trialdex/internal/domain/facet"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// buckets labels raw counts for one dimension and orders them for display.
// conditionLimit caps the named condition buckets; the tail folds into OtherCode.
func buckets(dim filter.Key, counts []domfacet.Count, conditionLimit int) []domfacet.Bucket {
	var (
		named   []domfacet.Bucket
		unknown int
	)
	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		if c.Code == domfacet.UnknownCode {
			unknown += c.Count
			continue
		}
		named = append(named, domfacet.Bucket{Code: c.Code, Label: label(dim, c.Code), Count: c.Count})
	}

	if dim == filter.KeyStartYear {
		sort.Slice(named, func(i, j int) bool { return year(named[i].Code) < year(named[j].Code) })
	} else {
		sort.Slice(named, func(i, j int) bool {
			if named[i].Count != named[j].Count {
				return named[i].Count > named[j].Count
			}
			if named[i].Label != named[j].Label {
				return named[i].Label < named[j].Label
			}
			return named[i].Code < named[j].Code
		})
	}

	if dim == filter.KeyCondition && conditionLimit > 0 && len(named) > conditionLimit {
		other := 0
		for _, b := range named[conditionLimit:] {
			other += b.Count
		}
		named = append(named[:conditionLimit:conditionLimit], domfacet.Bucket{
			Code: domfacet.OtherCode, Label: domfacet.OtherLabel, Count: other,
		})
	}

	out := make([]domfacet.Bucket, 0, len(named)+1)
	out = append(out, named...)
	if unknown > 0 {
		out = append(out, domfacet.Bucket{Code: domfacet.UnknownCode, Label: domfacet.UnknownLabel, Count: unknown})
	}
	return out
}

// labelled turns free-form counts (sponsors, interventions) into buckets labelled by their code.
func labelled(counts []domfacet.Count) []domfacet.Bucket {
	out := make([]domfacet.Bucket, 0, len(counts))
	for _, c := range counts {
		out = append(out, domfacet.Bucket{Code: c.Code, Label: c.Code, Count: c.Count})
	}
	return out
}

func label(dim filter.Key, code string) string {
	if field := dim.Field(); field != "" {
		return trial.Label(field, code)
	}
	return code
}

func year(code string) int {
	y, err := strconv.Atoi(code)
	if err != nil {
		return 0
	}
	return y
}
