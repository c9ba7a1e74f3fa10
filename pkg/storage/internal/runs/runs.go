// Package runs holds the ordering and paging rules every run repository
// backend shares.
package runs

import (
	"cmp"
	"maps"
	"slices"

	"github.com/absmach/fedround/pkg/fl"
)

// Sort orders records by start time, oldest first, breaking ties by ID.
func Sort(recs []fl.RunRecord) {
	slices.SortFunc(recs, func(a, b fl.RunRecord) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})
}

// Page sorts recs and returns the requested window with the total count.
func Page(recs []fl.RunRecord, offset, limit uint64) ([]fl.RunRecord, uint64) {
	Sort(recs)
	total := uint64(len(recs))
	if offset >= total {
		return []fl.RunRecord{}, total
	}
	end := min(offset+limit, total)

	return recs[offset:end], total
}

// Clone deep-copies r so stored records never alias caller memory.
func Clone(r fl.RunRecord) fl.RunRecord {
	r.Config.Dataset.Samples = slices.Clone(r.Config.Dataset.Samples)
	if r.History != nil {
		h := make([]fl.RoundMetrics, len(r.History))
		for i, m := range r.History {
			h[i] = m.Clone()
		}
		r.History = h
	}
	r.Privacy = maps.Clone(r.Privacy)
	r.FinalParameters = r.FinalParameters.Clone()
	r.Baseline = maps.Clone(r.Baseline)
	r.Resources = maps.Clone(r.Resources)

	return r
}
