package runs_test

import (
	"testing"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/storage/internal/runs"
	"github.com/stretchr/testify/assert"
)

func TestPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := func() []fl.RunRecord {
		return []fl.RunRecord{
			{ID: "c", StartedAt: base.Add(2 * time.Minute)},
			{ID: "b", StartedAt: base},
			{ID: "a", StartedAt: base},
		}
	}

	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		ids    []string
	}{
		{desc: "all", offset: 0, limit: 10, ids: []string{"a", "b", "c"}},
		{desc: "window", offset: 1, limit: 1, ids: []string{"b"}},
		{desc: "past end", offset: 5, limit: 10, ids: []string{}},
		{desc: "zero limit", offset: 0, limit: 0, ids: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			page, total := runs.Page(recs(), tc.offset, tc.limit)
			assert.Equal(t, uint64(3), total)
			ids := []string{}
			for _, r := range page {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tc.ids, ids)
		})
	}
}

func TestClone(t *testing.T) {
	r := fl.RunRecord{
		ID:              "run",
		History:         []fl.RoundMetrics{{Values: map[string]float64{"x": 1}}},
		FinalParameters: fl.ParameterVector{fl.Vector(1)},
		Baseline:        map[string]float64{"mse": 1},
	}
	c := runs.Clone(r)
	c.History[0].Values["x"] = 2
	c.FinalParameters[0].Data[0] = 2
	c.Baseline["mse"] = 2

	assert.Equal(t, 1.0, r.History[0].Values["x"])
	assert.Equal(t, 1.0, r.FinalParameters[0].Data[0])
	assert.Equal(t, 1.0, r.Baseline["mse"])
}
