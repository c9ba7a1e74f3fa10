package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Repository interface {
	Save(ctx context.Context, r fl.RunRecord) error
	Get(ctx context.Context, id string) (fl.RunRecord, error)
	List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error)
	Delete(ctx context.Context, id string) error
}

var epoch = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

// TestRun returns a fully populated record. Runs with a larger seq start
// later.
func TestRun(id string, seq int) fl.RunRecord {
	cfg := fl.DefaultRunConfig()
	cfg.Rounds = 2
	cfg.Privacy.Technique = fl.TechniqueNoising
	started := epoch.Add(time.Duration(seq) * time.Minute)

	return fl.RunRecord{
		ID:     id,
		Name:   "test-run-" + id,
		Status: fl.RunCompleted,
		Config: cfg,
		History: []fl.RoundMetrics{
			{
				RoundIndex:      1,
				Phase:           fl.PhaseFit,
				NumParticipants: 3,
				Values:          map[string]float64{"avg_test_mse": 0.25, "total_samples": 480},
				CompletedAt:     started.Add(time.Second),
			},
			{
				RoundIndex:       1,
				Phase:            fl.PhaseEvaluate,
				NumParticipants:  2,
				NumFailures:      1,
				Values:           map[string]float64{"aggregated_loss": 0.5},
				AggregationError: "partial",
				CompletedAt:      started.Add(2 * time.Second),
			},
		},
		Budget:          cfg.Privacy.Budget(cfg.Rounds),
		Privacy:         cfg.Privacy.Describe(),
		FinalParameters: fl.ParameterVector{fl.Vector(0.5, -1.25, 3), fl.Vector(0.125)},
		Baseline:        map[string]float64{"mse": 0.2, "r2": 0.9},
		Resources:       map[string]float64{"avg_cpu_percent": 12.5, "max_memory_bytes": 1 << 20},
		StartedAt:       started,
		FinishedAt:      started.Add(time.Minute / 2),
	}
}

func normalize(r fl.RunRecord) fl.RunRecord {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	for i := range r.History {
		r.History[i].CompletedAt = r.History[i].CompletedAt.UTC()
	}

	return r
}

func AssertRunEqual(t *testing.T, want, got fl.RunRecord) {
	t.Helper()
	assert.Equal(t, normalize(want), normalize(got))
}

// RunRepositoryContract exercises the behaviour every backend must share.
// repo must start empty.
func RunRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		rec := TestRun("run-get", 0)
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, rec.ID)
		require.NoError(t, err)
		AssertRunEqual(t, rec, got)

		require.NoError(t, repo.Delete(ctx, rec.ID))
	})

	t.Run("save replaces", func(t *testing.T) {
		rec := TestRun("run-replace", 0)
		rec.Status = fl.RunRunning
		require.NoError(t, repo.Save(ctx, rec))

		rec.Status = fl.RunFailed
		rec.Error = "participant pool empty"
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, fl.RunFailed, got.Status)
		assert.Equal(t, rec.Error, got.Error)

		require.NoError(t, repo.Delete(ctx, rec.ID))
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})

	t.Run("list pages in start order", func(t *testing.T) {
		saves := []struct {
			id  string
			seq int
		}{{"run-c", 2}, {"run-a", 0}, {"run-b", 1}}
		for _, sv := range saves {
			require.NoError(t, repo.Save(ctx, TestRun(sv.id, sv.seq)), fmt.Sprintf("save %s", sv.id))
		}

		cases := []struct {
			desc   string
			offset uint64
			limit  uint64
			ids    []string
		}{
			{desc: "everything", offset: 0, limit: 10, ids: []string{"run-a", "run-b", "run-c"}},
			{desc: "first page", offset: 0, limit: 2, ids: []string{"run-a", "run-b"}},
			{desc: "second page", offset: 2, limit: 2, ids: []string{"run-c"}},
			{desc: "past the end", offset: 3, limit: 2, ids: []string{}},
		}
		for _, tc := range cases {
			page, total, err := repo.List(ctx, tc.offset, tc.limit)
			require.NoError(t, err, tc.desc)
			assert.Equal(t, uint64(3), total, tc.desc)
			ids := []string{}
			for _, r := range page {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tc.ids, ids, tc.desc)
		}

		for _, id := range []string{"run-a", "run-b", "run-c"} {
			require.NoError(t, repo.Delete(ctx, id))
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := TestRun("run-delete", 0)
		require.NoError(t, repo.Save(ctx, rec))
		require.NoError(t, repo.Delete(ctx, rec.ID))

		_, err := repo.Get(ctx, rec.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, rec.ID), pkgerrors.ErrNotFound)
	})
}
