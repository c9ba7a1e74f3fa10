package sdk_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/sdk"
	"github.com/absmach/fedround/runner"
	"github.com/absmach/fedround/runner/api"
	"github.com/absmach/fedround/runner/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const runID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func setup(t *testing.T) (sdk.SDK, *mocks.MockService) {
	t.Helper()

	svc := new(mocks.MockService)
	ts := httptest.NewServer(api.MakeHandler(svc, slog.Default(), "test"))
	t.Cleanup(ts.Close)

	return sdk.NewSDK(sdk.Config{ServerURL: ts.URL}), svc
}

func record(status fl.RunStatus) fl.RunRecord {
	return fl.RunRecord{
		ID:     runID,
		Name:   "quiet-hopper",
		Status: status,
		History: []fl.RoundMetrics{
			{RoundIndex: 1, Phase: fl.PhaseFit, NumParticipants: 2},
			{RoundIndex: 1, Phase: fl.PhaseEvaluate, NumParticipants: 2},
		},
	}
}

func TestStartRun(t *testing.T) {
	failed := record(fl.RunFailed)
	failed.Error = "round 1: fit: no results"

	cases := []struct {
		desc   string
		rec    fl.RunRecord
		svcErr error
		err    error
		errMsg string
	}{
		{
			desc: "completed run",
			rec:  record(fl.RunCompleted),
		},
		{
			desc:   "failed run",
			rec:    failed,
			svcErr: fmt.Errorf("round 1: fit: no results"),
			errMsg: "round 1: fit: no results",
		},
		{
			desc:   "rejected configuration",
			svcErr: fl.ErrConfiguration,
			err:    sdk.ErrBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			client, svc := setup(t)
			svc.On("StartRun", mock.Anything, mock.MatchedBy(func(cfg fl.RunConfig) bool {
				return cfg.Rounds == 3 && cfg.Aggregation == fl.FedMed
			})).Return(tc.rec, tc.svcErr).Once()

			cfg := fl.DefaultRunConfig()
			cfg.Rounds = 3
			cfg.Aggregation = fl.FedMed
			rec, err := client.StartRun(context.Background(), cfg)

			switch {
			case tc.err != nil:
				assert.ErrorIs(t, err, tc.err)
			case tc.errMsg != "":
				assert.EqualError(t, err, tc.errMsg)
				assert.Equal(t, fl.RunFailed, rec.Status)
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.rec.ID, rec.ID)
				assert.Len(t, rec.History, 2)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestGetRun(t *testing.T) {
	client, svc := setup(t)
	svc.On("GetRun", mock.Anything, runID).Return(record(fl.RunCompleted), nil).Once()
	svc.On("GetRun", mock.Anything, "missing").Return(fl.RunRecord{}, pkgerrors.ErrNotFound).Once()

	rec, err := client.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "quiet-hopper", rec.Name)

	_, err = client.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = client.GetRun(context.Background(), "")
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyKey)
	svc.AssertExpectations(t)
}

func TestListRuns(t *testing.T) {
	client, svc := setup(t)
	svc.On("ListRuns", mock.Anything, uint64(5), uint64(20)).Return(runner.RunPage{
		Offset: 5,
		Limit:  20,
		Total:  6,
		Runs:   []fl.RunRecord{record(fl.RunCompleted)},
	}, nil).Once()

	page, err := client.ListRuns(context.Background(), 5, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), page.Total)
	assert.Len(t, page.Runs, 1)
	svc.AssertExpectations(t)
}

func TestListRounds(t *testing.T) {
	cases := []struct {
		desc     string
		phase    fl.Phase
		callsSvc bool
		want     int
		err      error
	}{
		{desc: "all phases", phase: "", callsSvc: true, want: 2},
		{desc: "evaluate only", phase: fl.PhaseEvaluate, callsSvc: true, want: 1},
		{desc: "unknown phase", phase: fl.Phase("train"), err: sdk.ErrBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			client, svc := setup(t)
			if tc.callsSvc {
				rounds := record(fl.RunCompleted).History
				if tc.phase != "" {
					rounds = record(fl.RunCompleted).RoundsOf(tc.phase)
				}
				svc.On("ListRounds", mock.Anything, runID, tc.phase).Return(rounds, nil).Once()
			}

			rounds, err := client.ListRounds(context.Background(), runID, tc.phase)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Len(t, rounds, tc.want)
			svc.AssertExpectations(t)
		})
	}
}

func TestHealth(t *testing.T) {
	client, _ := setup(t)
	assert.NoError(t, client.Health(context.Background()))

	down := sdk.NewSDK(sdk.Config{ServerURL: "http://127.0.0.1:1"})
	assert.Error(t, down.Health(context.Background()))
}
