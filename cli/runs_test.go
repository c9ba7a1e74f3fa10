package cli_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/absmach/fedround/cli"
	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/runner"
	"github.com/absmach/fedround/runner/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const runID = "8a6e0804-2bd0-4672-b79d-d97027f9071a"

func record() fl.RunRecord {
	return fl.RunRecord{
		ID:     runID,
		Name:   "eager-lovelace",
		Status: fl.RunCompleted,
		History: []fl.RoundMetrics{
			{RoundIndex: 1, Phase: fl.PhaseFit},
			{RoundIndex: 1, Phase: fl.PhaseEvaluate, Values: map[string]float64{"aggregated_loss": 0.75}},
		},
	}
}

func execute(t *testing.T, svc runner.Service, args ...string) (string, string) {
	t.Helper()

	cli.SetApp(&cli.App{Service: svc, Logger: slog.Default()})
	cmd := cli.NewRunsCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	return out.String(), errOut.String()
}

func TestRunsCmd(t *testing.T) {
	cases := []struct {
		desc    string
		args    []string
		setup   func(svc *mocks.MockService)
		out     []string
		errText string
	}{
		{
			desc: "view existing run",
			args: []string{"view", runID},
			setup: func(svc *mocks.MockService) {
				svc.On("GetRun", mock.Anything, runID).Return(record(), nil).Once()
			},
			out: []string{"eager-lovelace", "aggregated_loss"},
		},
		{
			desc: "view missing run",
			args: []string{"view", "missing"},
			setup: func(svc *mocks.MockService) {
				svc.On("GetRun", mock.Anything, "missing").Return(fl.RunRecord{}, pkgerrors.ErrNotFound).Once()
			},
			errText: pkgerrors.ErrNotFound.Error(),
		},
		{
			desc:  "view without id",
			args:  []string{"view"},
			setup: func(*mocks.MockService) {},
			out:   []string{"usage: view <id>"},
		},
		{
			desc: "list summarises runs",
			args: []string{"list", "--limit", "5"},
			setup: func(svc *mocks.MockService) {
				svc.On("ListRuns", mock.Anything, uint64(0), uint64(5)).Return(runner.RunPage{
					Limit: 5,
					Total: 1,
					Runs:  []fl.RunRecord{record()},
				}, nil).Once()
			},
			out: []string{"eager-lovelace", "total"},
		},
		{
			desc: "rounds of one phase",
			args: []string{"rounds", runID, "--phase", "evaluate"},
			setup: func(svc *mocks.MockService) {
				svc.On("ListRounds", mock.Anything, runID, fl.PhaseEvaluate).Return(record().RoundsOf(fl.PhaseEvaluate), nil).Once()
			},
			out: []string{"evaluate"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			svc := new(mocks.MockService)
			tc.setup(svc)

			out, errOut := execute(t, svc, tc.args...)
			for _, want := range tc.out {
				assert.Contains(t, out, want)
			}
			if tc.errText != "" {
				assert.Contains(t, errOut, tc.errText)
			}
			svc.AssertExpectations(t)
		})
	}
}
