package runner

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
)

// SweepPlan is the cartesian product of settings a sweep runs through. Every
// other setting comes from the base configuration.
type SweepPlan struct {
	Models     []model.Kind   `json:"models"     toml:"models"     yaml:"models"`
	Strategies []fl.Strategy  `json:"strategies" toml:"strategies" yaml:"strategies"`
	Techniques []fl.Technique `json:"techniques" toml:"techniques" yaml:"techniques"`
}

func DefaultSweepPlan() SweepPlan {
	return SweepPlan{
		Models:     []model.Kind{model.Ridge, model.Lasso, model.SGD},
		Strategies: slices.Clone(fl.Strategies),
		Techniques: slices.Clone(fl.Techniques),
	}
}

// SweepRow summarises one run of a sweep. Metric fields are taken from the
// last fit and evaluate rounds.
type SweepRow struct {
	RunID       string       `json:"run_id"`
	Model       model.Kind   `json:"model_type"`
	Aggregation fl.Strategy  `json:"aggregation_strategy"`
	Technique   fl.Technique `json:"privacy_technique"`
	Rounds      int          `json:"num_rounds"`
	Status      fl.RunStatus `json:"status"`
	Loss        float64      `json:"aggregated_loss"`
	TestMSE     float64      `json:"avg_test_mse"`
	TestMAE     float64      `json:"avg_test_mae"`
	TestR2      float64      `json:"avg_test_r2"`
	TrainMSE    float64      `json:"avg_train_mse"`
	TrainR2     float64      `json:"avg_train_r2"`
	Epsilon     float64      `json:"total_epsilon"`
	Delta       float64      `json:"total_delta"`
	BaselineMSE float64      `json:"baseline_mse"`
	BaselineR2  float64      `json:"baseline_r2"`
	Error       string       `json:"error,omitempty"`
}

// Sweep runs every combination of plan in order. A failing combination is
// recorded in its row and the sweep moves on; only cancellation of ctx stops
// it early, in which case the rows collected so far are returned.
func Sweep(ctx context.Context, svc Service, base fl.RunConfig, plan SweepPlan, logger *slog.Logger) ([]SweepRow, error) {
	rows := make([]SweepRow, 0, len(plan.Models)*len(plan.Strategies)*len(plan.Techniques))
	for _, kind := range plan.Models {
		for _, strategy := range plan.Strategies {
			for _, technique := range plan.Techniques {
				if err := ctx.Err(); err != nil {
					return rows, err
				}

				cfg := base
				cfg.Model = string(kind)
				cfg.Aggregation = strategy
				cfg.Privacy.Technique = technique

				rec, err := svc.StartRun(ctx, cfg)
				row := summarise(rec)
				row.Model = kind
				row.Aggregation = strategy
				row.Technique = technique
				row.Rounds = cfg.Rounds
				if err != nil {
					row.Status = fl.RunFailed
					row.Error = err.Error()
					logger.Warn("Sweep run failed",
						slog.String("model", string(kind)),
						slog.String("aggregation", string(strategy)),
						slog.String("technique", string(technique)),
						slog.Any("error", err),
					)
				}
				rows = append(rows, row)
			}
		}
	}

	return rows, nil
}

func summarise(rec fl.RunRecord) SweepRow {
	row := SweepRow{
		RunID:       rec.ID,
		Status:      rec.Status,
		Epsilon:     rec.Budget.TotalEpsilon,
		Delta:       rec.Budget.TotalDelta,
		BaselineMSE: rec.Baseline["mse"],
		BaselineR2:  rec.Baseline["r2"],
		Error:       rec.Error,
	}
	if fit := rec.RoundsOf(fl.PhaseFit); len(fit) > 0 {
		v := fit[len(fit)-1].Values
		row.TestMSE = v["avg_test_mse"]
		row.TestMAE = v["avg_test_mae"]
		row.TestR2 = v["avg_test_r2"]
		row.TrainMSE = v["avg_train_mse"]
		row.TrainR2 = v["avg_train_r2"]
	}
	if ev := rec.RoundsOf(fl.PhaseEvaluate); len(ev) > 0 {
		row.Loss = ev[len(ev)-1].Values[fl.AggregatedLossKey]
	}

	return row
}

var summaryHeader = []string{
	"run_id", "model_type", "aggregation_strategy", "privacy_technique", "num_rounds", "status",
	"aggregated_loss", "avg_test_mse", "avg_test_mae", "avg_test_r2", "avg_train_mse", "avg_train_r2",
	"total_epsilon", "total_delta", "baseline_mse", "baseline_r2", "error",
}

// WriteSummaryCSV writes one header line followed by one line per row.
func WriteSummaryCSV(w io.Writer, rows []SweepRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.RunID,
			string(r.Model),
			string(r.Aggregation),
			string(r.Technique),
			strconv.Itoa(r.Rounds),
			string(r.Status),
			formatFloat(r.Loss),
			formatFloat(r.TestMSE),
			formatFloat(r.TestMAE),
			formatFloat(r.TestR2),
			formatFloat(r.TrainMSE),
			formatFloat(r.TrainR2),
			formatFloat(r.Epsilon),
			formatFloat(r.Delta),
			formatFloat(r.BaselineMSE),
			formatFloat(r.BaselineR2),
			r.Error,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
