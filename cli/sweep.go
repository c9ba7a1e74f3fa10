package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/absmach/fedround/runner"
	"github.com/spf13/cobra"
)

const filePermission = 0o644

var (
	summaryPath string

	errNoRows = errors.New("sweep produced no runs")
)

func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every model, strategy and technique combination",
		Long: `Run one federated training per combination of the [sweep] models,
strategies and techniques, and write one summary row per run to a CSV file.

Examples:
  fedround sweep --config fedround.toml --out resumen_resultados.csv`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			n, err := sweepToFile(cmd.Context(), summaryPath)
			if err != nil {
				logErrorCmd(*cmd, err)
			}
			if n > 0 {
				logSuccessCmd(*cmd, fmt.Sprintf("Wrote %d runs to %s", n, summaryPath))
			}
		},
	}

	cmd.Flags().StringVarP(&summaryPath, "out", "o", "resumen_resultados.csv", "Summary CSV path")

	return cmd
}

// sweepToFile runs the configured sweep and writes whatever rows it produced
// to path, even when the sweep was interrupted.
func sweepToFile(ctx context.Context, path string) (int, error) {
	rows, sweepErr := runner.Sweep(ctx, app.Service, app.Config.Run, app.Config.Sweep, app.Logger)
	if len(rows) == 0 {
		return 0, errors.Join(errNoRows, sweepErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermission)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := runner.WriteSummaryCSV(f, rows); err != nil {
		return 0, err
	}

	return len(rows), sweepErr
}
