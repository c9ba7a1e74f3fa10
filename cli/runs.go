package cli

import (
	"github.com/absmach/fedround/pkg/fl"
	"github.com/spf13/cobra"
)

var (
	interactive bool
	fullRecord  bool
	phase       string
	offset      uint64
	limit       uint64
)

// runSummary is what run prints unless --full is given; the parameter
// tensors and per-round values are left out.
type runSummary struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Status    fl.RunStatus       `json:"status"`
	Error     string             `json:"error,omitempty"`
	Rounds    int                `json:"rounds"`
	Final     map[string]float64 `json:"final,omitempty"`
	Budget    fl.PrivacyBudget   `json:"budget"`
	Privacy   map[string]any     `json:"privacy"`
	Baseline  map[string]float64 `json:"baseline,omitempty"`
	Resources map[string]float64 `json:"resources,omitempty"`
}

func summarise(rec fl.RunRecord) runSummary {
	s := runSummary{
		ID:        rec.ID,
		Name:      rec.Name,
		Status:    rec.Status,
		Error:     rec.Error,
		Rounds:    len(rec.RoundsOf(fl.PhaseFit)),
		Budget:    rec.Budget,
		Privacy:   rec.Privacy,
		Baseline:  rec.Baseline,
		Resources: rec.Resources,
	}
	if ev := rec.RoundsOf(fl.PhaseEvaluate); len(ev) > 0 {
		s.Final = ev[len(ev)-1].Values
	}

	return s
}

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a federated training",
		Long: `Run one federated training with the loaded configuration and store its record.

Examples:
  # Run with defaults and FL_ environment overrides
  fedround run

  # Run from a file and pick model, strategy and technique interactively
  fedround run --config fedround.toml --interactive`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := app.Config.Run
			if interactive {
				if err := promptRunConfig(&cfg); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			rec, err := app.Service.StartRun(cmd.Context(), cfg)
			if err != nil {
				logErrorCmd(*cmd, err)
				if rec.ID == "" {
					return
				}
			}
			if fullRecord {
				logJSONCmd(*cmd, rec)

				return
			}
			logJSONCmd(*cmd, summarise(rec))
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Choose model, strategy and privacy technique interactively")
	cmd.Flags().BoolVar(&fullRecord, "full", false, "Print the whole run record, including history and parameters")

	return cmd
}

func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [list|view|rounds]",
		Short: "Stored runs",
		Long:  `List and inspect stored run records.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Long:  `List stored runs, oldest first.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := app.Service.ListRuns(cmd.Context(), offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			summaries := make([]runSummary, len(page.Runs))
			for i, rec := range page.Runs {
				summaries[i] = summarise(rec)
			}
			logJSONCmd(*cmd, map[string]any{
				"offset": page.Offset,
				"limit":  page.Limit,
				"total":  page.Total,
				"runs":   summaries,
			})
		},
	}
	listCmd.Flags().Uint64VarP(&offset, "offset", "o", defOffset, "Offset")
	listCmd.Flags().Uint64VarP(&limit, "limit", "l", defLimit, "Limit")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View run",
		Long:  `View a stored run record.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rec, err := app.Service.GetRun(cmd.Context(), args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rec)
		},
	}

	roundsCmd := &cobra.Command{
		Use:   "rounds <id>",
		Short: "View run history",
		Long:  `View the round history of a stored run, optionally one phase only.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rounds, err := app.Service.ListRounds(cmd.Context(), args[0], fl.Phase(phase))
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rounds)
		},
	}
	roundsCmd.Flags().StringVarP(&phase, "phase", "p", "", "Phase to show: fit or evaluate")

	cmd.AddCommand(listCmd, viewCmd, roundsCmd)

	return cmd
}
