package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fedround/pkg/cron"
	"github.com/absmach/fedround/pkg/server"
	"github.com/absmach/fedround/runner/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const sweepFileLayout = "20060102T150405"

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API",
		Long: `Serve the HTTP run API, health check and Prometheus metrics until interrupted.
When FL_SWEEP_SCHEDULE holds a cron expression, the configured sweep also runs
at every activation and writes sweep-<timestamp>.csv.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			var schedule *cron.Schedule
			if app.Env.SweepSchedule != "" {
				var err error
				if schedule, err = cron.Parse(app.Env.SweepSchedule, app.Env.SweepTimezone); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)

			hs := server.NewHTTPServer(ctx, cancel, svcName, app.Env.HTTP, api.MakeHandler(app.Service, app.Logger, app.Env.InstanceID), app.Logger)

			g.Go(func() error {
				return hs.Start()
			})

			g.Go(func() error {
				return server.StopSignalHandler(ctx, cancel, app.Logger, svcName, hs)
			})

			if schedule != nil {
				g.Go(func() error {
					return cron.Run(ctx, schedule, app.Logger, scheduledSweep)
				})
			}

			if err := g.Wait(); err != nil {
				app.Logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
			}
		},
	}
}

func scheduledSweep(ctx context.Context) {
	path := fmt.Sprintf("sweep-%s.csv", time.Now().UTC().Format(sweepFileLayout))
	n, err := sweepToFile(ctx, path)
	if err != nil {
		app.Logger.Warn("Scheduled sweep failed", slog.String("path", path), slog.Any("error", err))
	}
	if n > 0 {
		app.Logger.Info("Scheduled sweep completed", slog.String("path", path), slog.Int("runs", n))
	}
}
