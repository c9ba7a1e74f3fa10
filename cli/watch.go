package cli

import (
	"context"
	"time"

	"github.com/absmach/fedround/pkg/mqtt"
	"github.com/absmach/fedround/runner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow round and run events",
		Long:  `Subscribe to the MQTT round and run topics and print every event until interrupted.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := app.Env.MQTT
			cfg.ClientID = cfg.ClientID + "-watch-" + uuid.NewString()[:8]
			ps, err := mqtt.NewPubSub(cfg, app.Logger)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = ps.Disconnect(ctx)
			}()

			show := func(topic string, msg map[string]any) error {
				logJSONCmd(*cmd, map[string]any{"topic": topic, "event": msg})

				return nil
			}

			ctx := cmd.Context()
			for _, topic := range []string{runner.RoundsTopic(cfg.BaseTopic), runner.RunsTopic(cfg.BaseTopic)} {
				if err := ps.Subscribe(ctx, topic, show); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			logSuccessCmd(*cmd, "Watching "+cfg.Address)

			<-ctx.Done()
		},
	}
}
