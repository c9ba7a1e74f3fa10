package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/fedround/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const pathEnv = ".env"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		configPath string
		app        *cli.App
	)

	rootCmd := &cobra.Command{
		Use:   "fedround",
		Short: "Federated regression rounds",
		Long:  `fedround trains regression models across simulated participants with FedAvg or FedMed aggregation and optional differential privacy.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(pathEnv); err == nil {
				_ = godotenv.Load(pathEnv)
			}

			// serve logs to stdout like any service; the other commands
			// keep stdout for their JSON output.
			logOut := os.Stderr
			if cmd.Name() == "serve" {
				logOut = os.Stdout
			}

			a, err := cli.Setup(cmd.Context(), configPath, logOut)
			if err != nil {
				return err
			}
			app = a
			cli.SetApp(a)

			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if app == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := app.Close(ctx); err != nil {
				log.Printf("failed to close: %s", err)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML or YAML configuration file")

	rootCmd.AddCommand(
		cli.NewRunCmd(),
		cli.NewSweepCmd(),
		cli.NewRunsCmd(),
		cli.NewWatchCmd(),
		cli.NewServeCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
