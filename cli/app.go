// Package cli holds the fedround cobra commands and the process wiring they
// share: logging, tracing, metrics, storage, MQTT and the run service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/absmach/fedround"
	"github.com/absmach/fedround/coordinator"
	cmw "github.com/absmach/fedround/coordinator/middleware"
	"github.com/absmach/fedround/pkg/monitor"
	"github.com/absmach/fedround/pkg/mqtt"
	"github.com/absmach/fedround/pkg/prometheus"
	"github.com/absmach/fedround/pkg/sdk"
	"github.com/absmach/fedround/pkg/server"
	"github.com/absmach/fedround/pkg/storage"
	"github.com/absmach/fedround/pkg/tracing"
	"github.com/absmach/fedround/runner"
	"github.com/absmach/fedround/runner/middleware"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const svcName = "fedround"

// Env is the process environment, read with the FL_ prefix.
type Env struct {
	LogLevel        string         `env:"LOG_LEVEL"        envDefault:"info"`
	InstanceID      string         `env:"INSTANCE_ID"`
	OTELURL         url.URL        `env:"OTEL_URL"`
	TraceRatio      float64        `env:"TRACE_RATIO"      envDefault:"0"`
	MQTTEnabled     bool           `env:"MQTT_ENABLED"     envDefault:"false"`
	MonitorEnabled  bool           `env:"MONITOR_ENABLED"  envDefault:"true"`
	MonitorInterval time.Duration  `env:"MONITOR_INTERVAL" envDefault:"1s"`
	SweepSchedule   string         `env:"SWEEP_SCHEDULE"`
	SweepTimezone   string         `env:"SWEEP_TIMEZONE"   envDefault:"UTC"`
	MQTT            mqtt.Config    `envPrefix:"MQTT_"`
	Storage         storage.Config `envPrefix:"STORAGE_"`
	HTTP            server.Config  `envPrefix:"HTTP_"`
	Remote          sdk.Config     `envPrefix:"REMOTE_"`
}

// App is everything a command needs once the process is wired.
type App struct {
	Env     Env
	Config  *fedround.Config
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Service runner.Service
	PubSub  mqtt.PubSub

	repos           *storage.Repositories
	shutdownTracing func(context.Context) error
}

var app *App

func SetApp(a *App) {
	app = a
}

// Setup reads the environment and the optional config file and builds the
// run service with its middleware. Logs are written as JSON to logOut.
func Setup(ctx context.Context, configPath string, logOut io.Writer) (*App, error) {
	var ev Env
	if err := env.ParseWithOptions(&ev, env.Options{Prefix: fedround.EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if ev.InstanceID == "" {
		ev.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(ev.LogLevel)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := fedround.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	tp, shutdown, err := tracing.Provider(ctx, svcName, ev.OTELURL, ev.InstanceID, ev.TraceRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}

	a := &App{
		Env:             ev,
		Config:          cfg,
		Logger:          logger,
		Tracer:          tp.Tracer(svcName),
		shutdownTracing: shutdown,
	}

	// With a remote server configured, every command goes through its API.
	if ev.Remote.ServerURL != "" {
		var svc runner.Service = sdk.NewSDK(ev.Remote)
		svc = middleware.Logging(logger, svc)
		a.Service = middleware.Tracing(a.Tracer, svc)

		return a, nil
	}

	a.repos, err = storage.NewRepositories(ctx, ev.Storage)
	if err != nil {
		_ = a.Close(ctx)

		return nil, fmt.Errorf("failed to initialize %s storage: %w", ev.Storage.Type, err)
	}

	runMetrics := prometheus.MakeRunMetrics(svcName)
	stratCounter, stratLatency := prometheus.MakeMetrics(svcName, "coordinator")
	opts := []runner.Option{
		runner.WithInstruments(runner.Instruments{
			Rounds:   runMetrics.Rounds,
			Failures: runMetrics.Failures,
			Degraded: runMetrics.Degraded,
			Loss:     runMetrics.Loss,
		}),
		runner.WithStrategyMiddleware(func(s coordinator.Strategy) coordinator.Strategy {
			s = cmw.Logging(logger, s)
			s = cmw.Tracing(a.Tracer, s)

			return cmw.Metrics(stratCounter, stratLatency, s)
		}),
	}

	if ev.MonitorEnabled {
		mon, err := monitor.New(ev.MonitorInterval, logger)
		if err != nil {
			logger.Warn("Process monitoring unavailable", slog.Any("error", err))
		} else {
			opts = append(opts, runner.WithResourceMonitor(mon))
		}
	}

	if ev.MQTTEnabled {
		a.PubSub, err = mqtt.NewPubSub(ev.MQTT, logger)
		if err != nil {
			_ = a.Close(ctx)

			return nil, fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
		}
		opts = append(opts, runner.WithNotifier(runner.NewMQTTNotifier(a.PubSub, ev.MQTT.BaseTopic)))
	}

	svc := runner.NewService(a.repos.Runs, logger, opts...)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(a.Tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	a.Service = middleware.Metrics(counter, latency, svc)

	return a, nil
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.PubSub != nil {
		errs = append(errs, a.PubSub.Disconnect(ctx))
	}
	if a.repos != nil {
		errs = append(errs, a.repos.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}

	return errors.Join(errs...)
}
