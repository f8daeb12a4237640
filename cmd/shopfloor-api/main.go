package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jigged/shopfloor/pkg/channels/kafka"
	"github.com/jigged/shopfloor/pkg/cmd"
	"github.com/jigged/shopfloor/pkg/engine"
	"github.com/jigged/shopfloor/pkg/eventbus"
	"github.com/jigged/shopfloor/pkg/identity"
	"github.com/jigged/shopfloor/pkg/log"
	"github.com/jigged/shopfloor/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "shopfloor-api",
		Usage:                 "Route work orders through shop-floor stations",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file://dir or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "identity-file",
				Usage:    "YAML roster of actors and their roles",
				Required: true,
				Sources:  cli.EnvVars("IDENTITY_FILE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "occupancy-backend",
				Usage:   "Station occupancy registry (memory, redis)",
				Value:   "memory",
				Sources: cli.EnvVars("OCCUPANCY_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the redis occupancy backend",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "occupancy-max-age",
				Usage:   "Release station occupancies held longer than this (0 disables)",
				Value:   12 * time.Hour,
				Sources: cli.EnvVars("OCCUPANCY_MAX_AGE"),
			},
			&cli.StringFlag{
				Name:    "occupancy-sweep",
				Usage:   "Cron schedule of the occupancy expiry sweep",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("OCCUPANCY_SWEEP_CRON"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Shopfloor API")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := store.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	roster, err := identity.LoadRosterFile(command.String("identity-file"))
	if err != nil {
		return err
	}

	registry, err := cmd.NewOccupancyRegistry(ctx, command.String("occupancy-backend"), command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := registry.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close occupancy registry", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), kafka.ParseBrokers(command.String("kafka-brokers")), logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	err = eventbus.NewAuditLog(logger).Register(eventBus)
	if err != nil {
		return err
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPublisher(eventBus),
	}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "shopfloor-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			err := shutdown(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		opts = append(opts, engine.WithTracer(tracer))
	}

	shopfloor := engine.New(store, roster, registry, opts...)

	err = shopfloor.Start(ctx)
	if err != nil {
		return err
	}

	if maxAge := command.Duration("occupancy-max-age"); maxAge > 0 {
		sweeper, err := cmd.NewOccupancySweeper(shopfloor, command.String("occupancy-sweep"), maxAge, logger)
		if err != nil {
			return err
		}

		err = sweeper.Start(ctx)
		if err != nil {
			return err
		}

		defer sweeper.Stop()
	}

	api := NewAPI(logger, shopfloor)

	err = api.Start(command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start Shopfloor API", "error", err)

		return err
	}

	return nil
}
