package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/urfave/cli/v2"

	"github.com/rubiojr/gaswatch/internal/devserver"
)

func devserverCommand() *cli.Command {
	return &cli.Command{
		Name:  "devserver",
		Usage: "Run an in-memory backend for development",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP server port",
				Value: 8080,
			},
			&cli.Float64Flag{
				Name:  "seed-lat",
				Usage: "Latitude the stations are generated around",
				Value: 40.4168,
			},
			&cli.Float64Flag{
				Name:  "seed-lng",
				Usage: "Longitude the stations are generated around",
				Value: -3.7038,
			},
			&cli.IntFlag{
				Name:  "stations",
				Usage: "Number of stations to generate",
				Value: 200,
			},
			&cli.Float64Flag{
				Name:  "spread",
				Usage: "Radius in kilometers the stations are scattered in",
				Value: 15,
			},
			&cli.StringFlag{
				Name:    "server-token",
				Usage:   "Require this bearer token on favorites routes",
				EnvVars: []string{"GASWATCH_SERVER_TOKEN"},
			},
			&cli.IntFlag{
				Name:  "rate-limit",
				Usage: "Requests per minute allowed per IP, 0 disables",
				Value: 120,
			},
		},
		Action: devserverAction,
	}
}

func devserverAction(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := httplog.NewLogger("gaswatch-devserver", httplog.Options{
		JSON:            false,
		LogLevel:        level,
		Concise:         true,
		QuietDownPeriod: 10 * time.Second,
	})

	data := devserver.NewDataset(devserver.SeedOptions{
		Latitude:  c.Float64("seed-lat"),
		Longitude: c.Float64("seed-lng"),
		Stations:  c.Int("stations"),
		SpreadKm:  c.Float64("spread"),
	})
	srv := devserver.New(data, devserver.Options{
		Logger:    logger,
		RateLimit: c.Int("rate-limit"),
		Token:     c.String("server-token"),
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", c.Int("port"))
	return srv.ListenAndServe(ctx, addr)
}
