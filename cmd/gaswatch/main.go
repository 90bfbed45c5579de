package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/rubiojr/gaswatch/internal/config"
	"github.com/rubiojr/gaswatch/internal/search"
	"github.com/rubiojr/gaswatch/internal/session"
	"github.com/rubiojr/gaswatch/internal/storage"
	"github.com/rubiojr/gaswatch/pkg/api"
)

const clientBurst = 5

func main() {
	// GASWATCH_* variables may also come from a .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	app := &cli.App{
		Name:  "gaswatch",
		Usage: "Find nearby gas stations, track prices and manage favorites",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Config file",
				Value:   config.DefaultConfigPath,
				EnvVars: []string{"GASWATCH_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Log debug output to stderr",
				EnvVars: []string{"GASWATCH_DEBUG"},
			},
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Backend base URL",
				EnvVars: []string{"GASWATCH_API_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Backend access token",
				EnvVars: []string{"GASWATCH_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Local database file",
				EnvVars: []string{"GASWATCH_DB"},
			},
		},
		Commands: []*cli.Command{
			nearbyCommand(),
			stationCommand(),
			favoritesCommand(),
			recentCommand(),
			fuelsCommand(),
			searchesCommand(),
			devserverCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	if c.Bool("debug") {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.DiscardHandler)
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if v := c.String("api-url"); v != "" {
		cfg.APIURL = v
	}
	if v := c.String("token"); v != "" {
		cfg.Token = v
	}
	if v := c.String("db"); v != "" {
		cfg.DBPath = v
	}
	return cfg, nil
}

type env struct {
	cfg     config.Config
	log     *slog.Logger
	storage *storage.Storage
	session *session.Session
}

func (e *env) Close() error {
	return e.storage.Close()
}

// newEnv opens the local database and builds a session against the
// configured backend.
func newEnv(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log := newLogger(c)

	st, err := storage.NewStorage(c.Context, cfg.DBPath, log.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("error initializing storage: %w", err)
	}

	client := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.Timeout),
		api.WithToken(cfg.Token),
		api.WithRateLimit(cfg.RateLimit, clientBurst),
		api.WithLogger(log.With("component", "api")),
	)
	s := session.New(client, st, session.Options{
		PageSize: cfg.PageSize,
		Filters: search.Filters{
			Radius:  cfg.Radius,
			Sort:    cfg.Sort,
			Product: cfg.Product,
		},
		CatalogTTL: cfg.CatalogTTL,
		Logger:     log,
	})

	return &env{cfg: cfg, log: log, storage: st, session: s}, nil
}
