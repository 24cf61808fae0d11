package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/meterload/internal/config"
	"github.com/JonMunkholm/meterload/internal/core"
	"github.com/JonMunkholm/meterload/internal/logging"
	"github.com/JonMunkholm/meterload/internal/metrics"
)

var (
	envFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "meterload",
		Short:         "Load utility meter exports into the readings database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Overload lets a local .env win over the shell environment.
			if err := godotenv.Overload(envFile); err != nil {
				if cmd.Flags().Changed("env-file") {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
				slog.Debug("no .env file found, using environment variables")
			}
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	profiles *config.Profiles
	service  *core.Service
}

// setup loads configuration, connects to the database and builds the
// service. Metrics are registered with the default registry when
// withMetrics is set and METRICS_ENABLED allows it.
func setup(ctx context.Context, withMetrics bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Debug("configuration loaded", "config", cfg.String())

	profiles, err := config.LoadProfiles(cfg.Ingest.ProfilesPath)
	if err != nil {
		return nil, err
	}

	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := core.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	svcCfg := core.ServiceConfig{
		MaxConcurrent:      cfg.Ingest.MaxConcurrent,
		MaxWait:            cfg.Ingest.MaxWaitTime,
		Timeout:            cfg.Ingest.Timeout,
		FlushSize:          cfg.Ingest.FlushSize,
		StreamingThreshold: cfg.Ingest.StreamingThreshold,
		DiagnosticsLimit:   cfg.Ingest.DiagnosticsLimit,
		Lenient:            cfg.Ingest.Lenient,
	}
	if withMetrics && cfg.Metrics.Enabled {
		svcCfg.Observer = metrics.New(prometheus.DefaultRegisterer)
	}

	slog.Info("meter profiles loaded", "path", cfg.Ingest.ProfilesPath, "meters", len(profiles.Meters))

	return &app{
		cfg:      cfg,
		pool:     pool,
		profiles: profiles,
		service:  core.NewService(pool, svcCfg),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
