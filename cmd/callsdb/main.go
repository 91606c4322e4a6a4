package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/go-extras/cobraflags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"facility-calls-backend/config"
	"facility-calls-backend/internal/db"
	"facility-calls-backend/internal/obs"
	"facility-calls-backend/internal/store"
)

const (
	configFlag = "config"
	tenantFlag = "tenant"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootFlags := map[string]cobraflags.Flag{
		configFlag: &cobraflags.StringFlag{
			Name:       configFlag,
			Value:      "",
			Usage:      "Path to the configuration file (defaults to $CONFIG_PATH or ./config/config.yaml)",
			Persistent: true,
		},
	}
	statsFlags := map[string]cobraflags.Flag{
		tenantFlag: &cobraflags.StringFlag{
			Name:  tenantFlag,
			Value: "",
			Usage: "Restrict the counts to one tenant id",
		},
	}

	root := &cobra.Command{
		Use:           "callsdb",
		Short:         "Maintenance commands for the facility calls database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cobraflags.RegisterMap(root, rootFlags)
	open := func(cmd *cobra.Command, fn func(ctx context.Context, s *store.Store, logger *zap.Logger) error) error {
		return withStore(cmd.Context(), configPath(rootFlags[configFlag]), fn)
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema of every entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return open(cmd, func(ctx context.Context, s *store.Store, logger *zap.Logger) error {
				if err := db.Migrate(s.DB()); err != nil {
					return err
				}
				logger.Info("schema migrated")
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "purge-tenant <tenant-id>",
		Short: "Delete a tenant and every row it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return open(cmd, func(ctx context.Context, s *store.Store, _ *zap.Logger) error {
				deleted, err := s.Tenants.Purge(ctx, args[0])
				if err != nil {
					return err
				}
				printCounts(cmd, deleted)
				return nil
			})
		},
	})

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print row counts per entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return open(cmd, func(ctx context.Context, s *store.Store, _ *zap.Logger) error {
				counts, err := s.Stats(ctx, statsFlags[tenantFlag].GetString())
				if err != nil {
					return err
				}
				printCounts(cmd, counts)
				return nil
			})
		},
	}
	cobraflags.RegisterMap(statsCmd, statsFlags)
	root.AddCommand(statsCmd)

	return root
}

func configPath(flag cobraflags.Flag) string {
	if path := flag.GetString(); path != "" {
		return path
	}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "./config/config.yaml" // Default path for local development
}

// withStore loads the configuration, opens the database and runs fn against a store.
func withStore(ctx context.Context, path string, fn func(ctx context.Context, s *store.Store, logger *zap.Logger) error) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}

	logger, err := obs.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger.Debug("configuration loaded", zap.String("path", path))

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	metrics := obs.NewMetrics(prometheus.NewRegistry())
	s := store.New(gormDB, store.OptionsFromConfig(cfg), logger, metrics)
	return fn(ctx, s, logger)
}

func printCounts(cmd *cobra.Command, counts map[string]int64) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", name, counts[name])
	}
}
