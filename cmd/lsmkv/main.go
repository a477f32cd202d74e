package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	lsmhttp "lsmkv/internal/http"
	"lsmkv/pkg/config"
	"lsmkv/pkg/metrics"
	"lsmkv/pkg/store"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	dataDir    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:          "lsmkv",
		Short:        "A small LSM-tree key/value store",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "override engine.data_dir")

	rootCmd.AddCommand(
		newServeCmd(&flags),
		newPutCmd(&flags),
		newGetCmd(&flags),
		newStatsCmd(&flags),
		newCompactCmd(&flags),
		newBenchCmd(),
	)
	return rootCmd
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := initConfig(flags.configPath, flags.dataDir)
	if err != nil {
		return cfg, err
	}
	initLogger(&cfg)
	return cfg, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := metrics.NewRegistry()
	opts := []store.Option{store.WithMetrics(reg)}
	if cfg.Engine.BackgroundCompaction {
		opts = append(opts, store.WithBackgroundCompaction())
	}

	db, err := store.New(cfg.Engine, opts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	server := lsmhttp.NewServer(db, cfg.Server, reg)
	if err := server.Start(); err != nil {
		_ = db.Close()
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down")

	if err := server.Stop(); err != nil {
		slog.Error("Error stopping server", "error", err)
	}
	// flushes whatever is still in the memtable
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	slog.Info("lsmkv stopped")
	return nil
}

// withStore opens the store for a one-shot command and closes it afterwards.
func withStore(flags *globalFlags, fn func(*store.Store) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	db, err := store.New(cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if err := fn(db); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

func newPutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(flags, func(db *store.Store) error {
				if err := db.Put(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored key=%s, value=%s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Retrieve the value for a given key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(flags, func(db *store.Store) error {
				value, found, err := db.Get(args[0])
				if err != nil {
					return err
				}
				if !found {
					fmt.Fprintf(cmd.OutOrStdout(), "Key %s does not exist\n", args[0])
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print engine statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(flags, func(db *store.Store) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(db.Stats())
			})
		},
	}
}

func newCompactCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Run a compaction check against the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(flags, func(db *store.Store) error {
				if err := db.Compact(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "SSTables: %d\n", db.Stats().SSTableCount)
				return nil
			})
		},
	}
}
