package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/koustreak/dbparser/internal/app"
	"github.com/koustreak/dbparser/internal/config"
	"github.com/koustreak/dbparser/internal/logger"
)

var (
	cfgPath string
	envPath string
	cfg     *config.Config
	log     *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dbparser",
	Short: "Introspect a MySQL schema into a cached table model",
	Long: `dbparser reads table and column metadata from MySQL (SHOW TABLES,
SHOW COLUMNS, SHOW CREATE TABLE), decodes types and foreign keys, and caches
the result in memory, Redis, PostgreSQL or MinIO so that several processes
share one copy.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", envPath, err)
		}

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log = logger.New(&logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: os.Stderr,
		})
		logger.SetGlobal(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (defaults plus environment when empty)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "dotenv file loaded before the config")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp opens the application for the duration of fn.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
