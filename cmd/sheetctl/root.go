package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetbase/internal/config"
	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/logging"
	"github.com/JonMunkholm/sheetbase/internal/store"
	"github.com/JonMunkholm/sheetbase/internal/workbook"
)

var (
	envFile      string
	outputFormat string
	actingUser   int64
)

var rootCmd = &cobra.Command{
	Use:   "sheetctl",
	Short: "Manage sheetbase tables from the command line",
	Long: `sheetctl talks to the sheetbase store directly, using the same
environment configuration as the server (DB_DRIVER, DATABASE_URL, IMPORT_*).

Results are printed as colored text, or as json or yaml with --output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case formatText, formatJSON, formatYAML:
		default:
			return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
		}
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		} else {
			// A missing .env is fine; the environment may be set already
			_ = godotenv.Load()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load configuration from this file instead of .env")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "result format: text, json or yaml")
	rootCmd.PersistentFlags().Int64Var(&actingUser, "user-id", 0, "user id recorded on imported rows and the operation log")
}

// session is an opened store plus the service over it.
type session struct {
	store   core.Store
	service *core.Service
}

func (s *session) Close() { s.store.Close() }

// openSession loads configuration, sets up stderr logging and opens the
// store. Logs go to stderr so stdout carries only results.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	st, err := store.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	svc := core.NewService(st, workbook.Codec{}, core.Options{
		SentinelColumn:   cfg.Import.SentinelColumn,
		PropertiesSuffix: cfg.Import.PropertiesSuffix,
		ImportTimeout:    cfg.Import.Timeout,
		MaxConcurrent:    cfg.Import.MaxConcurrent,
		MaxWaitTime:      cfg.Import.MaxWaitTime,
	})
	return &session{store: st, service: svc}, nil
}
