package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetbase/internal/config"
	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/logging"
	"github.com/JonMunkholm/sheetbase/internal/store"
	"github.com/JonMunkholm/sheetbase/internal/web"
	"github.com/JonMunkholm/sheetbase/internal/workbook"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"db_driver", cfg.Database.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"api_key_required", cfg.Security.RequireAPIKey,
	)

	ctx := context.Background()
	st, err := store.Open(ctx, &cfg.Database)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	service := core.NewService(st, workbook.Codec{}, core.Options{
		SentinelColumn:   cfg.Import.SentinelColumn,
		PropertiesSuffix: cfg.Import.PropertiesSuffix,
		ImportTimeout:    cfg.Import.Timeout,
		MaxConcurrent:    cfg.Import.MaxConcurrent,
		MaxWaitTime:      cfg.Import.MaxWaitTime,
	})

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests, then let running imports finish
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server failed", "error", err)
		st.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
