// Command memoriva serves the study API and imports decks.
//
// Usage:
//
//	memoriva serve  [flags]
//	memoriva import --deck NAME --source PATH|GIT_URL [flags]
//	memoriva sync   [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devyk100/memoriva/internal/cache"
	"github.com/devyk100/memoriva/internal/config"
	"github.com/devyk100/memoriva/internal/importer"
	"github.com/devyk100/memoriva/internal/limits"
	"github.com/devyk100/memoriva/internal/storage"
	"github.com/devyk100/memoriva/internal/study"
	"github.com/devyk100/memoriva/internal/web"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("memoriva failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	config.Flags(fs)
	deck := fs.String("deck", "", "Deck to import into (import only)")
	source := fs.String("source", "", "Local directory or git URL to import (import only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("Database opened", "driver", cfg.Database.Driver)

	switch cmd {
	case "serve":
		return serve(ctx, cfg, db)
	case "import":
		if *deck == "" || *source == "" {
			return errors.New("import needs --deck and --source")
		}
		im := importer.New(db, cfg.Import.ReposDir)
		src, err := im.AddSource(ctx, *deck, *source)
		if err != nil {
			return err
		}
		report, err := im.SyncSource(ctx, src)
		if err != nil {
			return err
		}
		printReports(report)
		return nil
	case "sync":
		reports, err := importer.New(db, cfg.Import.ReposDir).SyncAll(ctx)
		if err != nil {
			return err
		}
		printReports(reports...)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printReports(reports ...importer.Report) {
	for _, r := range reports {
		fmt.Printf("%s: %d parsed, %d inserted, %d deleted, %d errors\n", r.Path, r.Parsed, r.Inserted, r.Deleted, len(r.Errors))
		for _, e := range r.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, db *storage.DB) error {
	logger := slog.Default()

	params, err := cfg.SRSParams()
	if err != nil {
		return err
	}

	cacheClient, err := cache.New(cfg.CacheOptions(), logger)
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	// The service runs on durable storage alone until the cache comes up.
	if err := cacheClient.Connect(ctx); err != nil {
		slog.Warn("Cache unavailable at startup", "error", err)
	}
	monitor := cache.NewMonitor(cacheClient, cfg.Redis.HealthInterval)
	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()

	tracker := limits.NewTracker(cacheClient, db, logger,
		limits.WithDefaults(cfg.DefaultDeckSettings()),
		limits.WithLocation(params.Location),
	)
	svc := study.New(db, cacheClient, tracker, params, cfg.StudyOptions(), logger)
	im := importer.New(db, cfg.Import.ReposDir)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewServer(svc, im, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
