// Command repoquery runs a query descriptor against a database and prints the
// hydrated result, the planned SQL or the entity metadata.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"repoquery/internal/config"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("repoquery error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := config.NewFlagSet("repoquery")
	opts := defineCommandFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.version {
		fmt.Fprintf(stdout, "repoquery %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.LoadFromFlags(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	app, err := newApp(cfg, opts, stdout)
	if err != nil {
		return err
	}
	defer app.close(context.Background())

	return app.execute(ctx)
}
