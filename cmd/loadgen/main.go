package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/crebito/internal/config"
	"github.com/example/crebito/internal/loadgen"
)

func main() {
	var (
		targetURL = pflag.String("url", "http://localhost:8080", "base URL of the ledger service")
		workers   = pflag.Int("workers", 4, "number of concurrent workers")
		duration  = pflag.Duration("duration", 30*time.Second, "how long to drive the workload")
		seed      = pflag.Int64("seed", time.Now().UnixNano(), "base seed for per-worker rand sources")
	)
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	client, err := loadgen.NewClient(*targetURL)
	if err != nil {
		logger.Error("invalid target", "error", err)
		os.Exit(1)
	}

	accounts := make([]int, 0, 5)
	for _, a := range config.ProvisionedAccounts() {
		accounts = append(accounts, a.ID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &loadgen.Runner{
		Client:   client,
		Accounts: accounts,
		Workers:  *workers,
		Duration: *duration,
		Seed:     *seed,
		Logger:   logger,
	}

	logger.Info("starting load run",
		"url", *targetURL,
		"workers", *workers,
		"duration", duration.String(),
	)
	stats, err := runner.Run(ctx)
	if stats != nil {
		logger.Info("run complete",
			"requests", stats.Requests,
			"debits", stats.Debits,
			"rejected_debits", stats.RejectedDebits,
			"credits", stats.Credits,
			"statements", stats.Statements,
			"resets", stats.Resets,
		)
	}
	if err != nil {
		logger.Error("load run failed", "error", err)
		os.Exit(1)
	}
}
