package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/contactsync/internal/logger"
	"github.com/iudanet/contactsync/internal/server"
	"github.com/iudanet/contactsync/internal/server/config"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "contactsync server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closer, err := logger.New(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting contactsync server",
		"version", Version,
		"storage", cfg.Storage.Driver,
		"timestamp_policy", cfg.Sync.TimestampPolicy,
	)

	store, err := server.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	srv, err := server.New(ctx, cfg, store, log, Version)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Error("Failed to close server", "error", err)
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return err
	}

	log.Info("Server stopped")
	return nil
}

func printVersion() {
	fmt.Printf("contactsync server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
