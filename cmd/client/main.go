package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/contactsync/internal/client/cli"
	"github.com/iudanet/contactsync/internal/client/iocli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.Run(ctx, os.Args[1:], cli.Env{
		IO:     iocli.NewStdio(),
		Stderr: os.Stderr,
		Build: cli.BuildInfo{
			Version:   Version,
			BuildDate: BuildDate,
			GitCommit: GitCommit,
		},
	})
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
