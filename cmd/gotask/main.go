package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BuzzLyutic/gotask/internal/cli"
	"github.com/BuzzLyutic/gotask/internal/config"
)

func main() {
	cfg, err := config.LoadFile(os.Getenv("GOTASK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Client.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.NewApp(cfg, logger, os.Stdout))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cli.Message(err))
		stop()
		os.Exit(1)
	}
}
