package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimbl/backend/internal/cli"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(Version, BuildTime)
	c := cli.New(os.Stderr, cli.LogInfo)

	if err := c.RootCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			stop()
			os.Exit(130)
		}
		c.Logger.Error(err)
		stop()
		os.Exit(1)
	}
}
