package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/projtrack/projtrack/cmd/projtrackctl/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Options{})
	stop()
	os.Exit(code)
}
