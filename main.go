package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/biolock/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
