// Package main is the entry point of the reflectmap command.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jhump/reflectserver/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(cmd.NewGlobalState(ctx))
}
