package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vrpgoal/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.Execute(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "vrpgoal:", err)
		stop()
		os.Exit(1)
	}
}
