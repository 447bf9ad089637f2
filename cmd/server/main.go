package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cafepos/pkg/app"
)

// main acts as a thin adapter so existing process managers can keep using cmd/server.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "[cafepos] application stopped with error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
