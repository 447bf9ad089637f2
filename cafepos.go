package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cafepos/pkg/app"
)

// main exposes a root-level entry point so operators can simply run `go run cafepos.go`.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "[cafepos] application stopped with error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
