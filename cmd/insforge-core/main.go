// Command insforge-core runs the authentication, realtime, and PostgREST
// proxy server described by internal/app.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/insforge/core/internal/app"
	"github.com/insforge/core/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("insforge-core: %v", err)
	}
}
