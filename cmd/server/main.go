// Command server runs the finwell backend HTTP server.
//
// Configuration is read from CONFIG_PATH (or ./config.yaml), with
// environment variables taking precedence.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/finwell/finwell-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
