package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"licensehub/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		application.Logger.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
