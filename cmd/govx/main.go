package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/quorumdao/govx/app/api"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := api.Initialize(ctx)

	if err := api.NewServer(app); err != nil {
		app.Logger.Fatal("unable to initialize server", zap.Error(err))
	}

	app.Start(ctx)
}
