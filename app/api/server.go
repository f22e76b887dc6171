package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/quorumdao/govx/app/api/controller"
	"github.com/quorumdao/govx/app/api/types"
	"github.com/quorumdao/govx/pkg/utils"
)

// NewServer builds the HTTP server onto the app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("starting server", zap.String("addr", addr))

	return nil
}
