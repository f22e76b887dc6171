package types

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/quorumdao/govx/pkg/auth"
	"github.com/quorumdao/govx/pkg/delegation"
	"github.com/quorumdao/govx/pkg/events"
	"github.com/quorumdao/govx/pkg/gov"
	"github.com/quorumdao/govx/pkg/redis"
	"github.com/quorumdao/govx/pkg/store"
)

// App holds the wired service: both engines, their shared store, the
// optional redis event sink, and the HTTP server.
type App struct {
	Store       *store.Store
	Gov         *gov.Engine
	Delegations *delegation.Registry

	Presence auth.PresenceVerifier
	Gate     auth.PrivilegedGate

	// RedisClient is nil when the event sink is disabled.
	RedisClient *redis.Client
	Publisher   *events.Publisher

	Logger *zap.Logger
	Server *http.Server
}

// Start serves HTTP until ctx is cancelled, then shuts everything down.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.RedisClient != nil {
		a.Logger.Info("closing redis connection")
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("failed to close redis connection", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Logger.Info("closing store")
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("failed to close store", zap.Error(err))
		}
	}
}
