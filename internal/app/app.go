// Package app wires the fulfillment core together: configuration, logging,
// database, Genkit providers, routing, retrieval, and the turn engine.
package app

import (
	"context"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatcart/chatcart/internal/config"
	"github.com/chatcart/chatcart/internal/engine"
	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider/router"
)

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit
	DBPool *pgxpool.Pool
	Router *router.Router
	Engine *engine.Engine

	dbCleanup func()
	cancel    context.CancelFunc
}

// Close releases everything Setup acquired. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}
	return nil
}
