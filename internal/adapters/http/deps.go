package http

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/propmap/propmap/internal/adapters/postgres"
	"github.com/propmap/propmap/internal/adapters/valkey"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/core/usecases"
)

// SessionSettings tunes WebSocket map sessions.
type SessionSettings struct {
	// Debounce applies to clients that do not report settled moves.
	Debounce time.Duration
	// IdleTimeout closes sessions without client traffic. Zero disables it.
	IdleTimeout time.Duration
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Clusters *usecases.ClusterService
	Listings ports.ListingRepository
	Sessions SessionSettings
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
	Logger   *slog.Logger
	// DocsPath locates the OpenAPI document; empty means DefaultDocsPath.
	DocsPath string
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
