package http

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		}
		if deps.Clusters != nil {
			body["cached_indexes"] = deps.Clusters.Cached()
		}
		return c.JSON(body)
	}
}

// probe is one readiness dependency. Optional probes report "not configured"
// without failing readiness when their check is nil.
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

func (d *Dependencies) probes() []probe {
	var out []probe

	db := probe{name: "database", required: true}
	if d.DB != nil {
		db.check = d.DB.Ping
	}
	out = append(out, db)

	nc := probe{name: "nats"}
	if d.NATS != nil {
		nc.check = func(context.Context) error {
			if !d.NATS.IsConnected() {
				return errDisconnected
			}
			return nil
		}
	}
	out = append(out, nc)

	// A configured cache that stops answering still fails readiness.
	cache := probe{name: "cache"}
	if d.Cache != nil {
		cache.check = d.Cache.Ping
	}
	return append(out, cache)
}

// ReadyHandler runs every dependency probe concurrently.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string)
			allOK  = true
		)
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range deps.probes() {
			if p.check == nil {
				checks[p.name] = "not configured"
				allOK = allOK && !p.required
				continue
			}
			g.Go(func() error {
				err := p.check(gctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					checks[p.name] = "error: " + err.Error()
					allOK = false
				} else {
					checks[p.name] = "ok"
				}
				return nil
			})
		}
		_ = g.Wait()

		body := fiber.Map{"checks": checks}
		if allOK && deps.Listings != nil {
			if v, err := deps.Listings.DataVersion(ctx); err == nil {
				body["data_version"] = v
			}
		}

		code := fiber.StatusOK
		body["status"] = "ready"
		if !allOK {
			code = fiber.StatusServiceUnavailable
			body["status"] = "not ready"
		}
		return c.Status(code).JSON(body)
	}
}
