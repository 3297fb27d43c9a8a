// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis, when REDIS_URL is set)
//  2. initPolicies  — load and validate the connector policy file
//  3. initServices  — cache, budget ledger, health registry, PII firewall,
//     schema registry, oauth2 token cache, Prometheus registry
//  4. initGateway   — proxy pipeline + management routes
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/apibridge/internal/budget"
	npCache "github.com/nulpointcorp/apibridge/internal/cache"
	"github.com/nulpointcorp/apibridge/internal/config"
	"github.com/nulpointcorp/apibridge/internal/health"
	"github.com/nulpointcorp/apibridge/internal/logger"
	"github.com/nulpointcorp/apibridge/internal/metrics"
	"github.com/nulpointcorp/apibridge/internal/oauth2cache"
	"github.com/nulpointcorp/apibridge/internal/pii"
	"github.com/nulpointcorp/apibridge/internal/proxy"
	"github.com/nulpointcorp/apibridge/internal/ratelimit"
	"github.com/nulpointcorp/apibridge/internal/schema"
	"github.com/nulpointcorp/apibridge/internal/tracing"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	audit    *logger.Logger
	memCache *npCache.MemoryCache

	limiter *ratelimit.Distributed
	ledger  *budget.Ledger
	hreg    *health.Registry
	oauth   *oauth2cache.Cache
	firewall *pii.Firewall
	schemas *schema.Registry

	prom       *metrics.Registry
	tracerStop func(context.Context) error

	policies map[string]*config.Policy
	mgmt     *proxy.ManagementRoutes
	gw       *proxy.Gateway
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"policies", a.initPolicies},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("mode", a.cfg.Mode),
		slog.Int("connectors", len(a.policies)),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.gw.StartWithRoutes(addr, a.mgmt)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; concurrent calls are not synchronized.
func (a *App) Close() {
	if a.tracerStop != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracerStop(shutdownCtx); err != nil {
			a.log.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
		cancel()
		a.tracerStop = nil
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Error("audit logger close error", slog.String("error", err.Error()))
		}
		a.audit = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}
