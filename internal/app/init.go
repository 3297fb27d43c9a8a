package app

import (
	"context"
	"fmt"
	"log/slog"

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

// initInfra establishes optional external connections. Redis backs the
// distributed rate limiter and budget ledger when REDIS_URL is set; both
// components degrade to in-process state on their own when it isn't, so a
// missing Redis URL is not a startup error here.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Redis.URL == "" {
		a.log.Info("redis not configured: rate limiting and budget tracking run in-process")
		return nil
	}

	a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

	rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
	if err != nil {
		a.log.Warn("redis unavailable, degrading to in-process state", slog.String("error", err.Error()))
		return nil
	}
	a.rdb = rdb
	a.log.Info("redis connected")

	return nil
}

// initPolicies loads and validates the connector policy file named by
// CONNECTORS_FILE. At least one connector must be declared.
func (a *App) initPolicies(_ context.Context) error {
	policies, err := config.LoadPoliciesFile(a.cfg.ConnectorsFile)
	if err != nil {
		return fmt.Errorf("connector policies: %w", err)
	}
	if len(policies) == 0 {
		return fmt.Errorf("no connectors declared in %s", a.cfg.ConnectorsFile)
	}

	names := make([]string, 0, len(policies))
	for n := range policies {
		names = append(names, n)
	}
	a.log.Info("connector policies loaded", slog.Any("connectors", names))

	a.policies = policies
	return nil
}

// initServices builds the cache, budget ledger, health registry, PII
// firewall, schema registry, OAuth2 token cache, metrics registry, and
// (when enabled) the OpenTelemetry tracer provider.
func (a *App) initServices(ctx context.Context) error {
	a.memCache = npCache.NewMemoryCache(ctx)

	a.limiter = ratelimit.NewDistributed(a.rdb)
	a.ledger = budget.New(a.rdb)
	a.hreg = health.New()
	a.oauth = oauth2cache.New()
	a.schemas = schema.NewRegistry()
	registerModels(a.schemas)

	if a.cfg.PIIEncryptionKey != "" {
		a.firewall = pii.New(a.cfg.PIIEncryptionKey)
	}

	auditLog, err := logger.New(a.baseCtx, a.log)
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}
	a.audit = auditLog

	a.prom = metrics.New(a.version, a.cfg.Mode)

	if a.cfg.Tracing.Enabled {
		stop, err := tracing.Setup(ctx, a.cfg.Tracing.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		a.tracerStop = stop
		a.log.Info("tracing enabled", slog.String("endpoint", a.cfg.Tracing.OTLPEndpoint))
	}

	for _, policy := range a.policies {
		if policy.PII != nil && policy.PII.Enabled && a.firewall == nil {
			a.log.Warn("connector has pii policy but PII_ENCRYPTION_KEY is unset; firewall disabled",
				slog.String("connector", policy.Name))
		}
		if policy.ResponseModel != "" && !a.schemas.Registered(policy.ResponseModel) {
			a.log.Warn("connector names an unregistered response_model; schema validation skipped",
				slog.String("connector", policy.Name), slog.String("response_model", policy.ResponseModel))
		}
	}

	return nil
}

// initGateway wires every subsystem into the Gateway pipeline.
func (a *App) initGateway(_ context.Context) error {
	a.gw = proxy.New(proxy.Deps{
		Policies:        a.policies,
		Mode:            a.cfg.Mode,
		CORSOrigins:     a.cfg.CORSOrigins,
		MaxRequestBytes: a.cfg.MaxRequestSizeMB * 1024 * 1024,
		AuthEnabled:     a.cfg.Auth.Enabled,
		ValidAPIKeys:    a.cfg.Auth.ValidKeys,

		Limiter: a.limiter,
		Cache:   a.memCache,
		Budget:  a.ledger,
		Health:  a.hreg,
		OAuth:   a.oauth,
		PII:     a.firewall,
		Schemas: a.schemas,
		Metrics: a.prom,
		Audit:   a.audit,
	})

	a.mgmt = &proxy.ManagementRoutes{
		Metrics: a.prom.Handler(),
	}

	return nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			// Find the scheme end ("://") and keep only scheme + "***" + @host.
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
