// Package proxy implements the HTTP ingress surface and the router/
// pipeline state machine (C12) that resolves a connector policy, admits
// the request, ranks candidate providers, executes the upstream call
// with retry/failover, and applies the post-success transform/PII/
// schema/budget/cache steps.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/apibridge/internal/budget"
	"github.com/nulpointcorp/apibridge/internal/cache"
	"github.com/nulpointcorp/apibridge/internal/config"
	"github.com/nulpointcorp/apibridge/internal/health"
	"github.com/nulpointcorp/apibridge/internal/logger"
	"github.com/nulpointcorp/apibridge/internal/metrics"
	"github.com/nulpointcorp/apibridge/internal/oauth2cache"
	"github.com/nulpointcorp/apibridge/internal/pii"
	"github.com/nulpointcorp/apibridge/internal/ratelimit"
	"github.com/nulpointcorp/apibridge/internal/schema"
	"github.com/nulpointcorp/apibridge/internal/tracing"
	"github.com/nulpointcorp/apibridge/internal/transform"
	"github.com/nulpointcorp/apibridge/pkg/apierr"
)

// Gateway is the assembled pipeline: one instance wires every component
// (C1–C11) behind the proxy entry point.
type Gateway struct {
	policies map[string]*config.Policy
	mode     string

	corsOrigins     []string
	maxRequestBytes int
	authEnabled     bool
	validAPIKeys    map[string]struct{}

	limiter  *ratelimit.Distributed
	cache    cache.Cache
	budget   *budget.Ledger
	health   *health.Registry
	oauth    *oauth2cache.Cache
	pii      *pii.Firewall
	schemas  *schema.Registry
	metrics  *metrics.Registry
	audit    *logger.Logger
	httpClient *http.Client
}

// Deps bundles the constructed components a Gateway needs.
type Deps struct {
	Policies        map[string]*config.Policy
	Mode            string
	CORSOrigins     []string
	MaxRequestBytes int
	AuthEnabled     bool
	ValidAPIKeys    []string

	Limiter *ratelimit.Distributed
	Cache   cache.Cache
	Budget  *budget.Ledger
	Health  *health.Registry
	OAuth   *oauth2cache.Cache
	PII     *pii.Firewall
	Schemas *schema.Registry
	Metrics *metrics.Registry
	Audit   *logger.Logger
}

// New assembles a Gateway from its dependencies.
func New(d Deps) *Gateway {
	keys := make(map[string]struct{}, len(d.ValidAPIKeys))
	for _, k := range d.ValidAPIKeys {
		keys[k] = struct{}{}
	}

	return &Gateway{
		policies:        d.Policies,
		mode:            d.Mode,
		corsOrigins:     d.CORSOrigins,
		maxRequestBytes: d.MaxRequestBytes,
		authEnabled:     d.AuthEnabled,
		validAPIKeys:    keys,
		limiter:         d.Limiter,
		cache:           d.Cache,
		budget:          d.Budget,
		health:          d.Health,
		oauth:           d.OAuth,
		pii:             d.PII,
		schemas:         d.Schemas,
		metrics:         d.Metrics,
		audit:           d.Audit,
		httpClient:      &http.Client{},
	}
}

type candidate struct {
	Name    string
	BaseURL string
	Weight  int
	Auth    config.AuthSpec
	Key     string
}

// proxy is §4.12's entry point: proxy(connector, residual_path, request).
func (g *Gateway) proxy(ctx *fasthttp.RequestCtx, connector, residualPath string) {
	start := time.Now()
	method := string(ctx.Method())

	_, finishSpan := tracing.ProxySpan(ctx, connector)
	var pipelineErr error
	defer func() { finishSpan(pipelineErr) }()

	// Step 1: resolve policy.
	policy, ok := g.policies[connector]
	if !ok {
		apierr.WriteUnknownConnector(ctx, connector)
		g.metrics.RecordRequest(connector, method, fasthttp.StatusNotFound, time.Since(start).Seconds())
		return
	}

	// Step 2: admit path.
	if !policy.PathAllowed("/" + residualPath) {
		apierr.WritePathNotAllowed(ctx)
		g.metrics.RecordRequest(connector, method, fasthttp.StatusForbidden, time.Since(start).Seconds())
		return
	}

	// Step 3: rate limit.
	if !g.limiter.Allow(ctx, "rl:"+connector, float64(policy.RateLimit.Capacity), policy.RateLimit.RefillPerSec) {
		g.metrics.RecordRateLimitExceeded(connector)
		apierr.WriteRateLimit(ctx)
		g.metrics.RecordRequest(connector, method, fasthttp.StatusTooManyRequests, time.Since(start).Seconds())
		return
	}

	// Step 4: snapshot request.
	headers := snapshotHeaders(ctx)
	query := cloneQuery(ctx)
	rawQuery := string(ctx.QueryArgs().QueryString())
	body := append([]byte(nil), ctx.PostBody()...)

	// Step 5: select candidates.
	candidates, miscfg := g.selectCandidates(connector, policy)
	if miscfg {
		apierr.WriteMisconfigured(ctx, connector)
		g.metrics.RecordRequest(connector, method, fasthttp.StatusInternalServerError, time.Since(start).Seconds())
		return
	}

	// Step 6: cache probe (GET only, ttl > 0).
	cacheable := method == fasthttp.MethodGet && policy.CacheTTLSeconds > 0
	var cacheKey string
	if cacheable {
		cacheKey = cache.Key(connector, method, candidates[0].BaseURL, "/"+residualPath, rawQuery)
		if entry, hit := g.cache.Get(ctx, cacheKey); hit {
			g.metrics.RecordCacheHit(connector)
			writeCachedEntry(ctx, entry)
			g.metrics.RecordRequest(connector, method, entry.Status, time.Since(start).Seconds())
			g.logAudit(connector, "cache", method, entry.Status, time.Since(start).Milliseconds(), true, 0)
			return
		}
		g.metrics.RecordCacheMiss(connector)
	}

	// Step 7: provider loop.
	diagnostics := make(map[string]string)

	for _, c := range candidates {
		auth := policy.Auth
		if auth.Kind == config.AuthNone {
			auth = c.Auth
		}

		fullURL := strings.TrimRight(c.BaseURL, "/") + "/" + residualPath
		timeout := time.Duration(policy.Strategy.TimeoutMs) * time.Millisecond

		var result upstreamResultOutcome
		for attempt := 0; attempt <= policy.Strategy.Retries; attempt++ {
			res, err := g.doUpstream(ctx, method, fullURL, headers, cloneValues(query), body,
				policy.StaticHeaders, policy.StaticParams, auth, c.Key, timeout)

			if err != nil {
				g.metrics.RecordUpstream(connector, c.Name, 0, float64(res.latencyMs)/1000)
				if attempt < policy.Strategy.Retries {
					continue
				}
				g.health.MarkFailure(c.Key)
				diagnostics[c.Name] = err.Error()
				result = upstreamResultOutcome{failed: true}
				break
			}

			g.metrics.RecordUpstream(connector, c.Name, res.status, float64(res.latencyMs)/1000)

			if res.status >= 200 && res.status < 300 {
				result = upstreamResultOutcome{res: res}
				break
			}

			if res.status >= 500 && attempt < policy.Strategy.Retries {
				continue
			}

			g.health.MarkFailure(c.Key)
			diagnostics[c.Name] = strconv.Itoa(res.status)
			result = upstreamResultOutcome{failed: true}
			break
		}

		if !result.failed && result.res.status >= 200 && result.res.status < 300 {
			g.onSuccess(ctx, connector, method, residualPath, c, policy, result.res, cacheable, cacheKey, start)
			return
		}
	}

	// Step 9: all providers failed.
	pipelineErr = fmt.Errorf("all upstream providers failed for connector %q", connector)
	apierr.WriteAllProvidersFailed(ctx, diagnostics)
	g.metrics.RecordRequest(connector, method, fasthttp.StatusBadGateway, time.Since(start).Seconds())
}

type upstreamResultOutcome struct {
	res    upstreamResult
	failed bool
}

func (g *Gateway) selectCandidates(connector string, policy *config.Policy) ([]candidate, bool) {
	if len(policy.Providers) > 0 {
		hc := make([]health.Candidate, len(policy.Providers))
		for i, p := range policy.Providers {
			hc[i] = health.Candidate{Key: p.Key, Weight: p.Weight}
		}
		ranked := g.health.PickBest(hc)

		byKey := make(map[string]config.Provider, len(policy.Providers))
		for _, p := range policy.Providers {
			byKey[p.Key] = p
		}

		out := make([]candidate, len(ranked))
		for i, r := range ranked {
			p := byKey[r.Key]
			out[i] = candidate{Name: p.Name, BaseURL: p.BaseURL, Weight: p.Weight, Auth: p.Auth, Key: p.Key}
		}
		return out, false
	}

	if policy.BaseURL != "" {
		return []candidate{{
			Name:    "default",
			BaseURL: policy.BaseURL,
			Weight:  1,
			Auth:    config.AuthSpec{},
			Key:     connector + ":default",
		}}, false
	}

	return nil, true
}

// onSuccess implements §4.12 step 8.
func (g *Gateway) onSuccess(
	ctx *fasthttp.RequestCtx,
	connector, method, residualPath string,
	c candidate,
	policy *config.Policy,
	res upstreamResult,
	cacheable bool,
	cacheKey string,
	start time.Time,
) {
	g.health.MarkSuccess(c.Key, float64(res.latencyMs))
	g.metrics.SetProviderHealth(connector, c.Name, true)

	contentType := res.header.Get("Content-Type")
	respBody := res.body

	var drift string
	if strings.HasPrefix(contentType, "application/json") {
		var data any
		if err := json.Unmarshal(respBody, &data); err != nil {
			data = nil
		} else {
			transformed := transform.Apply(respBody, contentType, policy.ResponseTransform, transform.Meta{
				Provider:  c.Name,
				Status:    res.status,
				LatencyMs: res.latencyMs,
			})
			respBody = transformed

			if policy.PII != nil && policy.PII.Enabled && g.pii != nil {
				var redo any
				if err := json.Unmarshal(respBody, &redo); err == nil {
					if policy.PII.AutoScan {
						if scanned, err := g.pii.AutoScan(redo, pii.Action(policy.PII.Action)); err == nil {
							redo = scanned
						}
					} else if len(policy.PII.FieldRules) > 0 {
						if m, ok := redo.(map[string]any); ok {
							rules := make(map[string]pii.Action, len(policy.PII.FieldRules))
							for k, v := range policy.PII.FieldRules {
								rules[k] = pii.Action(v)
							}
							_ = g.pii.ProcessDict(m, rules)
							redo = m
						}
					}
					if out, err := json.Marshal(redo); err == nil {
						respBody = out
					}
				}
			}

			if policy.ResponseModel != "" && g.schemas != nil && g.schemas.Registered(policy.ResponseModel) {
				if err := g.schemas.Validate(policy.ResponseModel, respBody); err != nil {
					drift = schema.Truncate(err.Error(), 180)
					g.metrics.RecordSchemaDrift(connector)
				}
			}
		}
	}

	respHeaders := filterPassthrough(res.header, policy.PassthroughHeaders)

	budgetExceededAmount := -1.0
	blockOnBudget := false
	if policy.CostPerCallUSD > 0 && g.budget != nil {
		_ = g.budget.AddCost(ctx, connector, policy.CostPerCallUSD, "")
		spent, _ := g.budget.GetCost(ctx, connector, "")
		g.metrics.SetBudgetSpent(connector, currentMonth(), spent)
		if policy.Budget != nil && policy.Budget.MonthlyUSDMax > 0 && spent > policy.Budget.MonthlyUSDMax {
			if policy.Budget.OnExceed == "block" {
				blockOnBudget = true
			}
			budgetExceededAmount = spent
		}
	}

	if blockOnBudget {
		apierr.WriteBudgetExceeded(ctx, budgetExceededAmount)
		g.metrics.RecordRequest(connector, method, fasthttp.StatusPaymentRequired, time.Since(start).Seconds())
		return
	}

	entry := cache.Entry{Body: respBody, Headers: respHeaders, Status: res.status}
	if cacheable && cacheKey != "" {
		_ = g.cache.Set(ctx, cacheKey, entry, time.Duration(policy.CacheTTLSeconds)*time.Second)
	}

	for _, h := range respHeaders {
		ctx.Response.Header.Set(h.Name, h.Value)
	}
	ctx.Response.Header.Set("X-ApiBridge-Provider", c.Name)
	ctx.Response.Header.Set("X-ApiBridge-Latency-Ms", strconv.FormatInt(res.latencyMs, 10))
	ctx.Response.Header.Set("X-ApiBridge-Cache", "miss")
	if drift != "" {
		ctx.Response.Header.Set("x-apibridge-drift", "1")
		ctx.Response.Header.Set("x-apibridge-drift-msg", drift)
	}
	if budgetExceededAmount >= 0 && !blockOnBudget {
		ctx.Response.Header.Set("x-apibridge-budget", fmt.Sprintf("exceeded:%.2f", budgetExceededAmount))
	}

	ctx.SetStatusCode(res.status)
	ctx.SetBody(respBody)

	g.metrics.RecordRequest(connector, method, res.status, time.Since(start).Seconds())
	g.logAudit(connector, c.Name, method, res.status, res.latencyMs, false, policy.CostPerCallUSD)
}

// logAudit records a non-blocking audit entry for the request, when an
// audit logger has been wired.
func (g *Gateway) logAudit(connector, provider, method string, status int, latencyMs int64, cached bool, costUSD float64) {
	if g.audit == nil {
		return
	}
	g.audit.Log(logger.AuditEntry{
		ID:        uuid.New(),
		Connector: connector,
		Provider:  provider,
		Method:    method,
		Status:    uint16(status),
		LatencyMs: uint32(latencyMs),
		Cached:    cached,
		CostUSD:   costUSD,
		CreatedAt: time.Now(),
	})
}

func currentMonth() string {
	return time.Now().UTC().Format("2006-01")
}

func writeCachedEntry(ctx *fasthttp.RequestCtx, entry cache.Entry) {
	for _, h := range entry.Headers {
		ctx.Response.Header.Set(h.Name, h.Value)
	}
	ctx.Response.Header.Set("X-ApiBridge-Cache", "hit")
	ctx.SetStatusCode(entry.Status)
	ctx.SetBody(entry.Body)
}

func filterPassthrough(h http.Header, allowed map[string]struct{}) []cache.HeaderPair {
	out := make([]cache.HeaderPair, 0, len(h))
	for name, values := range h {
		if _, ok := allowed[strings.ToLower(name)]; !ok {
			continue
		}
		for _, v := range values {
			out = append(out, cache.HeaderPair{Name: name, Value: v})
		}
	}
	return out
}

func snapshotHeaders(ctx *fasthttp.RequestCtx) map[string]string {
	out := make(map[string]string)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		name := strings.ToLower(string(k))
		if name == "host" || name == "content-length" {
			return
		}
		out[string(k)] = string(v)
	})
	return out
}

func cloneQuery(ctx *fasthttp.RequestCtx) url.Values {
	q := url.Values{}
	ctx.QueryArgs().VisitAll(func(k, v []byte) {
		q.Add(string(k), string(v))
	})
	return q
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// *fasthttp.RequestCtx implements context.Context, which lets doUpstream
// accept it as the base context for the outbound net/http request,
// carrying cancellation through to the upstream call.
var _ context.Context = (*fasthttp.RequestCtx)(nil)
