package proxy

import (
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// RouteHandler is a fasthttp handler function.
type RouteHandler = fasthttp.RequestHandler

// ManagementRoutes holds optional management API handler functions
// that are registered alongside the proxy routes.
type ManagementRoutes struct {
	Metrics RouteHandler
}

// Start starts the HTTP server on addr (e.g. ":8080") without management
// routes, so no /metrics endpoint is registered.
func (g *Gateway) Start(addr string) error {
	return g.StartWithRoutes(addr, nil)
}

// StartWithRoutes starts the HTTP server with optional management routes,
// registering the three ingress surfaces named in §6: GET /health,
// GET /metrics, and ANY /proxy/{connector}/{residual_path...}.
func (g *Gateway) StartWithRoutes(addr string, mgmt *ManagementRoutes) error {
	r := router.New()

	r.GET("/health", g.handleHealth)
	r.ANY("/proxy/{connector}/{path:*}", g.handleProxy)

	if mgmt != nil && mgmt.Metrics != nil {
		r.GET("/metrics", mgmt.Metrics)
	}

	handler := applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(g.corsOrigins),
		securityHeaders,
		maxBodySize(g.maxRequestBytes),
		apiKeyAuth(g.authEnabled, g.validAPIKeys),
	)

	srv := &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return srv.ListenAndServe(addr)
}

func (g *Gateway) handleHealth(ctx *fasthttp.RequestCtx) {
	names := make([]string, 0, len(g.policies))
	for name := range g.policies {
		names = append(names, name)
	}
	writeJSON(ctx, map[string]any{
		"ok":         true,
		"mode":       g.mode,
		"connectors": names,
	})
}

func (g *Gateway) handleProxy(ctx *fasthttp.RequestCtx) {
	connector, _ := ctx.UserValue("connector").(string)
	residualPath, _ := ctx.UserValue("path").(string)
	g.proxy(ctx, connector, residualPath)
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
