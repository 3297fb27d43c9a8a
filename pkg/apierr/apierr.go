// Package apierr provides structured API error types and HTTP status
// mapping for the gateway, following the error taxonomy of §7: every
// error surfaced to a caller is a single JSON object with a textual
// detail, never a stack trace.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// ErrorType constants.
const (
	TypeProviderError     = "provider_error"
	TypeRateLimitError    = "rate_limit_error"
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthenticationErr = "authentication_error"
	TypeServerError       = "server_error"
	TypeBudgetError       = "budget_error"
)

// Code constants.
const (
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInvalidAPIKey     = "invalid_api_key"
	CodeInternalError     = "internal_error"
	CodeProviderError     = "provider_error"
	CodeRequestTimeout    = "request_timeout"
	CodeNotImplemented    = "not_implemented"
	CodeInvalidRequest    = "invalid_request"
	CodeUnknownConnector  = "unknown_connector"
	CodePathNotAllowed    = "path_not_allowed"
	CodePayloadTooLarge   = "payload_too_large"
	CodeBudgetExceeded    = "budget_exceeded"
	CodeMisconfigured     = "misconfigured_connector"
	CodeAllProvidersDown  = "all_providers_failed"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteRateLimit writes a 429 rate limit error.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", TypeRateLimitError, CodeRateLimitExceeded)
}

// WriteUnknownConnector writes a 404 for a connector name with no policy.
func WriteUnknownConnector(ctx *fasthttp.RequestCtx, connector string) {
	Write(ctx, fasthttp.StatusNotFound, "unknown connector: "+connector, TypeInvalidRequest, CodeUnknownConnector)
}

// WritePathNotAllowed writes a 403 for a path rejected by path_allowed.
func WritePathNotAllowed(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusForbidden, "path not allowed by connector policy", TypeInvalidRequest, CodePathNotAllowed)
}

// WritePayloadTooLarge writes a 413 for a request exceeding the ingress
// body size cap.
func WritePayloadTooLarge(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusRequestEntityTooLarge, "request body exceeds the configured size limit", TypeInvalidRequest, CodePayloadTooLarge)
}

// WriteBudgetExceeded writes a 402 when a policy's on_exceed=block budget
// is crossed.
func WriteBudgetExceeded(ctx *fasthttp.RequestCtx, spentUSD float64) {
	Write(ctx, fasthttp.StatusPaymentRequired, "monthly budget exceeded", TypeBudgetError, CodeBudgetExceeded)
}

// WriteMisconfigured writes a 500 ConfigError (§7): a connector policy has
// neither providers nor base_url.
func WriteMisconfigured(ctx *fasthttp.RequestCtx, connector string) {
	Write(ctx, fasthttp.StatusInternalServerError, "connector "+connector+" is misconfigured", TypeServerError, CodeMisconfigured)
}

// WriteAllProvidersFailed writes a 502 AllProvidersFailed with an
// aggregated per-provider diagnostic body.
func WriteAllProvidersFailed(ctx *fasthttp.RequestCtx, diagnostics map[string]string) {
	ctx.SetStatusCode(fasthttp.StatusBadGateway)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(struct {
		Error struct {
			Message     string            `json:"message"`
			Type        string            `json:"type"`
			Code        string            `json:"code"`
			Diagnostics map[string]string `json:"provider_diagnostics"`
		} `json:"error"`
	}{
		Error: struct {
			Message     string            `json:"message"`
			Type        string            `json:"type"`
			Code        string            `json:"code"`
			Diagnostics map[string]string `json:"provider_diagnostics"`
		}{
			Message:     "all upstream providers failed",
			Type:        TypeProviderError,
			Code:        CodeAllProvidersDown,
			Diagnostics: diagnostics,
		},
	})
	ctx.SetBody(body)
}
