package config

import (
	"fmt"
	"regexp"
)

// Policy is the fully-typed, validated connector policy the pipeline
// consumes — the Design Notes' replacement for the ad-hoc string-keyed
// config map (§9 "Dynamic string-keyed config").
type Policy struct {
	Name               string
	BaseURL            string
	Providers          []Provider
	AllowPaths         []string
	RateLimit          RateLimitSpec
	CacheTTLSeconds    int
	Strategy           StrategySpec
	Auth               AuthSpec
	StaticHeaders      map[string]string
	StaticParams       map[string]string
	ResponseTransform  string
	Budget             *BudgetSpec
	PassthroughHeaders map[string]struct{}
	ResponseModel      string
	CostPerCallUSD     float64
	PII                *PIISpec

	compiledAllowPaths []*regexp.Regexp
}

// Provider is one concrete upstream declared under a connector.
type Provider struct {
	Name    string
	BaseURL string
	Weight  int
	Auth    AuthSpec
	// Key is the identity used in the health registry and circuit breaker
	// maps: "<connector>:<name>".
	Key string
}

// RateLimitSpec is the per-connector token-bucket configuration.
type RateLimitSpec struct {
	Capacity     int
	RefillPerSec float64
}

// StrategySpec is the per-connector retry/timeout configuration.
type StrategySpec struct {
	Policy    string
	TimeoutMs int
	Retries   int
}

// BudgetSpec is the optional per-connector monthly spend cap.
type BudgetSpec struct {
	MonthlyUSDMax float64
	OnExceed      string // "block" | "downgrade_provider"
}

// PIISpec is the optional per-connector PII firewall configuration.
type PIISpec struct {
	Enabled    bool
	AutoScan   bool
	Action     string
	FieldRules map[string]string
}

// AuthKind tags the variant carried by AuthSpec.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthAPIKeyHeader
	AuthAPIKeyQuery
	AuthBearer
	AuthOAuth2ClientCredentials
)

// AuthSpec is the tagged-variant authentication configuration from §3.
// Only the fields relevant to Kind are populated; this mirrors the
// Design Notes' "Auth as a tagged variant rather than type-dispatch on a
// string discriminator" guidance directly as a Go sum-by-convention
// struct (Go has no native sum types, so the convention is a Kind tag
// plus per-variant fields left zero unless selected).
type AuthSpec struct {
	Kind AuthKind

	// api_key_header / api_key_query
	Name  string
	Value string

	// bearer
	Token string

	// oauth2_client_credentials
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	ExtraParams  map[string]string
}

// ParseAuth normalizes the YAML-decoded RawAuth into a typed AuthSpec.
func ParseAuth(r *RawAuth) (AuthSpec, error) {
	switch r.Type {
	case "", "none":
		return AuthSpec{Kind: AuthNone}, nil
	case "api_key_header":
		if r.Name == "" {
			return AuthSpec{}, fmt.Errorf("api_key_header requires name")
		}
		return AuthSpec{Kind: AuthAPIKeyHeader, Name: r.Name, Value: r.Value}, nil
	case "api_key_query":
		if r.Name == "" {
			return AuthSpec{}, fmt.Errorf("api_key_query requires name")
		}
		return AuthSpec{Kind: AuthAPIKeyQuery, Name: r.Name, Value: r.Value}, nil
	case "bearer":
		return AuthSpec{Kind: AuthBearer, Token: r.Token}, nil
	case "oauth2_client_credentials":
		if r.TokenURL == "" || r.ClientID == "" || r.ClientSecret == "" {
			return AuthSpec{}, fmt.Errorf("oauth2_client_credentials requires token_url, client_id, client_secret")
		}
		return AuthSpec{
			Kind:         AuthOAuth2ClientCredentials,
			TokenURL:     r.TokenURL,
			ClientID:     r.ClientID,
			ClientSecret: r.ClientSecret,
			Scope:        r.Scope,
			ExtraParams:  r.ExtraParams,
		}, nil
	default:
		return AuthSpec{}, fmt.Errorf("unknown auth type %q", r.Type)
	}
}
