package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// envVarPattern matches ${NAME} and ${NAME:default} in raw config text.
var envVarPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)(?::([^}]*))?\}`)

// expandEnv substitutes ${ENV} / ${ENV:default} references in raw before
// it is handed to the YAML parser, exactly as the connectors file format
// requires (§6 "Configuration surface").
func expandEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[2])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}

// RawRateLimit mirrors the policy's rate_limit YAML block.
type RawRateLimit struct {
	Capacity     int     `yaml:"capacity"`
	RefillPerSec float64 `yaml:"refill_per_sec"`
}

// RawStrategy mirrors the policy's strategy YAML block.
type RawStrategy struct {
	Policy    string `yaml:"policy"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Retries   int    `yaml:"retries"`
}

// RawBudget mirrors the policy's optional budget block.
type RawBudget struct {
	MonthlyUSDMax float64 `yaml:"monthly_usd_max"`
	OnExceed      string  `yaml:"on_exceed"`
}

// RawPIIProtection mirrors the policy's optional pii_protection block.
type RawPIIProtection struct {
	Enabled    bool              `yaml:"enabled"`
	AutoScan   bool              `yaml:"auto_scan"`
	Action     string            `yaml:"action"`
	FieldRules map[string]string `yaml:"field_rules"`
}

// RawAuth is the tagged-variant AuthSpec from §3, decoded permissively
// (only the fields relevant to Kind are populated) and normalized by
// ParseAuth into the typed AuthSpec used by the pipeline.
type RawAuth struct {
	Type            string            `yaml:"type"`
	Name            string            `yaml:"name"`
	Value           string            `yaml:"value"`
	Token           string            `yaml:"token"`
	TokenURL        string            `yaml:"token_url"`
	ClientID        string            `yaml:"client_id"`
	ClientSecret    string            `yaml:"client_secret"`
	Scope           string            `yaml:"scope"`
	ExtraParams     map[string]string `yaml:"extra_params"`
}

// RawProvider mirrors one entry of the policy's providers list.
type RawProvider struct {
	Name    string  `yaml:"name"`
	BaseURL string  `yaml:"base_url"`
	Weight  int     `yaml:"weight"`
	Auth    *RawAuth `yaml:"auth"`
}

// RawConnectorPolicy is the on-disk shape of one connector's policy,
// decoded directly from YAML with unknown-field rejection (see LoadPolicies).
type RawConnectorPolicy struct {
	Name               string            `yaml:"-"`
	BaseURL            string            `yaml:"base_url"`
	Providers          []RawProvider     `yaml:"providers"`
	AllowPaths         []string          `yaml:"allow_paths"`
	RateLimit          *RawRateLimit     `yaml:"rate_limit"`
	CacheTTLSeconds    int               `yaml:"cache_ttl_seconds"`
	Strategy           *RawStrategy      `yaml:"strategy"`
	Auth               *RawAuth          `yaml:"auth"`
	StaticHeaders      map[string]string `yaml:"static_headers"`
	StaticParams       map[string]string `yaml:"static_params"`
	Transforms         map[string]string `yaml:"transforms"`
	Budget             *RawBudget        `yaml:"budget"`
	PassthroughHeaders []string          `yaml:"passthrough_headers"`
	ResponseModel      string            `yaml:"response_model"`
	CostPerCallUSD     float64           `yaml:"cost_per_call_usd"`
	PIIProtection      *RawPIIProtection `yaml:"pii_protection"`
}

// LoadPoliciesFile reads and parses the connectors file at path.
func LoadPoliciesFile(path string) (map[string]*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadPolicies(raw)
}

// LoadPolicies parses raw connector policy YAML (a mapping of connector
// name to policy block) after ${ENV} substitution, and builds the typed,
// validated Policy set the pipeline consumes. Unknown YAML fields are a
// load error — the Design Notes' "pick one policy, not both" resolved in
// favor of rejecting unknown fields rather than silently tolerating them.
func LoadPolicies(raw []byte) (map[string]*Policy, error) {
	expanded := expandEnv(raw)

	var doc map[string]RawConnectorPolicy
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: parse connectors file: %w", err)
	}

	policies := make(map[string]*Policy, len(doc))
	for name, rawPolicy := range doc {
		rawPolicy.Name = name
		p, err := buildPolicy(name, rawPolicy)
		if err != nil {
			return nil, fmt.Errorf("config: connector %q: %w", name, err)
		}
		policies[name] = p
	}

	return policies, nil
}

func buildPolicy(name string, r RawConnectorPolicy) (*Policy, error) {
	if len(r.Providers) == 0 && r.BaseURL == "" {
		return nil, fmt.Errorf("connector must declare either providers or base_url")
	}

	p := &Policy{
		Name:               name,
		BaseURL:            r.BaseURL,
		AllowPaths:         r.AllowPaths,
		RateLimit:          RateLimitSpec{Capacity: 10, RefillPerSec: 5},
		CacheTTLSeconds:    r.CacheTTLSeconds,
		Strategy:           StrategySpec{Policy: "fastest_healthy_then_cheapest", TimeoutMs: 20000, Retries: 1},
		StaticHeaders:      r.StaticHeaders,
		StaticParams:       r.StaticParams,
		Budget:             nil,
		PassthroughHeaders: map[string]struct{}{"content-type": {}},
		ResponseModel:      r.ResponseModel,
		CostPerCallUSD:     r.CostPerCallUSD,
	}

	if len(p.AllowPaths) == 0 {
		p.AllowPaths = []string{"^.*$"}
	}
	compiled := make([]*regexp.Regexp, 0, len(p.AllowPaths))
	for _, pat := range p.AllowPaths {
		// Wrapped in \A...\z so matching requires the whole normalized path,
		// emulating a fullmatch regardless of whether pat carries its own
		// ^/$ anchors (§4.8 step 6: "fully matches ... the entire string").
		re, err := regexp.Compile(`\A(?:` + pat + `)\z`)
		if err != nil {
			return nil, fmt.Errorf("allow_paths: invalid pattern %q: %w", pat, err)
		}
		compiled = append(compiled, re)
	}
	p.compiledAllowPaths = compiled

	if r.RateLimit != nil {
		p.RateLimit = RateLimitSpec{Capacity: r.RateLimit.Capacity, RefillPerSec: r.RateLimit.RefillPerSec}
	}

	if r.Strategy != nil {
		p.Strategy = StrategySpec{Policy: r.Strategy.Policy, TimeoutMs: r.Strategy.TimeoutMs, Retries: r.Strategy.Retries}
		if p.Strategy.TimeoutMs == 0 {
			p.Strategy.TimeoutMs = 20000
		}
	}

	if r.Auth != nil {
		auth, err := ParseAuth(r.Auth)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		p.Auth = auth
	}

	if r.Budget != nil {
		if r.Budget.OnExceed != "block" && r.Budget.OnExceed != "downgrade_provider" {
			return nil, fmt.Errorf("budget.on_exceed must be \"block\" or \"downgrade_provider\", got %q", r.Budget.OnExceed)
		}
		p.Budget = &BudgetSpec{MonthlyUSDMax: r.Budget.MonthlyUSDMax, OnExceed: r.Budget.OnExceed}
	}

	if len(r.PassthroughHeaders) > 0 {
		p.PassthroughHeaders = make(map[string]struct{}, len(r.PassthroughHeaders))
		for _, h := range r.PassthroughHeaders {
			p.PassthroughHeaders[strings.ToLower(h)] = struct{}{}
		}
	}

	if expr, ok := r.Transforms["response"]; ok {
		p.ResponseTransform = expr
	}

	if r.PIIProtection != nil {
		p.PII = &PIISpec{
			Enabled:    r.PIIProtection.Enabled,
			AutoScan:   r.PIIProtection.AutoScan,
			Action:     r.PIIProtection.Action,
			FieldRules: r.PIIProtection.FieldRules,
		}
	}

	for i, rp := range r.Providers {
		prov := Provider{
			Name:    rp.Name,
			BaseURL: rp.BaseURL,
			Weight:  rp.Weight,
			Key:     fmt.Sprintf("%s:%s", name, providerNameOrDefault(rp.Name, i)),
		}
		if rp.Weight == 0 {
			prov.Weight = 1
		}
		if rp.Auth != nil {
			auth, err := ParseAuth(rp.Auth)
			if err != nil {
				return nil, fmt.Errorf("providers[%d].auth: %w", i, err)
			}
			prov.Auth = auth
		}
		p.Providers = append(p.Providers, prov)
	}

	return p, nil
}

func providerNameOrDefault(name string, i int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("p%d", i)
}

// PathAllowed implements §4.8's normalize-then-fullmatch admission check.
func (p *Policy) PathAllowed(path string) bool {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		decoded = path
	}

	for strings.Contains(decoded, "//") {
		decoded = strings.ReplaceAll(decoded, "//", "/")
	}

	if decoded != "/" {
		decoded = strings.TrimRight(decoded, "/")
	}
	if decoded == "" {
		decoded = "/"
	}

	if strings.Contains(decoded, "..") {
		return false
	}

	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}

	for _, re := range p.compiledAllowPaths {
		if re.MatchString(decoded) {
			return true
		}
	}
	return false
}
