package config

import "testing"

func TestPathAllowed(t *testing.T) {
	p := mustPolicy(t, []string{"^/api/users$"})

	allow := []string{"/api/users", "/api/users/", "/api//users", "%2Fapi%2Fusers"}
	for _, path := range allow {
		if !p.PathAllowed(path) {
			t.Errorf("PathAllowed(%q) = false, want true", path)
		}
	}

	reject := []string{"/api/users/1", "/api/%2E%2E/admin", "/API/USERS"}
	for _, path := range reject {
		if p.PathAllowed(path) {
			t.Errorf("PathAllowed(%q) = true, want false", path)
		}
	}
}

func TestPathAllowedEmptyNormalizesToSlash(t *testing.T) {
	p := mustPolicy(t, []string{"^/$"})
	if !p.PathAllowed("") {
		t.Error("empty path should normalize to \"/\" and match \"^/$\"")
	}
}

func TestPathAllowedDotDotAnywhereRejected(t *testing.T) {
	p := mustPolicy(t, []string{"^.*$"})
	if p.PathAllowed("/a/../b") {
		t.Error("path containing .. must be rejected even under a wildcard allow list")
	}
}

func mustPolicy(t *testing.T, allowPaths []string) *Policy {
	t.Helper()
	p, err := buildPolicy("c", RawConnectorPolicy{
		BaseURL:    "https://example.invalid",
		AllowPaths: allowPaths,
	})
	if err != nil {
		t.Fatalf("buildPolicy: %v", err)
	}
	return p
}

func TestLoadPoliciesEnvSubstitution(t *testing.T) {
	t.Setenv("UPSTREAM_KEY", "sekret")

	raw := []byte(`
weather:
  base_url: https://example.invalid
  auth:
    type: api_key_header
    name: X-Api-Key
    value: ${UPSTREAM_KEY}
  allow_paths:
    - "^/.*$"
`)

	policies, err := LoadPolicies(raw)
	if err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	p, ok := policies["weather"]
	if !ok {
		t.Fatal("expected connector \"weather\"")
	}
	if p.Auth.Value != "sekret" {
		t.Errorf("Auth.Value = %q, want %q", p.Auth.Value, "sekret")
	}
}

func TestLoadPoliciesUnknownFieldRejected(t *testing.T) {
	raw := []byte(`
weather:
  base_url: https://example.invalid
  not_a_real_field: true
`)
	if _, err := LoadPolicies(raw); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestLoadPoliciesRequiresProvidersOrBaseURL(t *testing.T) {
	raw := []byte(`
weather:
  allow_paths: ["^.*$"]
`)
	if _, err := LoadPolicies(raw); err == nil {
		t.Fatal("expected an error when neither providers nor base_url is set")
	}
}
