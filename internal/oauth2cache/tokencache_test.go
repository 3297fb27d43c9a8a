package oauth2cache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func tokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
}

func TestGetTokenSingleFlightsConcurrentCallers(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls)
	defer srv.Close()

	c := New()
	req := Request{
		ProviderKey:  "provider-a",
		TokenURL:     srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	}

	var wg sync.WaitGroup
	results := make([]string, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.GetToken(context.Background(), req)
			if err != nil {
				t.Errorf("GetToken: %v", err)
				return
			}
			results[i] = tok
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
	for _, tok := range results {
		if tok != "tok-123" {
			t.Errorf("got token %q, want tok-123", tok)
		}
	}
}

func TestGetTokenCachesUntilNearExpiry(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls)
	defer srv.Close()

	c := New()
	req := Request{ProviderKey: "p1", TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"}

	if _, err := c.GetToken(context.Background(), req); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if _, err := c.GetToken(context.Background(), req); err != nil {
		t.Fatalf("GetToken: %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("token endpoint called %d times, want 1 (cached)", calls)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls)
	defer srv.Close()

	c := New()
	req := Request{ProviderKey: "p1", TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"}

	_, _ = c.GetToken(context.Background(), req)
	c.Invalidate("p1")
	_, _ = c.GetToken(context.Background(), req)

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("token endpoint called %d times, want 2 after invalidate", calls)
	}
}

func TestGetTokenFatalOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New()
	req := Request{ProviderKey: "p1", TokenURL: srv.URL, ClientID: "id", ClientSecret: "bad"}

	if _, err := c.GetToken(context.Background(), req); err == nil {
		t.Fatal("expected an error for a non-2xx token response")
	}
}
