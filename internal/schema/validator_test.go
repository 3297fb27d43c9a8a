package schema

import "testing"

type weatherResponse struct {
	City string  `json:"city"`
	TempC float64 `json:"temp_c"`
}

func TestValidateAcceptsMatchingShape(t *testing.T) {
	r := NewRegistry()
	r.Register("weather", weatherResponse{})

	err := r.Validate("weather", []byte(`{"city":"nyc","temp_c":21.5}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRejectsUnknownField(t *testing.T) {
	r := NewRegistry()
	r.Register("weather", weatherResponse{})

	err := r.Validate("weather", []byte(`{"city":"nyc","humidity":80}`))
	if err == nil {
		t.Fatal("expected an error for an unregistered field")
	}
}

func TestValidateUnregisteredModelErrors(t *testing.T) {
	r := NewRegistry()
	if err := r.Validate("nope", []byte(`{}`)); err == nil {
		t.Fatal("expected an error for an unregistered model name")
	}
}

func TestRegisteredReflectsRegistrations(t *testing.T) {
	r := NewRegistry()
	if r.Registered("weather") {
		t.Fatal("expected weather to be unregistered on a fresh registry")
	}

	r.Register("weather", weatherResponse{})
	if !r.Registered("weather") {
		t.Fatal("expected weather to be registered after Register")
	}
}

func TestTruncateRespectsLimit(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := Truncate(string(long), 180)
	if len(got) != 180 {
		t.Errorf("len = %d, want 180", len(got))
	}
}

func TestTruncateShorterThanLimitUnchanged(t *testing.T) {
	if got := Truncate("short", 180); got != "short" {
		t.Errorf("got %q, want unchanged", got)
	}
}
