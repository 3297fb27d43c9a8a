package health

import "testing"

func TestMarkSuccessSeedsEMAOnFirstSample(t *testing.T) {
	r := New()
	r.MarkSuccess("p1", 100)

	r.mu.Lock()
	avg := r.entries["p1"].avgLatency
	r.mu.Unlock()

	if avg != 100 {
		t.Errorf("first-sample avg = %v, want 100", avg)
	}
}

func TestMarkSuccessFoldsEMA(t *testing.T) {
	r := New()
	r.MarkSuccess("p1", 100)
	r.MarkSuccess("p1", 200)

	r.mu.Lock()
	avg := r.entries["p1"].avgLatency
	r.mu.Unlock()

	want := float64(int(0.7*100 + 0.3*200))
	if avg != want {
		t.Errorf("avg = %v, want %v", avg, want)
	}
}

func TestShouldAttemptTrueWithNoEntry(t *testing.T) {
	r := New()
	if !r.ShouldAttempt("unknown") {
		t.Error("expected true for a provider with no history")
	}
}

func TestPickBestPrefersHealthyOverUnhealthy(t *testing.T) {
	r := New()
	r.MarkSuccess("healthy", 50)
	r.MarkFailure("unhealthy")

	out := r.PickBest([]Candidate{{Key: "unhealthy"}, {Key: "healthy"}})
	if out[0].Key != "healthy" {
		t.Errorf("first candidate = %s, want healthy", out[0].Key)
	}
}

func TestPickBestOrdersByLatencyAndWeight(t *testing.T) {
	r := New()
	r.MarkSuccess("fast", 10)
	r.MarkSuccess("slow", 500)

	out := r.PickBest([]Candidate{{Key: "slow"}, {Key: "fast"}})
	if out[0].Key != "fast" {
		t.Errorf("first candidate = %s, want fast (lower latency)", out[0].Key)
	}

	// Equal latency: the larger weight lowers the score (100-50 < 100-10).
	r.MarkSuccess("light", 100)
	r.MarkSuccess("heavy", 100)
	out = r.PickBest([]Candidate{{Key: "light", Weight: 1}, {Key: "heavy", Weight: 5}})
	if out[0].Key != "heavy" {
		t.Errorf("first candidate = %s, want heavy (larger weight)", out[0].Key)
	}
}

func TestPickBestFallsBackToOriginalListWhenAllOpen(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		r.MarkFailure("p1")
	}
	if r.ShouldAttempt("p1") {
		t.Fatal("expected breaker to be open after 5 failures")
	}

	out := r.PickBest([]Candidate{{Key: "p1"}})
	if len(out) != 1 || out[0].Key != "p1" {
		t.Errorf("expected fallback to original list, got %+v", out)
	}
}

func TestPickBestUnknownProviderTreatedHealthyWithDefaultLatency(t *testing.T) {
	r := New()
	out := r.PickBest([]Candidate{{Key: "never-seen"}})
	if len(out) != 1 || out[0].Key != "never-seen" {
		t.Fatalf("unexpected result: %+v", out)
	}

	// A healthy provider averaging 10000ms ranks behind the unseen one (9999ms).
	r.MarkSuccess("slow", 10000)
	out = r.PickBest([]Candidate{{Key: "slow"}, {Key: "never-seen"}})
	if out[0].Key != "never-seen" {
		t.Errorf("first candidate = %s, want never-seen (default latency 9999)", out[0].Key)
	}
}
