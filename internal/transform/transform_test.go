package transform

import "testing"

func TestApplyFieldAccessOnObjectBody(t *testing.T) {
	body := []byte(`{"results":[{"name":"nyc"},{"name":"sfo"}]}`)
	out := Apply(body, "application/json", "results.#.name", Meta{Provider: "p1", Status: 200})
	if string(out) != `["nyc","sfo"]` {
		t.Errorf("got %s", out)
	}
}

func TestApplyMetaAccessible(t *testing.T) {
	body := []byte(`{"x":1}`)
	out := Apply(body, "application/json", "meta.provider", Meta{Provider: "p1", Status: 200})
	if string(out) != `"p1"` {
		t.Errorf("got %s", out)
	}
}

func TestApplyNonObjectBodyWrappedAsData(t *testing.T) {
	body := []byte(`[1,2,3]`)
	out := Apply(body, "application/json", "data.1", Meta{Provider: "p1"})
	if string(out) != `2` {
		t.Errorf("got %s", out)
	}
}

func TestApplyFailsOpenOnNonExistentPath(t *testing.T) {
	body := []byte(`{"x":1}`)
	out := Apply(body, "application/json", "nonexistent.deeply.nested", Meta{})
	if string(out) != string(body) {
		t.Errorf("expected unchanged body on miss, got %s", out)
	}
}

func TestApplySkippedWhenExprEmpty(t *testing.T) {
	body := []byte(`{"x":1}`)
	if out := Apply(body, "application/json", "", Meta{}); string(out) != string(body) {
		t.Errorf("expected unchanged body, got %s", out)
	}
}

func TestApplySkippedForNonJSONContentType(t *testing.T) {
	body := []byte(`plain text`)
	if out := Apply(body, "text/plain", "x", Meta{}); string(out) != string(body) {
		t.Errorf("expected unchanged body, got %s", out)
	}
}

func TestApplyFailsOpenOnInvalidJSON(t *testing.T) {
	body := []byte(`not json at all`)
	out := Apply(body, "application/json", "x", Meta{})
	if string(out) != string(body) {
		t.Errorf("expected unchanged body, got %s", out)
	}
}
