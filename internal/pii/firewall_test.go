package pii

import (
	"strings"
	"testing"
)

func TestRedactPreservesFirstAndLastChar(t *testing.T) {
	f := New("secret")
	got, err := f.Apply(Redact, "4111111111111111")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != '4' || got[len(got)-1] != '1' {
		t.Errorf("redacted = %q, want first/last char preserved", got)
	}
	if len(got) != len("4111111111111111") {
		t.Errorf("redacted length = %d, want %d", len(got), len("4111111111111111"))
	}
}

func TestRedactShortStringAllStars(t *testing.T) {
	f := New("secret")
	got, _ := f.Apply(Redact, "ab")
	if got != "**" {
		t.Errorf("got %q, want \"**\"", got)
	}
}

func TestTokenizeDeterministicAndPrefixed(t *testing.T) {
	f := New("secret")
	a, _ := f.Apply(Tokenize, "alice@example.com")
	b, _ := f.Apply(Tokenize, "alice@example.com")
	if a != b {
		t.Errorf("tokenize not deterministic: %q != %q", a, b)
	}
	if len(a) != len("TOK_")+16 {
		t.Errorf("tokenize length = %d, want %d", len(a), len("TOK_")+16)
	}
	if !strings.HasPrefix(a, "TOK_") {
		t.Errorf("tokenize = %q, want TOK_ prefix", a)
	}
}

func TestHashDeterministicAndPrefixed(t *testing.T) {
	f := New("secret")
	a, _ := f.Apply(Hash, "alice@example.com")
	if len(a) != len("HASH_")+16 {
		t.Errorf("hash length = %d, want %d", len(a), len("HASH_")+16)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	f := New("secret")
	ct, err := f.Apply(Encrypt, "sensitive value")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := f.Decrypt(ct)
	if err != nil {
		t.Fatal(err)
	}
	if pt != "sensitive value" {
		t.Errorf("got %q, want original", pt)
	}
}

func TestEncryptNondeterministic(t *testing.T) {
	f := New("secret")
	a, _ := f.Apply(Encrypt, "x")
	b, _ := f.Apply(Encrypt, "x")
	if a == b {
		t.Error("expected two independent encryptions to differ (random nonce)")
	}
}

func TestProcessDictAppliesTopLevelRule(t *testing.T) {
	f := New("secret")
	data := map[string]any{"email": "a@b.com", "other": "keep"}
	rules := map[string]Action{"email": Tokenize}

	if err := f.ProcessDict(data, rules); err != nil {
		t.Fatal(err)
	}
	if data["other"] != "keep" {
		t.Errorf("non-rule field mutated: %v", data["other"])
	}
	s, _ := data["email"].(string)
	if s == "a@b.com" {
		t.Error("email should have been tokenized")
	}
}

func TestProcessDictRecursesWithDottedPrefix(t *testing.T) {
	f := New("secret")
	data := map[string]any{
		"user": map[string]any{"email": "a@b.com"},
	}
	rules := map[string]Action{"user.email": Tokenize}

	if err := f.ProcessDict(data, rules); err != nil {
		t.Fatal(err)
	}
	inner := data["user"].(map[string]any)
	if inner["email"] == "a@b.com" {
		t.Error("nested email should have been tokenized")
	}
}

func TestProcessDictRecursesIntoListOfMaps(t *testing.T) {
	f := New("secret")
	data := map[string]any{
		"users": []any{
			map[string]any{"email": "a@b.com"},
			map[string]any{"email": "c@d.com"},
		},
	}
	rules := map[string]Action{"users.email": Tokenize}

	if err := f.ProcessDict(data, rules); err != nil {
		t.Fatal(err)
	}
	list := data["users"].([]any)
	for _, item := range list {
		m := item.(map[string]any)
		if m["email"] == "a@b.com" || m["email"] == "c@d.com" {
			t.Error("list element email should have been tokenized")
		}
	}
}

func TestAutoScanRedactsEmailAndSSN(t *testing.T) {
	f := New("secret")
	out, err := f.AutoScan("contact alice@example.com or ssn 123-45-6789", Redact)
	if err != nil {
		t.Fatal(err)
	}
	s := out.(string)
	if s == "contact alice@example.com or ssn 123-45-6789" {
		t.Error("expected auto-scan to redact matches")
	}
	if strings.Contains(s, "alice@example.com") {
		t.Errorf("email not redacted: %q", s)
	}
	if strings.Contains(s, "123-45-6789") {
		t.Errorf("ssn not redacted: %q", s)
	}
}

func TestAutoScanWalksNestedStructures(t *testing.T) {
	f := New("secret")
	data := map[string]any{
		"notes": []any{"call 555-123-4567", map[string]any{"ip": "10.0.0.1"}},
	}
	out, err := f.AutoScan(data, Hash)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	notes := m["notes"].([]any)
	if notes[0] == "call 555-123-4567" {
		t.Error("phone number should have been scanned")
	}
}
