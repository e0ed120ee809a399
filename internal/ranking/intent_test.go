package ranking

import (
	"runtime"
	"testing"
)

func TestDetectIntent_CalcPrefix(t *testing.T) {
	r := detectIntent("=2+2*3")
	if r == nil {
		t.Fatal("expected calc intent")
	}
	if r.Source != SourceIntent {
		t.Errorf("Source = %q, want intent", r.Source)
	}
	if r.Value != "8" {
		t.Errorf("Value = %q, want 8", r.Value)
	}

	if detectIntent("=") != nil {
		t.Error("bare = should not produce an intent")
	}
	if detectIntent("=what") != nil {
		t.Error("unparseable expression should not produce an intent")
	}
}

func TestDetectIntent_BareArithmetic(t *testing.T) {
	r := detectIntent("(2+2)*10")
	if r == nil {
		t.Fatal("expected calc intent")
	}
	if r.Value != "40" {
		t.Errorf("Value = %q, want 40", r.Value)
	}

	// A dotted number is neither a URL nor an expression.
	if r := detectIntent("3.14"); r != nil {
		t.Errorf("detectIntent(3.14) = %+v, want nil", r)
	}
}

func TestDetectIntent_RunPrefix(t *testing.T) {
	r := detectIntent(">ls -la")
	if r == nil {
		t.Fatal("expected run intent")
	}
	if r.Verb != "Run in shell" {
		t.Errorf("Verb = %q, want Run in shell", r.Verb)
	}
	if r.Query != "ls -la" {
		t.Errorf("Query = %q, want ls -la", r.Query)
	}
}

func TestDetectIntent_KnownBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh being on PATH")
	}

	r := detectIntent("sh -c true")
	if r == nil {
		t.Fatal("expected run intent for a PATH binary")
	}
	if r.Query != "sh -c true" {
		t.Errorf("Query = %q, want full command line", r.Query)
	}

	if r := detectIntent("definitely-not-a-binary-anywhere hello"); r != nil {
		t.Errorf("unknown binary produced intent %+v", r)
	}
}

func TestDetectIntent_WebPrefix(t *testing.T) {
	r := detectIntent("?golang generics")
	if r == nil {
		t.Fatal("expected web intent")
	}
	if r.Source != SourceWeb {
		t.Errorf("Source = %q, want web", r.Source)
	}
	if r.ID != "?golang generics" {
		t.Errorf("ID = %q, want raw query", r.ID)
	}
	if r.Query != "golang generics" {
		t.Errorf("Query = %q, want stripped term", r.Query)
	}
}

func TestDetectIntent_URL(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"https://example.com", "https://example.com"},
		{"http://example.com/a/b", "http://example.com/a/b"},
		{"www.example.com", "https://www.example.com"},
		{"example.com", "https://example.com"},
		{"example.com/path?x=1", "https://example.com/path?x=1"},
		{"sub.domain.co.uk", "https://sub.domain.co.uk"},
	}

	for _, tt := range tests {
		r := detectIntent(tt.query)
		if r == nil {
			t.Errorf("detectIntent(%q) = nil, want URL intent", tt.query)
			continue
		}
		if r.Query != tt.want {
			t.Errorf("detectIntent(%q).Query = %q, want %q", tt.query, r.Query, tt.want)
		}
		if r.Verb != "Open in browser" {
			t.Errorf("detectIntent(%q).Verb = %q", tt.query, r.Verb)
		}
	}
}

func TestDetectIntent_NotURL(t *testing.T) {
	for _, query := range []string{"hello world", "ends.", "two words.com"} {
		if r := detectIntent(query); r != nil && r.Verb == "Open in browser" {
			t.Errorf("detectIntent(%q) produced URL intent", query)
		}
	}
}
