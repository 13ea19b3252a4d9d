package util

import (
	"strings"
	"testing"
)

func TestNewShortID(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewShortID(ShortIDLength)
		if !IsShortID(id) {
			t.Fatalf("unexpected id shape %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 999 {
		t.Fatalf("expected ids to be effectively unique, got %d distinct", len(seen))
	}
}

func TestIsShortID(t *testing.T) {
	tests := map[string]bool{
		"abcD1234":  true,
		"abc":       false,
		"abcD123!":  false,
		"abcD12345": false,
		"":          false,
	}
	for input, want := range tests {
		if got := IsShortID(input); got != want {
			t.Errorf("IsShortID(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := NewID("req")
	if !strings.HasPrefix(id, "req_") || len(id) != len("req_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
}
