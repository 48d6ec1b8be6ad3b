package utils

import "testing"

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		tok := NewToken()
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d iterations: %s", i, tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestNewIDFormat(t *testing.T) {
	if id := NewID(); len(id) != 36 {
		t.Fatalf("unexpected id %q", id)
	}
}
