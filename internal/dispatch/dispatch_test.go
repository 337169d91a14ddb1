package dispatch

import "testing"

func TestDigitsOnlyStripsSymbols(t *testing.T) {
	cases := map[string]string{
		"+62 812-3456-7890": "6281234567890",
		"6281234567890":      "6281234567890",
		"6281234567890@lid":  "6281234567890",
	}
	for in, want := range cases {
		if got := digitsOnly(in); got != want {
			t.Errorf("digitsOnly(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsGroupJID(t *testing.T) {
	if !isGroupJID("12036304@g.us") {
		t.Fatalf("expected @g.us to be a group jid")
	}
	if isGroupJID("6281234567890@c.us") {
		t.Fatalf("expected @c.us to not be a group jid")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("truncate should leave short strings alone, got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello" {
		t.Fatalf("truncate(%q, 5) = %q, want %q", "hello world", got, "hello")
	}
}
