package debounce

import "testing"

func TestParseUnix(t *testing.T) {
	v, err := parseUnix("1735689600")
	if err != nil {
		t.Fatalf("parseUnix returned error: %v", err)
	}
	if v != 1735689600 {
		t.Fatalf("parseUnix = %d, want %d", v, 1735689600)
	}
}

func TestNewDefaultsWindowWhenNonPositive(t *testing.T) {
	o := New(nil, 0, nil)
	if o.window != defaultWindow {
		t.Fatalf("expected default window %v, got %v", defaultWindow, o.window)
	}
}
