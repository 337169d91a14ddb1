package lock

import "testing"

func TestRandomTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok := randomToken()
		if len(tok) != 32 {
			t.Fatalf("expected 32-char hex token, got %d chars", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}

func TestReleaseNilLeaseIsNoop(t *testing.T) {
	s := &Service{}
	if err := s.Release(nil, nil); err != nil {
		t.Fatalf("expected nil lease release to be a no-op, got %v", err)
	}
}
