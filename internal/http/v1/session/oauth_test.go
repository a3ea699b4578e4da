package session

import (
	"testing"
	"time"
)

func TestOAuthStatesExpireAndPrune(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newOAuthStates()
	s.now = func() time.Time { return now }

	stale, err := s.issue("a")
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(oauthStateTTL + time.Second)
	if s.consume("a", stale) {
		t.Fatal("expired state must be rejected")
	}

	if _, err := s.issue("b"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(oauthStateTTL + time.Second)
	fresh, err := s.issue("c")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.bySession["b"]; ok {
		t.Fatal("expected expired state to be pruned on issue")
	}
	if len(fresh) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", fresh)
	}
	if !s.consume("c", fresh) {
		t.Fatal("expected live state to be accepted")
	}
	if s.consume("c", fresh) {
		t.Fatal("state must be single use")
	}

	again, _ := s.issue("d")
	s.forget("d")
	if s.consume("d", again) {
		t.Fatal("forgotten state must be rejected")
	}
}
