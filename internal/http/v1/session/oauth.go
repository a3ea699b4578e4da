package session

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const oauthStateTTL = 10 * time.Minute

type pendingState struct {
	value   string
	expires time.Time
}

// oauthStates holds the one pending consent state per session. A code is only
// redeemed together with the state issued to the same session.
type oauthStates struct {
	mu        sync.Mutex
	bySession map[string]pendingState
	now       func() time.Time
}

func newOAuthStates() *oauthStates {
	return &oauthStates{bySession: make(map[string]pendingState), now: time.Now}
}

// issue replaces any pending state for sessionID.
func (s *oauthStates) issue(sessionID string) (string, error) {
	v, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	state := strings.ReplaceAll(v.String(), "-", "")

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, p := range s.bySession {
		if now.After(p.expires) {
			delete(s.bySession, id)
		}
	}
	s.bySession[sessionID] = pendingState{value: state, expires: now.Add(oauthStateTTL)}
	return state, nil
}

// consume reports whether state is the live one for sessionID. It succeeds at
// most once per issued state.
func (s *oauthStates) consume(sessionID, state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.bySession[sessionID]
	if !ok {
		return false
	}
	delete(s.bySession, sessionID)
	if s.now().After(p.expires) || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.value), []byte(state)) == 1
}

// forget drops the pending state of a closed session.
func (s *oauthStates) forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bySession, sessionID)
}
