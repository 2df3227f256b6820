package validation

import (
	"sync"
	"time"
)

// State of a validation session.
type State string

const (
	StateOpen               State = "open"
	StateFinalizedValidated State = "finalized_validated"
	StateFinalizedRejected  State = "finalized_rejected"
	StateExpired            State = "expired"
)

// Terminal reports whether no further automatic votes are accepted.
// Expired is terminal for voting but can still be finalized manually.
func (s State) Terminal() bool {
	return s != StateOpen
}

// session is the in-memory quorum state for one pending report. The vote
// sets are disjoint: casting the opposite vote moves the moderator over
// atomically under the session lock.
type session struct {
	mu        sync.Mutex
	token     string
	tenantID  string
	state     State
	openedAt  time.Time
	approvers map[string]struct{}
	rejecters map[string]struct{}
}

func newSession(token, tenantID string, openedAt time.Time) *session {
	return &session{
		token:     token,
		tenantID:  tenantID,
		state:     StateOpen,
		openedAt:  openedAt,
		approvers: make(map[string]struct{}),
		rejecters: make(map[string]struct{}),
	}
}

// record adds the moderator to the chosen set. Reports whether this exact
// vote was already present (a silent no-op surfaced for UX only).
func (s *session) record(moderatorID string, approve bool) (already bool) {
	target, opposite := s.approvers, s.rejecters
	if !approve {
		target, opposite = s.rejecters, s.approvers
	}
	if _, ok := target[moderatorID]; ok {
		return true
	}
	delete(opposite, moderatorID)
	target[moderatorID] = struct{}{}
	return false
}

// expiredBy reports whether the session's validation window has elapsed.
func (s *session) expiredBy(now time.Time, window time.Duration) bool {
	return now.After(s.openedAt.Add(window))
}
