package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/domain"
)

// SessionStore maps session ids to active pairings. Exactly one record per
// session id; records are removed on teardown, never reused.
type SessionStore struct {
	byID map[domain.SessionID]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{byID: make(map[domain.SessionID]*domain.Session)}
}

// Create allocates a session id and records a pairing of the two users.
// The user snapshots are taken by value at creation time.
func (s *SessionStore) Create(a, b domain.User) *domain.Session {
	sess := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		Users:     [2]domain.User{a, b},
		MemberIDs: [2]domain.UserID{a.ID, b.ID},
		StartTime: time.Now(),
		IsActive:  true,
	}
	s.byID[sess.ID] = sess
	log.Info().Str("module", "app.sessions").Str("session", string(sess.ID)).
		Str("a", a.Name).Str("b", b.Name).Msg("session created")
	return sess
}

func (s *SessionStore) Get(id domain.SessionID) (*domain.Session, bool) {
	sess, ok := s.byID[id]
	return sess, ok
}

func (s *SessionStore) Delete(id domain.SessionID) {
	delete(s.byID, id)
}

func (s *SessionStore) Len() int { return len(s.byID) }
