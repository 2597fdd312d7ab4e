// Package app holds the in-memory coordination state: user registry, waiting
// queue, session store and friend graph. None of these structures are safe
// for concurrent use on their own; the orchestrator serializes every event
// that touches them.
package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

// RegistryEntry binds a user record to its live transport endpoint. Conn and
// Cancel are nil for entries loaded from disk or left behind by a disconnect.
type RegistryEntry struct {
	User   *domain.User
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

type Registry struct {
	byID      map[domain.UserID]*RegistryEntry
	byAccount map[domain.AccountID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[domain.UserID]*RegistryEntry),
		byAccount: make(map[domain.AccountID]domain.UserID),
	}
}

func (r *Registry) Insert(e *RegistryEntry) {
	r.byID[e.User.ID] = e
	r.byAccount[e.User.AccountID] = e.User.ID
	log.Debug().Str("module", "app.registry").Str("id", string(e.User.ID)).Str("name", e.User.Name).Msg("entry inserted")
}

func (r *Registry) Get(id domain.UserID) (*RegistryEntry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// GetByAccount resolves the stable account identity to the current entry.
func (r *Registry) GetByAccount(acct domain.AccountID) (*RegistryEntry, bool) {
	id, ok := r.byAccount[acct]
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// FindByName returns the first entry with a matching display name, online or
// not. Name collisions between unrelated users are not disambiguated.
func (r *Registry) FindByName(name string) (*RegistryEntry, bool) {
	for _, e := range r.byID {
		if e.User.Name == name {
			return e, true
		}
	}
	return nil, false
}

func (r *Registry) Delete(id domain.UserID) {
	if e, ok := r.byID[id]; ok {
		if r.byAccount[e.User.AccountID] == id {
			delete(r.byAccount, e.User.AccountID)
		}
		delete(r.byID, id)
		log.Debug().Str("module", "app.registry").Str("id", string(id)).Msg("entry deleted")
	}
}

func (r *Registry) OnlineCount() int {
	n := 0
	for _, e := range r.byID {
		if e.User.IsOnline {
			n++
		}
	}
	return n
}

// UsersSnapshot returns every user keyed by account id, for persistence.
func (r *Registry) UsersSnapshot() map[domain.AccountID]domain.User {
	out := make(map[domain.AccountID]domain.User, len(r.byID))
	for _, e := range r.byID {
		out[e.User.AccountID] = e.User.Clone()
	}
	return out
}

// LoadUsers seeds the registry from a persisted snapshot. Loaded entries are
// offline and have no transport; a reconnect-by-name revives them.
func (r *Registry) LoadUsers(users map[domain.AccountID]domain.User) {
	for acct, u := range users {
		u := u.Clone()
		u.AccountID = acct
		u.IsOnline = false
		u.CurrentSession = nil
		if u.ID == "" {
			u.ID = domain.UserID(acct)
		}
		r.Insert(&RegistryEntry{User: &u})
	}
}
