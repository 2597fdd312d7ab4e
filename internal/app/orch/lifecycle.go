package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/app"
	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

// Join binds a connection to a registry entry. A display-name match against
// an existing entry is treated as a reconnect: the old entry's session is
// torn down like a disconnect, the old identity leaves the queue and the
// registry, and the profile carries over under the new connection identity.
func (o *Orchestrator) Join(id domain.UserID, conn core.SignalConnection, cancel context.CancelFunc, profile domain.Profile) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name, _ := profile["name"].(string)
	delete(profile, "name")

	var user *domain.User
	if old, ok := o.Registry.FindByName(name); ok {
		if old.User.CurrentSession != nil {
			if sess, ok := o.Sessions.Get(*old.User.CurrentSession); ok {
				o.teardown(old.User.ID, sess, core.EvtPartnerDisconnected)
			}
		}
		o.Queue.Remove(old.User.ID)
		o.Registry.Delete(old.User.ID)

		u := old.User.Clone()
		u.ID = id
		u.IsOnline = true
		u.CurrentSession = nil
		user = &u
		log.Info().Str("module", "orch").Str("id", string(id)).Str("name", name).Msg("user reconnected")
	} else {
		user = domain.NewUser(id, name, profile)
		log.Info().Str("module", "orch").Str("id", string(id)).Str("name", name).Msg("new user joined")
	}

	o.Registry.Insert(&app.RegistryEntry{User: user, Conn: conn, Cancel: cancel})
	o.emit(o.mustGet(id), core.EvtJoined, core.JoinedPayload{UserID: id, User: user.Clone()})
	o.flushLocked()
}

// Disconnect unbinds a dropped connection: the entry leaves the queue, its
// session is torn down, and the user is marked offline but kept for a later
// reconnect by name.
func (o *Orchestrator) Disconnect(id domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	o.Queue.Remove(id)

	if e.User.CurrentSession != nil {
		if sess, ok := o.Sessions.Get(*e.User.CurrentSession); ok {
			o.teardown(id, sess, core.EvtPartnerDisconnected)
		}
	}

	e.User.IsOnline = false
	e.User.CurrentSession = nil
	e.Conn = nil
	e.Cancel = nil
	log.Info().Str("module", "orch").Str("id", string(id)).Str("name", e.User.Name).Msg("user marked offline")
	o.flushLocked()
}

// teardown ends a session: the members other than raisedBy are notified with
// eventType, currentSession is cleared on every member entry still present
// (looked up fresh, tolerating reconnects in between), and the record is
// removed. Tearing down an absent session is the caller's no-op.
func (o *Orchestrator) teardown(raisedBy domain.UserID, sess *domain.Session, eventType string) {
	for _, mid := range sess.MemberIDs {
		e, ok := o.Registry.Get(mid)
		if !ok {
			continue
		}
		if e.User.CurrentSession != nil && *e.User.CurrentSession == sess.ID {
			e.User.CurrentSession = nil
		}
		if mid != raisedBy {
			o.emit(e, eventType, nil)
		}
	}
	o.Sessions.Delete(sess.ID)
	log.Info().Str("module", "orch").Str("session", string(sess.ID)).Str("event", eventType).Msg("session torn down")
}

func (o *Orchestrator) mustGet(id domain.UserID) *app.RegistryEntry {
	e, _ := o.Registry.Get(id)
	return e
}
