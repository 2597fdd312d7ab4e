package orch

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/app"
	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

// SessionMessage relays a chat message to the sender's partner, augmented
// with the sender snapshot and a server timestamp.
func (o *Orchestrator) SessionMessage(id domain.UserID, text, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, sess, ok := o.inSession(id)
	if !ok {
		return
	}
	o.relay(id, sess, core.EvtSessionMessage, core.SessionMessagePayload{
		Text:      text,
		Kind:      kind,
		From:      e.User.Clone(),
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) GoalUpdate(id domain.UserID, goal string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, sess, ok := o.inSession(id)
	if !ok {
		return
	}
	o.relay(id, sess, core.EvtGoalUpdate, core.GoalUpdatePayload{Goal: goal, From: id})
}

func (o *Orchestrator) TimerSync(id domain.UserID, elapsed float64, isRunning bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, sess, ok := o.inSession(id)
	if !ok {
		return
	}
	o.relay(id, sess, core.EvtTimerSync, core.TimerSyncPayload{Time: elapsed, IsRunning: isRunning})
}

// ForwardSignal passes a webrtc payload to the partner byte-for-byte. The
// payload is never inspected; routing uses only the sender's current session.
func (o *Orchestrator) ForwardSignal(id domain.UserID, eventType string, data json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, sess, ok := o.inSession(id)
	if !ok {
		return
	}
	o.relay(id, sess, eventType, data)
}

// EndSession tears down the sender's session voluntarily. Ending an
// already-absent session is a no-op.
func (o *Orchestrator) EndSession(id domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, sess, ok := o.inSession(id)
	if !ok {
		return
	}
	o.teardown(id, sess, core.EvtSessionEnded)
}

// inSession resolves the sender and its session record. Any missing link is
// a silent drop per the relay contract.
func (o *Orchestrator) inSession(id domain.UserID) (*app.RegistryEntry, *domain.Session, bool) {
	e, ok := o.Registry.Get(id)
	if !ok || e.User.CurrentSession == nil {
		return nil, nil, false
	}
	sess, ok := o.Sessions.Get(*e.User.CurrentSession)
	if !ok {
		return nil, nil, false
	}
	return e, sess, true
}

// relay fans a payload out to every session member except the sender, which
// for a two-member session is exactly the partner. Backpressure on the
// target's connection is delegated to the policy.
func (o *Orchestrator) relay(from domain.UserID, sess *domain.Session, eventType string, payload any) {
	f, err := core.Encode(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", eventType).Msg("encode relay payload")
		return
	}
	for _, mid := range sess.MemberIDs {
		if mid == from {
			continue
		}
		e, ok := o.Registry.Get(mid)
		if !ok || e.Conn == nil {
			continue
		}
		if err := e.Conn.TrySend(f); err != nil {
			if o.Policy != nil && o.Policy.OnBackpressure(sess.ID, mid) == app.KickMember {
				if e.Cancel != nil {
					e.Cancel()
				}
			}
		}
	}
}
