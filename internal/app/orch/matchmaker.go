package orch

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/app"
	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

// FindPartner matches the requester with the oldest waiting user, or parks
// the requester on the queue. The queue is pruned against the registry before
// every attempt, so entries left behind by disconnects never produce a match.
func (o *Orchestrator) FindPartner(id domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	if !o.Limiter.Allow(e.User.AccountID) {
		log.Warn().Str("module", "orch").Str("id", string(id)).Msg("find-partner rate limited")
		return
	}
	// A stale client retry while already paired re-signals instead of
	// double-entering the queue.
	if e.User.CurrentSession != nil {
		o.emit(e, core.EvtWaitingForPartner, nil)
		return
	}
	o.Queue.Remove(id)
	o.prune()

	head, ok := o.Queue.Pop()
	if !ok {
		o.Queue.Enqueue(e.User.Clone())
		o.emit(e, core.EvtWaitingForPartner, nil)
		return
	}
	// Re-validate the popped head; a stale head re-parks the requester.
	partner, ok := o.Registry.Get(head.ID)
	if !ok || !partner.User.IsOnline || partner.User.CurrentSession != nil {
		o.Queue.Enqueue(e.User.Clone())
		o.emit(e, core.EvtWaitingForPartner, nil)
		return
	}

	o.pair(e, partner)
}

func (o *Orchestrator) prune() {
	o.Queue.Prune(func(u domain.User) bool {
		e, ok := o.Registry.Get(u.ID)
		return ok && e.User.IsOnline && e.User.CurrentSession == nil
	})
}

// pair creates the session, points both registry entries at it and tells
// each side about the other. Both sides leave the waiting queue; an invite
// can pair a user who was still queued.
func (o *Orchestrator) pair(a, b *app.RegistryEntry) {
	o.Queue.Remove(a.User.ID)
	o.Queue.Remove(b.User.ID)
	sess := o.Sessions.Create(a.User.Clone(), b.User.Clone())
	sa, sb := sess.ID, sess.ID
	a.User.CurrentSession = &sa
	b.User.CurrentSession = &sb

	o.emit(a, core.EvtPartnerFound, core.PartnerFoundPayload{Partner: b.User.Clone(), SessionID: sess.ID})
	o.emit(b, core.EvtPartnerFound, core.PartnerFoundPayload{Partner: a.User.Clone(), SessionID: sess.ID})
}

func (o *Orchestrator) CancelSearch(id domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Queue.Remove(id) {
		o.emit(o.mustGet(id), core.EvtSearchCancelled, nil)
	}
}

// InviteFriend emits an ephemeral invite to the target. Nothing is stored;
// the invite exists only in transit.
func (o *Orchestrator) InviteFriend(id, friendID domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	from, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	target, ok := o.Registry.Get(friendID)
	if !ok || !target.User.IsOnline || target.User.CurrentSession != nil {
		return
	}
	o.emit(target, core.EvtSessionInvite, core.SessionInvitePayload{
		From:     from.User.Clone(),
		InviteID: uuid.NewString(),
	})
}

// AcceptInvite pairs the accepter with the invite's origin, bypassing the
// queue. The origin is resolved by connection id first and account id second,
// so an invite survives the inviter reconnecting in between.
func (o *Orchestrator) AcceptInvite(id domain.UserID, from domain.User) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	if e.User.CurrentSession != nil {
		log.Warn().Str("module", "orch").Str("id", string(id)).Msg("accept-invite while already in a session, rejected")
		return
	}
	origin, ok := o.Registry.Get(from.ID)
	if !ok {
		origin, ok = o.Registry.GetByAccount(from.AccountID)
	}
	if !ok || origin.User.CurrentSession != nil {
		return
	}

	o.pair(e, origin)
}
