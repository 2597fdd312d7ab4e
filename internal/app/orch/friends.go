package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

// AddFriend inserts the symmetric edge and notifies both parties with each
// other's current profile. Re-adding an existing edge still re-notifies.
func (o *Orchestrator) AddFriend(id, friendID domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	b, ok := o.Registry.Get(friendID)
	if !ok {
		return
	}

	o.Friends.AddEdge(a.User.AccountID, b.User.AccountID)
	log.Info().Str("module", "orch").Str("a", a.User.Name).Str("b", b.User.Name).Msg("friendship added")

	o.emit(a, core.EvtFriendAdded, b.User.Clone())
	o.emit(b, core.EvtFriendAdded, a.User.Clone())
	o.flushLocked()
}

// GetFriends replies with live profile snapshots of the requester's friends.
// Friends with no registry entry are filtered out; offline friends are
// included with isOnline=false.
func (o *Orchestrator) GetFriends(id domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	accounts := o.Friends.Friends(e.User.AccountID)
	friends := make([]domain.User, 0, len(accounts))
	for _, acct := range accounts {
		fe, ok := o.Registry.GetByAccount(acct)
		if !ok {
			continue
		}
		friends = append(friends, fe.User.Clone())
	}
	o.emit(e, core.EvtFriendsList, friends)
}
