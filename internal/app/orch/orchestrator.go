// Package orch is the coordination engine: every inbound connection event
// (join, matchmaking, relay traffic, disconnect) is one method call that runs
// to completion under a single lock, so the registry, waiting queue, session
// store and friend graph never see interleaved mutation.
package orch

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/app"
	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

// Persister saves a consistent snapshot of the durable state. Faults are
// non-fatal; in-memory state stays the source of truth.
type Persister interface {
	Save(users map[domain.AccountID]domain.User, friends map[domain.AccountID][]domain.AccountID) error
}

type Orchestrator struct {
	mu sync.Mutex

	Registry *app.Registry
	Queue    *app.WaitQueue
	Sessions *app.SessionStore
	Friends  *app.FriendGraph
	Policy   app.Policy
	Limiter  *app.MatchRateLimiter
	Persist  Persister
}

func New(persist Persister) *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Queue:    app.NewWaitQueue(),
		Sessions: app.NewSessionStore(),
		Friends:  app.NewFriendGraph(),
		Policy:   app.DropPolicy{},
		Limiter:  app.NewMatchRateLimiter(10, 10*time.Second),
		Persist:  persist,
	}
}

func (o *Orchestrator) Stats() domain.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.Stats{
		OnlineUsers:    o.Registry.OnlineCount(),
		ActiveSessions: o.Sessions.Len(),
		WaitingUsers:   o.Queue.Len(),
	}
}

// Flush writes a snapshot synchronously. Used by the periodic saver and on
// shutdown; the snapshot is taken under the lock, the write is not.
func (o *Orchestrator) Flush() error {
	if o.Persist == nil {
		return nil
	}
	o.mu.Lock()
	users := o.Registry.UsersSnapshot()
	friends := o.Friends.Snapshot()
	o.mu.Unlock()
	return o.Persist.Save(users, friends)
}

// flushLocked stages a fire-and-forget save from inside an event handler.
// It must not stall event handling, so the write happens off the lock.
func (o *Orchestrator) flushLocked() {
	if o.Persist == nil {
		return
	}
	users := o.Registry.UsersSnapshot()
	friends := o.Friends.Snapshot()
	go func() {
		if err := o.Persist.Save(users, friends); err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("snapshot save failed")
		}
	}()
}

// emit encodes and sends one event to an entry's connection. Entries without
// a live connection (offline, loaded from disk) are skipped.
func (o *Orchestrator) emit(e *app.RegistryEntry, eventType string, payload any) {
	if e == nil || e.Conn == nil {
		return
	}
	f, err := core.Encode(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", eventType).Msg("encode event")
		return
	}
	if err := e.Conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("event", eventType).Str("to", string(e.User.ID)).Msg("event send failed")
	}
}
