package orch

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusduo/focusduo/internal/app"
	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

type fakeConn struct {
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	if c.full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func (c *fakeConn) events(t *testing.T) []core.Envelope {
	t.Helper()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) lastType(t *testing.T) string {
	t.Helper()
	evts := c.events(t)
	require.NotEmpty(t, evts)
	return evts[len(evts)-1].Type
}

// last returns the most recent event of the given type, decoded into dst.
func (c *fakeConn) last(t *testing.T, eventType string, dst any) {
	t.Helper()
	evts := c.events(t)
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Type == eventType {
			require.NoError(t, json.Unmarshal(evts[i].Data, dst))
			return
		}
	}
	t.Fatalf("no %q event received", eventType)
}

func (c *fakeConn) count(t *testing.T, eventType string) int {
	t.Helper()
	n := 0
	for _, e := range c.events(t) {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func join(t *testing.T, o *Orchestrator, name string) (domain.UserID, *fakeConn) {
	t.Helper()
	id := domain.UserID(uuid.NewString())
	conn := &fakeConn{}
	o.Join(id, conn, nil, domain.Profile{"name": name, "focusStyle": "deep work"})
	require.Equal(t, core.EvtJoined, conn.lastType(t))
	return id, conn
}

func pairUp(t *testing.T, o *Orchestrator) (domain.UserID, *fakeConn, domain.UserID, *fakeConn, domain.SessionID) {
	t.Helper()
	a, ca := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")
	o.FindPartner(a)
	o.FindPartner(b)
	var found core.PartnerFoundPayload
	ca.last(t, core.EvtPartnerFound, &found)
	return a, ca, b, cb, found.SessionID
}

// checkQueue asserts the waiting-queue invariants: no duplicate identities
// and no entry whose registry record is already in a session.
func checkQueue(t *testing.T, o *Orchestrator) {
	t.Helper()
	seen := make(map[domain.UserID]bool)
	for _, u := range o.Queue.Entries() {
		require.False(t, seen[u.ID], "duplicate queue entry %s", u.ID)
		seen[u.ID] = true
		e, ok := o.Registry.Get(u.ID)
		require.True(t, ok)
		require.Nil(t, e.User.CurrentSession, "queued user %s has a session", u.ID)
	}
}

func TestJoinCreatesUser(t *testing.T) {
	o := New(nil)
	id, conn := join(t, o, "Alice")

	var p core.JoinedPayload
	conn.last(t, core.EvtJoined, &p)
	assert.Equal(t, id, p.UserID)
	assert.Equal(t, "Alice", p.User.Name)
	assert.True(t, p.User.IsOnline)
	assert.NotEmpty(t, p.User.AccountID)
	assert.Equal(t, "deep work", p.User.Profile["focusStyle"])
}

func TestFindPartnerEmptyQueueWaits(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")

	o.FindPartner(a)

	assert.Equal(t, core.EvtWaitingForPartner, ca.lastType(t))
	assert.Equal(t, 1, o.Queue.Len())
	checkQueue(t, o)
}

func TestFindPartnerMatchesFIFO(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")

	o.FindPartner(a)
	o.FindPartner(b)

	var pa, pb core.PartnerFoundPayload
	ca.last(t, core.EvtPartnerFound, &pa)
	cb.last(t, core.EvtPartnerFound, &pb)
	assert.Equal(t, pa.SessionID, pb.SessionID)
	assert.Equal(t, "Bob", pa.Partner.Name)
	assert.Equal(t, "Alice", pb.Partner.Name)

	assert.Equal(t, 0, o.Queue.Len())
	assert.Equal(t, 1, o.Sessions.Len())

	// Referential consistency: both registry records point at the session.
	for _, id := range []domain.UserID{a, b} {
		e, ok := o.Registry.Get(id)
		require.True(t, ok)
		require.NotNil(t, e.User.CurrentSession)
		assert.Equal(t, pa.SessionID, *e.User.CurrentSession)
	}
	sess, ok := o.Sessions.Get(pa.SessionID)
	require.True(t, ok)
	assert.True(t, sess.IsActive)
	assert.ElementsMatch(t, []domain.UserID{a, b}, sess.MemberIDs[:])
}

func TestFindPartnerNeverDoubleEnqueues(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")

	o.FindPartner(a)
	o.FindPartner(a)
	o.FindPartner(a)

	assert.Equal(t, 1, o.Queue.Len())
	checkQueue(t, o)
	assert.Equal(t, 3, ca.count(t, core.EvtWaitingForPartner))
}

func TestFindPartnerWhileInSessionIsIdempotent(t *testing.T) {
	o := New(nil)
	a, ca, _, _, _ := pairUp(t, o)

	o.FindPartner(a)

	assert.Equal(t, core.EvtWaitingForPartner, ca.lastType(t))
	assert.Equal(t, 0, o.Queue.Len())
	assert.Equal(t, 1, o.Sessions.Len())
}

func TestQueuePrunesDisconnectedEntries(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")

	o.FindPartner(a)
	o.Disconnect(a)
	o.FindPartner(b)

	// Alice's stale entry must not produce a match.
	assert.Equal(t, core.EvtWaitingForPartner, cb.lastType(t))
	assert.Equal(t, 1, o.Queue.Len())
	checkQueue(t, o)
}

func TestCancelSearch(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")

	o.FindPartner(a)
	o.CancelSearch(a)

	assert.Equal(t, core.EvtSearchCancelled, ca.lastType(t))
	assert.Equal(t, 0, o.Queue.Len())

	frames := len(ca.frames)
	o.CancelSearch(a)
	assert.Len(t, ca.frames, frames, "second cancel must be a no-op")
}

func TestSessionMessageRelay(t *testing.T) {
	o := New(nil)
	a, ca, _, cb, _ := pairUp(t, o)

	before := time.Now()
	o.SessionMessage(a, "hi", "text")

	var msg core.SessionMessagePayload
	cb.last(t, core.EvtSessionMessage, &msg)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, "text", msg.Kind)
	assert.Equal(t, "Alice", msg.From.Name)
	assert.False(t, msg.Timestamp.Before(before.Truncate(time.Second)))

	assert.Zero(t, ca.count(t, core.EvtSessionMessage), "sender must not receive its own message")
}

func TestGoalAndTimerRelay(t *testing.T) {
	o := New(nil)
	a, _, _, cb, _ := pairUp(t, o)

	o.GoalUpdate(a, "finish the report")
	var goal core.GoalUpdatePayload
	cb.last(t, core.EvtGoalUpdate, &goal)
	assert.Equal(t, "finish the report", goal.Goal)
	assert.Equal(t, a, goal.From)

	o.TimerSync(a, 1500, true)
	var timer core.TimerSyncPayload
	cb.last(t, core.EvtTimerSync, &timer)
	assert.Equal(t, float64(1500), timer.Time)
	assert.True(t, timer.IsRunning)
}

func TestSignalingForwardedOpaquely(t *testing.T) {
	o := New(nil)
	a, _, _, cb, sid := pairUp(t, o)

	raw := json.RawMessage(`{"sessionId":"` + string(sid) + `","offer":{"sdp":"v=0 nested é","type":"offer"}}`)
	o.ForwardSignal(a, core.EvtWebRTCOffer, raw)

	evts := cb.events(t)
	last := evts[len(evts)-1]
	assert.Equal(t, core.EvtWebRTCOffer, last.Type)
	assert.JSONEq(t, string(raw), string(last.Data))
}

func TestRelayWithoutSessionIsSilent(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")

	frames := len(ca.frames)
	o.SessionMessage(a, "into the void", "text")
	o.GoalUpdate(a, "nope")
	o.ForwardSignal(a, core.EvtWebRTCOffer, json.RawMessage(`{}`))

	assert.Len(t, ca.frames, frames)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	o := New(nil)
	a, _, b, cb, _ := pairUp(t, o)

	o.EndSession(a)

	assert.Equal(t, core.EvtSessionEnded, cb.lastType(t))
	assert.Equal(t, 0, o.Sessions.Len())
	for _, id := range []domain.UserID{a, b} {
		e, _ := o.Registry.Get(id)
		assert.Nil(t, e.User.CurrentSession)
	}

	frames := len(cb.frames)
	o.EndSession(a)
	o.EndSession(b)
	assert.Equal(t, 0, o.Sessions.Len())
	assert.Len(t, cb.frames, frames)
}

func TestDisconnectTearsDownSession(t *testing.T) {
	o := New(nil)
	a, _, b, cb, sid := pairUp(t, o)

	o.Disconnect(a)

	assert.Equal(t, core.EvtPartnerDisconnected, cb.lastType(t))
	_, ok := o.Sessions.Get(sid)
	assert.False(t, ok)

	be, _ := o.Registry.Get(b)
	assert.Nil(t, be.User.CurrentSession)

	// The departing user stays in the registry, offline, for reconnects.
	ae, ok := o.Registry.Get(a)
	require.True(t, ok)
	assert.False(t, ae.User.IsOnline)
	assert.Nil(t, ae.User.CurrentSession)
}

func TestReconnectByNameRotatesIdentity(t *testing.T) {
	o := New(nil)
	a, _, _, cb, sid := pairUp(t, o)

	oldEntry, _ := o.Registry.Get(a)
	oldAccount := oldEntry.User.AccountID

	// Alice reconnects under the same display name while the stale session
	// still references her old identity.
	a2 := domain.UserID(uuid.NewString())
	ca2 := &fakeConn{}
	o.Join(a2, ca2, nil, domain.Profile{"name": "Alice"})

	assert.Equal(t, core.EvtPartnerDisconnected, cb.lastType(t))
	_, ok := o.Sessions.Get(sid)
	assert.False(t, ok, "stale session must be torn down")

	_, ok = o.Registry.Get(a)
	assert.False(t, ok, "old identity must leave the registry")
	assert.False(t, o.Queue.Contains(a))

	e, ok := o.Registry.Get(a2)
	require.True(t, ok)
	assert.True(t, e.User.IsOnline)
	assert.Nil(t, e.User.CurrentSession)
	assert.Equal(t, oldAccount, e.User.AccountID, "account identity must survive the rotation")
	assert.Equal(t, "deep work", e.User.Profile["focusStyle"], "profile fields carry over")
}

func TestAddFriendSymmetric(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")

	o.AddFriend(a, b)

	var fa, fb domain.User
	ca.last(t, core.EvtFriendAdded, &fa)
	cb.last(t, core.EvtFriendAdded, &fb)
	assert.Equal(t, "Bob", fa.Name)
	assert.Equal(t, "Alice", fb.Name)

	o.GetFriends(a)
	var friendsOfA []domain.User
	ca.last(t, core.EvtFriendsList, &friendsOfA)
	require.Len(t, friendsOfA, 1)
	assert.Equal(t, b, friendsOfA[0].ID)

	o.GetFriends(b)
	var friendsOfB []domain.User
	cb.last(t, core.EvtFriendsList, &friendsOfB)
	require.Len(t, friendsOfB, 1)
	assert.Equal(t, a, friendsOfB[0].ID)
}

func TestFriendshipSurvivesReconnect(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")
	o.AddFriend(a, b)

	a2 := domain.UserID(uuid.NewString())
	o.Join(a2, &fakeConn{}, nil, domain.Profile{"name": "Alice"})

	o.GetFriends(b)
	var friends []domain.User
	cb.last(t, core.EvtFriendsList, &friends)
	require.Len(t, friends, 1, "edge keyed by account id must survive identity rotation")
	assert.Equal(t, a2, friends[0].ID)
	assert.True(t, friends[0].IsOnline)
}

func TestGetFriendsIncludesOffline(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")
	b, _ := join(t, o, "Bob")
	o.AddFriend(a, b)

	o.Disconnect(b)
	o.GetFriends(a)

	var friends []domain.User
	ca.last(t, core.EvtFriendsList, &friends)
	require.Len(t, friends, 1)
	assert.False(t, friends[0].IsOnline)
}

func TestInviteFriend(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")

	o.InviteFriend(a, b)

	var inv core.SessionInvitePayload
	cb.last(t, core.EvtSessionInvite, &inv)
	assert.Equal(t, "Alice", inv.From.Name)
	assert.NotEmpty(t, inv.InviteID)
}

func TestInviteFriendRequiresFreeOnlineTarget(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")

	o.Disconnect(b)
	frames := len(cb.frames)
	o.InviteFriend(a, b)
	assert.Len(t, cb.frames, frames, "offline target must not be invited")
}

func TestAcceptInvitePairs(t *testing.T) {
	o := New(nil)
	a, ca := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")
	o.InviteFriend(a, b)

	var inv core.SessionInvitePayload
	cb.last(t, core.EvtSessionInvite, &inv)
	o.AcceptInvite(b, inv.From)

	var pa, pb core.PartnerFoundPayload
	ca.last(t, core.EvtPartnerFound, &pa)
	cb.last(t, core.EvtPartnerFound, &pb)
	assert.Equal(t, pa.SessionID, pb.SessionID)
	assert.Equal(t, "Bob", pa.Partner.Name)
	assert.Equal(t, 1, o.Sessions.Len())
}

func TestAcceptInviteWhileQueuedLeavesQueue(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")

	o.FindPartner(b)
	o.InviteFriend(a, b)

	var inv core.SessionInvitePayload
	cb.last(t, core.EvtSessionInvite, &inv)
	o.AcceptInvite(b, inv.From)

	assert.Equal(t, 0, o.Queue.Len(), "pairing must clear the accepter's queue entry")
	checkQueue(t, o)
}

func TestAcceptInviteRejectedWhileInSession(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")
	c, _ := join(t, o, "Carol")
	o.FindPartner(b)
	o.FindPartner(c)
	var found core.PartnerFoundPayload
	cb.last(t, core.EvtPartnerFound, &found)
	sid := found.SessionID

	ae, _ := o.Registry.Get(a)
	o.AcceptInvite(b, ae.User.Clone())

	// Bob keeps his session with Carol; the accept is dropped.
	be, _ := o.Registry.Get(b)
	require.NotNil(t, be.User.CurrentSession)
	assert.Equal(t, sid, *be.User.CurrentSession)
	assert.Equal(t, 1, o.Sessions.Len())
	assert.Equal(t, 1, cb.count(t, core.EvtPartnerFound))
}

func TestAcceptInviteResolvesReconnectedInviter(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, cb := join(t, o, "Bob")
	o.InviteFriend(a, b)

	var inv core.SessionInvitePayload
	cb.last(t, core.EvtSessionInvite, &inv)

	// Alice reconnects before Bob accepts; the stale connection id in the
	// invite snapshot resolves through the account id.
	a2 := domain.UserID(uuid.NewString())
	ca2 := &fakeConn{}
	o.Join(a2, ca2, nil, domain.Profile{"name": "Alice"})

	o.AcceptInvite(b, inv.From)

	var found core.PartnerFoundPayload
	ca2.last(t, core.EvtPartnerFound, &found)
	assert.Equal(t, "Bob", found.Partner.Name)
	assert.Equal(t, 1, o.Sessions.Len())
}

func TestBackpressureKickPolicy(t *testing.T) {
	o := New(nil)
	o.Policy = kickPolicy{}

	a, _, b, cb, _ := pairUp(t, o)

	cancelled := false
	be, _ := o.Registry.Get(b)
	be.Cancel = func() { cancelled = true }
	cb.full = true

	o.SessionMessage(a, "hi", "text")
	assert.True(t, cancelled, "kick policy must cancel the slow connection")
}

type kickPolicy struct{}

func (kickPolicy) OnBackpressure(domain.SessionID, domain.UserID) app.BackpressureAction {
	return app.KickMember
}

func TestStats(t *testing.T) {
	o := New(nil)
	a, _ := join(t, o, "Alice")
	b, _ := join(t, o, "Bob")
	c, _ := join(t, o, "Carol")

	o.FindPartner(a)
	o.FindPartner(b) // pairs with Alice
	o.FindPartner(c) // waits
	o.Disconnect(a)

	s := o.Stats()
	assert.Equal(t, 2, s.OnlineUsers)
	assert.Equal(t, 0, s.ActiveSessions)
	assert.Equal(t, 1, s.WaitingUsers)
}

func TestFindPartnerRateLimited(t *testing.T) {
	o := New(nil)
	o.Limiter = app.NewMatchRateLimiter(2, time.Minute)
	a, ca := join(t, o, "Alice")

	o.FindPartner(a)
	o.FindPartner(a)
	o.FindPartner(a)

	assert.Equal(t, 2, ca.count(t, core.EvtWaitingForPartner))
	assert.Equal(t, 1, o.Queue.Len())
}

func TestQueueInvariantsUnderChurn(t *testing.T) {
	o := New(nil)
	names := []string{"A", "B", "C", "D", "E"}
	ids := make([]domain.UserID, len(names))
	for i, n := range names {
		ids[i], _ = join(t, o, n)
	}

	ops := []func(){
		func() { o.FindPartner(ids[0]) },
		func() { o.FindPartner(ids[1]) },
		func() { o.FindPartner(ids[2]) },
		func() { o.CancelSearch(ids[2]) },
		func() { o.FindPartner(ids[2]) },
		func() { o.Disconnect(ids[2]) },
		func() { o.FindPartner(ids[3]) },
		func() { o.FindPartner(ids[4]) },
		func() { o.EndSession(ids[0]) },
		func() { o.FindPartner(ids[0]) },
	}
	for _, op := range ops {
		op()
		checkQueue(t, o)
	}
}
