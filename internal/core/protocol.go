package core

import (
	"encoding/json"
	"time"

	"github.com/focusduo/focusduo/internal/domain"
)

// Envelope is the wire format in both directions. The payload is nested so
// that event names never collide with payload fields (session-message carries
// its own "type").
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client -> server event names.
const (
	EvtJoin            = "join"
	EvtFindPartner     = "find-partner"
	EvtCancelSearch    = "cancel-search"
	EvtSessionMessage  = "session-message"
	EvtGoalUpdate      = "goal-update"
	EvtTimerSync       = "timer-sync"
	EvtWebRTCOffer     = "webrtc-offer"
	EvtWebRTCAnswer    = "webrtc-answer"
	EvtWebRTCCandidate = "webrtc-ice-candidate"
	EvtEndSession      = "end-session"
	EvtAddFriend       = "add-friend"
	EvtGetFriends      = "get-friends"
	EvtInviteFriend    = "invite-friend"
	EvtAcceptInvite    = "accept-invite"
)

// Server -> client event names.
const (
	EvtJoined              = "joined"
	EvtWaitingForPartner   = "waiting-for-partner"
	EvtSearchCancelled     = "search-cancelled"
	EvtPartnerFound        = "partner-found"
	EvtSessionEnded        = "session-ended"
	EvtPartnerDisconnected = "partner-disconnected"
	EvtFriendAdded         = "friend-added"
	EvtFriendsList         = "friends-list"
	EvtSessionInvite       = "session-invite"
)

type JoinedPayload struct {
	UserID domain.UserID `json:"userId"`
	User   domain.User   `json:"user"`
}

type PartnerFoundPayload struct {
	Partner   domain.User      `json:"partner"`
	SessionID domain.SessionID `json:"sessionId"`
}

type SessionMessagePayload struct {
	Text      string      `json:"text"`
	Kind      string      `json:"type,omitempty"`
	From      domain.User `json:"from"`
	Timestamp time.Time   `json:"timestamp"`
}

type GoalUpdatePayload struct {
	Goal string        `json:"goal"`
	From domain.UserID `json:"from"`
}

type TimerSyncPayload struct {
	Time      float64 `json:"time"`
	IsRunning bool    `json:"isRunning"`
}

type SessionInvitePayload struct {
	From     domain.User `json:"from"`
	InviteID string      `json:"inviteId"`
}

// Encode wraps a payload into an enveloped frame.
func Encode(eventType string, data any) (Frame, error) {
	env := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: eventType, Data: data}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
