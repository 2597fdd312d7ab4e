package domain

import "time"

type SessionID string

// Session pairs exactly two users. Users holds snapshots taken at pairing
// time; MemberIDs holds the connection identities used for routing. Teardown
// resolves registry entries fresh instead of trusting the snapshots, so a
// reconnect between pairing and teardown cannot leak a stale pointer.
type Session struct {
	ID        SessionID `json:"id"`
	Users     [2]User   `json:"users"`
	MemberIDs [2]UserID `json:"-"`
	StartTime time.Time `json:"startTime"`
	IsActive  bool      `json:"isActive"`
}

// Stats is the read-only view served by the HTTP API.
type Stats struct {
	OnlineUsers    int `json:"onlineUsers"`
	ActiveSessions int `json:"activeSessions"`
	WaitingUsers   int `json:"waitingUsers"`
}
