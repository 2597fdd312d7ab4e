// Package domain contains entity types without logic, just meta-data.
package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

type (
	// UserID is the connection identity: it is rebound to a fresh value on
	// every reconnect.
	UserID string
	// AccountID is the stable identity a user keeps across reconnects.
	// Friendships and persisted profiles are keyed by it.
	AccountID string
)

// Profile holds arbitrary client-supplied attributes (focus style, work
// type, preferred session length). Stored as given, no schema.
type Profile map[string]any

// User is a registry entry. The profile fields are flattened into the same
// JSON object as the fixed fields on the wire and on disk.
type User struct {
	ID             UserID
	AccountID      AccountID
	Name           string
	Profile        Profile
	IsOnline       bool
	CurrentSession *SessionID
}

func NewUser(id UserID, name string, profile Profile) *User {
	return &User{
		ID:        id,
		AccountID: AccountID(uuid.NewString()),
		Name:      name,
		Profile:   profile,
		IsOnline:  true,
	}
}

// Clone returns a by-value snapshot safe to hand out (queue entries,
// session member snapshots, outbound events).
func (u *User) Clone() User {
	c := *u
	if u.Profile != nil {
		c.Profile = make(Profile, len(u.Profile))
		for k, v := range u.Profile {
			c.Profile[k] = v
		}
	}
	if u.CurrentSession != nil {
		sid := *u.CurrentSession
		c.CurrentSession = &sid
	}
	return c
}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Profile)+5)
	for k, v := range u.Profile {
		out[k] = v
	}
	out["id"] = u.ID
	out["accountId"] = u.AccountID
	out["name"] = u.Name
	out["isOnline"] = u.IsOnline
	out["currentSession"] = u.CurrentSession
	return json.Marshal(out)
}

func (u *User) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	take := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}
	if err := take("id", &u.ID); err != nil {
		return err
	}
	if err := take("accountId", &u.AccountID); err != nil {
		return err
	}
	if err := take("name", &u.Name); err != nil {
		return err
	}
	if err := take("isOnline", &u.IsOnline); err != nil {
		return err
	}
	if err := take("currentSession", &u.CurrentSession); err != nil {
		return err
	}
	u.Profile = make(Profile, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		u.Profile[k] = val
	}
	return nil
}
