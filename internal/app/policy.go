package app

import (
	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens when a relay target cannot keep up with its
// send buffer.
type Policy interface {
	OnBackpressure(sid domain.SessionID, slow domain.UserID) BackpressureAction
}

// DropPolicy sheds the frame. Relay traffic is low-volume control data; a
// slow partner misses the update rather than losing the session.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(sid domain.SessionID, slow domain.UserID) BackpressureAction {
	log.Warn().Str("module", "app.policy").Str("session", string(sid)).Str("slow", string(slow)).Msg("relay backpressure, dropping frame")
	return DropFrame
}
