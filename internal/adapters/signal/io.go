package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/core"
	"github.com/focusduo/focusduo/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	ping := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, id domain.UserID, c *wsSignalConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("id", string(id)).Msg("readPump closing")
		ctl.Orch.Disconnect(id)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("id", string(id)).Msg("readPump read error")
				return
			}
			ctl.dispatch(id, c, cancel, data)
		}
	}
}

// dispatch decodes one inbound envelope and runs the matching orchestrator
// call to completion. Malformed or unknown events are dropped.
func (ctl *SignalWSController) dispatch(id domain.UserID, c *wsSignalConn, cancel context.CancelFunc, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case core.EvtJoin:
		profile := make(domain.Profile)
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &profile); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
				return
			}
		}
		ctl.Orch.Join(id, c, cancel, profile)

	case core.EvtFindPartner:
		ctl.Orch.FindPartner(id)

	case core.EvtCancelSearch:
		ctl.Orch.CancelSearch(id)

	case core.EvtSessionMessage:
		var p struct {
			Text string `json:"text"`
			Kind string `json:"type"`
		}
		if !decode(env.Data, &p) {
			return
		}
		ctl.Orch.SessionMessage(id, p.Text, p.Kind)

	case core.EvtGoalUpdate:
		var p struct {
			Goal string `json:"goal"`
		}
		if !decode(env.Data, &p) {
			return
		}
		ctl.Orch.GoalUpdate(id, p.Goal)

	case core.EvtTimerSync:
		var p struct {
			Time      float64 `json:"time"`
			IsRunning bool    `json:"isRunning"`
		}
		if !decode(env.Data, &p) {
			return
		}
		ctl.Orch.TimerSync(id, p.Time, p.IsRunning)

	case core.EvtWebRTCOffer, core.EvtWebRTCAnswer, core.EvtWebRTCCandidate:
		ctl.Orch.ForwardSignal(id, env.Type, env.Data)

	case core.EvtEndSession:
		ctl.Orch.EndSession(id)

	case core.EvtAddFriend:
		var p struct {
			FriendID domain.UserID `json:"friendId"`
		}
		if !decode(env.Data, &p) {
			return
		}
		ctl.Orch.AddFriend(id, p.FriendID)

	case core.EvtGetFriends:
		ctl.Orch.GetFriends(id)

	case core.EvtInviteFriend:
		var p struct {
			FriendID domain.UserID `json:"friendId"`
		}
		if !decode(env.Data, &p) {
			return
		}
		ctl.Orch.InviteFriend(id, p.FriendID)

	case core.EvtAcceptInvite:
		var p struct {
			From     domain.User `json:"from"`
			InviteID string      `json:"inviteId"`
		}
		if !decode(env.Data, &p) {
			return
		}
		ctl.Orch.AcceptInvite(id, p.From)

	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

func decode(data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad payload")
		return false
	}
	return true
}
