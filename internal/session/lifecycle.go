package session

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/protocol"
)

// Join seats connID in the requested room, or restores a returning player.
func (e *Engine) Join(connID string, req protocol.JoinPayload) error {
	if s, p, ok := e.reg.Lookup(connID); ok {
		// same seat asking again: replay the state
		if s.RoomID == strings.TrimSpace(req.RoomID) && (req.PlayerID == "" || req.PlayerID == p.ID) {
			e.send(p, protocol.TypeRejoined, e.fullView(s, p))
			return nil
		}
		return ErrAlreadyJoined
	}

	res, err := e.reg.JoinOrCreate(req.RoomID, connID, req.PlayerID, e.newID)
	if err != nil {
		return err
	}
	s, p := res.Session, res.Player
	log := e.log.With(zap.String("room_id", s.RoomID), zap.String("player_id", p.ID), zap.String("conn_id", connID))

	switch res.Kind {
	case JoinCreated:
		e.met.RoomOpened()
		e.send(p, protocol.TypeJoined, e.fullView(s, p))
		log.Info("room_create", zap.String("color", string(p.Color)))

	case JoinSeated:
		s.startedAt = e.now()
		e.send(p, protocol.TypeJoined, e.fullView(s, p))
		e.broadcast(s, protocol.TypeMatchStarted, func(viewer *PlayerState) any {
			return protocol.MatchStarted{
				RoomID:  s.RoomID,
				Board:   s.FEN(),
				Turn:    string(s.Turn()),
				Phase:   string(s.phase),
				Players: e.playersView(s, viewer),
			}
		})
		log.Info("room_seat", zap.String("color", string(p.Color)), zap.String("match_id", s.MatchID))

	case JoinReturning:
		if res.Replaced != "" {
			// still connected elsewhere: silent takeover
			e.out.Send(res.Replaced, protocol.Message{Type: protocol.TypeSessionReplaced, Payload: protocol.Notice{
				Message: e.text("notice.sessionReplaced", nil),
			}})
			e.out.Close(res.Replaced, "session replaced")
			e.met.PlayerJoined("takeover")
			e.send(p, protocol.TypeRejoined, e.fullView(s, p))
			log.Info("player_takeover", zap.String("replaced_conn_id", res.Replaced))
			return nil
		}
		p.stopGrace()
		p.Connected = true
		p.GraceDeadline = time.Time{}
		if opp, ok := s.Opponent(p.ID); ok {
			e.notice(opp, protocol.TypeOpponentReconnected, "notice.opponentReconnected")
		}
		e.send(p, protocol.TypeRejoined, e.fullView(s, p))
		e.met.PlayerJoined("reconnect")
		log.Info("player_reconnect", zap.String("phase", string(s.phase)))
		return nil
	}
	e.met.PlayerJoined(res.Kind.String())
	return nil
}

// Disconnect handles the loss of a connection. Unknown or superseded
// connections are ignored.
func (e *Engine) Disconnect(connID string) {
	s, p, ok := e.reg.Lookup(connID)
	if !ok {
		return
	}
	e.reg.unbind(connID)
	if p.ConnID != connID {
		return
	}
	now := e.now()
	p.ConnID = ""
	p.Connected = false
	p.GraceDeadline = now.Add(e.grace)
	e.armGrace(s, p)

	e.log.Info("player_disconnect",
		zap.String("room_id", s.RoomID),
		zap.String("player_id", p.ID),
		zap.String("phase", string(s.phase)),
		zap.Time("grace_deadline", p.GraceDeadline))

	if s.allDisconnected() {
		e.teardown(s, "all_disconnected")
		return
	}
	if opp, ok := s.Opponent(p.ID); ok {
		e.send(opp, protocol.TypeOpponentDisconnected, protocol.Notice{
			Message:       e.text("notice.opponentDisconnected", map[string]any{"seconds": int(e.grace.Seconds())}),
			GraceDeadline: p.GraceDeadline.UnixMilli(),
			GraceSeconds:  int(e.grace.Seconds()),
		})
	}
}

func (e *Engine) armGrace(s *Session, p *PlayerState) {
	p.stopGrace()
	gt := &graceTimer{}
	roomID, playerID := s.RoomID, p.ID
	gt.timer = e.sched.AfterFunc(e.grace, func() { e.graceExpired(roomID, playerID, gt) })
	p.grace = gt
}

// graceExpired runs on the loop when a grace timer fires. The room,
// seat, disconnect and timer handle must all still match.
func (e *Engine) graceExpired(roomID, playerID string, gt *graceTimer) {
	s, ok := e.reg.Room(roomID)
	if !ok {
		return
	}
	p, ok := s.Player(playerID)
	if !ok || p.Connected || p.grace != gt {
		return
	}
	p.grace = nil

	e.log.Info("player_abandon", zap.String("room_id", roomID), zap.String("player_id", playerID), zap.String("phase", string(s.phase)))

	remaining, hasOpp := s.Opponent(playerID)
	if hasOpp && s.inMatch() {
		winner := remaining.Color
		e.conclude(s, &winner, ReasonAbandonment)
	}
	if hasOpp {
		e.notice(remaining, protocol.TypeRoomClosed, "notice.roomClosed")
	}
	e.teardown(s, "abandoned")
}

// teardown cancels every timer and forgets the room and its bindings.
func (e *Engine) teardown(s *Session, cause string) {
	for _, p := range s.players {
		p.stopGrace()
	}
	e.reg.remove(s.RoomID)
	e.met.RoomClosed(cause)
	e.log.Info("room_teardown", zap.String("room_id", s.RoomID), zap.String("cause", cause))
}
