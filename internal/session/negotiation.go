package session

import (
	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/protocol"
)

func (e *Engine) offerDraw(s *Session, p *PlayerState) error {
	if s.phase != Playing {
		return ErrWrongPhase
	}
	switch s.drawOffer {
	case p.ID:
		return ErrOfferPending
	case "":
	default:
		// crossing offers settle it
		return e.acceptDraw(s, p)
	}
	s.drawOffer = p.ID
	opp, _ := s.Opponent(p.ID)
	e.notice(opp, protocol.TypeDrawOffered, "notice.drawOffered")
	e.notice(p, protocol.TypeDrawOfferSent, "notice.drawOfferSent")
	e.log.Debug("draw_offered", zap.String("room_id", s.RoomID), zap.String("color", string(p.Color)))
	return nil
}

func (e *Engine) acceptDraw(s *Session, p *PlayerState) error {
	if s.phase != Playing {
		return ErrWrongPhase
	}
	if s.drawOffer == "" || s.drawOffer == p.ID {
		return ErrNoOffer
	}
	e.conclude(s, nil, ReasonDrawAgreement)
	return nil
}

func (e *Engine) declineDraw(s *Session, p *PlayerState) error {
	if s.phase != Playing {
		return ErrWrongPhase
	}
	if s.drawOffer == "" || s.drawOffer == p.ID {
		return ErrNoOffer
	}
	offerer, _ := s.Player(s.drawOffer)
	s.drawOffer = ""
	e.notice(offerer, protocol.TypeDrawDeclined, "notice.drawDeclined")
	return nil
}

func (e *Engine) offerRematch(s *Session, p *PlayerState) error {
	if s.phase != Concluded {
		return ErrWrongPhase
	}
	if s.rematchOffers[p.ID] {
		return ErrOfferPending
	}
	s.rematchOffers[p.ID] = true
	opp, ok := s.Opponent(p.ID)
	if !ok || !s.rematchOffers[opp.ID] {
		e.notice(opp, protocol.TypeRematchOffered, "notice.rematchOffered")
		e.notice(p, protocol.TypeRematchOfferSent, "notice.rematchOfferSent")
		return nil
	}

	s.resetMatch(e.newID())
	s.startedAt = e.now()
	e.broadcast(s, protocol.TypeStartRematch, func(viewer *PlayerState) any {
		return protocol.StartRematch{
			Board:      s.FEN(),
			Turn:       string(s.Turn()),
			Phase:      string(s.phase),
			Color:      string(viewer.Color),
			PlayerData: e.playerView(viewer, viewer),
			Players:    e.playersView(s, viewer),
		}
	})
	e.log.Info("match_rematch", zap.String("room_id", s.RoomID), zap.String("match_id", s.MatchID))
	return nil
}
