package session

import (
	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/archive"
	"github.com/park285/secret-queen-chess/internal/protocol"
	"github.com/park285/secret-queen-chess/internal/rules"
)

func startingRank(c Color) byte {
	if c == White {
		return '2'
	}
	return '7'
}

func (e *Engine) selectSecretQueen(s *Session, p *PlayerState, square string) error {
	if s.phase != SecretQueenSelection {
		return ErrWrongPhase
	}
	if p.HasSecret() {
		return ErrAlreadySelected
	}
	sq, err := rules.NormalizeSquare(square)
	if err != nil {
		return ErrInvalidSquare
	}
	piece, ok, _ := s.board.PieceAt(sq)
	if !ok || piece.Kind != rules.Pawn || piece.Color != p.Color || sq[1] != startingRank(p.Color) {
		return ErrInvalidSelection
	}
	p.SecretInitial = sq
	p.SecretCurrent = sq
	e.send(p, protocol.TypeSecretQueenConfirmed, protocol.SecretQueenConfirmed{Square: sq})
	e.log.Debug("secret_queen_selected", zap.String("room_id", s.RoomID), zap.String("player_id", p.ID))

	for _, q := range s.players {
		if !q.HasSecret() {
			return nil
		}
	}
	s.phase = Playing
	s.positions[e.analysisBoard(s).PositionKey()]++
	e.broadcast(s, protocol.TypeAllSelected, func(viewer *PlayerState) any {
		return protocol.AllSelected{
			Board:   s.FEN(),
			Turn:    string(s.Turn()),
			Phase:   string(s.phase),
			Players: e.playersView(s, viewer),
		}
	})
	e.log.Info("match_playing", zap.String("room_id", s.RoomID), zap.String("match_id", s.MatchID))
	return nil
}

func (e *Engine) resign(s *Session, p *PlayerState) error {
	if s.phase != Playing {
		return ErrWrongPhase
	}
	winner := p.Color.Opponent()
	e.conclude(s, &winner, ReasonResignation)
	return nil
}

// conclude ends the match, broadcasts the outcome and hands the record to
// the archive. Pending offers are dropped.
func (e *Engine) conclude(s *Session, winner *Color, reason string) {
	s.phase = Concluded
	s.outcome = &Outcome{Winner: winner, Reason: reason}
	s.drawOffer = ""
	s.rematchOffers = make(map[string]bool, 2)

	view := outcomeView(s.outcome)
	e.broadcast(s, protocol.TypeMatchConcluded, func(*PlayerState) any {
		return protocol.MatchConcluded{Outcome: *view}
	})
	e.met.MatchConcluded(reason)
	e.rec.Submit(e.record(s))

	fields := []zap.Field{zap.String("room_id", s.RoomID), zap.String("match_id", s.MatchID), zap.String("reason", reason)}
	if winner != nil {
		fields = append(fields, zap.String("winner", string(*winner)))
	}
	e.log.Info("match_concluded", fields...)
}

func (e *Engine) record(s *Session) archive.Record {
	rec := archive.Record{
		MatchID:   s.MatchID,
		RoomID:    s.RoomID,
		Reason:    s.outcome.Reason,
		MovesUCI:  append([]string(nil), s.movesUCI...),
		MovesSAN:  append([]string(nil), s.movesSAN...),
		FinalFEN:  s.FEN(),
		StartedAt: s.startedAt,
		EndedAt:   e.now(),
	}
	if s.outcome.Winner != nil {
		rec.Winner = string(*s.outcome.Winner)
	}
	for _, p := range s.players {
		switch p.Color {
		case White:
			rec.WhitePlayerID, rec.WhiteSecret, rec.WhiteRevealed = p.ID, p.SecretInitial, p.Transformed
		case Black:
			rec.BlackPlayerID, rec.BlackSecret, rec.BlackRevealed = p.ID, p.SecretInitial, p.Transformed
		}
	}
	return rec
}
