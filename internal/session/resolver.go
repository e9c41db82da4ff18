package session

import (
	"strings"

	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/protocol"
	"github.com/park285/secret-queen-chess/internal/rules"
)

// candidate is a move that has been played on a copy of the live board
// but not yet committed.
type candidate struct {
	board       *rules.Board
	res         *rules.MoveResult
	secretTo    string // mover's new tracked square, empty if unchanged
	transformed bool
	revealed    bool
}

func parsePromotion(s string) (rules.PieceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", true
	case "q", "queen":
		return rules.Queen, true
	case "r", "rook":
		return rules.Rook, true
	case "b", "bishop":
		return rules.Bishop, true
	case "n", "knight":
		return rules.Knight, true
	}
	return "", false
}

func (e *Engine) move(s *Session, p *PlayerState, m protocol.MovePayload) error {
	if s.phase != Playing {
		return ErrWrongPhase
	}
	if s.Turn() != p.Color {
		return ErrNotYourTurn
	}
	from, err := rules.NormalizeSquare(m.From)
	if err != nil {
		return ErrInvalidSquare
	}
	to, err := rules.NormalizeSquare(m.To)
	if err != nil {
		return ErrInvalidSquare
	}
	promo, ok := parsePromotion(m.Promotion)
	if !ok {
		return e.rejectMove(s, p)
	}
	piece, ok, _ := s.board.PieceAt(from)
	if !ok || piece.Color != p.Color {
		return e.rejectMove(s, p)
	}

	c := e.resolve(s, p, piece, from, to, promo)
	if c == nil {
		return e.rejectMove(s, p)
	}
	e.commit(s, p, c)
	return nil
}

// rejectMove picks the rejection reason: a player in check on the analysis
// board is told to resolve it.
func (e *Engine) rejectMove(s *Session, p *PlayerState) error {
	if e.analysisBoard(s).InCheck(p.Color) {
		return ErrMustResolveCheck
	}
	return ErrIllegalMove
}

func (e *Engine) resolve(s *Session, p *PlayerState, piece rules.Piece, from, to string, promo rules.PieceKind) *candidate {
	if hidden, ok := p.hiddenQueen(); ok && hidden == from {
		// as a pawn first; a disguised queen always promotes to a queen
		if c := e.try(s, p, s.board.Clone(), from, to, rules.Queen); c != nil {
			c.secretTo = to
			c.transformed = c.res.Promotion != ""
			return c
		}
		scratch, err := s.board.WithPieces(map[string]rules.Piece{from: {Color: p.Color, Kind: rules.Queen}})
		if err != nil {
			e.log.Warn("scratch_board_failed", zap.String("room_id", s.RoomID), zap.Error(err))
			return nil
		}
		if c := e.try(s, p, scratch, from, to, ""); c != nil {
			c.secretTo = to
			c.transformed = true
			c.revealed = true
			return c
		}
		return nil
	}

	if piece.Kind == rules.King && fileDistance(from, to) == 2 && !e.castlePathSafe(s, p, from, to) {
		return nil
	}
	c := e.try(s, p, s.board.Clone(), from, to, promo)
	if c != nil && p.Transformed && p.SecretCurrent == from {
		c.secretTo = to
	}
	return c
}

// try plays the move on b and keeps it only if the mover's king is not
// left attacked once the opponent's hidden queen is counted as a queen.
func (e *Engine) try(s *Session, p *PlayerState, b *rules.Board, from, to string, promo rules.PieceKind) *candidate {
	res, err := b.Move(from, to, promo)
	if err != nil {
		return nil
	}
	if !e.kingSafe(s, p, b) {
		return nil
	}
	return &candidate{board: b, res: res}
}

func (e *Engine) kingSafe(s *Session, p *PlayerState, b *rules.Board) bool {
	a, err := withHiddenQueens(s, b, func(q *PlayerState) bool { return q.ID != p.ID })
	if err != nil {
		e.log.Warn("analysis_board_failed", zap.String("room_id", s.RoomID), zap.Error(err))
		return false
	}
	return !a.InCheck(p.Color)
}

// castlePathSafe rejects castling out of or across a square attacked by a
// hidden queen. The engine already covers the visible pieces.
func (e *Engine) castlePathSafe(s *Session, p *PlayerState, from, to string) bool {
	a := e.analysisBoard(s)
	mid := string([]byte{(from[0] + to[0]) / 2, from[1]})
	for _, sq := range []string{from, mid} {
		if hit, err := a.Attacked(sq, p.Color.Opponent()); err != nil || hit {
			return false
		}
	}
	return true
}

func fileDistance(a, b string) int {
	d := int(a[0]) - int(b[0])
	if d < 0 {
		return -d
	}
	return d
}

// withHiddenQueens returns b with every selected seat's disguised queen
// replaced by a queen, provided its pawn is still standing on the tracked
// square.
func withHiddenQueens(s *Session, b *rules.Board, include func(*PlayerState) bool) (*rules.Board, error) {
	subs := make(map[string]rules.Piece, 2)
	for _, q := range s.players {
		if !include(q) {
			continue
		}
		sq, ok := q.hiddenQueen()
		if !ok {
			continue
		}
		if pc, on, _ := b.PieceAt(sq); on && pc.Kind == rules.Pawn && pc.Color == q.Color {
			subs[sq] = rules.Piece{Color: q.Color, Kind: rules.Queen}
		}
	}
	if len(subs) == 0 {
		return b.Clone(), nil
	}
	return b.WithPieces(subs)
}

// analysisBoard is the live position with both hidden queens revealed.
func (e *Engine) analysisBoard(s *Session) *rules.Board {
	a, err := withHiddenQueens(s, s.board, func(*PlayerState) bool { return true })
	if err != nil {
		e.log.Warn("analysis_board_failed", zap.String("room_id", s.RoomID), zap.Error(err))
		return s.board.Clone()
	}
	return a
}

func (e *Engine) commit(s *Session, p *PlayerState, c *candidate) {
	s.board = c.board
	if c.secretTo != "" {
		p.SecretCurrent = c.secretTo
	}
	if c.transformed {
		p.Transformed = true
	}
	if opp, ok := s.Opponent(p.ID); ok && opp.SecretCurrent != "" {
		want := rules.Piece{Color: opp.Color, Kind: rules.Pawn}
		if opp.Transformed {
			want.Kind = rules.Queen
		}
		if pc, on, _ := s.board.PieceAt(opp.SecretCurrent); !on || pc != want {
			opp.SecretCurrent = ""
		}
	}
	s.movesUCI = append(s.movesUCI, c.res.UCI)
	s.movesSAN = append(s.movesSAN, c.res.SAN)

	analysis := e.analysisBoard(s)
	s.positions[analysis.PositionKey()]++
	status, reason := e.evaluate(s, analysis)

	kind := "ordinary"
	switch {
	case c.revealed:
		kind = "reveal"
	case c.secretTo != "" && !p.Transformed:
		kind = "hidden"
	}
	e.met.MoveApplied(kind)

	last := protocol.LastMove{
		From:      c.res.From,
		To:        c.res.To,
		Color:     string(p.Color),
		Piece:     string(c.res.Piece),
		SAN:       c.res.SAN,
		Captured:  string(c.res.Captured),
		Promotion: string(c.res.Promotion),
		Revealed:  c.revealed,
	}
	e.broadcast(s, protocol.TypeBoardUpdated, func(viewer *PlayerState) any {
		return protocol.BoardUpdated{
			Board:      s.FEN(),
			Turn:       string(s.Turn()),
			LastMove:   last,
			Players:    e.playersView(s, viewer),
			TrueStatus: status,
		}
	})
	if c.revealed {
		e.log.Info("secret_queen_revealed", zap.String("room_id", s.RoomID), zap.String("color", string(p.Color)), zap.String("square", c.res.To))
	}

	switch {
	case status.IsCheckmate:
		winner := p.Color
		e.conclude(s, &winner, reason)
	case status.IsDraw:
		e.conclude(s, nil, reason)
	}
}

// evaluate computes the true status from the analysis board and the
// repetition history. reason is empty while the game goes on.
func (e *Engine) evaluate(s *Session, a *rules.Board) (protocol.TrueStatus, string) {
	status := a.Status()
	st := protocol.TrueStatus{
		IsCheck:                a.InCheck(a.Turn()),
		IsCheckmate:            status == rules.Checkmate,
		IsStalemate:            status == rules.Stalemate,
		IsThreefoldRepetition:  s.positions[a.PositionKey()] >= 3,
		IsInsufficientMaterial: a.InsufficientMaterial(),
		IsFiftyMoveRule:        a.HalfmoveClock() >= 100,
	}
	st.IsDraw = st.IsStalemate || st.IsThreefoldRepetition || st.IsInsufficientMaterial || st.IsFiftyMoveRule

	switch {
	case st.IsCheckmate:
		return st, ReasonCheckmate
	case st.IsStalemate:
		return st, ReasonStalemate
	case st.IsThreefoldRepetition:
		return st, ReasonThreefold
	case st.IsInsufficientMaterial:
		return st, ReasonInsufficientMaterial
	case st.IsFiftyMoveRule:
		return st, ReasonFiftyMove
	}
	return st, ""
}
