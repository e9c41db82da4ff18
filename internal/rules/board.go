// Package rules wraps corentings/chess/v2 behind the small board surface the
// session engine needs: FEN in and out, piece lookup, move application with
// legality checks, and position evaluation.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrInvalidSquare = errors.New("invalid square")
	ErrInvalidFEN    = errors.New("invalid fen")
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other color.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

type PieceKind string

const (
	Pawn   PieceKind = "p"
	Knight PieceKind = "n"
	Bishop PieceKind = "b"
	Rook   PieceKind = "r"
	Queen  PieceKind = "q"
	King   PieceKind = "k"
)

type Piece struct {
	Color Color
	Kind  PieceKind
}

// MoveResult describes a move the board accepted.
type MoveResult struct {
	From      string
	To        string
	UCI       string
	SAN       string
	Piece     PieceKind
	Captured  PieceKind // empty when nothing was taken
	Promotion PieceKind // empty unless a pawn promoted
	EnPassant bool
}

// Board is one engine-backed position. A Board is not safe for concurrent use.
type Board struct {
	game *nchess.Game
}

// NewBoard returns a board in the initial position.
func NewBoard() *Board {
	return &Board{game: nchess.NewGame()}
}

// FromFEN loads a position. The engine validates the FEN.
func FromFEN(fen string) (*Board, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return &Board{game: nchess.NewGame(opt)}, nil
}

func (b *Board) FEN() string { return b.game.FEN() }

// Turn is the color to move.
func (b *Board) Turn() Color { return fromEngineColor(b.game.Position().Turn()) }

// HalfmoveClock is the number of plies since the last capture or pawn move.
func (b *Board) HalfmoveClock() int { return b.game.Position().HalfMoveClock() }

// PositionKey identifies the position for repetition purposes: placement,
// side to move, castling rights and en-passant target.
func (b *Board) PositionKey() string {
	parts := strings.Fields(b.game.FEN())
	return strings.Join(parts[:4], " ")
}

// PieceAt returns the piece on sq.
func (b *Board) PieceAt(sq string) (Piece, bool, error) {
	idx, err := squareIndex(sq)
	if err != nil {
		return Piece{}, false, err
	}
	p, ok := fromEnginePiece(b.game.Position().Board().Piece(engineSquare(idx)))
	return p, ok, nil
}

// Clone copies the current position. Move history is not carried over.
func (b *Board) Clone() *Board {
	nb, err := FromFEN(b.FEN())
	if err != nil {
		panic(fmt.Sprintf("rules: clone: %v", err))
	}
	return nb
}

// WithPieces returns a new board with the given squares replaced. The
// side to move, castling rights and clocks are kept.
func (b *Board) WithPieces(subs map[string]Piece) (*Board, error) {
	m := b.game.Position().Board().SquareMap()
	for sq, p := range subs {
		idx, err := squareIndex(sq)
		if err != nil {
			return nil, err
		}
		m[engineSquare(idx)] = toEnginePiece(p)
	}
	rest := strings.Fields(b.game.FEN())[1:]
	return FromFEN(nchess.NewBoard(m).String() + " " + strings.Join(rest, " "))
}

// Attacked reports whether sq is attacked by any piece of color by.
func (b *Board) Attacked(sq string, by Color) (bool, error) {
	idx, err := squareIndex(sq)
	if err != nil {
		return false, err
	}
	return gridOf(b.game.Position().Board()).attacked(idx, by), nil
}

// InCheck reports whether c's king is attacked. A board without that king
// is never in check.
func (b *Board) InCheck(c Color) bool {
	g := gridOf(b.game.Position().Board())
	k, ok := g.kingSquare(c)
	if !ok {
		return false
	}
	return g.attacked(k, c.Opponent())
}

// Status is the engine's verdict on the side to move.
type Status int

const (
	Ongoing Status = iota
	Checkmate
	Stalemate
)

func (b *Board) Status() Status {
	switch b.game.Position().Status() {
	case nchess.Checkmate:
		return Checkmate
	case nchess.Stalemate:
		return Stalemate
	}
	return Ongoing
}

// InsufficientMaterial reports the engine's automatic draw for positions
// where neither side can mate.
func (b *Board) InsufficientMaterial() bool {
	return b.game.Method() == nchess.InsufficientMaterial
}

// Move applies from→to for the side to move. A pawn reaching the last rank
// without a promotion hint promotes to a queen. Illegal moves leave the
// board untouched and return ErrIllegalMove.
func (b *Board) Move(from, to string, promo PieceKind) (*MoveResult, error) {
	fi, err := squareIndex(from)
	if err != nil {
		return nil, err
	}
	ti, err := squareIndex(to)
	if err != nil {
		return nil, err
	}
	board := b.game.Position().Board()
	mover, ok := fromEnginePiece(board.Piece(engineSquare(fi)))
	if !ok || mover.Color != b.Turn() {
		return nil, ErrIllegalMove
	}
	from, to = engineSquare(fi).String(), engineSquare(ti).String()

	lastRank := 7
	if mover.Color == Black {
		lastRank = 0
	}
	if mover.Kind == Pawn && ti/8 == lastRank {
		if promo == "" {
			promo = Queen
		}
		switch promo {
		case Queen, Rook, Bishop, Knight:
		default:
			return nil, ErrIllegalMove
		}
	} else {
		promo = ""
	}

	if !b.isValid(from, to, promo) {
		return nil, ErrIllegalMove
	}

	res := &MoveResult{From: from, To: to, UCI: from + to + string(promo), Piece: mover.Kind, Promotion: promo}
	if captured, ok := fromEnginePiece(board.Piece(engineSquare(ti))); ok {
		res.Captured = captured.Kind
	} else if mover.Kind == Pawn && fi%8 != ti%8 {
		res.Captured = Pawn
		res.EnPassant = true
	}

	pos := b.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, res.UCI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	res.SAN = nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := b.game.PushNotationMove(res.UCI, nchess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return res, nil
}

func (b *Board) isValid(from, to string, promo PieceKind) bool {
	want := promoType(promo)
	for _, mv := range b.game.ValidMoves() {
		if mv.S1().String() == from && mv.S2().String() == to && mv.Promo() == want {
			return true
		}
	}
	return false
}

func promoType(k PieceKind) nchess.PieceType {
	switch k {
	case Queen:
		return nchess.Queen
	case Rook:
		return nchess.Rook
	case Bishop:
		return nchess.Bishop
	case Knight:
		return nchess.Knight
	default:
		return nchess.NoPieceType
	}
}
