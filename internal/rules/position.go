package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	toEngineKind = map[PieceKind]nchess.PieceType{
		Pawn: nchess.Pawn, Knight: nchess.Knight, Bishop: nchess.Bishop,
		Rook: nchess.Rook, Queen: nchess.Queen, King: nchess.King,
	}
	fromEngineKind = map[nchess.PieceType]PieceKind{
		nchess.Pawn: Pawn, nchess.Knight: Knight, nchess.Bishop: Bishop,
		nchess.Rook: Rook, nchess.Queen: Queen, nchess.King: King,
	}
)

func toEngineColor(c Color) nchess.Color {
	if c == Black {
		return nchess.Black
	}
	return nchess.White
}

func fromEngineColor(c nchess.Color) Color {
	if c == nchess.Black {
		return Black
	}
	return White
}

func toEnginePiece(p Piece) nchess.Piece {
	return nchess.NewPiece(toEngineKind[p.Kind], toEngineColor(p.Color))
}

func fromEnginePiece(p nchess.Piece) (Piece, bool) {
	if p == nchess.NoPiece {
		return Piece{}, false
	}
	return Piece{Color: fromEngineColor(p.Color()), Kind: fromEngineKind[p.Type()]}, true
}

// squareIndex converts "e4" into 0..63 (a1 = 0, h8 = 63), the engine's
// square numbering.
func squareIndex(sq string) (int, error) {
	sq = strings.ToLower(strings.TrimSpace(sq))
	if len(sq) != 2 || sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquare, sq)
	}
	return int(sq[1]-'1')*8 + int(sq[0]-'a'), nil
}

func engineSquare(idx int) nchess.Square {
	return nchess.NewSquare(nchess.File(idx%8), nchess.Rank(idx/8))
}

// NormalizeSquare validates sq and returns it in lower case ("E2" -> "e2").
func NormalizeSquare(sq string) (string, error) {
	idx, err := squareIndex(sq)
	if err != nil {
		return "", err
	}
	return engineSquare(idx).String(), nil
}

// grid is a placement snapshot used for attack queries; the engine only
// answers check for the side to move and keeps its attack maps private.
type grid [64]Piece

func gridOf(b *nchess.Board) grid {
	var g grid
	for sq, p := range b.SquareMap() {
		if pc, ok := fromEnginePiece(p); ok {
			g[int(sq)] = pc
		}
	}
	return g
}

func (g grid) piece(idx int) (Piece, bool) {
	p := g[idx]
	return p, p.Kind != ""
}

var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookRays    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopRays  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func onBoard(file, rank int) bool { return file >= 0 && file < 8 && rank >= 0 && rank < 8 }

// attacked reports whether any piece of color by attacks idx.
func (g grid) attacked(idx int, by Color) bool {
	file, rank := idx%8, idx/8
	is := func(f, r int, kinds ...PieceKind) bool {
		if !onBoard(f, r) {
			return false
		}
		p, ok := g.piece(r*8 + f)
		if !ok || p.Color != by {
			return false
		}
		for _, k := range kinds {
			if p.Kind == k {
				return true
			}
		}
		return false
	}

	pawnRank := rank - 1
	if by == Black {
		pawnRank = rank + 1
	}
	if is(file-1, pawnRank, Pawn) || is(file+1, pawnRank, Pawn) {
		return true
	}
	for _, s := range knightSteps {
		if is(file+s[0], rank+s[1], Knight) {
			return true
		}
	}
	for _, s := range kingSteps {
		if is(file+s[0], rank+s[1], King) {
			return true
		}
	}
	slide := func(rays [4][2]int, kinds ...PieceKind) bool {
		for _, d := range rays {
			f, r := file+d[0], rank+d[1]
			for onBoard(f, r) {
				if _, occupied := g.piece(r*8 + f); occupied {
					if is(f, r, kinds...) {
						return true
					}
					break
				}
				f, r = f+d[0], r+d[1]
			}
		}
		return false
	}
	return slide(rookRays, Rook, Queen) || slide(bishopRays, Bishop, Queen)
}

func (g grid) kingSquare(c Color) (int, bool) {
	for idx := range g {
		if p, ok := g.piece(idx); ok && p.Kind == King && p.Color == c {
			return idx, true
		}
	}
	return 0, false
}
