// Package archive stores concluded matches. Live sessions are never
// persisted; only the final record of each match is handed to the sinks.
package archive

import (
	"context"
	"time"
)

// Record is the final state of one match.
type Record struct {
	MatchID       string    `json:"match_id"`
	RoomID        string    `json:"room_id"`
	WhitePlayerID string    `json:"white_player_id"`
	BlackPlayerID string    `json:"black_player_id"`
	Winner        string    `json:"winner,omitempty"` // "white", "black" or empty for a draw
	Reason        string    `json:"reason"`
	MovesUCI      []string  `json:"moves_uci"`
	MovesSAN      []string  `json:"moves_san"`
	FinalFEN      string    `json:"final_fen"`
	WhiteSecret   string    `json:"white_secret_square,omitempty"`
	BlackSecret   string    `json:"black_secret_square,omitempty"`
	WhiteRevealed bool      `json:"white_revealed"`
	BlackRevealed bool      `json:"black_revealed"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
}

// PGNResult maps the winner to a PGN result token.
func (r Record) PGNResult() string {
	switch r.Winner {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	}
	if r.Reason == "" {
		return "*"
	}
	return "1/2-1/2"
}

// Duration is the wall time between start and conclusion, never negative.
func (r Record) Duration() time.Duration {
	d := r.EndedAt.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Sink persists or forwards records. Implementations must be safe for use
// from the recorder goroutine.
type Sink interface {
	Name() string
	Save(ctx context.Context, rec Record) error
}
