package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository writes concluded matches to Postgres.
type Repository struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS secret_queen_matches (
    match_id        TEXT PRIMARY KEY,
    room_id         TEXT NOT NULL,
    white_player_id TEXT NOT NULL,
    black_player_id TEXT NOT NULL,
    winner          TEXT NOT NULL DEFAULT '',
    reason          TEXT NOT NULL,
    result          TEXT NOT NULL,
    white_secret    TEXT NOT NULL DEFAULT '',
    black_secret    TEXT NOT NULL DEFAULT '',
    white_revealed  BOOLEAN NOT NULL DEFAULT FALSE,
    black_revealed  BOOLEAN NOT NULL DEFAULT FALSE,
    moves_uci       JSONB NOT NULL,
    moves_san       JSONB NOT NULL,
    pgn             TEXT NOT NULL,
    final_fen       TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    ended_at        TIMESTAMPTZ NOT NULL,
    duration_ms     BIGINT NOT NULL
)`

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Name() string { return "postgres" }

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save upserts the record keyed by match id.
func (r *Repository) Save(ctx context.Context, rec Record) error {
	if r == nil || r.db == nil {
		return nil
	}
	movesUCI, _ := json.Marshal(nonNil(rec.MovesUCI))
	movesSAN, _ := json.Marshal(nonNil(rec.MovesSAN))

	q := `INSERT INTO secret_queen_matches (
        match_id, room_id, white_player_id, black_player_id,
        winner, reason, result, white_secret, black_secret,
        white_revealed, black_revealed, moves_uci, moves_san, pgn,
        final_fen, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
      ) ON CONFLICT (match_id) DO UPDATE SET
        winner=EXCLUDED.winner,
        reason=EXCLUDED.reason,
        result=EXCLUDED.result,
        white_revealed=EXCLUDED.white_revealed,
        black_revealed=EXCLUDED.black_revealed,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        final_fen=EXCLUDED.final_fen,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.MatchID, rec.RoomID, rec.WhitePlayerID, rec.BlackPlayerID,
		rec.Winner, rec.Reason, rec.PGNResult(), rec.WhiteSecret, rec.BlackSecret,
		rec.WhiteRevealed, rec.BlackRevealed, string(movesUCI), string(movesSAN), BuildPGN(rec),
		rec.FinalFEN, rec.StartedAt, rec.EndedAt, rec.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", rec.MatchID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
