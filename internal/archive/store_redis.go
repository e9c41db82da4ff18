package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlRecent = 24 * time.Hour

// RedisStore keeps each match for a day and a capped list of recent match
// ids per room.
type RedisStore struct {
	rdb   *redis.Client
	limit int64
}

func NewRedisStore(rdb *redis.Client, limit int) *RedisStore {
	if limit < 1 {
		limit = 20
	}
	return &RedisStore{rdb: rdb, limit: int64(limit)}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) keyMatch(matchID string) string { return "sq:match:" + strings.TrimSpace(matchID) }
func (s *RedisStore) keyRoom(roomID string) string   { return "sq:room:" + strings.TrimSpace(roomID) + ":recent" }

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyMatch(rec.MatchID), raw, ttlRecent)
	pipe.LPush(ctx, s.keyRoom(rec.RoomID), rec.MatchID)
	pipe.LTrim(ctx, s.keyRoom(rec.RoomID), 0, s.limit-1)
	pipe.Expire(ctx, s.keyRoom(rec.RoomID), ttlRecent)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save match %s: %w", rec.MatchID, err)
	}
	return nil
}

// Load returns nil, nil when the match has expired or never existed.
func (s *RedisStore) Load(ctx context.Context, matchID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, s.keyMatch(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent lists the newest matches of a room first. Expired entries are skipped.
func (s *RedisStore) Recent(ctx context.Context, roomID string) ([]Record, error) {
	ids, err := s.rdb.LRange(ctx, s.keyRoom(roomID), 0, s.limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}
