// Package archive keeps recently finished games in Redis so they can be
// listed and downloaded after their room has been reclaimed.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tecu23/chessroom/pkg/config"
	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/room"
)

// ErrNotFound is returned when no archived result exists
var ErrNotFound = errors.New("result not found")

// Record is the archived form of a finished game
type Record struct {
	RoomID      string    `json:"room_id"`
	White       string    `json:"white"`
	Black       string    `json:"black"`
	Winner      string    `json:"winner"`
	Cause       string    `json:"cause"`
	Result      string    `json:"result"`
	Moves       []string  `json:"moves"`
	FEN         string    `json:"fen"`
	PGN         string    `json:"pgn"`
	InitialMs   int64     `json:"initial_ms"`
	IncrementMs int64     `json:"increment_ms"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RedisArchive stores records in a capped list plus one expiring key per room
type RedisArchive struct {
	rdb    *redis.Client
	cfg    config.ArchiveConfig
	logger *zap.Logger
}

// NewRedisArchive connects to the Redis server at url (redis://host:port/db)
func NewRedisArchive(ctx context.Context, url string, cfg config.ArchiveConfig, logger *zap.Logger) (*RedisArchive, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return NewRedisArchiveFromClient(rdb, cfg, logger), nil
}

// NewRedisArchiveFromClient wraps an existing client
func NewRedisArchiveFromClient(rdb *redis.Client, cfg config.ArchiveConfig, logger *zap.Logger) *RedisArchive {
	if cfg.Key == "" {
		cfg.Key = config.Default().Archive.Key
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = config.Default().Archive.MaxEntries
	}
	return &RedisArchive{rdb: rdb, cfg: cfg, logger: logger}
}

func (a *RedisArchive) resultKey(roomID string) string {
	return a.cfg.Key + ":room:" + roomID
}

// Save archives a finished game
func (a *RedisArchive) Save(ctx context.Context, rec room.GameRecord) error {
	data, err := json.Marshal(toRecord(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := a.rdb.TxPipeline()
	pipe.RPush(ctx, a.cfg.Key, data)
	pipe.LTrim(ctx, a.cfg.Key, -a.cfg.MaxEntries, -1)
	pipe.Set(ctx, a.resultKey(rec.RoomID), data, a.cfg.ResultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive %s: %w", rec.RoomID, err)
	}
	return nil
}

// Recent returns up to n archived games, newest first
func (a *RedisArchive) Recent(ctx context.Context, n int64) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}

	raw, err := a.rdb.LRange(ctx, a.cfg.Key, -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	out := make([]Record, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var r Record
		if err := json.Unmarshal([]byte(raw[i]), &r); err != nil {
			a.logger.Warn("skipping corrupt archive entry", zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ForRoom returns the last game archived for roomID
func (a *RedisArchive) ForRoom(ctx context.Context, roomID string) (Record, error) {
	raw, err := a.rdb.Get(ctx, a.resultKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read result %s: %w", roomID, err)
	}

	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode result %s: %w", roomID, err)
	}
	return r, nil
}

// Subscribe archives every finished game, logging and dropping failures
func (a *RedisArchive) Subscribe(p *events.Publisher) {
	p.Subscribe(events.EventGameFinished, func(e events.Event) {
		rec, ok := e.Payload.(room.GameRecord)
		if !ok {
			a.logger.Error("Invalid game finished payload type", zap.String("room_id", e.RoomID))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Save(ctx, rec); err != nil {
			a.logger.Warn("archive write dropped", zap.String("room_id", rec.RoomID), zap.Error(err))
		}
	})
}

// Close closes the Redis client
func (a *RedisArchive) Close() error {
	return a.rdb.Close()
}

func toRecord(rec room.GameRecord) Record {
	return Record{
		RoomID:      rec.RoomID,
		White:       rec.White,
		Black:       rec.Black,
		Winner:      string(rec.Winner),
		Cause:       string(rec.Cause),
		Result:      resultToPGN(rec.Winner),
		Moves:       rec.Moves,
		FEN:         rec.FEN,
		PGN:         BuildPGN(rec),
		InitialMs:   rec.TimeControl.Initial.Milliseconds(),
		IncrementMs: rec.TimeControl.Increment.Milliseconds(),
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
	}
}
