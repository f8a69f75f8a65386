package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS player_stats (
	identity   TEXT PRIMARY KEY,
	elo        INTEGER NOT NULL DEFAULT 1200,
	wins       INTEGER NOT NULL DEFAULT 0,
	losses     INTEGER NOT NULL DEFAULT 0,
	draws      INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresSink stores player stats in Postgres
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to the database at url
func NewPostgresSink(ctx context.Context, url string) (*PostgresSink, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return &PostgresSink{pool: pool}, nil
}

// EnsureSchema creates the stats table when missing
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create player_stats: %w", err)
	}
	return nil
}

// RecordResult updates both players' counters and ratings in one transaction
func (s *PostgresSink) RecordResult(ctx context.Context, winner, loser string, draw bool) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// lock rows in a stable order so concurrent results cannot deadlock
		ids := []string{winner, loser}
		sort.Strings(ids)

		ratings := make(map[string]int, 2)
		for _, id := range ids {
			if _, err := tx.Exec(ctx,
				`INSERT INTO player_stats (identity, elo) VALUES ($1, $2) ON CONFLICT (identity) DO NOTHING`,
				id, DefaultRating); err != nil {
				return err
			}

			var elo int
			if err := tx.QueryRow(ctx,
				`SELECT elo FROM player_stats WHERE identity = $1 FOR UPDATE`, id).Scan(&elo); err != nil {
				return err
			}
			ratings[id] = elo
		}

		score := 1.0
		if draw {
			score = 0.5
		}
		newW, newL := Rate(ratings[winner], ratings[loser], score)

		wWins, wDraws, lLosses, lDraws := 1, 0, 1, 0
		if draw {
			wWins, wDraws, lLosses, lDraws = 0, 1, 0, 1
		}

		q := `UPDATE player_stats
			SET elo = $1, wins = wins + $2, losses = losses + $3, draws = draws + $4, updated_at = now()
			WHERE identity = $5`
		if _, err := tx.Exec(ctx, q, newW, wWins, 0, wDraws, winner); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, q, newL, 0, lLosses, lDraws, loser)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to commit match results: %w", err)
	}
	return nil
}

// Lookup returns the stored record, or a fresh default one
func (s *PostgresSink) Lookup(ctx context.Context, identity string) (PlayerStats, error) {
	ps := PlayerStats{Identity: identity}
	err := s.pool.QueryRow(ctx,
		`SELECT elo, wins, losses, draws, updated_at FROM player_stats WHERE identity = $1`, identity,
	).Scan(&ps.Rating, &ps.Wins, &ps.Losses, &ps.Draws, &ps.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return PlayerStats{Identity: identity, Rating: DefaultRating}, nil
	}
	if err != nil {
		return PlayerStats{}, fmt.Errorf("lookup %s: %w", identity, err)
	}
	return ps, nil
}

// Close releases the pool
func (s *PostgresSink) Close() {
	s.pool.Close()
}
