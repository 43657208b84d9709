// Package archive records created sessions and accepted moves for
// offline inspection. It is an audit trail, not session persistence:
// live coordination state stays in process memory and nothing here is
// read back at startup.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/howard36/3d-chess/internal/protocol"
)

// MoveRecord is one accepted move as relayed to both participants.
type MoveRecord struct {
	By        protocol.Color
	From      string
	To        string
	Promotion protocol.Promotion
	PlayedAt  time.Time
}

type Repository interface {
	RecordSession(ctx context.Context, sessionID string, creatorColor protocol.Color) error
	RecordMove(ctx context.Context, sessionID string, mv MoveRecord) error
	SessionMoves(ctx context.Context, sessionID string) ([]MoveRecord, error)
	Close() error
}

// postgres stores records in two tables, created on first connect.
type postgres struct {
	db *sql.DB
}

// NewPostgres opens a Postgres-backed repository. The caller enables it
// only when DATABASE_URL is configured.
func NewPostgres(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	r := &postgres{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *postgres) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS game_sessions (
			id            TEXT PRIMARY KEY,
			creator_color TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS game_moves (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES game_sessions (id),
			by_color   TEXT NOT NULL,
			from_sq    TEXT NOT NULL,
			to_sq      TEXT NOT NULL,
			promotion  TEXT NOT NULL DEFAULT '',
			played_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

func (r *postgres) RecordSession(ctx context.Context, sessionID string, creatorColor protocol.Color) error {
	const query = `
		INSERT INTO game_sessions (id, creator_color)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, sessionID, string(creatorColor)); err != nil {
		return fmt.Errorf("insert session record: %w", err)
	}
	return nil
}

func (r *postgres) RecordMove(ctx context.Context, sessionID string, mv MoveRecord) error {
	playedAt := mv.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}
	const query = `
		INSERT INTO game_moves (session_id, by_color, from_sq, to_sq, promotion, played_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, sessionID, string(mv.By), mv.From, mv.To, string(mv.Promotion), playedAt); err != nil {
		return fmt.Errorf("insert move record: %w", err)
	}
	return nil
}

func (r *postgres) SessionMoves(ctx context.Context, sessionID string) ([]MoveRecord, error) {
	const query = `
		SELECT by_color, from_sq, to_sq, promotion, played_at
		FROM game_moves
		WHERE session_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select move records: %w", err)
	}
	defer rows.Close()

	var moves []MoveRecord
	for rows.Next() {
		var (
			mv        MoveRecord
			by        string
			promotion string
		)
		if err := rows.Scan(&by, &mv.From, &mv.To, &promotion, &mv.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan move record: %w", err)
		}
		mv.By = protocol.Color(by)
		mv.Promotion = protocol.Promotion(promotion)
		moves = append(moves, mv)
	}
	return moves, rows.Err()
}

func (r *postgres) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
