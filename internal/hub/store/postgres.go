package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore persists room snapshots in a single room_states table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS room_states (
			room       TEXT PRIMARY KEY,
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure room_states schema: %w", err)
	}

	log.Info().Msg("postgres room store ready")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context, room string) ([]byte, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM room_states WHERE room = $1`, room,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room %q: %w", room, err)
	}
	return state, nil
}

func (s *PostgresStore) Save(ctx context.Context, room string, state []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO room_states (room, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (room) DO UPDATE SET state = $2, updated_at = now()`,
		room, state,
	)
	if err != nil {
		return fmt.Errorf("save room %q: %w", room, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, room string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM room_states WHERE room = $1`, room)
	if err != nil {
		return fmt.Errorf("delete room %q: %w", room, err)
	}
	return nil
}

func (s *PostgresStore) Rooms(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT room FROM room_states ORDER BY room`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
