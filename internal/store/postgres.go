package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"quakewatch/internal/dedup"
)

// PostgresStore is a dedup store backed by PostgreSQL. Records live in the
// alerted_events table keyed on (event_id, channel); retention cleanup is
// a separate PruneExpired pass.
type PostgresStore struct {
	conn *sql.DB
}

// NewPostgresStore opens a connection using the provided DSN and validates
// it with a ping.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{conn: conn}, nil
}

// NewPostgresStoreWithConn wraps an existing connection, for tests.
func NewPostgresStoreWithConn(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn}
}

// Lookup returns the subset of keys that already have records.
func (s *PostgresStore) Lookup(ctx context.Context, keys []dedup.Key) ([]dedup.Key, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	eventIDs := make([]string, 0, len(keys))
	channels := make([]string, 0, len(keys))
	requested := make(map[dedup.Key]bool, len(keys))
	for _, k := range keys {
		eventIDs = append(eventIDs, k.EventID)
		channels = append(channels, k.Channel)
		requested[k] = true
	}

	query := `
		SELECT event_id, channel
		FROM alerted_events
		WHERE event_id = ANY($1) AND channel = ANY($2)
	`
	rows, err := s.conn.QueryContext(ctx, query, pq.Array(eventIDs), pq.Array(channels))
	if err != nil {
		return nil, fmt.Errorf("failed to look up dedup records: %w", err)
	}
	defer rows.Close()

	var known []dedup.Key
	for rows.Next() {
		var k dedup.Key
		if err := rows.Scan(&k.EventID, &k.Channel); err != nil {
			return nil, fmt.Errorf("failed to scan dedup record: %w", err)
		}
		// The ANY filters are per-column, so cross pairs can match; keep
		// only the exact pairs that were asked for.
		if requested[k] {
			known = append(known, k)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dedup records: %w", err)
	}
	return known, nil
}

// Insert records the key with ON CONFLICT DO NOTHING. Returns false when
// the key already existed.
func (s *PostgresStore) Insert(ctx context.Context, rec dedup.Record) (bool, error) {
	query := `
		INSERT INTO alerted_events (event_id, channel, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, channel) DO NOTHING
		RETURNING event_id
	`

	var eventID string
	err := s.conn.QueryRowContext(ctx, query, rec.Key.EventID, rec.Key.Channel, rec.SentAt).Scan(&eventID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert dedup record: %w", err)
	}
	return true, nil
}

// PruneExpired deletes records older than the retention window. Returns
// the number of rows removed.
func (s *PostgresStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM alerted_events WHERE sent_at < $1`,
		now.Add(-dedup.RetentionWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to prune dedup records: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
