package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/graychat/internal/infrastructure/config"
	"github.com/nerrad567/graychat/internal/infrastructure/database"
	"github.com/nerrad567/graychat/migrations"
)

// Direction records whether an envelope was sent or received locally.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Envelope is one journaled chat message. Payload is the ciphertext token
// as it crossed the broker.
type Envelope struct {
	ID        int64
	Topic     string
	Direction Direction
	Payload   []byte
	CreatedAt time.Time
}

// Journal is a local, append-only log of chat envelopes.
// It is safe for concurrent use.
type Journal struct {
	db *database.DB
}

// Open opens the journal database described by cfg and applies migrations.
//
// Returns:
//   - *Journal: Ready journal
//   - error: ErrDisabled if cfg.Enabled is false, or the open/migrate failure
func Open(ctx context.Context, cfg config.HistoryConfig) (*Journal, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// Append stores e and returns its row ID. A zero CreatedAt is set to now.
func (j *Journal) Append(ctx context.Context, e Envelope) (int64, error) {
	if e.Topic == "" {
		return 0, fmt.Errorf("%w: topic is empty", ErrInvalidEnvelope)
	}
	if len(e.Payload) == 0 {
		return 0, fmt.Errorf("%w: payload is empty", ErrInvalidEnvelope)
	}
	if e.Direction != DirectionSent && e.Direction != DirectionReceived {
		return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidEnvelope, e.Direction)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := j.db.ExecContext(ctx,
		"INSERT INTO envelopes (topic, direction, payload, created_at) VALUES (?, ?, ?, ?)",
		e.Topic, string(e.Direction), e.Payload, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("appending envelope: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading envelope id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit of the newest envelopes for topic, oldest first.
func (j *Journal) Recent(ctx context.Context, topic string, limit int) ([]Envelope, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, topic, direction, payload, created_at FROM (
			SELECT id, topic, direction, payload, created_at
			FROM envelopes
			WHERE topic = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`,
		topic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying envelopes: %w", err)
	}
	defer rows.Close()

	return scanEnvelopes(rows)
}

// Count returns the number of envelopes stored for topic.
func (j *Journal) Count(ctx context.Context, topic string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM envelopes WHERE topic = ?", topic,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting envelopes: %w", err)
	}
	return n, nil
}

// Prune keeps the newest keep envelopes of every topic and deletes the rest.
// keep <= 0 keeps everything. Returns the number of rows deleted.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	result, err := j.db.ExecContext(ctx, `
		DELETE FROM envelopes WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY topic ORDER BY id DESC) AS rn
				FROM envelopes
			) WHERE rn > ?
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning envelopes: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading pruned count: %w", err)
	}
	return n, nil
}

// Path returns the journal database file path.
func (j *Journal) Path() string {
	return j.db.Path()
}

// HealthCheck verifies the journal database is reachable.
func (j *Journal) HealthCheck(ctx context.Context) error {
	return j.db.HealthCheck(ctx)
}

func scanEnvelopes(rows *sql.Rows) ([]Envelope, error) {
	var envelopes []Envelope
	for rows.Next() {
		var e Envelope
		var direction string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Topic, &direction, &e.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning envelope: %w", err)
		}
		e.Direction = Direction(direction)
		e.CreatedAt = time.Unix(0, createdAt)
		envelopes = append(envelopes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating envelopes: %w", err)
	}
	return envelopes, nil
}
