package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all processes sharing the database.
const advisoryLockKey = int64(7_420_118_233)

// PostgresLog persists the event log to a PostgreSQL database. It implements
// the Log interface.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by the given connection pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// EnsureSchema creates the audit_log table if it does not exist.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			seq           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			event_id      TEXT NOT NULL UNIQUE,
			event_kind    TEXT NOT NULL,
			timestamp_utc TEXT NOT NULL,
			actor_id      TEXT NOT NULL,
			payload       JSONB NOT NULL,
			event_hash    TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure audit_log schema: %w", err)
	}
	return nil
}

// Append implements Log. It acquires a transaction-scoped advisory lock,
// rejects duplicate event ids, and inserts the record, all within one
// transaction, so a failed write leaves no trace.
func (l *PostgresLog) Append(ctx context.Context, rec EventRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM audit_log WHERE event_id = $1)", rec.EventID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check event id: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEventID, rec.EventID)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (event_id, event_kind, timestamp_utc, actor_id, payload, event_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.EventID, string(rec.EventKind), rec.TimestampUTC,
		rec.ActorID, payloadJSON, rec.EventHash,
	); err != nil {
		return fmt.Errorf("insert event %s: %w", rec.EventID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit event tx: %w", err)
	}

	l.logger.Debug("event appended",
		zap.String("event_id", rec.EventID),
		zap.String("kind", string(rec.EventKind)),
	)
	return nil
}

// Events implements Log.
func (l *PostgresLog) Events(ctx context.Context, kind Kind) ([]EventRecord, error) {
	return l.query(ctx,
		`SELECT event_id, event_kind, timestamp_utc, actor_id, payload, event_hash
		 FROM audit_log
		 WHERE ($1 = '' OR event_kind = $1)
		 ORDER BY seq ASC`, string(kind))
}

// EventsSince implements Log.
func (l *PostgresLog) EventsSince(ctx context.Context, sinceUTC string, kind Kind) ([]EventRecord, error) {
	return l.query(ctx,
		`SELECT event_id, event_kind, timestamp_utc, actor_id, payload, event_hash
		 FROM audit_log
		 WHERE timestamp_utc >= $2 AND ($1 = '' OR event_kind = $1)
		 ORDER BY seq ASC`, string(kind), sinceUTC)
}

// Hashes implements Log.
func (l *PostgresLog) Hashes(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT event_hash FROM audit_log
		 WHERE ($1 = '' OR event_kind = $1)
		 ORDER BY seq ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query event hashes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan event hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Count implements Log.
func (l *PostgresLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Last implements Log.
func (l *PostgresLog) Last(ctx context.Context) (*EventRecord, error) {
	recs, err := l.query(ctx,
		`SELECT event_id, event_kind, timestamp_utc, actor_id, payload, event_hash
		 FROM audit_log ORDER BY seq DESC LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Verify implements Log. It streams all rows in append order and recomputes
// every content hash against the stored payload bytes.
func (l *PostgresLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT event_id, event_kind, timestamp_utc, actor_id, payload, event_hash
		 FROM audit_log ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var (
			id, kind, ts, actor, stored string
			payload                     []byte
		)
		if err := rows.Scan(&id, &kind, &ts, &actor, &payload, &stored); err != nil {
			return fmt.Errorf("scan audit row: %w", err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrReplay, id)
		}
		seen[id] = struct{}{}

		hash, err := hashFields(id, Kind(kind), ts, actor, json.RawMessage(payload))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrIntegrity, id, err)
		}
		if hash != stored {
			return fmt.Errorf("%w: %s: stored %s computed %s", ErrIntegrity, id, stored, hash)
		}
	}
	return rows.Err()
}

func (l *PostgresLog) query(ctx context.Context, sql string, args ...any) ([]EventRecord, error) {
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			id, kind, ts, actor, hash string
			payload                   []byte
		)
		if err := rows.Scan(&id, &kind, &ts, &actor, &payload, &hash); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		p, err := decodeGenericPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", id, err)
		}
		out = append(out, EventRecord{
			EventID:      id,
			EventKind:    Kind(kind),
			TimestampUTC: ts,
			ActorID:      actor,
			Payload:      p,
			EventHash:    hash,
		})
	}
	return out, rows.Err()
}
