package audit

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateEventID is returned by Append when the record's event id
	// has been seen before. Under correct counter seeding this never
	// happens in practice; when it does, it indicates a seeding bug and
	// must be surfaced loudly, not swallowed.
	ErrDuplicateEventID = errors.New("audit: duplicate event id")

	// ErrIntegrity is returned during recovery when a stored record's
	// recomputed hash does not match the stored hash. Recovery aborts
	// entirely: a partially trustworthy log is no log at all.
	ErrIntegrity = errors.New("audit: integrity violation")

	// ErrReplay is returned during recovery when a duplicate event id is
	// found on disk. A healthy log never contains duplicates, so this is
	// corruption or an attack, not a recoverable condition.
	ErrReplay = errors.New("audit: replay detected")
)

// Log is the append-only event store. Implementations never expose
// mutation or deletion; Append is the only write.
type Log interface {
	// Append adds a record. It is strictly all-or-nothing per call: a
	// durable write failure must leave the log exactly as it was.
	Append(ctx context.Context, rec EventRecord) error

	// Events returns records in append order, filtered by kind when kind
	// is non-empty. Pure read.
	Events(ctx context.Context, kind Kind) ([]EventRecord, error)

	// EventsSince returns records with TimestampUTC >= sinceUTC, filtered
	// by kind when non-empty. The comparison is lexicographic, which is
	// correct because the timestamp format is fixed-width UTC.
	EventsSince(ctx context.Context, sinceUTC string, kind Kind) ([]EventRecord, error)

	// Hashes returns the event hashes in append order, filtered by kind
	// when non-empty. This is the projection that feeds the epoch ledger.
	Hashes(ctx context.Context, kind Kind) ([]string, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Last returns the most recent record, or nil for an empty log.
	Last(ctx context.Context) (*EventRecord, error)

	// Verify recomputes every record's content hash and reports the first
	// mismatch.
	Verify(ctx context.Context) error
}
