package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// TimeLayout is the fixed-width UTC timestamp format used in event records.
// Fixed width matters: range queries compare these strings lexicographically.
const TimeLayout = "2006-01-02T15:04:05Z"

// ErrSerialization indicates a payload that cannot be rendered in canonical
// JSON form.
var ErrSerialization = errors.New("audit: payload not serializable")

// EventRecord is a single immutable event in the governance log.
//
// EventHash is the SHA-256 of the RFC 8785 canonical JSON of the five
// logical fields, rendered as "sha256:" + lowercase hex. It serves as the
// leaf hash for epoch commitment.
type EventRecord struct {
	EventID      string  `json:"event_id"`
	EventKind    Kind    `json:"event_kind"`
	TimestampUTC string  `json:"timestamp_utc"`
	ActorID      string  `json:"actor_id"`
	Payload      Payload `json:"payload"`
	EventHash    string  `json:"event_hash"`
}

// Create builds a new event record with its computed content hash.
// A zero `at` means now. Creation has no side effects; two calls with
// identical logical fields (including timestamp) yield identical hashes.
func Create(eventID string, kind Kind, actorID string, payload Payload, at time.Time) (EventRecord, error) {
	if eventID == "" {
		return EventRecord{}, errors.New("audit: empty event id")
	}
	if !kind.Valid() {
		return EventRecord{}, fmt.Errorf("audit: unknown event kind %q", kind)
	}
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC().Format(TimeLayout)

	hash, err := hashFields(eventID, kind, ts, actorID, payload)
	if err != nil {
		return EventRecord{}, err
	}

	return EventRecord{
		EventID:      eventID,
		EventKind:    kind,
		TimestampUTC: ts,
		ActorID:      actorID,
		Payload:      payload,
		EventHash:    hash,
	}, nil
}

// hashEnvelope is the exact object the content hash covers. The payload is
// `any` so that both typed payloads and raw JSON recovered from storage
// hash identically after canonicalization.
type hashEnvelope struct {
	EventID      string `json:"event_id"`
	EventKind    Kind   `json:"event_kind"`
	TimestampUTC string `json:"timestamp_utc"`
	ActorID      string `json:"actor_id"`
	Payload      any    `json:"payload"`
}

func hashFields(eventID string, kind Kind, ts, actorID string, payload any) (string, error) {
	raw, err := json.Marshal(hashEnvelope{
		EventID:      eventID,
		EventKind:    kind,
		TimestampUTC: ts,
		ActorID:      actorID,
		Payload:      payload,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// canonicalLine renders a full record (hash included, keys sorted) as one
// canonical JSON line for the durable log file.
func canonicalLine(rec EventRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return jcs.Transform(raw)
}
