package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileLog is an in-memory event log with optional JSONL file backing, one
// canonical-JSON record per line. It is safe for concurrent use.
//
// With a backing file, Append writes and flushes the line before touching
// the in-memory sequence, so a failed durable write leaves the log exactly
// as it was. The file is append-only and never rewritten in place.
type FileLog struct {
	mu     sync.RWMutex
	events []EventRecord
	seen   map[string]struct{}
	file   *os.File // nil when memory-only
}

// NewFileLog opens (or creates) a file-backed log at path. An empty path
// yields a memory-only log.
//
// If the file already exists its records are recovered with full integrity
// re-verification: every stored hash is recomputed from the stored logical
// fields, and any mismatch (ErrIntegrity) or duplicate id (ErrReplay)
// aborts recovery entirely.
func NewFileLog(path string) (*FileLog, error) {
	l := &FileLog{seen: make(map[string]struct{})}
	if path == "" {
		return l, nil
	}

	if _, err := os.Stat(path); err == nil {
		if err := l.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// Close releases the backing file handle, if any.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Append implements Log.
func (l *FileLog) Append(_ context.Context, rec EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[rec.EventID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateEventID, rec.EventID)
	}

	if l.file != nil {
		line, err := canonicalLine(rec)
		if err != nil {
			return err
		}
		if _, err := l.file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write event %s: %w", rec.EventID, err)
		}
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("sync event log: %w", err)
		}
	}

	l.events = append(l.events, rec)
	l.seen[rec.EventID] = struct{}{}
	return nil
}

// Events implements Log.
func (l *FileLog) Events(_ context.Context, kind Kind) ([]EventRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]EventRecord, 0, len(l.events))
	for _, e := range l.events {
		if kind == "" || e.EventKind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// EventsSince implements Log.
func (l *FileLog) EventsSince(_ context.Context, sinceUTC string, kind Kind) ([]EventRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []EventRecord
	for _, e := range l.events {
		if e.TimestampUTC < sinceUTC {
			continue
		}
		if kind == "" || e.EventKind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// Hashes implements Log.
func (l *FileLog) Hashes(_ context.Context, kind Kind) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		if kind == "" || e.EventKind == kind {
			out = append(out, e.EventHash)
		}
	}
	return out, nil
}

// Count implements Log.
func (l *FileLog) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events), nil
}

// Last implements Log.
func (l *FileLog) Last(_ context.Context) (*EventRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return nil, nil
	}
	rec := l.events[len(l.events)-1]
	return &rec, nil
}

// Verify implements Log. It recomputes every content hash from the record's
// own fields.
func (l *FileLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, e := range l.events {
		hash, err := hashFields(e.EventID, e.EventKind, e.TimestampUTC, e.ActorID, e.Payload)
		if err != nil {
			return fmt.Errorf("record %d (%s): %w", i, e.EventID, err)
		}
		if hash != e.EventHash {
			return fmt.Errorf("%w: record %d (%s) stored %s computed %s",
				ErrIntegrity, i, e.EventID, e.EventHash, hash)
		}
	}
	return nil
}

// wireRecord is the on-disk line layout. Payload stays raw so the hash can
// be recomputed over exactly what was stored.
type wireRecord struct {
	EventID      string          `json:"event_id"`
	EventKind    string          `json:"event_kind"`
	TimestampUTC string          `json:"timestamp_utc"`
	ActorID      string          `json:"actor_id"`
	Payload      json.RawMessage `json:"payload"`
	EventHash    string          `json:"event_hash"`
}

func (l *FileLog) loadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open event log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var w wireRecord
		if err := json.Unmarshal(line, &w); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrIntegrity, lineNum, err)
		}

		if _, dup := l.seen[w.EventID]; dup {
			return fmt.Errorf("%w: line %d: %s", ErrReplay, lineNum, w.EventID)
		}

		hash, err := hashFields(w.EventID, Kind(w.EventKind), w.TimestampUTC, w.ActorID, w.Payload)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrIntegrity, lineNum, err)
		}
		if hash != w.EventHash {
			return fmt.Errorf("%w: line %d (%s): stored %s computed %s",
				ErrIntegrity, lineNum, w.EventID, w.EventHash, hash)
		}

		payload, err := decodeGenericPayload(w.Payload)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrIntegrity, lineNum, err)
		}

		l.events = append(l.events, EventRecord{
			EventID:      w.EventID,
			EventKind:    Kind(w.EventKind),
			TimestampUTC: w.TimestampUTC,
			ActorID:      w.ActorID,
			Payload:      payload,
			EventHash:    w.EventHash,
		})
		l.seen[w.EventID] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event log %s: %w", path, err)
	}
	return nil
}

// decodeGenericPayload parses a stored payload object, preserving numbers
// as json.Number so a later canonicalization reproduces the stored bytes.
func decodeGenericPayload(raw json.RawMessage) (GenericPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p GenericPayload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}
