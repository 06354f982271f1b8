// Package snapshot persists a best-effort JSON snapshot of engine state.
// The snapshot is a recovery convenience, not the source of truth; the
// append-only audit log is authoritative and snapshot failures never fail
// the mutations that triggered them.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/genesis-gov/genesis/internal/governance/model"
)

// EpochState captures where the epoch chain stood when the snapshot
// was taken.
type EpochState struct {
	PreviousHash   string    `json:"previous_hash"`
	CommittedCount int       `json:"committed_count"`
	AnchoredCount  int       `json:"anchored_count"`
	SavedUTC       time.Time `json:"saved_utc"`
}

// State is the full serialized engine state.
type State struct {
	Roster   []model.RosterEntry          `json:"roster"`
	Trust    map[string]model.TrustRecord `json:"trust"`
	Missions []model.Mission              `json:"missions"`
	Leaves   []model.LeaveRecord          `json:"leaves"`
	Listings []model.Listing              `json:"listings"`
	Bids     []model.Bid                  `json:"bids"`
	Epoch    EpochState                   `json:"epoch"`
}

// Store writes and reads state snapshots at a fixed path. An empty path
// disables persistence entirely.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Enabled reports whether the store has a backing file.
func (s *Store) Enabled() bool { return s.path != "" }

// Save writes the snapshot atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated snapshot behind.
func (s *Store) Save(state *State) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file returns (nil, nil).
func (s *Store) Load() (*State, error) {
	if s.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &state, nil
}
