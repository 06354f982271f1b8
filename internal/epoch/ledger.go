// Package epoch implements the commitment epoch ledger.
//
// While an epoch is open, event hashes accumulate in per-bucket lists. On
// close, the accumulated hashes are sealed into a CommitmentRecord whose
// this_hash chains to the previous commitment, forming a linear hash chain
// rooted at GenesisPreviousHash. Closed epochs are immutable.
//
// Combinator: this_hash is the SHA-256 of the RFC 8785 canonical JSON of
// {epoch_id, previous_hash, beacon_round, chamber_nonce, buckets} where
// buckets maps bucket name to its in-order hash list. Canonicalization
// sorts the bucket names, so the result depends only on the accumulated
// hashes, their per-bucket order, and the chain inputs: a third party
// replaying the same event log reproduces the same chain.
package epoch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// GenesisPreviousHash is the well-known previous_hash of the first epoch in
// the system's lifetime. It is the trust anchor of the commitment chain.
const GenesisPreviousHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

var (
	// ErrAlreadyOpen is returned by Open when an epoch is already open.
	// Epochs never nest.
	ErrAlreadyOpen = errors.New("epoch: an epoch is already open")

	// ErrNoOpenEpoch is returned by Close when no epoch is open.
	ErrNoOpenEpoch = errors.New("epoch: no open epoch")
)

// CommitmentRecord is the sealed, hash-chained summary of one epoch.
type CommitmentRecord struct {
	EpochID       string         `json:"epoch_id"`
	PreviousHash  string         `json:"previous_hash"`
	ThisHash      string         `json:"this_hash"`
	BeaconRound   uint64         `json:"beacon_round"`
	ChamberNonce  string         `json:"chamber_nonce,omitempty"`
	PerKindCounts map[string]int `json:"per_kind_counts"`
	ClosedUTC     string         `json:"closed_utc"`
}

// OpenEpoch is the mutable accumulator for the epoch currently open.
type OpenEpoch struct {
	ID        string
	OpenedUTC string
	buckets   map[string][]string
}

// Ledger tracks the open epoch, the committed chain, and the subset of
// commitments that have additionally been anchored externally.
//
// The mutating methods assume a single writer; the orchestration layer
// serialises all mutations behind one lock. The internal RWMutex only makes
// concurrent reads safe.
type Ledger struct {
	mu           sync.RWMutex
	current      *OpenEpoch
	committed    []CommitmentRecord
	anchored     []CommitmentRecord
	previousHash string
	lastCounts   map[string]int
	baseCount    int
	clock        func() time.Time
}

// NewLedger creates a ledger whose chain continues from previousHash. Pass
// an empty string to root the chain at GenesisPreviousHash.
func NewLedger(previousHash string) *Ledger {
	if previousHash == "" {
		previousHash = GenesisPreviousHash
	}
	return &Ledger{previousHash: previousHash, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// RestoreCommittedCount seeds the committed-chain length from a snapshot
// taken in an earlier process. The commitment records themselves live in
// the audit log; only the count and the chain tail survive restarts.
// Call immediately after construction, before any Close.
func (l *Ledger) RestoreCommittedCount(n int) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > 0 {
		l.baseCount = n
	}
	return l
}

// Open starts a new epoch. A blank id generates a timestamp-based one.
func (l *Ledger) Open(id string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyOpen, l.current.ID)
	}
	now := l.clock().UTC()
	if id == "" {
		id = "EPOCH-" + now.Format("20060102T150405Z")
	}
	l.current = &OpenEpoch{
		ID:        id,
		OpenedUTC: now.Format("2006-01-02T15:04:05Z"),
		buckets:   make(map[string][]string),
	}
	return id, nil
}

// Discard abandons the open epoch without committing it. It refuses once
// events have accumulated; it exists so the orchestration layer can unwind
// an Open whose audit append failed.
func (l *Ledger) Discard() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return ErrNoOpenEpoch
	}
	if len(l.current.buckets) > 0 {
		return fmt.Errorf("epoch: cannot discard %s, events recorded", l.current.ID)
	}
	l.current = nil
	return nil
}

// RecordEvent appends an event hash to the named bucket of the open epoch.
//
// Calling this with no open epoch is a programmer error: the mutation
// protocol pre-checks epoch availability before any write, so this path is
// unreachable in a correct caller. It panics rather than returning an error.
func (l *Ledger) RecordEvent(bucket, hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		panic("epoch: RecordEvent called with no open epoch")
	}
	l.current.buckets[bucket] = append(l.current.buckets[bucket], hash)
}

// Close seals the open epoch into a CommitmentRecord, appends it to the
// committed chain, and advances previousHash to the new this_hash.
func (l *Ledger) Close(beaconRound uint64, chamberNonce string) (CommitmentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return CommitmentRecord{}, ErrNoOpenEpoch
	}

	thisHash, err := commitmentHash(l.current.ID, l.previousHash, beaconRound, chamberNonce, l.current.buckets)
	if err != nil {
		return CommitmentRecord{}, fmt.Errorf("compute commitment hash: %w", err)
	}

	counts := make(map[string]int, len(l.current.buckets))
	for bucket, hashes := range l.current.buckets {
		counts[bucket] = len(hashes)
	}

	rec := CommitmentRecord{
		EpochID:       l.current.ID,
		PreviousHash:  l.previousHash,
		ThisHash:      thisHash,
		BeaconRound:   beaconRound,
		ChamberNonce:  chamberNonce,
		PerKindCounts: counts,
		ClosedUTC:     l.clock().UTC().Format("2006-01-02T15:04:05Z"),
	}

	l.committed = append(l.committed, rec)
	l.previousHash = thisHash
	l.lastCounts = counts
	l.current = nil
	return rec, nil
}

// Anchor marks the committed record with the given epoch id as anchored.
// Publishing to the external anchor happens out of band; the ledger only
// keeps the book.
func (l *Ledger) Anchor(epochID string) (CommitmentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range l.anchored {
		if a.EpochID == epochID {
			return CommitmentRecord{}, fmt.Errorf("epoch: commitment %s already anchored", epochID)
		}
	}
	for _, c := range l.committed {
		if c.EpochID == epochID {
			l.anchored = append(l.anchored, c)
			return c, nil
		}
	}
	return CommitmentRecord{}, fmt.Errorf("epoch: no committed record for %s", epochID)
}

// EventCounts returns per-bucket counts for the currently open epoch, or
// for the most recently closed one when nothing is open.
func (l *Ledger) EventCounts() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var src map[string]int
	if l.current != nil {
		src = make(map[string]int, len(l.current.buckets))
		for bucket, hashes := range l.current.buckets {
			src[bucket] = len(hashes)
		}
		return src
	}
	out := make(map[string]int, len(l.lastCounts))
	for k, v := range l.lastCounts {
		out[k] = v
	}
	return out
}

// Current returns the id of the open epoch and whether one is open.
func (l *Ledger) Current() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return "", false
	}
	return l.current.ID, true
}

// PreviousHash returns the chain tail: the this_hash of the last committed
// record, or the genesis constant before any epoch has closed.
func (l *Ledger) PreviousHash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.previousHash
}

// Committed returns the committed chain in order.
func (l *Ledger) Committed() []CommitmentRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CommitmentRecord, len(l.committed))
	copy(out, l.committed)
	return out
}

// Anchored returns the anchored records in anchoring order.
func (l *Ledger) Anchored() []CommitmentRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CommitmentRecord, len(l.anchored))
	copy(out, l.anchored)
	return out
}

// CommittedCount returns the number of committed records, including any
// count restored from a snapshot.
func (l *Ledger) CommittedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseCount + len(l.committed)
}

// AnchoredCount returns the number of anchored records.
func (l *Ledger) AnchoredCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.anchored)
}

// commitmentInput is the exact object the commitment hash covers.
type commitmentInput struct {
	EpochID      string              `json:"epoch_id"`
	PreviousHash string              `json:"previous_hash"`
	BeaconRound  uint64              `json:"beacon_round"`
	ChamberNonce string              `json:"chamber_nonce"`
	Buckets      map[string][]string `json:"buckets"`
}

func commitmentHash(epochID, previousHash string, beaconRound uint64, chamberNonce string, buckets map[string][]string) (string, error) {
	raw, err := json.Marshal(commitmentInput{
		EpochID:      epochID,
		PreviousHash: previousHash,
		BeaconRound:  beaconRound,
		ChamberNonce: chamberNonce,
		Buckets:      buckets,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
