// Package service is the orchestration layer: it owns the domain state
// (roster, trust, missions, leave, market), the epoch ledger, and the
// audit log, and runs every state mutation through the fail-closed
// protocol: pre-check the open epoch, durably append the event record,
// then insert the event hash into the epoch ledger. Only after all three
// steps is the in-memory mutation kept; a best-effort snapshot write
// follows and may degrade without failing the operation.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/config"
	"github.com/genesis-gov/genesis/internal/epoch"
	"github.com/genesis-gov/genesis/internal/governance/model"
	"github.com/genesis-gov/genesis/internal/snapshot"
)

// Result is the envelope every mutating operation returns. Success with a
// non-empty Warning means the mutation is durably audited but the
// post-audit snapshot write failed.
type Result struct {
	Success bool           `json:"success"`
	Errors  []string       `json:"errors,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Warning string         `json:"warning,omitempty"`

	// NotFound marks a rejection caused by a missing entity rather than
	// bad input, so transports can map the two cases apart.
	NotFound bool `json:"-"`
}

func failure(errs ...string) Result {
	return Result{Success: false, Errors: errs}
}

func notFound(errs ...string) Result {
	return Result{Success: false, Errors: errs, NotFound: true}
}

func failErr(err error) Result {
	return Result{Success: false, Errors: []string{err.Error()}}
}

// Service is the governance engine facade. All mutating methods serialise
// through one write lock; read methods share the read side.
type Service struct {
	mu     sync.RWMutex
	cfg    *config.Config
	log    audit.Log
	ledger *epoch.Ledger
	snaps  *snapshot.Store
	logger *zap.Logger
	clock  func() time.Time

	roster *model.Roster
	trust  map[string]*model.TrustRecord

	missions     map[string]*model.Mission
	missionOrder []string

	leaves     map[string]*model.LeaveRecord
	leaveOrder []string

	listings     map[string]*model.Listing
	listingOrder []string
	bids         map[string]*model.Bid
	bidOrder     []string

	eventSeq int
	leaveSeq int

	onEvent func(bucket string)

	persistenceDegraded bool
}

// New builds a service over the given log and snapshot store. The event
// sequencer is seeded from the durable log's length so event ids stay
// monotonic across restarts; prior domain state is restored from the
// snapshot when one exists.
func New(ctx context.Context, cfg *config.Config, log audit.Log, snaps *snapshot.Store, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	count, err := log.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed event sequencer: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		log:      log,
		snaps:    snaps,
		logger:   logger,
		clock:    time.Now,
		roster:   model.NewRoster(),
		trust:    make(map[string]*model.TrustRecord),
		missions: make(map[string]*model.Mission),
		leaves:   make(map[string]*model.LeaveRecord),
		listings: make(map[string]*model.Listing),
		bids:     make(map[string]*model.Bid),
		eventSeq: count,
	}

	prevHash := ""
	committed := 0
	if snaps != nil {
		state, err := snaps.Load()
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if state != nil {
			if err := s.restore(state); err != nil {
				return nil, fmt.Errorf("restore snapshot: %w", err)
			}
			prevHash = state.Epoch.PreviousHash
			committed = state.Epoch.CommittedCount
		}
	}
	s.ledger = epoch.NewLedger(prevHash).RestoreCommittedCount(committed)

	logger.Info("governance service ready",
		zap.Int("event_count", count),
		zap.Int("committed_epochs", committed),
		zap.Int("actors", s.roster.Count()))
	return s, nil
}

// WithClock overrides the clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithEventHook installs a callback invoked with the bucket of every
// committed event, used to feed metrics.
func (s *Service) WithEventHook(hook func(bucket string)) *Service {
	s.onEvent = hook
	return s
}

// Ledger exposes the epoch ledger for read-only callers.
func (s *Service) Ledger() *epoch.Ledger { return s.ledger }

// Log exposes the audit log for read-only callers.
func (s *Service) Log() audit.Log { return s.log }

// nextEventID advances the monotonic event sequencer. Caller holds the
// write lock.
func (s *Service) nextEventID() string {
	s.eventSeq++
	return fmt.Sprintf("EVT-%08d", s.eventSeq)
}

// nextLeaveID advances the leave id counter. Caller holds the write lock.
func (s *Service) nextLeaveID() string {
	s.leaveSeq++
	return fmt.Sprintf("LV-%05d", s.leaveSeq)
}

// commitEvent runs steps 1-3 of the mutation protocol for a single event:
// verify an epoch is open, append durably, then record the hash in the
// ledger. The caller applies (or rolls back) the in-memory domain change
// around this call. On failure the sequencer is rewound so ids never skip.
func (s *Service) commitEvent(ctx context.Context, kind audit.Kind, actorID string, payload audit.Payload) (audit.EventRecord, error) {
	if _, open := s.ledger.Current(); !open {
		return audit.EventRecord{}, epoch.ErrNoOpenEpoch
	}

	eventID := s.nextEventID()
	rec, err := audit.Create(eventID, kind, actorID, payload, s.clock())
	if err != nil {
		s.eventSeq--
		return audit.EventRecord{}, err
	}
	if err := s.log.Append(ctx, rec); err != nil {
		s.eventSeq--
		return audit.EventRecord{}, fmt.Errorf("durable append: %w", err)
	}

	s.ledger.RecordEvent(kind.Bucket(), rec.EventHash)
	if s.onEvent != nil {
		s.onEvent(kind.Bucket())
	}
	return rec, nil
}

// safePersist attempts the post-audit snapshot write. It never fails the
// operation: on error it sets the sticky degraded flag and returns a
// warning string; on success it clears the flag.
func (s *Service) safePersist() string {
	if s.snaps == nil || !s.snaps.Enabled() {
		return ""
	}
	if err := s.snaps.Save(s.buildState()); err != nil {
		s.persistenceDegraded = true
		s.logger.Warn("snapshot write failed, audit trail remains authoritative", zap.Error(err))
		return fmt.Sprintf("persistence degraded: %v", err)
	}
	s.persistenceDegraded = false
	return ""
}

// buildState serialises current domain state. Caller holds at least the
// read lock.
func (s *Service) buildState() *snapshot.State {
	state := &snapshot.State{
		Trust: make(map[string]model.TrustRecord, len(s.trust)),
		Epoch: snapshot.EpochState{
			PreviousHash:   s.ledger.PreviousHash(),
			CommittedCount: s.ledger.CommittedCount(),
			AnchoredCount:  s.ledger.AnchoredCount(),
			SavedUTC:       s.clock().UTC(),
		},
	}
	for _, e := range s.roster.All() {
		state.Roster = append(state.Roster, *e)
	}
	for id, tr := range s.trust {
		state.Trust[id] = *tr
	}
	for _, id := range s.missionOrder {
		state.Missions = append(state.Missions, *s.missions[id])
	}
	for _, id := range s.leaveOrder {
		state.Leaves = append(state.Leaves, *s.leaves[id])
	}
	for _, id := range s.listingOrder {
		state.Listings = append(state.Listings, *s.listings[id])
	}
	for _, id := range s.bidOrder {
		state.Bids = append(state.Bids, *s.bids[id])
	}
	return state
}

// restore rebuilds domain state from a snapshot.
func (s *Service) restore(state *snapshot.State) error {
	for i := range state.Roster {
		e := state.Roster[i]
		if err := s.roster.Register(&e); err != nil {
			return fmt.Errorf("restore actor %s: %w", e.ActorID, err)
		}
	}
	for id, tr := range state.Trust {
		cp := tr
		s.trust[id] = &cp
	}
	for i := range state.Missions {
		m := state.Missions[i]
		s.missions[m.MissionID] = &m
		s.missionOrder = append(s.missionOrder, m.MissionID)
	}
	maxLeave := 0
	for i := range state.Leaves {
		lv := state.Leaves[i]
		s.leaves[lv.LeaveID] = &lv
		s.leaveOrder = append(s.leaveOrder, lv.LeaveID)
		var n int
		if _, err := fmt.Sscanf(lv.LeaveID, "LV-%05d", &n); err == nil && n > maxLeave {
			maxLeave = n
		}
	}
	s.leaveSeq = maxLeave
	for i := range state.Listings {
		l := state.Listings[i]
		s.listings[l.ListingID] = &l
		s.listingOrder = append(s.listingOrder, l.ListingID)
	}
	for i := range state.Bids {
		b := state.Bids[i]
		s.bids[b.BidID] = &b
		s.bidOrder = append(s.bidOrder, b.BidID)
	}
	return nil
}

// PersistenceDegraded reports the sticky snapshot-failure flag.
func (s *Service) PersistenceDegraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistenceDegraded
}

// Status summarises the system for dashboards and genesisctl.
func (s *Service) Status(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eventCount, err := s.log.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	missionsByState := map[string]int{}
	for _, id := range s.missionOrder {
		missionsByState[string(s.missions[id].State)]++
	}
	leavesByState := map[string]int{}
	for _, id := range s.leaveOrder {
		leavesByState[string(s.leaves[id].State)]++
	}

	currentEpoch, open := s.ledger.Current()
	status := map[string]any{
		"actors_total":         s.roster.Count(),
		"actors_active":        s.roster.ActiveCount(),
		"actors_human":         s.roster.HumanCount(),
		"missions_total":       len(s.missionOrder),
		"missions_by_state":    missionsByState,
		"leaves_total":         len(s.leaveOrder),
		"leaves_by_state":      leavesByState,
		"listings_total":       len(s.listingOrder),
		"bids_total":           len(s.bidOrder),
		"events_total":         eventCount,
		"epoch_open":           open,
		"epochs_committed":     s.ledger.CommittedCount(),
		"epochs_anchored":      s.ledger.AnchoredCount(),
		"chain_previous_hash":  s.ledger.PreviousHash(),
		"epoch_event_counts":   s.ledger.EventCounts(),
		"persistence_degraded": s.persistenceDegraded,
	}
	if open {
		status["current_epoch"] = currentEpoch
	}
	return status, nil
}

// Events returns audit records, optionally filtered by kind and a
// lexicographic since bound on the fixed-width timestamp.
func (s *Service) Events(ctx context.Context, kind audit.Kind, sinceUTC string) ([]audit.EventRecord, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if sinceUTC != "" {
		return s.log.EventsSince(ctx, sinceUTC, kind)
	}
	return s.log.Events(ctx, kind)
}

// VerifyLog re-verifies the whole audit log.
func (s *Service) VerifyLog(ctx context.Context) error {
	return s.log.Verify(ctx)
}
