package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/epoch"
)

// OpenEpoch opens a new accountability epoch. The opening event is the
// first entry recorded inside the new epoch; if its durable append fails
// the open is discarded and nothing is left behind.
func (s *Service) OpenEpoch(ctx context.Context, epochID, actorID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.ledger.Open(epochID)
	if err != nil {
		return failErr(err)
	}

	rec, err := s.commitEvent(ctx, audit.KindEpochOpened, actorID, audit.EpochPayload{
		EpochID: id,
		Action:  "opened",
	})
	if err != nil {
		if derr := s.ledger.Discard(); derr != nil {
			s.logger.Error("epoch left open after failed append", zap.String("epoch_id", id), zap.Error(derr))
		}
		return failErr(err)
	}

	s.logger.Info("epoch opened", zap.String("epoch_id", id))
	return Result{
		Success: true,
		Data:    map[string]any{"epoch_id": id, "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// CloseEpoch seals the open epoch into a hash-chained commitment. The
// closing event is the last entry inside the epoch. The result exposes the
// previous hash and the per-bucket counts; external anchoring services
// bind to the prior value, and the new this_hash is available from the
// commitments listing.
func (s *Service) CloseEpoch(ctx context.Context, beaconRound uint64, chamberNonce, actorID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, open := s.ledger.Current()
	if !open {
		return failErr(epoch.ErrNoOpenEpoch)
	}

	if _, err := s.commitEvent(ctx, audit.KindEpochClosed, actorID, audit.EpochPayload{
		EpochID: id,
		Action:  "closed",
		Extra:   map[string]string{"beacon_round": fmt.Sprintf("%d", beaconRound)},
	}); err != nil {
		return failErr(err)
	}

	rec, err := s.ledger.Close(beaconRound, chamberNonce)
	if err != nil {
		// Unreachable: the epoch was open and commitEvent does not close.
		return failErr(err)
	}

	s.logger.Info("epoch closed",
		zap.String("epoch_id", rec.EpochID),
		zap.String("this_hash", rec.ThisHash),
		zap.Uint64("beacon_round", beaconRound))
	return Result{
		Success: true,
		Data: map[string]any{
			"epoch_id":        rec.EpochID,
			"previous_hash":   rec.PreviousHash,
			"per_kind_counts": rec.PerKindCounts,
			"beacon_round":    rec.BeaconRound,
		},
		Warning: s.safePersist(),
	}
}

// AnchorCommitment marks a committed epoch as anchored with an external
// receipt. Anchoring is itself an audited mutation and therefore requires
// an open epoch.
func (s *Service) AnchorCommitment(ctx context.Context, epochID, receipt, actorID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	thisHash := ""
	for _, c := range s.ledger.Committed() {
		if c.EpochID == epochID {
			thisHash = c.ThisHash
			break
		}
	}
	if thisHash == "" {
		return failure(fmt.Sprintf("no committed record for %s", epochID))
	}
	for _, a := range s.ledger.Anchored() {
		if a.EpochID == epochID {
			return failure(fmt.Sprintf("commitment %s is already anchored", epochID))
		}
	}

	rec, err := s.commitEvent(ctx, audit.KindCommitmentAnchored, actorID, audit.EpochPayload{
		EpochID: epochID,
		Action:  "anchored",
		Extra: map[string]string{
			"receipt":   receipt,
			"this_hash": thisHash,
		},
	})
	if err != nil {
		return failErr(err)
	}

	if _, err := s.ledger.Anchor(epochID); err != nil {
		// Unreachable: existence and non-anchored were checked under the
		// same lock.
		return failErr(err)
	}

	s.logger.Info("commitment anchored", zap.String("epoch_id", epochID))
	return Result{
		Success: true,
		Data:    map[string]any{"epoch_id": epochID, "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// Commitments returns the committed chain in order.
func (s *Service) Commitments() []epoch.CommitmentRecord {
	return s.ledger.Committed()
}
