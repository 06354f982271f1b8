package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/governance/model"
)

// RegisterActor adds an actor to the roster and opens its trust record.
func (s *Service) RegisterActor(ctx context.Context, entry model.RosterEntry) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ActorID = strings.TrimSpace(entry.ActorID)
	if entry.ActorID == "" {
		return failure("actor id must not be blank")
	}
	if s.roster.Get(entry.ActorID) != nil {
		return failure(fmt.Sprintf("actor %s is already registered", entry.ActorID))
	}
	if entry.Kind != model.ActorHuman && entry.Kind != model.ActorMachine {
		return failure(fmt.Sprintf("unknown actor kind %q", entry.Kind))
	}
	if entry.TrustScore < 0 || entry.TrustScore > 1 {
		return failure(fmt.Sprintf("trust score must be in [0, 1], got %v", entry.TrustScore))
	}
	if entry.Status == "" {
		entry.Status = model.StatusActive
	}

	rec, err := s.commitEvent(ctx, audit.KindActorRegistered, entry.ActorID, audit.ActorPayload{
		ActorID: entry.ActorID,
		Kind:    string(entry.Kind),
		Status:  string(entry.Status),
		Extra:   map[string]string{"trust_score": audit.Decimal(entry.TrustScore)},
	})
	if err != nil {
		return failErr(err)
	}

	e := entry
	if err := s.roster.Register(&e); err != nil {
		// Unreachable: inputs were validated above.
		return failErr(err)
	}
	s.trust[e.ActorID] = &model.TrustRecord{
		ActorID:    e.ActorID,
		Kind:       e.Kind,
		Score:      e.TrustScore,
		UpdatedUTC: s.clock().UTC(),
	}

	s.logger.Info("actor registered",
		zap.String("actor_id", e.ActorID),
		zap.String("kind", string(e.Kind)))
	return Result{
		Success: true,
		Data:    map[string]any{"actor_id": e.ActorID, "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// QuarantineActor suspends an actor from all participation.
func (s *Service) QuarantineActor(ctx context.Context, actorID, reason string) Result {
	return s.setActorStatus(ctx, actorID, model.StatusQuarantined, reason, func(e *model.RosterEntry) error {
		if e.Status == model.StatusQuarantined {
			return fmt.Errorf("actor %s is already quarantined", actorID)
		}
		if e.Status == model.StatusDecommissioned {
			return fmt.Errorf("actor %s is decommissioned", actorID)
		}
		return nil
	})
}

// ReinstateActor returns a quarantined actor to active status.
func (s *Service) ReinstateActor(ctx context.Context, actorID, reason string) Result {
	return s.setActorStatus(ctx, actorID, model.StatusActive, reason, func(e *model.RosterEntry) error {
		if e.Status != model.StatusQuarantined {
			return fmt.Errorf("actor %s is not quarantined", actorID)
		}
		return nil
	})
}

// setActorStatus runs the audited status transition shared by quarantine
// and reinstatement. Leave status changes go through the leave engine,
// which snapshots pre-leave state.
func (s *Service) setActorStatus(ctx context.Context, actorID string, to model.ActorStatus, reason string, check func(*model.RosterEntry) error) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.roster.Get(actorID)
	if e == nil {
		return notFound(fmt.Sprintf("unknown actor %s", actorID))
	}
	if err := check(e); err != nil {
		return failErr(err)
	}

	extra := map[string]string{"from": string(e.Status)}
	if reason != "" {
		extra["reason"] = reason
	}
	rec, err := s.commitEvent(ctx, audit.KindActorStatusChanged, actorID, audit.ActorPayload{
		ActorID: actorID,
		Status:  string(to),
		Extra:   extra,
	})
	if err != nil {
		return failErr(err)
	}

	e.Status = to
	if tr := s.trust[actorID]; tr != nil {
		tr.Quarantined = to == model.StatusQuarantined
	}

	s.logger.Info("actor status changed",
		zap.String("actor_id", actorID),
		zap.String("status", string(to)))
	return Result{
		Success: true,
		Data:    map[string]any{"actor_id": actorID, "status": string(to), "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// Actors returns the roster in registration order.
func (s *Service) Actors() []model.RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RosterEntry, 0, s.roster.Count())
	for _, e := range s.roster.All() {
		out = append(out, *e)
	}
	return out
}

// Actor looks up one roster entry.
func (s *Service) Actor(actorID string) (model.RosterEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.roster.Get(actorID)
	if e == nil {
		return model.RosterEntry{}, false
	}
	return *e, true
}

// TrustRecord returns an actor's trust record.
func (s *Service) TrustRecord(actorID string) (model.TrustRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr := s.trust[actorID]
	if tr == nil {
		return model.TrustRecord{}, false
	}
	return *tr, true
}
