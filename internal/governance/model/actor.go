// Package model defines the governance engine's domain entities: roster
// actors, missions, trust records, protected leave, and market listings.
package model

import (
	"fmt"
	"strings"
)

// ActorKind distinguishes human from machine actors. Several constitutional
// checks (human final gate, leave adjudication) hinge on it.
type ActorKind string

const (
	ActorHuman   ActorKind = "human"
	ActorMachine ActorKind = "machine"
)

// ActorStatus is the operational status of a roster actor.
type ActorStatus string

const (
	StatusActive         ActorStatus = "active"
	StatusProbation      ActorStatus = "probation"
	StatusQuarantined    ActorStatus = "quarantined"
	StatusOnLeave        ActorStatus = "on_leave"
	StatusDecommissioned ActorStatus = "decommissioned"
)

// RosterEntry is a single actor in the roster. Trust score is mutable
// (kept in sync by the trust engine); the diversity fields drive reviewer
// selection.
type RosterEntry struct {
	ActorID      string      `json:"actor_id"`
	Kind         ActorKind   `json:"actor_kind"`
	TrustScore   float64     `json:"trust_score"`
	Region       string      `json:"region"`
	Organization string      `json:"organization"`
	ModelFamily  string      `json:"model_family"`
	MethodType   string      `json:"method_type"`
	Domains      []string    `json:"domains,omitempty"` // professional domains, e.g. healthcare
	Status       ActorStatus `json:"status"`
}

// Available reports whether the actor may participate in missions.
// Quarantined, on-leave, and decommissioned actors are excluded.
func (e *RosterEntry) Available() bool {
	return e.Status == StatusActive || e.Status == StatusProbation
}

// Roster is the registry of all actors. It is the source of truth for who
// can participate in missions. Not safe for concurrent use; the service
// layer serialises access.
type Roster struct {
	actors map[string]*RosterEntry
	order  []string
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{actors: make(map[string]*RosterEntry)}
}

// Register adds or replaces an actor. IDs are canonicalised by trimming
// whitespace; blank ids and trust scores outside [0, 1] are rejected.
func (r *Roster) Register(e *RosterEntry) error {
	id := strings.TrimSpace(e.ActorID)
	if id == "" {
		return fmt.Errorf("cannot register actor with blank id")
	}
	if e.TrustScore < 0 || e.TrustScore > 1 {
		return fmt.Errorf("trust score must be in [0, 1], got %v", e.TrustScore)
	}
	e.ActorID = id
	if e.Status == "" {
		e.Status = StatusActive
	}
	if _, exists := r.actors[id]; !exists {
		r.order = append(r.order, id)
	}
	r.actors[id] = e
	return nil
}

// Remove deletes an actor from the roster.
func (r *Roster) Remove(actorID string) {
	id := strings.TrimSpace(actorID)
	if _, ok := r.actors[id]; !ok {
		return
	}
	delete(r.actors, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks up an actor by id.
func (r *Roster) Get(actorID string) *RosterEntry {
	return r.actors[strings.TrimSpace(actorID)]
}

// All returns every registered actor in registration order.
func (r *Roster) All() []*RosterEntry {
	out := make([]*RosterEntry, 0, len(r.actors))
	for _, id := range r.order {
		out = append(out, r.actors[id])
	}
	return out
}

// AvailableReviewers returns actors eligible for reviewer selection:
// available, not excluded, and at or above minTrust. The worker is passed
// in exclude to structurally prevent self-review.
func (r *Roster) AvailableReviewers(exclude map[string]struct{}, minTrust float64) []*RosterEntry {
	var out []*RosterEntry
	for _, id := range r.order {
		a := r.actors[id]
		if !a.Available() {
			continue
		}
		if _, skip := exclude[a.ActorID]; skip {
			continue
		}
		if a.TrustScore < minTrust {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Count returns the number of registered actors.
func (r *Roster) Count() int { return len(r.actors) }

// ActiveCount returns the number of available actors.
func (r *Roster) ActiveCount() int {
	n := 0
	for _, a := range r.actors {
		if a.Available() {
			n++
		}
	}
	return n
}

// HumanCount returns the number of available human actors.
func (r *Roster) HumanCount() int {
	n := 0
	for _, a := range r.actors {
		if a.Kind == ActorHuman && a.Available() {
			n++
		}
	}
	return n
}
