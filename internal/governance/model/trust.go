package model

import "time"

// TrustRecord is an actor's accumulated trust state. Score is authoritative;
// the roster's copy is kept in sync by the service layer.
type TrustRecord struct {
	ActorID     string    `json:"actor_id"`
	Kind        ActorKind `json:"actor_kind"`
	Score       float64   `json:"score"`
	Quality     float64   `json:"quality"`
	Reliability float64   `json:"reliability"`
	Volume      float64   `json:"volume"`
	Effort      float64   `json:"effort"`
	Quarantined bool      `json:"quarantined"`
	Frozen      bool      `json:"frozen"` // protected leave: no gain, no loss
	UpdatedUTC  time.Time `json:"updated_utc"`
}
