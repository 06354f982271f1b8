package audit

import "strconv"

// Payload is the kind-specific body of an event record. Concrete payload
// types carry the fields common to their kind group; anything that does not
// merit its own field goes in the residual Extra map.
//
// All score and amount fields are fixed-precision decimal strings. Floats
// do not appear in payloads: their formatting is not stable enough for a
// canonical encoding that third parties must be able to reproduce.
type Payload interface {
	isPayload()
}

// Decimal renders a score or amount as a fixed four-place decimal string
// for inclusion in payloads.
func Decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// MissionPayload covers mission lifecycle, review, evidence, and quality
// events.
type MissionPayload struct {
	MissionID string            `json:"mission_id"`
	Action    string            `json:"action"`
	State     string            `json:"state,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// TrustPayload covers trust_updated events. Delta and Score are decimal
// strings.
type TrustPayload struct {
	ActorID   string            `json:"actor_id"`
	Delta     string            `json:"delta"`
	Score     string            `json:"score"`
	Reason    string            `json:"reason,omitempty"`
	MissionID string            `json:"mission_id,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// ActorPayload covers actor registration and status changes.
type ActorPayload struct {
	ActorID string            `json:"actor_id"`
	Kind    string            `json:"kind,omitempty"`
	Status  string            `json:"status,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// LeavePayload covers protected-leave lifecycle events.
type LeavePayload struct {
	LeaveID  string            `json:"leave_id"`
	ActorID  string            `json:"actor_id"`
	Category string            `json:"category"`
	Action   string            `json:"action"`
	State    string            `json:"state"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// MarketPayload covers listing, bid, and allocation events. Amount is a
// decimal string.
type MarketPayload struct {
	ListingID string            `json:"listing_id"`
	Action    string            `json:"action"`
	BidID     string            `json:"bid_id,omitempty"`
	Amount    string            `json:"amount,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// QualityPayload covers quality_assessed events. WorkerQuality is a decimal
// string.
type QualityPayload struct {
	MissionID     string            `json:"mission_id"`
	WorkerQuality string            `json:"worker_quality"`
	ReviewerCount int               `json:"reviewer_count"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// EpochPayload covers epoch lifecycle and commitment anchoring events.
type EpochPayload struct {
	EpochID string            `json:"epoch_id"`
	Action  string            `json:"action"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// GenericPayload is the escape hatch for recovered records: the durable log
// stores payloads as JSON objects, and recovery has no kind registry to map
// them back to concrete types.
type GenericPayload map[string]any

func (MissionPayload) isPayload() {}
func (TrustPayload) isPayload()   {}
func (ActorPayload) isPayload()   {}
func (LeavePayload) isPayload()   {}
func (MarketPayload) isPayload()  {}
func (QualityPayload) isPayload() {}
func (EpochPayload) isPayload()   {}
func (GenericPayload) isPayload() {}
