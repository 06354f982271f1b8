// Package audit implements the append-only governance event log.
//
// Every state change in the engine produces an EventRecord that is appended
// to a Log before the in-memory mutation is allowed to stand. Records are
// immutable once written; their content hash is recomputed from the stored
// fields on every recovery, never trusted from storage.
//
// Two implementations of the Log interface are provided:
//   - FileLog: in-process with optional JSONL file backing, for testing,
//     development, and single-node deployments.
//   - PostgresLog: durable, for production use.
package audit

// Kind classifies governance events. The enumeration is closed: records
// carrying an unknown kind are rejected at creation time.
type Kind string

const (
	KindMissionCreated     Kind = "mission_created"
	KindMissionTransition  Kind = "mission_transition"
	KindReviewerAssigned   Kind = "reviewer_assigned"
	KindReviewSubmitted    Kind = "review_submitted"
	KindEvidenceAdded      Kind = "evidence_added"
	KindTrustUpdated       Kind = "trust_updated"
	KindActorRegistered    Kind = "actor_registered"
	KindActorStatusChanged Kind = "actor_status_changed"
	KindEpochOpened        Kind = "epoch_opened"
	KindEpochClosed        Kind = "epoch_closed"
	KindCommitmentAnchored Kind = "commitment_anchored"
	KindGovernanceBallot   Kind = "governance_ballot"
	KindPhaseTransition    Kind = "phase_transition"
	KindQualityAssessed    Kind = "quality_assessed"

	// Market events.
	KindListingCreated    Kind = "listing_created"
	KindListingTransition Kind = "listing_transition"
	KindBidSubmitted      Kind = "bid_submitted"
	KindWorkerAllocated   Kind = "worker_allocated"

	// Skill lifecycle events.
	KindSkillUpdated  Kind = "skill_updated"
	KindSkillEndorsed Kind = "skill_endorsed"
	KindSkillDecayed  Kind = "skill_decayed"

	// Protected leave events.
	KindLeaveRequested    Kind = "leave_requested"
	KindLeaveAdjudicated  Kind = "leave_adjudicated"
	KindLeaveApproved     Kind = "leave_approved"
	KindLeaveDenied       Kind = "leave_denied"
	KindLeaveReturned     Kind = "leave_returned"
	KindLeavePermanent    Kind = "leave_permanent" // legacy, kept for log compat
	KindLeaveMemorialised Kind = "leave_memorialised"
)

var kinds = map[Kind]struct{}{
	KindMissionCreated: {}, KindMissionTransition: {}, KindReviewerAssigned: {},
	KindReviewSubmitted: {}, KindEvidenceAdded: {}, KindTrustUpdated: {},
	KindActorRegistered: {}, KindActorStatusChanged: {}, KindEpochOpened: {},
	KindEpochClosed: {}, KindCommitmentAnchored: {}, KindGovernanceBallot: {},
	KindPhaseTransition: {}, KindQualityAssessed: {}, KindListingCreated: {},
	KindListingTransition: {}, KindBidSubmitted: {}, KindWorkerAllocated: {},
	KindSkillUpdated: {}, KindSkillEndorsed: {}, KindSkillDecayed: {},
	KindLeaveRequested: {}, KindLeaveAdjudicated: {}, KindLeaveApproved: {},
	KindLeaveDenied: {}, KindLeaveReturned: {}, KindLeavePermanent: {},
	KindLeaveMemorialised: {},
}

// Valid reports whether k is a member of the closed enumeration.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Bucket maps a kind to the epoch accumulator bucket its hashes feed.
func (k Kind) Bucket() string {
	switch k {
	case KindMissionCreated, KindMissionTransition, KindReviewerAssigned,
		KindReviewSubmitted, KindEvidenceAdded, KindQualityAssessed:
		return "mission"
	case KindTrustUpdated:
		return "trust"
	case KindListingCreated, KindListingTransition, KindBidSubmitted,
		KindWorkerAllocated:
		return "market"
	case KindLeaveRequested, KindLeaveAdjudicated, KindLeaveApproved,
		KindLeaveDenied, KindLeaveReturned, KindLeavePermanent,
		KindLeaveMemorialised:
		return "leave"
	case KindActorRegistered, KindActorStatusChanged:
		return "actor"
	default:
		return "generic"
	}
}
