package model

import "time"

// RiskTier classifies mission risk. Tier policy (reviewer counts, diversity
// minima, human gate) is resolved from configuration.
type RiskTier string

const (
	TierR0 RiskTier = "R0"
	TierR1 RiskTier = "R1"
	TierR2 RiskTier = "R2"
	TierR3 RiskTier = "R3"
)

// MissionClass maps to a risk tier via runtime policy.
type MissionClass string

const (
	ClassDocumentationUpdate      MissionClass = "documentation_update"
	ClassInternalOperationsChange MissionClass = "internal_operations_change"
	ClassRegulatedAnalysis        MissionClass = "regulated_analysis"
	ClassConstitutionalChange     MissionClass = "constitutional_change"
	ClassLeaveAdjudication        MissionClass = "leave_adjudication"
	ClassMarketDelivery           MissionClass = "market_delivery"
)

// ClassTier maps each mission class to its risk tier. Constitutional
// changes always sit at R3; leave adjudication runs at R2 because it
// touches a person's standing.
var ClassTier = map[MissionClass]RiskTier{
	ClassDocumentationUpdate:      TierR0,
	ClassInternalOperationsChange: TierR1,
	ClassRegulatedAnalysis:        TierR2,
	ClassConstitutionalChange:     TierR3,
	ClassLeaveAdjudication:        TierR2,
	ClassMarketDelivery:           TierR1,
}

// ParseMissionClass validates a mission class string.
func ParseMissionClass(s string) (MissionClass, bool) {
	c := MissionClass(s)
	_, ok := ClassTier[c]
	return c, ok
}

// DomainType classifies a mission for normative escalation.
type DomainType string

const (
	DomainObjective DomainType = "objective"
	DomainNormative DomainType = "normative"
	DomainMixed     DomainType = "mixed"
)

// MissionState is a state in the mission lifecycle machine.
type MissionState string

const (
	MissionDraft            MissionState = "draft"
	MissionSubmitted        MissionState = "submitted"
	MissionAssigned         MissionState = "assigned"
	MissionInReview         MissionState = "in_review"
	MissionReviewComplete   MissionState = "review_complete"
	MissionHumanGatePending MissionState = "human_gate_pending"
	MissionApproved         MissionState = "approved"
	MissionRejected         MissionState = "rejected"
	MissionCancelled        MissionState = "cancelled"
)

// missionTransitions is the allowed-transition table. Anything absent is
// invalid.
var missionTransitions = map[MissionState][]MissionState{
	MissionDraft:            {MissionSubmitted, MissionCancelled},
	MissionSubmitted:        {MissionAssigned, MissionCancelled},
	MissionAssigned:         {MissionInReview, MissionCancelled},
	MissionInReview:         {MissionReviewComplete, MissionCancelled},
	MissionReviewComplete:   {MissionHumanGatePending, MissionApproved, MissionRejected},
	MissionHumanGatePending: {MissionApproved, MissionRejected},
}

// CanTransition reports whether from → to is a legal mission transition.
func CanTransition(from, to MissionState) bool {
	for _, t := range missionTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal mission state.
func (s MissionState) Terminal() bool {
	return s == MissionApproved || s == MissionRejected || s == MissionCancelled
}

// Verdict is a reviewer's decision on a mission.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictReject  Verdict = "REJECT"
	VerdictAbstain Verdict = "ABSTAIN"
)

// ParseVerdict validates a verdict string.
func ParseVerdict(s string) (Verdict, bool) {
	switch Verdict(s) {
	case VerdictApprove, VerdictReject, VerdictAbstain:
		return Verdict(s), true
	}
	return "", false
}

// Reviewer is an assigned reviewer. The diversity fields are snapshotted at
// assignment time so later roster edits cannot rewrite selection history.
type Reviewer struct {
	ID           string `json:"id"`
	ModelFamily  string `json:"model_family"`
	MethodType   string `json:"method_type"`
	Region       string `json:"region"`
	Organization string `json:"organization"`
}

// ReviewDecision is one reviewer's verdict.
type ReviewDecision struct {
	ReviewerID   string    `json:"reviewer_id"`
	Decision     Verdict   `json:"decision"`
	Notes        string    `json:"notes,omitempty"`
	TimestampUTC time.Time `json:"timestamp_utc"`
}

// EvidenceRecord is a tamper-evident evidence artifact attached to a
// mission. Both fields are mandatory.
type EvidenceRecord struct {
	ArtifactHash string `json:"artifact_hash"` // "sha256:" + 64 hex
	Signature    string `json:"signature"`
}

// Mission is the fundamental unit of accountable work.
type Mission struct {
	MissionID     string       `json:"mission_id"`
	Title         string       `json:"mission_title"`
	Class         MissionClass `json:"mission_class"`
	RiskTier      RiskTier     `json:"risk_tier"`
	DomainType    DomainType   `json:"domain_type"`
	State         MissionState `json:"state"`
	WorkerID      string       `json:"worker_id,omitempty"`
	ListingID     string       `json:"listing_id,omitempty"`

	Reviewers       []Reviewer       `json:"reviewers,omitempty"`
	ReviewDecisions []ReviewDecision `json:"review_decisions,omitempty"`
	Evidence        []EvidenceRecord `json:"evidence,omitempty"`

	HumanFinalApproval bool `json:"human_final_approval"`

	CreatedUTC   time.Time  `json:"created_utc"`
	CompletedUTC *time.Time `json:"completed_utc,omitempty"`
}

// ApproveCount counts APPROVE decisions.
func (m *Mission) ApproveCount() int {
	n := 0
	for _, d := range m.ReviewDecisions {
		if d.Decision == VerdictApprove {
			n++
		}
	}
	return n
}

// RejectCount counts REJECT decisions.
func (m *Mission) RejectCount() int {
	n := 0
	for _, d := range m.ReviewDecisions {
		if d.Decision == VerdictReject {
			n++
		}
	}
	return n
}

// HasReviewer reports whether reviewerID is assigned to the mission.
func (m *Mission) HasReviewer(reviewerID string) bool {
	for _, r := range m.Reviewers {
		if r.ID == reviewerID {
			return true
		}
	}
	return false
}
