package model

import "time"

// LeaveCategory is a protected life-event category. Each category maps to
// the professional domains whose trust qualifies an adjudicator.
type LeaveCategory string

const (
	LeaveIllness      LeaveCategory = "illness"
	LeaveBereavement  LeaveCategory = "bereavement"
	LeaveDisability   LeaveCategory = "disability"
	LeaveMentalHealth LeaveCategory = "mental_health"
	LeaveCaregiver    LeaveCategory = "caregiver"
	LeavePregnancy    LeaveCategory = "pregnancy"
	LeaveChildCare    LeaveCategory = "child_care"
	LeaveDeath        LeaveCategory = "death"
)

// CategoryDomains is the default mapping from leave category to required
// adjudicator domains. Policy config can override it.
var CategoryDomains = map[LeaveCategory][]string{
	LeaveIllness:      {"healthcare"},
	LeaveBereavement:  {"social_services", "mental_health"},
	LeaveDisability:   {"healthcare", "social_services"},
	LeaveMentalHealth: {"mental_health", "healthcare"},
	LeaveCaregiver:    {"social_services"},
	LeavePregnancy:    {"healthcare"},
	LeaveChildCare:    {"social_services"},
	LeaveDeath:        {"healthcare", "social_services"},
}

// ParseLeaveCategory validates a category string.
func ParseLeaveCategory(s string) (LeaveCategory, bool) {
	c := LeaveCategory(s)
	_, ok := CategoryDomains[c]
	return c, ok
}

// LeaveState is a state in the leave lifecycle:
// pending → approved/denied; approved → active (trust frozen);
// active → returned, or memorialised (death; sealed permanently).
type LeaveState string

const (
	LeavePending      LeaveState = "pending"
	LeaveApproved     LeaveState = "approved"
	LeaveDenied       LeaveState = "denied"
	LeaveActive       LeaveState = "active"
	LeaveReturned     LeaveState = "returned"
	LeaveMemorialised LeaveState = "memorialised"
)

// LeaveVerdict is one adjudicator's verdict.
type LeaveVerdict string

const (
	LeaveVerdictApprove LeaveVerdict = "approve"
	LeaveVerdictDeny    LeaveVerdict = "deny"
	LeaveVerdictAbstain LeaveVerdict = "abstain"
)

// LeaveAdjudication records one adjudicator's verdict. The adjudicator's
// trust at decision time is preserved for audit transparency.
type LeaveAdjudication struct {
	AdjudicatorID        string       `json:"adjudicator_id"`
	Verdict              LeaveVerdict `json:"verdict"`
	DomainQualified      string       `json:"domain_qualified"`
	TrustScoreAtDecision float64      `json:"trust_score_at_decision"`
	Notes                string       `json:"notes,omitempty"`
	TimestampUTC         time.Time    `json:"timestamp_utc"`
}

// LeaveRecord is a protected leave record for an actor. On approval the
// trust score and roster status are snapshotted so return restores them
// exactly; memorialised records are never reactivated.
type LeaveRecord struct {
	LeaveID       string        `json:"leave_id"`
	ActorID       string        `json:"actor_id"`
	Category      LeaveCategory `json:"category"`
	State         LeaveState    `json:"state"`
	ReasonSummary string        `json:"reason_summary,omitempty"` // brief, private
	PetitionerID  string        `json:"petitioner_id,omitempty"`  // death only

	Adjudications []LeaveAdjudication `json:"adjudications,omitempty"`

	TrustScoreAtFreeze *float64    `json:"trust_score_at_freeze,omitempty"`
	PreLeaveStatus     ActorStatus `json:"pre_leave_status,omitempty"`

	RequestedUTC    time.Time  `json:"requested_utc"`
	ApprovedUTC     *time.Time `json:"approved_utc,omitempty"`
	ExpiresUTC      *time.Time `json:"expires_utc,omitempty"`
	DeniedUTC       *time.Time `json:"denied_utc,omitempty"`
	ReturnedUTC     *time.Time `json:"returned_utc,omitempty"`
	MemorialisedUTC *time.Time `json:"memorialised_utc,omitempty"`
}

// ApproveCount counts approve verdicts.
func (r *LeaveRecord) ApproveCount() int { return r.countVerdict(LeaveVerdictApprove) }

// DenyCount counts deny verdicts.
func (r *LeaveRecord) DenyCount() int { return r.countVerdict(LeaveVerdictDeny) }

// AbstainCount counts abstentions.
func (r *LeaveRecord) AbstainCount() int { return r.countVerdict(LeaveVerdictAbstain) }

func (r *LeaveRecord) countVerdict(v LeaveVerdict) int {
	n := 0
	for _, a := range r.Adjudications {
		if a.Verdict == v {
			n++
		}
	}
	return n
}

// HasQuorum reports whether enough adjudicators have voted. Abstentions do
// not count toward quorum.
func (r *LeaveRecord) HasQuorum(minQuorum int) bool {
	return r.ApproveCount()+r.DenyCount() >= minQuorum
}

// HasAdjudicated reports whether the given adjudicator has already voted.
func (r *LeaveRecord) HasAdjudicated(adjudicatorID string) bool {
	for _, a := range r.Adjudications {
		if a.AdjudicatorID == adjudicatorID {
			return true
		}
	}
	return false
}
