package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/governance/model"
	"github.com/genesis-gov/genesis/internal/governance/selector"
)

var artifactHashRe = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// CreateMissionInput carries the caller-supplied mission fields.
type CreateMissionInput struct {
	Title      string `json:"title"`
	Class      string `json:"mission_class"`
	DomainType string `json:"domain_type"`
	WorkerID   string `json:"worker_id"`
}

// CreateMission opens a new mission in draft state. The risk tier is
// resolved from the mission class; normative-domain missions escalate one
// tier.
func (s *Service) CreateMission(ctx context.Context, in CreateMissionInput) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(in.Title) == "" {
		return failure("mission title must not be blank")
	}
	class, ok := model.ParseMissionClass(in.Class)
	if !ok {
		return failure(fmt.Sprintf("unknown mission class %q", in.Class))
	}
	domain := model.DomainType(in.DomainType)
	if domain == "" {
		domain = model.DomainObjective
	}
	switch domain {
	case model.DomainObjective, model.DomainNormative, model.DomainMixed:
	default:
		return failure(fmt.Sprintf("unknown domain type %q", in.DomainType))
	}
	worker := s.roster.Get(in.WorkerID)
	if worker == nil {
		return notFound(fmt.Sprintf("unknown worker %s", in.WorkerID))
	}
	if !worker.Available() {
		return failure(fmt.Sprintf("worker %s is not available (%s)", worker.ActorID, worker.Status))
	}

	tier := model.ClassTier[class]
	if domain != model.DomainObjective {
		tier = escalateTier(tier)
	}

	missionID := "MSN-" + uuid.NewString()[:8]
	rec, err := s.commitEvent(ctx, audit.KindMissionCreated, worker.ActorID, audit.MissionPayload{
		MissionID: missionID,
		Action:    "created",
		State:     string(model.MissionDraft),
		Extra: map[string]string{
			"mission_class": string(class),
			"risk_tier":     string(tier),
			"domain_type":   string(domain),
		},
	})
	if err != nil {
		return failErr(err)
	}

	m := &model.Mission{
		MissionID:  missionID,
		Title:      strings.TrimSpace(in.Title),
		Class:      class,
		RiskTier:   tier,
		DomainType: domain,
		State:      model.MissionDraft,
		WorkerID:   worker.ActorID,
		CreatedUTC: s.clock().UTC(),
	}
	s.missions[missionID] = m
	s.missionOrder = append(s.missionOrder, missionID)

	s.logger.Info("mission created",
		zap.String("mission_id", missionID),
		zap.String("risk_tier", string(tier)))
	return Result{
		Success: true,
		Data: map[string]any{
			"mission_id": missionID,
			"risk_tier":  string(tier),
			"event_id":   rec.EventID,
		},
		Warning: s.safePersist(),
	}
}

// SubmitMission moves a draft mission to submitted.
func (s *Service) SubmitMission(ctx context.Context, missionID, actorID string) Result {
	return s.transitionMission(ctx, missionID, actorID, model.MissionSubmitted, nil)
}

// CancelMission cancels a non-terminal mission.
func (s *Service) CancelMission(ctx context.Context, missionID, actorID, reason string) Result {
	extra := map[string]string{}
	if reason != "" {
		extra["reason"] = reason
	}
	return s.transitionMission(ctx, missionID, actorID, model.MissionCancelled, extra)
}

// AssignReviewers selects a diversity-constrained reviewer panel for a
// submitted mission and moves it to in_review. Selection is deterministic
// for a given seed; a blank seed uses the mission id.
func (s *Service) AssignReviewers(ctx context.Context, missionID, seed string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.missions[missionID]
	if m == nil {
		return notFound(fmt.Sprintf("unknown mission %s", missionID))
	}
	if m.State != model.MissionSubmitted {
		return failure(fmt.Sprintf("mission %s is %s, expected %s", missionID, m.State, model.MissionSubmitted))
	}

	policy := s.cfg.PolicyFor(m.RiskTier)
	if policy.ReviewersRequired == 0 {
		// Tier needs no review: auto-approve through the full state walk
		// so the audit trail still shows every hop.
		return s.lockedTransition(ctx, m, m.WorkerID, model.MissionAssigned,
			model.MissionInReview, model.MissionReviewComplete, model.MissionApproved)
	}

	if seed == "" {
		seed = missionID
	}
	reviewers, err := selector.Select(s.roster, m.WorkerID, seed, selector.Requirements{
		Count:            policy.ReviewersRequired,
		MinTrust:         policy.MinReviewerTrust,
		MinRegions:       policy.MinRegions,
		MinOrganizations: policy.MinOrganizations,
		MinModelFamilies: policy.MinModelFamilies,
		MinMethodTypes:   policy.MinMethodTypes,
	}, nil)
	if err != nil {
		return failErr(err)
	}

	ids := make([]string, 0, len(reviewers))
	for _, r := range reviewers {
		ids = append(ids, r.ID)
	}
	if _, err := s.commitEvent(ctx, audit.KindReviewerAssigned, m.WorkerID, audit.MissionPayload{
		MissionID: missionID,
		Action:    "reviewers_assigned",
		State:     string(model.MissionAssigned),
		Extra: map[string]string{
			"reviewers": strings.Join(ids, ","),
			"seed":      seed,
		},
	}); err != nil {
		return failErr(err)
	}
	m.Reviewers = reviewers

	// Walk the table through assigned into in_review, one audited
	// transition event per hop.
	res := s.lockedTransition(ctx, m, m.WorkerID, model.MissionAssigned, model.MissionInReview)
	if !res.Success {
		return res
	}

	s.logger.Info("reviewers assigned",
		zap.String("mission_id", missionID),
		zap.Strings("reviewers", ids))
	res.Data["reviewers"] = ids
	return res
}

// SubmitReview records one reviewer's verdict on an in-review mission.
func (s *Service) SubmitReview(ctx context.Context, missionID, reviewerID, verdict, notes string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.missions[missionID]
	if m == nil {
		return notFound(fmt.Sprintf("unknown mission %s", missionID))
	}
	if m.State != model.MissionInReview {
		return failure(fmt.Sprintf("mission %s is %s, expected %s", missionID, m.State, model.MissionInReview))
	}
	if !m.HasReviewer(reviewerID) {
		return failure(fmt.Sprintf("%s is not an assigned reviewer on %s", reviewerID, missionID))
	}
	for _, d := range m.ReviewDecisions {
		if d.ReviewerID == reviewerID {
			return failure(fmt.Sprintf("%s has already reviewed %s", reviewerID, missionID))
		}
	}
	v, ok := model.ParseVerdict(verdict)
	if !ok {
		return failure(fmt.Sprintf("unknown verdict %q", verdict))
	}

	rec, err := s.commitEvent(ctx, audit.KindReviewSubmitted, reviewerID, audit.MissionPayload{
		MissionID: missionID,
		Action:    "review_submitted",
		State:     string(m.State),
		Extra:     map[string]string{"verdict": string(v)},
	})
	if err != nil {
		return failErr(err)
	}

	m.ReviewDecisions = append(m.ReviewDecisions, model.ReviewDecision{
		ReviewerID:   reviewerID,
		Decision:     v,
		Notes:        notes,
		TimestampUTC: s.clock().UTC(),
	})

	return Result{
		Success: true,
		Data: map[string]any{
			"mission_id": missionID,
			"reviews":    len(m.ReviewDecisions),
			"event_id":   rec.EventID,
		},
		Warning: s.safePersist(),
	}
}

// AddEvidence attaches a tamper-evident artifact to a mission under
// review. Both the hash and the signature are mandatory.
func (s *Service) AddEvidence(ctx context.Context, missionID, actorID, artifactHash, signature string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.missions[missionID]
	if m == nil {
		return notFound(fmt.Sprintf("unknown mission %s", missionID))
	}
	if m.State.Terminal() {
		return failure(fmt.Sprintf("mission %s is already %s", missionID, m.State))
	}
	if !artifactHashRe.MatchString(artifactHash) {
		return failure("artifact hash must be sha256: followed by 64 lowercase hex digits")
	}
	if strings.TrimSpace(signature) == "" {
		return failure("evidence signature must not be blank")
	}

	rec, err := s.commitEvent(ctx, audit.KindEvidenceAdded, actorID, audit.MissionPayload{
		MissionID: missionID,
		Action:    "evidence_added",
		State:     string(m.State),
		Extra:     map[string]string{"artifact_hash": artifactHash},
	})
	if err != nil {
		return failErr(err)
	}

	m.Evidence = append(m.Evidence, model.EvidenceRecord{
		ArtifactHash: artifactHash,
		Signature:    signature,
	})

	return Result{
		Success: true,
		Data: map[string]any{
			"mission_id": missionID,
			"evidence":   len(m.Evidence),
			"event_id":   rec.EventID,
		},
		Warning: s.safePersist(),
	}
}

// CompleteReview tallies verdicts once every reviewer has voted, assesses
// quality, and either finishes the mission or parks it at the human gate.
func (s *Service) CompleteReview(ctx context.Context, missionID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.missions[missionID]
	if m == nil {
		return notFound(fmt.Sprintf("unknown mission %s", missionID))
	}
	if m.State != model.MissionInReview {
		return failure(fmt.Sprintf("mission %s is %s, expected %s", missionID, m.State, model.MissionInReview))
	}
	if len(m.ReviewDecisions) < len(m.Reviewers) {
		return failure(fmt.Sprintf("mission %s has %d of %d reviews", missionID, len(m.ReviewDecisions), len(m.Reviewers)))
	}

	policy := s.cfg.PolicyFor(m.RiskTier)
	approved := m.ApproveCount() >= policy.ApprovalsRequired

	target := model.MissionRejected
	if approved {
		target = model.MissionApproved
	}
	if policy.HumanFinalGate {
		target = model.MissionHumanGatePending
	}

	res := s.lockedTransition(ctx, m, m.WorkerID, model.MissionReviewComplete, target)
	if !res.Success {
		return res
	}
	res.Data["approvals"] = m.ApproveCount()
	res.Data["rejections"] = m.RejectCount()

	// Quality assessment rides the same operation when the mission is
	// terminal; at the human gate it waits for the human verdict.
	if m.State.Terminal() {
		if warn := s.assessQuality(ctx, m); warn != "" && res.Warning == "" {
			res.Warning = warn
		}
	}
	return res
}

// HumanGateApprove records the human final approval for a gated mission.
// Only a registered human actor may pass the gate.
func (s *Service) HumanGateApprove(ctx context.Context, missionID, humanID string) Result {
	return s.humanGate(ctx, missionID, humanID, model.MissionApproved)
}

// HumanGateReject records a human final rejection for a gated mission.
func (s *Service) HumanGateReject(ctx context.Context, missionID, humanID string) Result {
	return s.humanGate(ctx, missionID, humanID, model.MissionRejected)
}

func (s *Service) humanGate(ctx context.Context, missionID, humanID string, target model.MissionState) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.missions[missionID]
	if m == nil {
		return notFound(fmt.Sprintf("unknown mission %s", missionID))
	}
	if m.State != model.MissionHumanGatePending {
		return failure(fmt.Sprintf("mission %s is %s, expected %s", missionID, m.State, model.MissionHumanGatePending))
	}
	h := s.roster.Get(humanID)
	if h == nil {
		return notFound(fmt.Sprintf("unknown actor %s", humanID))
	}
	if h.Kind != model.ActorHuman {
		return failure(fmt.Sprintf("%s is not a human actor; the final gate requires one", humanID))
	}
	if !h.Available() {
		return failure(fmt.Sprintf("actor %s is not available (%s)", humanID, h.Status))
	}

	res := s.lockedTransition(ctx, m, humanID, target)
	if !res.Success {
		return res
	}
	if target == model.MissionApproved {
		m.HumanFinalApproval = true
	}
	if warn := s.assessQuality(ctx, m); warn != "" && res.Warning == "" {
		res.Warning = warn
	}
	return res
}

// transitionMission is the audited single-step transition entry point.
func (s *Service) transitionMission(ctx context.Context, missionID, actorID string, to model.MissionState, extra map[string]string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.missions[missionID]
	if m == nil {
		return notFound(fmt.Sprintf("unknown mission %s", missionID))
	}
	return s.lockedTransitionExtra(ctx, m, actorID, extra, to)
}

// lockedTransition walks the mission through the given states, emitting
// one transition event per hop. Caller holds the write lock.
func (s *Service) lockedTransition(ctx context.Context, m *model.Mission, actorID string, states ...model.MissionState) Result {
	return s.lockedTransitionExtra(ctx, m, actorID, nil, states...)
}

func (s *Service) lockedTransitionExtra(ctx context.Context, m *model.Mission, actorID string, extra map[string]string, states ...model.MissionState) Result {
	var lastEvent string
	for _, to := range states {
		if !model.CanTransition(m.State, to) {
			return failure(fmt.Sprintf("mission %s cannot transition %s -> %s", m.MissionID, m.State, to))
		}
		ex := map[string]string{"from": string(m.State)}
		for k, v := range extra {
			ex[k] = v
		}
		rec, err := s.commitEvent(ctx, audit.KindMissionTransition, actorID, audit.MissionPayload{
			MissionID: m.MissionID,
			Action:    "transition",
			State:     string(to),
			Extra:     ex,
		})
		if err != nil {
			return failErr(err)
		}
		m.State = to
		lastEvent = rec.EventID
	}
	if m.State.Terminal() && m.CompletedUTC == nil {
		now := s.clock().UTC()
		m.CompletedUTC = &now
	}

	s.logger.Info("mission transition",
		zap.String("mission_id", m.MissionID),
		zap.String("state", string(m.State)))
	return Result{
		Success: true,
		Data: map[string]any{
			"mission_id": m.MissionID,
			"state":      string(m.State),
			"event_id":   lastEvent,
		},
		Warning: s.safePersist(),
	}
}

// Missions returns missions in creation order.
func (s *Service) Missions() []model.Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Mission, 0, len(s.missionOrder))
	for _, id := range s.missionOrder {
		out = append(out, *s.missions[id])
	}
	return out
}

// Mission looks up one mission.
func (s *Service) Mission(missionID string) (model.Mission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.missions[missionID]
	if m == nil {
		return model.Mission{}, false
	}
	return *m, true
}

func escalateTier(t model.RiskTier) model.RiskTier {
	switch t {
	case model.TierR0:
		return model.TierR1
	case model.TierR1:
		return model.TierR2
	default:
		return model.TierR3
	}
}
