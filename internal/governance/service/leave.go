package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/governance/model"
)

// RequestLeave opens a protected-leave request for an actor. The death
// category cannot be self-requested: a third-party petitioner files it.
func (s *Service) RequestLeave(ctx context.Context, actorID, category, reason, petitionerID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.roster.Get(actorID)
	if e == nil {
		return notFound(fmt.Sprintf("unknown actor %s", actorID))
	}
	cat, ok := model.ParseLeaveCategory(category)
	if !ok {
		return failure(fmt.Sprintf("unknown leave category %q", category))
	}
	if cat == model.LeaveDeath {
		if petitionerID == "" || petitionerID == actorID {
			return failure("death leave requires a third-party petitioner")
		}
		if s.roster.Get(petitionerID) == nil {
			return notFound(fmt.Sprintf("unknown petitioner %s", petitionerID))
		}
	} else if petitionerID != "" && petitionerID != actorID {
		return failure(fmt.Sprintf("category %s must be self-requested", cat))
	}
	for _, id := range s.leaveOrder {
		lv := s.leaves[id]
		if lv.ActorID == actorID && (lv.State == model.LeavePending || lv.State == model.LeaveActive || lv.State == model.LeaveApproved) {
			return failure(fmt.Sprintf("actor %s already has open leave %s", actorID, lv.LeaveID))
		}
	}

	leaveID := s.nextLeaveID()
	rec, err := s.commitEvent(ctx, audit.KindLeaveRequested, actorID, audit.LeavePayload{
		LeaveID:  leaveID,
		ActorID:  actorID,
		Category: string(cat),
		Action:   "requested",
		State:    string(model.LeavePending),
	})
	if err != nil {
		s.leaveSeq--
		return failErr(err)
	}

	lv := &model.LeaveRecord{
		LeaveID:       leaveID,
		ActorID:       actorID,
		Category:      cat,
		State:         model.LeavePending,
		ReasonSummary: strings.TrimSpace(reason),
		PetitionerID:  petitionerID,
		RequestedUTC:  s.clock().UTC(),
	}
	s.leaves[leaveID] = lv
	s.leaveOrder = append(s.leaveOrder, leaveID)

	s.logger.Info("leave requested",
		zap.String("leave_id", leaveID),
		zap.String("category", string(cat)))
	return Result{
		Success: true,
		Data:    map[string]any{"leave_id": leaveID, "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// AdjudicateLeave records one adjudicator's verdict. When the quorum is
// reached the request resolves in the same call: approval freezes the
// actor's trust and moves them on leave (or memorialises them for the
// death category); otherwise the request is denied.
func (s *Service) AdjudicateLeave(ctx context.Context, leaveID, adjudicatorID, verdict, notes string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	lv := s.leaves[leaveID]
	if lv == nil {
		return notFound(fmt.Sprintf("unknown leave request %s", leaveID))
	}
	if lv.State != model.LeavePending {
		return failure(fmt.Sprintf("leave %s is %s, expected %s", leaveID, lv.State, model.LeavePending))
	}

	adj := s.roster.Get(adjudicatorID)
	if adj == nil {
		return notFound(fmt.Sprintf("unknown adjudicator %s", adjudicatorID))
	}
	if adj.Kind != model.ActorHuman {
		return failure("leave adjudication requires a human adjudicator")
	}
	if !adj.Available() {
		return failure(fmt.Sprintf("adjudicator %s is not available (%s)", adjudicatorID, adj.Status))
	}
	if adjudicatorID == lv.ActorID || adjudicatorID == lv.PetitionerID {
		return failure("adjudicators must be independent of the request")
	}
	if adj.TrustScore < s.cfg.Leave.MinAdjudicatorTrust {
		return failure(fmt.Sprintf("adjudicator trust %.4f below required %.4f",
			adj.TrustScore, s.cfg.Leave.MinAdjudicatorTrust))
	}
	domain, qualified := qualifyingDomain(adj, lv.Category)
	if !qualified {
		return failure(fmt.Sprintf("adjudicator %s holds no qualifying domain for %s", adjudicatorID, lv.Category))
	}
	if lv.HasAdjudicated(adjudicatorID) {
		return failure(fmt.Sprintf("adjudicator %s has already voted on %s", adjudicatorID, leaveID))
	}
	v := model.LeaveVerdict(verdict)
	switch v {
	case model.LeaveVerdictApprove, model.LeaveVerdictDeny, model.LeaveVerdictAbstain:
	default:
		return failure(fmt.Sprintf("unknown verdict %q", verdict))
	}

	rec, err := s.commitEvent(ctx, audit.KindLeaveAdjudicated, adjudicatorID, audit.LeavePayload{
		LeaveID:  leaveID,
		ActorID:  lv.ActorID,
		Category: string(lv.Category),
		Action:   "adjudicated",
		State:    string(lv.State),
		Extra: map[string]string{
			"verdict": string(v),
			"domain":  domain,
			"trust":   audit.Decimal(adj.TrustScore),
		},
	})
	if err != nil {
		return failErr(err)
	}

	lv.Adjudications = append(lv.Adjudications, model.LeaveAdjudication{
		AdjudicatorID:        adjudicatorID,
		Verdict:              v,
		DomainQualified:      domain,
		TrustScoreAtDecision: adj.TrustScore,
		Notes:                notes,
		TimestampUTC:         s.clock().UTC(),
	})

	res := Result{
		Success: true,
		Data: map[string]any{
			"leave_id":      leaveID,
			"adjudications": len(lv.Adjudications),
			"event_id":      rec.EventID,
		},
	}

	if lv.HasQuorum(s.cfg.Leave.MinQuorum) {
		if lv.ApproveCount() >= s.cfg.Leave.MinApproveToGrant {
			if warn := s.grantLeave(ctx, lv); warn != "" {
				res.Warning = warn
			}
		} else {
			if warn := s.denyLeave(ctx, lv); warn != "" {
				res.Warning = warn
			}
		}
		res.Data["state"] = string(lv.State)
	}

	if res.Warning == "" {
		res.Warning = s.safePersist()
	}
	return res
}

// grantLeave resolves an approved request. Death-category requests are
// memorialised: the record seals permanently and the actor is
// decommissioned. All other categories freeze trust and move the actor on
// leave. Called with the write lock held, quorum already audited.
func (s *Service) grantLeave(ctx context.Context, lv *model.LeaveRecord) string {
	e := s.roster.Get(lv.ActorID)
	tr := s.trust[lv.ActorID]
	now := s.clock().UTC()

	if lv.Category == model.LeaveDeath {
		if _, err := s.commitEvent(ctx, audit.KindLeaveMemorialised, lv.PetitionerID, audit.LeavePayload{
			LeaveID:  lv.LeaveID,
			ActorID:  lv.ActorID,
			Category: string(lv.Category),
			Action:   "memorialised",
			State:    string(model.LeaveMemorialised),
		}); err != nil {
			s.logger.Error("memorialisation not recorded", zap.String("leave_id", lv.LeaveID), zap.Error(err))
			return fmt.Sprintf("memorialisation deferred: %v", err)
		}
		lv.State = model.LeaveMemorialised
		lv.MemorialisedUTC = &now
		if e != nil {
			score := e.TrustScore
			lv.TrustScoreAtFreeze = &score
			lv.PreLeaveStatus = e.Status
			e.Status = model.StatusDecommissioned
		}
		if tr != nil {
			tr.Frozen = true
		}
		s.logger.Info("actor memorialised", zap.String("actor_id", lv.ActorID))
		return ""
	}

	if _, err := s.commitEvent(ctx, audit.KindLeaveApproved, lv.ActorID, audit.LeavePayload{
		LeaveID:  lv.LeaveID,
		ActorID:  lv.ActorID,
		Category: string(lv.Category),
		Action:   "approved",
		State:    string(model.LeaveActive),
	}); err != nil {
		s.logger.Error("leave approval not recorded", zap.String("leave_id", lv.LeaveID), zap.Error(err))
		return fmt.Sprintf("leave approval deferred: %v", err)
	}
	lv.State = model.LeaveActive
	lv.ApprovedUTC = &now
	if days := s.cfg.Leave.MaxDaysByCategory[string(lv.Category)]; days > 0 {
		exp := now.AddDate(0, 0, days)
		lv.ExpiresUTC = &exp
	}
	if e != nil {
		score := e.TrustScore
		lv.TrustScoreAtFreeze = &score
		lv.PreLeaveStatus = e.Status
		e.Status = model.StatusOnLeave
	}
	if tr != nil {
		tr.Frozen = true
	}
	s.logger.Info("leave granted",
		zap.String("leave_id", lv.LeaveID),
		zap.String("actor_id", lv.ActorID))
	return ""
}

func (s *Service) denyLeave(ctx context.Context, lv *model.LeaveRecord) string {
	if _, err := s.commitEvent(ctx, audit.KindLeaveDenied, lv.ActorID, audit.LeavePayload{
		LeaveID:  lv.LeaveID,
		ActorID:  lv.ActorID,
		Category: string(lv.Category),
		Action:   "denied",
		State:    string(model.LeaveDenied),
	}); err != nil {
		s.logger.Error("leave denial not recorded", zap.String("leave_id", lv.LeaveID), zap.Error(err))
		return fmt.Sprintf("leave denial deferred: %v", err)
	}
	lv.State = model.LeaveDenied
	now := s.clock().UTC()
	lv.DeniedUTC = &now
	return ""
}

// ReturnFromLeave ends an active leave and restores the actor's pre-leave
// status and trust mobility. Memorialised records never return.
func (s *Service) ReturnFromLeave(ctx context.Context, leaveID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	lv := s.leaves[leaveID]
	if lv == nil {
		return notFound(fmt.Sprintf("unknown leave request %s", leaveID))
	}
	if lv.State == model.LeaveMemorialised {
		return failure(fmt.Sprintf("leave %s is memorialised and sealed", leaveID))
	}
	if lv.State != model.LeaveActive {
		return failure(fmt.Sprintf("leave %s is %s, expected %s", leaveID, lv.State, model.LeaveActive))
	}

	eventID, err := s.returnLeave(ctx, lv, nil)
	if err != nil {
		return failErr(err)
	}
	return Result{
		Success: true,
		Data:    map[string]any{"leave_id": leaveID, "event_id": eventID},
		Warning: s.safePersist(),
	}
}

// returnLeave commits the return event and restores the actor's pre-leave
// status and trust mobility. Called with the write lock held on an active
// record.
func (s *Service) returnLeave(ctx context.Context, lv *model.LeaveRecord, extra map[string]string) (string, error) {
	rec, err := s.commitEvent(ctx, audit.KindLeaveReturned, lv.ActorID, audit.LeavePayload{
		LeaveID:  lv.LeaveID,
		ActorID:  lv.ActorID,
		Category: string(lv.Category),
		Action:   "returned",
		State:    string(model.LeaveReturned),
		Extra:    extra,
	})
	if err != nil {
		return "", err
	}

	lv.State = model.LeaveReturned
	now := s.clock().UTC()
	lv.ReturnedUTC = &now
	if e := s.roster.Get(lv.ActorID); e != nil {
		restored := lv.PreLeaveStatus
		if restored == "" {
			restored = model.StatusActive
		}
		e.Status = restored
	}
	if tr := s.trust[lv.ActorID]; tr != nil {
		tr.Frozen = false
	}

	s.logger.Info("actor returned from leave",
		zap.String("leave_id", lv.LeaveID),
		zap.String("actor_id", lv.ActorID))
	return rec.EventID, nil
}

// CheckLeaveExpiries sweeps active leaves whose expiry has passed and
// returns each one automatically, restoring the actor exactly as a
// manual return would. Leaves in open-ended categories never expire.
func (s *Service) CheckLeaveExpiries(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	returned := []string{}
	for _, id := range s.leaveOrder {
		lv := s.leaves[id]
		if lv.State != model.LeaveActive || lv.ExpiresUTC == nil || !now.After(*lv.ExpiresUTC) {
			continue
		}
		if _, err := s.returnLeave(ctx, lv, map[string]string{"reason": "expired"}); err != nil {
			return failErr(err)
		}
		returned = append(returned, id)
	}
	return Result{
		Success: true,
		Data:    map[string]any{"returned": returned, "count": len(returned)},
		Warning: s.safePersist(),
	}
}

// Leaves returns leave records in request order.
func (s *Service) Leaves() []model.LeaveRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LeaveRecord, 0, len(s.leaveOrder))
	for _, id := range s.leaveOrder {
		out = append(out, *s.leaves[id])
	}
	return out
}

// Leave looks up one leave record.
func (s *Service) Leave(leaveID string) (model.LeaveRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lv := s.leaves[leaveID]
	if lv == nil {
		return model.LeaveRecord{}, false
	}
	return *lv, true
}

// qualifyingDomain returns the first of the adjudicator's professional
// domains that qualifies for the category.
func qualifyingDomain(e *model.RosterEntry, cat model.LeaveCategory) (string, bool) {
	required := model.CategoryDomains[cat]
	for _, have := range e.Domains {
		for _, want := range required {
			if have == want {
				return have, true
			}
		}
	}
	return "", false
}
