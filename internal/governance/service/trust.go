package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/governance/model"
)

// TrustInputs are the observation components of a trust update, each in
// [0, 1].
type TrustInputs struct {
	Quality     float64 `json:"quality"`
	Reliability float64 `json:"reliability"`
	Volume      float64 `json:"volume"`
	Effort      float64 `json:"effort"`
	Reason      string  `json:"reason"`
	MissionID   string  `json:"mission_id"`
}

// UpdateTrust moves an actor's trust score toward the weighted blend of
// the inputs, bounded per update by the configured max delta. Scores of
// actors on protected leave are frozen and reject updates.
func (s *Service) UpdateTrust(ctx context.Context, actorID string, in TrustInputs) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, _ := s.lockedUpdateTrust(ctx, actorID, in)
	if res.Success {
		res.Warning = s.safePersist()
	}
	return res
}

// lockedUpdateTrust is the lock-held core shared with quality assessment.
// It returns the applied delta alongside the result and does not snapshot.
func (s *Service) lockedUpdateTrust(ctx context.Context, actorID string, in TrustInputs) (Result, float64) {
	e := s.roster.Get(actorID)
	if e == nil {
		return notFound(fmt.Sprintf("unknown actor %s", actorID)), 0
	}
	tr := s.trust[actorID]
	if tr == nil {
		return failure(fmt.Sprintf("no trust record for %s", actorID)), 0
	}
	if tr.Frozen {
		return failure(fmt.Sprintf("trust for %s is frozen by protected leave", actorID)), 0
	}
	for _, v := range []float64{in.Quality, in.Reliability, in.Volume, in.Effort} {
		if v < 0 || v > 1 {
			return failure("trust inputs must be in [0, 1]"), 0
		}
	}

	w := s.cfg.Trust
	wsum := w.QualityWeight + w.ReliabilityWeight + w.VolumeWeight + w.EffortWeight
	target := (in.Quality*w.QualityWeight + in.Reliability*w.ReliabilityWeight +
		in.Volume*w.VolumeWeight + in.Effort*w.EffortWeight) / wsum

	delta := target - tr.Score
	if delta > w.MaxDelta {
		delta = w.MaxDelta
	}
	if delta < -w.MaxDelta {
		delta = -w.MaxDelta
	}
	newScore := clamp01(tr.Score + delta)
	delta = newScore - tr.Score

	rec, err := s.commitEvent(ctx, audit.KindTrustUpdated, actorID, audit.TrustPayload{
		ActorID:   actorID,
		Delta:     audit.Decimal(delta),
		Score:     audit.Decimal(newScore),
		Reason:    in.Reason,
		MissionID: in.MissionID,
	})
	if err != nil {
		return failErr(err), 0
	}

	tr.Quality = in.Quality
	tr.Reliability = in.Reliability
	tr.Volume = in.Volume
	tr.Effort = in.Effort
	tr.Score = newScore
	tr.UpdatedUTC = s.clock().UTC()
	e.TrustScore = newScore

	s.logger.Info("trust updated",
		zap.String("actor_id", actorID),
		zap.Float64("score", newScore),
		zap.Float64("delta", delta))
	return Result{
		Success: true,
		Data: map[string]any{
			"actor_id": actorID,
			"score":    audit.Decimal(newScore),
			"delta":    audit.Decimal(delta),
			"event_id": rec.EventID,
		},
	}, delta
}

// assessQuality derives worker quality from the approval ratio of a
// terminal mission and reviewer calibration from agreement with the
// majority verdict, then feeds both through trust updates. Called with
// the write lock held, after the mission outcome is already durably
// audited: failures here are logged, never rolled back into the mission.
func (s *Service) assessQuality(ctx context.Context, m *model.Mission) string {
	votes := m.ApproveCount() + m.RejectCount()
	if votes == 0 {
		return ""
	}
	workerQuality := float64(m.ApproveCount()) / float64(votes)

	if _, err := s.commitEvent(ctx, audit.KindQualityAssessed, m.WorkerID, audit.QualityPayload{
		MissionID:     m.MissionID,
		WorkerQuality: audit.Decimal(workerQuality),
		ReviewerCount: len(m.Reviewers),
	}); err != nil {
		s.logger.Error("quality assessment not recorded",
			zap.String("mission_id", m.MissionID), zap.Error(err))
		return fmt.Sprintf("quality assessment skipped: %v", err)
	}

	outcome := 0.0
	if m.State == model.MissionApproved {
		outcome = 1.0
	}
	if res, _ := s.lockedUpdateTrust(ctx, m.WorkerID, TrustInputs{
		Quality:     workerQuality,
		Reliability: outcome,
		Volume:      0.5,
		Effort:      0.5,
		Reason:      "mission outcome",
		MissionID:   m.MissionID,
	}); !res.Success {
		s.logger.Warn("worker trust not updated",
			zap.String("actor_id", m.WorkerID),
			zap.Strings("errors", res.Errors))
	}

	majorityApprove := m.ApproveCount() >= m.RejectCount()
	for _, d := range m.ReviewDecisions {
		if d.Decision == model.VerdictAbstain {
			continue
		}
		agreed := (d.Decision == model.VerdictApprove) == majorityApprove
		calibration := 0.25
		if agreed {
			calibration = 0.75
		}
		if res, _ := s.lockedUpdateTrust(ctx, d.ReviewerID, TrustInputs{
			Quality:     calibration,
			Reliability: 0.5,
			Volume:      0.5,
			Effort:      0.5,
			Reason:      "reviewer calibration",
			MissionID:   m.MissionID,
		}); !res.Success {
			s.logger.Warn("reviewer trust not updated",
				zap.String("actor_id", d.ReviewerID),
				zap.Strings("errors", res.Errors))
		}
	}
	return s.safePersist()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
