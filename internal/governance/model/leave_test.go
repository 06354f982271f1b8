package model_test

import (
	"testing"

	"github.com/genesis-gov/genesis/internal/governance/model"
)

func TestParseLeaveCategory(t *testing.T) {
	for _, s := range []string{"illness", "bereavement", "death", "mental_health"} {
		if _, ok := model.ParseLeaveCategory(s); !ok {
			t.Errorf("%s rejected", s)
		}
	}
	if _, ok := model.ParseLeaveCategory("vacation"); ok {
		t.Error("unknown category accepted")
	}
}

func TestCategoryDomains(t *testing.T) {
	for cat, domains := range model.CategoryDomains {
		if len(domains) == 0 {
			t.Errorf("category %s has no qualifying domains", cat)
		}
	}
}

func TestLeaveQuorum(t *testing.T) {
	r := &model.LeaveRecord{
		Adjudications: []model.LeaveAdjudication{
			{AdjudicatorID: "a", Verdict: model.LeaveVerdictApprove},
			{AdjudicatorID: "b", Verdict: model.LeaveVerdictAbstain},
			{AdjudicatorID: "c", Verdict: model.LeaveVerdictDeny},
		},
	}
	if r.ApproveCount() != 1 || r.DenyCount() != 1 || r.AbstainCount() != 1 {
		t.Errorf("counts = %d/%d/%d", r.ApproveCount(), r.DenyCount(), r.AbstainCount())
	}
	// Abstentions do not advance quorum.
	if r.HasQuorum(3) {
		t.Error("quorum reached with only 2 substantive votes")
	}
	r.Adjudications = append(r.Adjudications, model.LeaveAdjudication{
		AdjudicatorID: "d", Verdict: model.LeaveVerdictApprove,
	})
	if !r.HasQuorum(3) {
		t.Error("quorum not reached with 3 substantive votes")
	}
	if !r.HasAdjudicated("b") || r.HasAdjudicated("z") {
		t.Error("HasAdjudicated wrong")
	}
}
