package audit_test

import (
	"strings"
	"testing"
	"time"

	"github.com/genesis-gov/genesis/internal/audit"
)

var fixedTime = time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)

func TestCreate_HashShape(t *testing.T) {
	rec, err := audit.Create("EVT-00000001", audit.KindMissionCreated, "actor-1", audit.MissionPayload{
		MissionID: "MSN-1",
		Action:    "created",
	}, fixedTime)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !strings.HasPrefix(rec.EventHash, "sha256:") {
		t.Errorf("hash missing prefix: %s", rec.EventHash)
	}
	if len(rec.EventHash) != 71 {
		t.Errorf("expected 71-char hash string, got %d: %s", len(rec.EventHash), rec.EventHash)
	}
	if rec.TimestampUTC != "2025-06-01T12:30:45Z" {
		t.Errorf("unexpected timestamp format: %s", rec.TimestampUTC)
	}
}

func TestCreate_Deterministic(t *testing.T) {
	payload := audit.TrustPayload{
		ActorID: "actor-1",
		Delta:   audit.Decimal(0.05),
		Score:   audit.Decimal(0.55),
		Reason:  "mission outcome",
	}

	a, err := audit.Create("EVT-00000007", audit.KindTrustUpdated, "actor-1", payload, fixedTime)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := audit.Create("EVT-00000007", audit.KindTrustUpdated, "actor-1", payload, fixedTime)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.EventHash != b.EventHash {
		t.Errorf("identical inputs produced different hashes: %s vs %s", a.EventHash, b.EventHash)
	}
}

func TestCreate_DistinctInputsDistinctHashes(t *testing.T) {
	a, _ := audit.Create("EVT-00000001", audit.KindMissionCreated, "actor-1",
		audit.MissionPayload{MissionID: "MSN-1", Action: "created"}, fixedTime)
	b, _ := audit.Create("EVT-00000002", audit.KindMissionCreated, "actor-1",
		audit.MissionPayload{MissionID: "MSN-1", Action: "created"}, fixedTime)
	if a.EventHash == b.EventHash {
		t.Error("different event ids must not collide")
	}
}

func TestCreate_Rejections(t *testing.T) {
	if _, err := audit.Create("", audit.KindMissionCreated, "a", audit.MissionPayload{}, fixedTime); err == nil {
		t.Error("empty event id accepted")
	}
	if _, err := audit.Create("EVT-1", audit.Kind("not_a_kind"), "a", audit.MissionPayload{}, fixedTime); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestDecimal(t *testing.T) {
	if got := audit.Decimal(0.5); got != "0.5000" {
		t.Errorf("Decimal(0.5) = %s", got)
	}
	if got := audit.Decimal(-0.0125); got != "-0.0125" {
		t.Errorf("Decimal(-0.0125) = %s", got)
	}
}

func TestKindBuckets(t *testing.T) {
	cases := map[audit.Kind]string{
		audit.KindMissionCreated:   "mission",
		audit.KindReviewSubmitted:  "mission",
		audit.KindQualityAssessed:  "mission",
		audit.KindTrustUpdated:     "trust",
		audit.KindBidSubmitted:     "market",
		audit.KindLeaveApproved:    "leave",
		audit.KindActorRegistered:  "actor",
		audit.KindEpochOpened:      "generic",
		audit.KindGovernanceBallot: "generic",
	}
	for kind, want := range cases {
		if got := kind.Bucket(); got != want {
			t.Errorf("%s bucket = %s, want %s", kind, got, want)
		}
	}
}
