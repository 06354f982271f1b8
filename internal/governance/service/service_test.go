package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/config"
	"github.com/genesis-gov/genesis/internal/epoch"
	"github.com/genesis-gov/genesis/internal/governance/model"
	"github.com/genesis-gov/genesis/internal/governance/service"
	"github.com/genesis-gov/genesis/internal/snapshot"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, RateLimitRPS: 20},
		Tiers: map[model.RiskTier]config.TierPolicy{
			model.TierR0: {},
			model.TierR1: {ReviewersRequired: 1, ApprovalsRequired: 1},
			model.TierR2: {ReviewersRequired: 3, ApprovalsRequired: 2, HumanFinalGate: true, MinRegions: 2, MinOrganizations: 2},
			model.TierR3: {ReviewersRequired: 5, ApprovalsRequired: 4, HumanFinalGate: true, MinRegions: 3, MinOrganizations: 3, ConstitutionalFlow: true, MinModelFamilies: 2, MinMethodTypes: 2},
		},
		Leave: config.LeavePolicy{
			MinQuorum: 3, MinApproveToGrant: 2, MinAdjudicatorTrust: 0.6,
			MaxDaysByCategory: map[string]int{"pregnancy": 365, "child_care": 365},
		},
		Trust: config.TrustPolicy{
			QualityWeight: 0.4, ReliabilityWeight: 0.3, VolumeWeight: 0.15, EffortWeight: 0.15,
			MaxDelta: 0.05, InitialScore: 0.5,
		},
	}
}

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	log, err := audit.NewFileLog("")
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	return newServiceWithLog(t, log)
}

func newServiceWithLog(t *testing.T, log audit.Log) *service.Service {
	t.Helper()
	svc, err := service.New(context.Background(), testConfig(), log, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return svc.WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
}

func newServiceWithConfig(t *testing.T, cfg *config.Config) *service.Service {
	t.Helper()
	log, err := audit.NewFileLog("")
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	svc, err := service.New(context.Background(), cfg, log, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return svc
}

func openEpoch(t *testing.T, svc *service.Service, id string) {
	t.Helper()
	if res := svc.OpenEpoch(context.Background(), id, "operator"); !res.Success {
		t.Fatalf("OpenEpoch: %v", res.Errors)
	}
}

func registerActor(t *testing.T, svc *service.Service, entry model.RosterEntry) {
	t.Helper()
	if entry.Kind == "" {
		entry.Kind = model.ActorMachine
	}
	if res := svc.RegisterActor(context.Background(), entry); !res.Success {
		t.Fatalf("RegisterActor %s: %v", entry.ActorID, res.Errors)
	}
}

func mustSucceed(t *testing.T, res service.Result, op string) service.Result {
	t.Helper()
	if !res.Success {
		t.Fatalf("%s: %v", op, res.Errors)
	}
	return res
}

func TestMutationsFailClosedWithoutEpoch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	res := svc.RegisterActor(ctx, model.RosterEntry{ActorID: "alice", Kind: model.ActorHuman, TrustScore: 0.5})
	if res.Success {
		t.Fatal("mutation succeeded with no open epoch")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "no open epoch") {
		t.Errorf("errors = %v", res.Errors)
	}
	if len(svc.Actors()) != 0 {
		t.Error("roster mutated by failed operation")
	}
	count, _ := svc.Log().Count(ctx)
	if count != 0 {
		t.Errorf("audit log has %d records after failed mutation", count)
	}
}

// failingLog wraps a Log and fails Append on demand.
type failingLog struct {
	audit.Log
	fail bool
}

var errDiskFull = errors.New("disk full")

func (f *failingLog) Append(ctx context.Context, rec audit.EventRecord) error {
	if f.fail {
		return errDiskFull
	}
	return f.Log.Append(ctx, rec)
}

func TestFailedAppendLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	inner, err := audit.NewFileLog("")
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	flog := &failingLog{Log: inner}
	svc := newServiceWithLog(t, flog)
	openEpoch(t, svc, "E1")

	flog.fail = true
	res := svc.RegisterActor(ctx, model.RosterEntry{ActorID: "alice", Kind: model.ActorHuman, TrustScore: 0.5})
	if res.Success {
		t.Fatal("mutation succeeded despite append failure")
	}
	if !strings.Contains(res.Errors[0], "durable append") {
		t.Errorf("errors = %v", res.Errors)
	}
	if len(svc.Actors()) != 0 {
		t.Error("roster mutated despite append failure")
	}
	if got := svc.Ledger().EventCounts()["actor"]; got != 0 {
		t.Errorf("phantom hash in ledger: actor bucket = %d", got)
	}
	count, _ := inner.Count(ctx)
	if count != 1 { // the epoch_opened event only
		t.Errorf("log count = %d, want 1", count)
	}

	// The sequencer rewinds: the next successful event reuses the id.
	flog.fail = false
	res = mustSucceed(t, svc.RegisterActor(ctx, model.RosterEntry{ActorID: "alice", Kind: model.ActorHuman, TrustScore: 0.5}), "RegisterActor")
	if res.Data["event_id"] != "EVT-00000002" {
		t.Errorf("event id after rewind = %v", res.Data["event_id"])
	}
}

func TestEpochLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")

	registerActor(t, svc, model.RosterEntry{ActorID: "worker", TrustScore: 0.5})
	registerActor(t, svc, model.RosterEntry{ActorID: "rev", TrustScore: 0.7})

	res := mustSucceed(t, svc.CreateMission(ctx, service.CreateMissionInput{
		Title: "Update docs", Class: "documentation_update", WorkerID: "worker",
	}), "CreateMission")
	missionID := res.Data["mission_id"].(string)
	mustSucceed(t, svc.SubmitMission(ctx, missionID, "worker"), "SubmitMission")
	mustSucceed(t, svc.UpdateTrust(ctx, "rev", service.TrustInputs{
		Quality: 0.9, Reliability: 0.9, Volume: 0.5, Effort: 0.5, Reason: "spot check",
	}), "UpdateTrust")

	counts := svc.Ledger().EventCounts()
	want := map[string]int{"generic": 1, "actor": 2, "mission": 2, "trust": 1}
	for bucket, n := range want {
		if counts[bucket] != n {
			t.Errorf("bucket %s = %d, want %d", bucket, counts[bucket], n)
		}
	}

	res = mustSucceed(t, svc.CloseEpoch(ctx, 42, "", "operator"), "CloseEpoch")
	if res.Data["previous_hash"] != epoch.GenesisPreviousHash {
		t.Errorf("first commitment previous_hash = %v", res.Data["previous_hash"])
	}
	perKind := res.Data["per_kind_counts"].(map[string]int)
	if perKind["generic"] != 2 { // epoch_opened and epoch_closed
		t.Errorf("generic count = %d, want 2", perKind["generic"])
	}

	// The epoch is sealed: mutations fail closed again.
	if res := svc.RegisterActor(ctx, model.RosterEntry{ActorID: "late", TrustScore: 0.5}); res.Success {
		t.Error("mutation succeeded after epoch close")
	}
	if res := svc.CloseEpoch(ctx, 43, "", "operator"); res.Success {
		t.Error("double close succeeded")
	}

	openEpoch(t, svc, "E2")
	mustSucceed(t, svc.CloseEpoch(ctx, 43, "", "operator"), "CloseEpoch E2")

	commits := svc.Commitments()
	if len(commits) != 2 {
		t.Fatalf("committed %d epochs, want 2", len(commits))
	}
	if commits[1].PreviousHash != commits[0].ThisHash {
		t.Error("second commitment does not chain to the first")
	}
}

func TestAnchorCommitment(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	mustSucceed(t, svc.CloseEpoch(ctx, 1, "", "operator"), "CloseEpoch")

	// Anchoring is audited and therefore needs an open epoch.
	if res := svc.AnchorCommitment(ctx, "E1", "rcpt-1", "operator"); res.Success {
		t.Fatal("anchor succeeded with no open epoch")
	}

	openEpoch(t, svc, "E2")
	mustSucceed(t, svc.AnchorCommitment(ctx, "E1", "rcpt-1", "operator"), "AnchorCommitment")
	if svc.Ledger().AnchoredCount() != 1 {
		t.Errorf("anchored = %d", svc.Ledger().AnchoredCount())
	}
	if res := svc.AnchorCommitment(ctx, "E1", "rcpt-2", "operator"); res.Success {
		t.Error("double anchor succeeded")
	}
	if res := svc.AnchorCommitment(ctx, "E9", "rcpt", "operator"); res.Success {
		t.Error("anchor of unknown epoch succeeded")
	}
}

func TestActorStatusChanges(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "bot", TrustScore: 0.5})

	tr, ok := svc.TrustRecord("bot")
	if !ok {
		t.Fatal("no trust record after registration")
	}
	if tr.Kind != model.ActorMachine {
		t.Errorf("trust record kind = %s, want %s", tr.Kind, model.ActorMachine)
	}

	if res := svc.RegisterActor(ctx, model.RosterEntry{ActorID: "bot", Kind: model.ActorMachine, TrustScore: 0.5}); res.Success {
		t.Error("duplicate registration succeeded")
	}
	if res := svc.RegisterActor(ctx, model.RosterEntry{ActorID: "odd", Kind: "alien", TrustScore: 0.5}); res.Success {
		t.Error("unknown actor kind accepted")
	}
	if res := svc.RegisterActor(ctx, model.RosterEntry{ActorID: "odd", Kind: model.ActorMachine, TrustScore: 1.5}); res.Success {
		t.Error("out-of-range trust accepted")
	}

	mustSucceed(t, svc.QuarantineActor(ctx, "bot", "anomalous output"), "QuarantineActor")
	e, _ := svc.Actor("bot")
	if e.Status != model.StatusQuarantined {
		t.Errorf("status = %s", e.Status)
	}
	if res := svc.QuarantineActor(ctx, "bot", ""); res.Success {
		t.Error("double quarantine succeeded")
	}

	mustSucceed(t, svc.ReinstateActor(ctx, "bot", "cleared"), "ReinstateActor")
	e, _ = svc.Actor("bot")
	if e.Status != model.StatusActive {
		t.Errorf("status after reinstate = %s", e.Status)
	}
	if res := svc.ReinstateActor(ctx, "bot", ""); res.Success {
		t.Error("reinstate of non-quarantined actor succeeded")
	}
}

func TestStatusSummary(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "h", Kind: model.ActorHuman, TrustScore: 0.5})

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status["actors_total"] != 1 || status["actors_human"] != 1 {
		t.Errorf("actor counts: %v %v", status["actors_total"], status["actors_human"])
	}
	if status["epoch_open"] != true || status["current_epoch"] != "E1" {
		t.Errorf("epoch fields: %v %v", status["epoch_open"], status["current_epoch"])
	}
	if status["events_total"] != 2 {
		t.Errorf("events_total = %v", status["events_total"])
	}
	if status["persistence_degraded"] != false {
		t.Error("persistence_degraded set on healthy service")
	}
}

func TestEventsFilter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "a", TrustScore: 0.5})

	events, err := svc.Events(ctx, audit.KindActorRegistered, "")
	if err != nil || len(events) != 1 {
		t.Errorf("filtered events = %d, err %v", len(events), err)
	}
	if _, err := svc.Events(ctx, audit.Kind("bogus"), ""); err == nil {
		t.Error("unknown kind accepted")
	}
	if err := svc.VerifyLog(ctx); err != nil {
		t.Errorf("VerifyLog: %v", err)
	}
}

func TestRestartRestoresState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logPath := dir + "/events.jsonl"
	snapPath := dir + "/snapshot.json"

	log1, err := audit.NewFileLog(logPath)
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	snaps := snapshot.NewStore(snapPath)
	svc1, err := service.New(ctx, testConfig(), log1, snaps, zap.NewNop())
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	openEpoch(t, svc1, "E1")
	registerActor(t, svc1, model.RosterEntry{ActorID: "alice", Kind: model.ActorHuman, TrustScore: 0.8})
	for _, id := range []string{"adj-1", "adj-2", "adj-3"} {
		registerActor(t, svc1, model.RosterEntry{
			ActorID: id, Kind: model.ActorHuman, TrustScore: 0.8,
			Domains: []string{"healthcare"},
		})
	}
	res := mustSucceed(t, svc1.RequestLeave(ctx, "alice", "illness", "", ""), "RequestLeave")
	if res.Data["leave_id"] != "LV-00001" {
		t.Fatalf("leave id = %v", res.Data["leave_id"])
	}
	// Resolve the request so a later one is admissible.
	for _, id := range []string{"adj-1", "adj-2", "adj-3"} {
		mustSucceed(t, svc1.AdjudicateLeave(ctx, "LV-00001", id, "deny", ""), "AdjudicateLeave")
	}
	mustSucceed(t, svc1.CloseEpoch(ctx, 7, "", "operator"), "CloseEpoch")
	if err := log1.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	log2, err := audit.NewFileLog(logPath)
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	svc2, err := service.New(ctx, testConfig(), log2, snaps, zap.NewNop())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}

	if _, ok := svc2.Actor("alice"); !ok {
		t.Error("actor lost across restart")
	}
	if svc2.Ledger().CommittedCount() != 1 {
		t.Errorf("committed count = %d", svc2.Ledger().CommittedCount())
	}
	status, _ := svc2.Status(ctx)
	if status["chain_previous_hash"] == epoch.GenesisPreviousHash {
		t.Error("chain tail not restored from snapshot")
	}

	// Sequencers continue; neither event ids nor leave ids repeat.
	openEpoch(t, svc2, "E2")
	res = mustSucceed(t, svc2.RequestLeave(ctx, "alice", "illness", "", ""), "RequestLeave after restart")
	if res.Data["leave_id"] != "LV-00002" {
		t.Errorf("leave id after restart = %v", res.Data["leave_id"])
	}
	if err := svc2.VerifyLog(ctx); err != nil {
		t.Errorf("VerifyLog after restart: %v", err)
	}
}

// pendingLeave in svc1 blocks a second request; the restarted service must
// see it too.
func TestRestartSeesOpenLeave(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	log1, _ := audit.NewFileLog(dir + "/events.jsonl")
	snaps := snapshot.NewStore(dir + "/snapshot.json")
	svc1, err := service.New(ctx, testConfig(), log1, snaps, zap.NewNop())
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	openEpoch(t, svc1, "E1")
	registerActor(t, svc1, model.RosterEntry{ActorID: "bob", TrustScore: 0.5})
	mustSucceed(t, svc1.RequestLeave(ctx, "bob", "caregiver", "", ""), "RequestLeave")
	log1.Close()

	log2, _ := audit.NewFileLog(dir + "/events.jsonl")
	svc2, err := service.New(ctx, testConfig(), log2, snaps, zap.NewNop())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	openEpoch(t, svc2, "E2")
	if res := svc2.RequestLeave(ctx, "bob", "illness", "", ""); res.Success {
		t.Error("second open leave accepted after restart")
	}
}
