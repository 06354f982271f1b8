package epoch_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/genesis-gov/genesis/internal/epoch"
)

var fixedClock = func() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func fakeHash(i int) string {
	return "sha256:" + strings.Repeat(fmt.Sprintf("%x", i%16), 64)
}

func TestLedger_ChainLinkage(t *testing.T) {
	l := epoch.NewLedger("").WithClock(fixedClock)

	var recs []epoch.CommitmentRecord
	for i := 0; i < 3; i++ {
		id, err := l.Open(fmt.Sprintf("E%d", i+1))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if id != fmt.Sprintf("E%d", i+1) {
			t.Fatalf("unexpected epoch id %s", id)
		}
		l.RecordEvent("mission", fakeHash(i))
		rec, err := l.Close(uint64(100+i), "")
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
		recs = append(recs, rec)
	}

	if recs[0].PreviousHash != epoch.GenesisPreviousHash {
		t.Errorf("first epoch previous_hash = %s, want genesis", recs[0].PreviousHash)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].PreviousHash != recs[i-1].ThisHash {
			t.Errorf("epoch %d previous_hash does not link to epoch %d this_hash", i+1, i)
		}
	}
	if l.PreviousHash() != recs[2].ThisHash {
		t.Error("chain tail not advanced to last this_hash")
	}
	if l.CommittedCount() != 3 {
		t.Errorf("CommittedCount = %d, want 3", l.CommittedCount())
	}
}

func TestLedger_CommitmentDeterminism(t *testing.T) {
	build := func() epoch.CommitmentRecord {
		l := epoch.NewLedger("").WithClock(fixedClock)
		if _, err := l.Open("E1"); err != nil {
			t.Fatalf("Open: %v", err)
		}
		l.RecordEvent("mission", fakeHash(1))
		l.RecordEvent("mission", fakeHash(2))
		l.RecordEvent("trust", fakeHash(3))
		rec, err := l.Close(42, "nonce-1")
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
		return rec
	}

	a, b := build(), build()
	if a.ThisHash != b.ThisHash {
		t.Errorf("same inputs produced different commitments: %s vs %s", a.ThisHash, b.ThisHash)
	}
	if !strings.HasPrefix(a.ThisHash, "sha256:") || len(a.ThisHash) != 71 {
		t.Errorf("malformed this_hash %q", a.ThisHash)
	}
	if a.PerKindCounts["mission"] != 2 || a.PerKindCounts["trust"] != 1 {
		t.Errorf("per-kind counts wrong: %v", a.PerKindCounts)
	}
}

func TestLedger_CommitmentSensitivity(t *testing.T) {
	close := func(bucket string, round uint64, nonce string) string {
		l := epoch.NewLedger("").WithClock(fixedClock)
		l.Open("E1")
		l.RecordEvent(bucket, fakeHash(1))
		rec, err := l.Close(round, nonce)
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
		return rec.ThisHash
	}

	base := close("mission", 42, "n")
	for name, got := range map[string]string{
		"bucket": close("trust", 42, "n"),
		"round":  close("mission", 43, "n"),
		"nonce":  close("mission", 42, "m"),
	} {
		if got == base {
			t.Errorf("changing %s did not change the commitment", name)
		}
	}
}

func TestLedger_OpenCloseGuards(t *testing.T) {
	l := epoch.NewLedger("")

	if _, err := l.Close(1, ""); !errors.Is(err, epoch.ErrNoOpenEpoch) {
		t.Errorf("Close with no epoch: got %v", err)
	}
	if _, err := l.Open("E1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Open("E2"); !errors.Is(err, epoch.ErrAlreadyOpen) {
		t.Errorf("nested Open: got %v", err)
	}
	if id, open := l.Current(); !open || id != "E1" {
		t.Errorf("Current = %q, %v", id, open)
	}
	if _, err := l.Close(1, ""); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, open := l.Current(); open {
		t.Error("epoch still open after Close")
	}
}

func TestLedger_RecordEventPanicsWithNoEpoch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RecordEvent with no open epoch did not panic")
		}
	}()
	epoch.NewLedger("").RecordEvent("mission", fakeHash(1))
}

func TestLedger_Discard(t *testing.T) {
	l := epoch.NewLedger("")

	if err := l.Discard(); !errors.Is(err, epoch.ErrNoOpenEpoch) {
		t.Errorf("Discard with no epoch: got %v", err)
	}

	l.Open("E1")
	if err := l.Discard(); err != nil {
		t.Fatalf("Discard of empty epoch: %v", err)
	}
	if _, open := l.Current(); open {
		t.Error("epoch still open after Discard")
	}

	l.Open("E2")
	l.RecordEvent("mission", fakeHash(1))
	if err := l.Discard(); err == nil {
		t.Error("Discard of epoch with events should fail")
	}
}

func TestLedger_Anchor(t *testing.T) {
	l := epoch.NewLedger("").WithClock(fixedClock)
	l.Open("E1")
	l.RecordEvent("mission", fakeHash(1))
	rec, _ := l.Close(42, "")

	if _, err := l.Anchor("E-missing"); err == nil {
		t.Error("anchoring an unknown epoch should fail")
	}
	got, err := l.Anchor("E1")
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if got.ThisHash != rec.ThisHash {
		t.Error("anchored record differs from committed record")
	}
	if _, err := l.Anchor("E1"); err == nil {
		t.Error("double anchor should fail")
	}
	if l.AnchoredCount() != 1 {
		t.Errorf("AnchoredCount = %d, want 1", l.AnchoredCount())
	}
}

func TestLedger_EventCounts(t *testing.T) {
	l := epoch.NewLedger("").WithClock(fixedClock)
	l.Open("E1")
	l.RecordEvent("mission", fakeHash(1))
	l.RecordEvent("mission", fakeHash(2))

	open := l.EventCounts()
	if open["mission"] != 2 {
		t.Errorf("open counts = %v", open)
	}

	l.Close(1, "")
	closed := l.EventCounts()
	if closed["mission"] != 2 {
		t.Errorf("counts after close = %v", closed)
	}
}

func TestLedger_RestoreCommittedCount(t *testing.T) {
	l := epoch.NewLedger(fakeHash(7)).RestoreCommittedCount(4)
	if l.CommittedCount() != 4 {
		t.Errorf("restored count = %d, want 4", l.CommittedCount())
	}
	if l.PreviousHash() != fakeHash(7) {
		t.Error("restored chain tail lost")
	}
	l.Open("E5")
	l.Close(1, "")
	if l.CommittedCount() != 5 {
		t.Errorf("count after restore+close = %d, want 5", l.CommittedCount())
	}
}
