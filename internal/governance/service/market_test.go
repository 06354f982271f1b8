package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/genesis-gov/genesis/internal/governance/model"
	"github.com/genesis-gov/genesis/internal/governance/service"
)

func createOpenListing(t *testing.T, svc *service.Service, maxAmount string) string {
	t.Helper()
	res := mustSucceed(t, svc.CreateListing(context.Background(), service.CreateListingInput{
		Title: "Translate compliance handbook", RequesterID: "requester", MaxAmount: maxAmount,
	}), "CreateListing")
	listingID := res.Data["listing_id"].(string)
	mustSucceed(t, svc.OpenListing(context.Background(), listingID), "OpenListing")
	return listingID
}

func TestMarketAllocation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "requester", TrustScore: 0.5})
	registerActor(t, svc, model.RosterEntry{ActorID: "bidder-a", TrustScore: 0.6})
	registerActor(t, svc, model.RosterEntry{ActorID: "bidder-b", TrustScore: 0.9})

	listingID := createOpenListing(t, svc, "100.00")

	mustSucceed(t, svc.SubmitBid(ctx, listingID, "bidder-a", "80.00", "fast"), "bid a")
	res := mustSucceed(t, svc.SubmitBid(ctx, listingID, "bidder-b", "60.00", "thorough"), "bid b")
	winningBid := res.Data["bid_id"].(string)

	res = mustSucceed(t, svc.AllocateListing(ctx, listingID), "AllocateListing")
	if res.Data["worker_id"] != "bidder-b" || res.Data["bid_id"] != winningBid {
		t.Errorf("allocation = %v", res.Data)
	}

	l := findListing(t, svc, listingID)
	if l.State != model.ListingAllocated || l.AllocatedBidID != winningBid {
		t.Errorf("listing = %+v", l)
	}

	for _, b := range svc.Bids(listingID) {
		switch b.BidderID {
		case "bidder-b":
			if b.State != model.BidAccepted {
				t.Errorf("winner state = %s", b.State)
			}
		case "bidder-a":
			if b.State != model.BidRejected {
				t.Errorf("loser state = %s", b.State)
			}
		}
	}

	// The backing delivery mission is created in the same operation.
	missionID, _ := res.Data["mission_id"].(string)
	if missionID == "" {
		t.Fatal("no backing mission id")
	}
	m, ok := svc.Mission(missionID)
	if !ok {
		t.Fatal("backing mission missing")
	}
	if m.Class != model.ClassMarketDelivery || m.WorkerID != "bidder-b" || m.ListingID != listingID {
		t.Errorf("backing mission = %+v", m)
	}

	// Allocated listings accept no further bids or allocations.
	if res := svc.SubmitBid(ctx, listingID, "bidder-a", "50.00", ""); res.Success {
		t.Error("bid accepted after allocation")
	}
	if res := svc.AllocateListing(ctx, listingID); res.Success {
		t.Error("double allocation succeeded")
	}
}

func TestMarketTieBreaksOnTrust(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "requester", TrustScore: 0.5})
	registerActor(t, svc, model.RosterEntry{ActorID: "low-trust", TrustScore: 0.3})
	registerActor(t, svc, model.RosterEntry{ActorID: "high-trust", TrustScore: 0.9})

	listingID := createOpenListing(t, svc, "50")
	mustSucceed(t, svc.SubmitBid(ctx, listingID, "low-trust", "40", ""), "bid 1")
	mustSucceed(t, svc.SubmitBid(ctx, listingID, "high-trust", "40", ""), "bid 2")

	res := mustSucceed(t, svc.AllocateListing(ctx, listingID), "AllocateListing")
	if res.Data["worker_id"] != "high-trust" {
		t.Errorf("tie broken wrong: %v", res.Data["worker_id"])
	}
}

func TestMarketBidGuards(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "requester", TrustScore: 0.5})
	registerActor(t, svc, model.RosterEntry{ActorID: "bidder", TrustScore: 0.5})

	listingID := createOpenListing(t, svc, "100")

	if res := svc.SubmitBid(ctx, listingID, "requester", "50", ""); !strings.Contains(res.Errors[0], "own listing") {
		t.Errorf("self bid: %v", res.Errors)
	}
	if res := svc.SubmitBid(ctx, listingID, "bidder", "150", ""); res.Success {
		t.Error("bid above listing maximum accepted")
	}
	if res := svc.SubmitBid(ctx, listingID, "bidder", "-5", ""); res.Success {
		t.Error("negative bid accepted")
	}
	if res := svc.SubmitBid(ctx, listingID, "bidder", "not-a-number", ""); res.Success {
		t.Error("malformed amount accepted")
	}

	mustSucceed(t, svc.SubmitBid(ctx, listingID, "bidder", "50", ""), "first bid")
	if res := svc.SubmitBid(ctx, listingID, "bidder", "45", ""); !strings.Contains(res.Errors[0], "pending bid") {
		t.Errorf("duplicate bid: %v", res.Errors)
	}

	if res := svc.AllocateListing(ctx, "LST-missing"); res.Success {
		t.Error("allocation of unknown listing succeeded")
	}
}

func TestMarketWithdraw(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "requester", TrustScore: 0.5})

	listingID := createOpenListing(t, svc, "10")
	mustSucceed(t, svc.WithdrawListing(ctx, listingID), "WithdrawListing")

	l := findListing(t, svc, listingID)
	if l.State != model.ListingWithdrawn {
		t.Errorf("state = %s", l.State)
	}
	if res := svc.OpenListing(ctx, listingID); res.Success {
		t.Error("withdrawn listing reopened")
	}
	if res := svc.AllocateListing(ctx, listingID); res.Success {
		t.Error("withdrawn listing allocated")
	}
}

func TestMarketAllocationWithoutBids(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "requester", TrustScore: 0.5})

	listingID := createOpenListing(t, svc, "10")
	if res := svc.AllocateListing(ctx, listingID); !strings.Contains(res.Errors[0], "no pending bids") {
		t.Errorf("empty allocation: %v", res.Errors)
	}
}

func TestMarketAcceptingBidsPhase(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "requester", TrustScore: 0.5})
	registerActor(t, svc, model.RosterEntry{ActorID: "bidder", TrustScore: 0.5})

	listingID := createOpenListing(t, svc, "100")
	mustSucceed(t, svc.StartAcceptingBids(ctx, listingID), "StartAcceptingBids")

	l := findListing(t, svc, listingID)
	if l.State != model.ListingAcceptingBids {
		t.Fatalf("state = %s", l.State)
	}

	// The dedicated bidding phase still admits bids and allocation.
	mustSucceed(t, svc.SubmitBid(ctx, listingID, "bidder", "50", ""), "bid")
	res := mustSucceed(t, svc.AllocateListing(ctx, listingID), "AllocateListing")
	if res.Data["worker_id"] != "bidder" {
		t.Errorf("worker = %v", res.Data["worker_id"])
	}

	if res := svc.StartAcceptingBids(ctx, listingID); res.Success {
		t.Error("allocated listing moved to accepting_bids")
	}
}

func TestMarketBidWithdrawal(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	openEpoch(t, svc, "E1")
	registerActor(t, svc, model.RosterEntry{ActorID: "requester", TrustScore: 0.5})
	registerActor(t, svc, model.RosterEntry{ActorID: "bidder-a", TrustScore: 0.6})
	registerActor(t, svc, model.RosterEntry{ActorID: "bidder-b", TrustScore: 0.6})

	listingID := createOpenListing(t, svc, "100")
	res := mustSucceed(t, svc.SubmitBid(ctx, listingID, "bidder-a", "40", ""), "bid a")
	cheapBid := res.Data["bid_id"].(string)
	mustSucceed(t, svc.SubmitBid(ctx, listingID, "bidder-b", "60", ""), "bid b")

	mustSucceed(t, svc.WithdrawBid(ctx, listingID, cheapBid), "WithdrawBid")
	for _, b := range svc.Bids(listingID) {
		if b.BidID == cheapBid && b.State != model.BidWithdrawn {
			t.Errorf("withdrawn bid state = %s", b.State)
		}
	}

	// Withdrawal frees the bidder to bid again on the same listing.
	mustSucceed(t, svc.SubmitBid(ctx, listingID, "bidder-a", "90", ""), "re-bid")

	// The withdrawn 40 never competes, so bidder-b wins at 60.
	res = mustSucceed(t, svc.AllocateListing(ctx, listingID), "AllocateListing")
	if res.Data["worker_id"] != "bidder-b" {
		t.Errorf("worker = %v", res.Data["worker_id"])
	}

	if res := svc.WithdrawBid(ctx, listingID, cheapBid); res.Success {
		t.Error("withdrawn bid withdrawn twice")
	}
	if res := svc.WithdrawBid(ctx, listingID, "BID-missing"); res.Success || !res.NotFound {
		t.Errorf("unknown bid: %+v", res)
	}
}

func findListing(t *testing.T, svc *service.Service, listingID string) model.Listing {
	t.Helper()
	for _, l := range svc.Listings() {
		if l.ListingID == listingID {
			return l
		}
	}
	t.Fatalf("listing %s not found", listingID)
	return model.Listing{}
}
