package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/governance/model"
)

// CreateListingInput carries the caller-supplied listing fields.
type CreateListingInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequesterID    string   `json:"requester_id"`
	Domain         string   `json:"domain"`
	RequiredSkills []string `json:"required_skills"`
	MaxAmount      string   `json:"max_amount"`
}

// CreateListing posts a draft listing on the labour market.
func (s *Service) CreateListing(ctx context.Context, in CreateListingInput) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(in.Title) == "" {
		return failure("listing title must not be blank")
	}
	if s.roster.Get(in.RequesterID) == nil {
		return notFound(fmt.Sprintf("unknown requester %s", in.RequesterID))
	}
	maxAmount, err := parseAmount(in.MaxAmount)
	if err != nil {
		return failErr(err)
	}

	listingID := "LST-" + uuid.NewString()[:8]
	rec, err := s.commitEvent(ctx, audit.KindListingCreated, in.RequesterID, audit.MarketPayload{
		ListingID: listingID,
		Action:    "created",
		Amount:    audit.Decimal(maxAmount),
		Extra:     map[string]string{"title": strings.TrimSpace(in.Title)},
	})
	if err != nil {
		return failErr(err)
	}

	l := &model.Listing{
		ListingID:      listingID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		RequesterID:    in.RequesterID,
		Domain:         model.DomainType(in.Domain),
		RequiredSkills: in.RequiredSkills,
		MaxAmount:      audit.Decimal(maxAmount),
		State:          model.ListingDraft,
		CreatedUTC:     s.clock().UTC(),
	}
	s.listings[listingID] = l
	s.listingOrder = append(s.listingOrder, listingID)

	s.logger.Info("listing created", zap.String("listing_id", listingID))
	return Result{
		Success: true,
		Data:    map[string]any{"listing_id": listingID, "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// OpenListing opens a draft listing for bids.
func (s *Service) OpenListing(ctx context.Context, listingID string) Result {
	return s.transitionListing(ctx, listingID, model.ListingDraft, model.ListingOpen, "opened")
}

// StartAcceptingBids moves an open listing into accepting_bids.
func (s *Service) StartAcceptingBids(ctx context.Context, listingID string) Result {
	return s.transitionListing(ctx, listingID, model.ListingOpen, model.ListingAcceptingBids, "accepting_bids")
}

// WithdrawListing withdraws a listing that has not been allocated.
func (s *Service) WithdrawListing(ctx context.Context, listingID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.listings[listingID]
	if l == nil {
		return notFound(fmt.Sprintf("unknown listing %s", listingID))
	}
	if l.State != model.ListingDraft && !l.State.Biddable() {
		return failure(fmt.Sprintf("listing %s is %s and cannot be withdrawn", listingID, l.State))
	}
	return s.lockedListingTransition(ctx, l, model.ListingWithdrawn, "withdrawn")
}

func (s *Service) transitionListing(ctx context.Context, listingID string, from, to model.ListingState, action string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.listings[listingID]
	if l == nil {
		return notFound(fmt.Sprintf("unknown listing %s", listingID))
	}
	if l.State != from {
		return failure(fmt.Sprintf("listing %s is %s, expected %s", listingID, l.State, from))
	}
	return s.lockedListingTransition(ctx, l, to, action)
}

func (s *Service) lockedListingTransition(ctx context.Context, l *model.Listing, to model.ListingState, action string) Result {
	rec, err := s.commitEvent(ctx, audit.KindListingTransition, l.RequesterID, audit.MarketPayload{
		ListingID: l.ListingID,
		Action:    action,
		Extra:     map[string]string{"from": string(l.State), "to": string(to)},
	})
	if err != nil {
		return failErr(err)
	}
	l.State = to
	return Result{
		Success: true,
		Data:    map[string]any{"listing_id": l.ListingID, "state": string(to), "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// SubmitBid places a bid on an open listing. The amount must not exceed
// the listing's maximum.
func (s *Service) SubmitBid(ctx context.Context, listingID, bidderID, amount, pitch string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.listings[listingID]
	if l == nil {
		return notFound(fmt.Sprintf("unknown listing %s", listingID))
	}
	if !l.State.Biddable() {
		return failure(fmt.Sprintf("listing %s is %s, not accepting bids", listingID, l.State))
	}
	bidder := s.roster.Get(bidderID)
	if bidder == nil {
		return notFound(fmt.Sprintf("unknown bidder %s", bidderID))
	}
	if !bidder.Available() {
		return failure(fmt.Sprintf("bidder %s is not available (%s)", bidderID, bidder.Status))
	}
	if bidderID == l.RequesterID {
		return failure("requester cannot bid on their own listing")
	}
	amt, err := parseAmount(amount)
	if err != nil {
		return failErr(err)
	}
	maxAmt, _ := parseAmount(l.MaxAmount)
	if amt > maxAmt {
		return failure(fmt.Sprintf("bid %s exceeds listing maximum %s", audit.Decimal(amt), l.MaxAmount))
	}
	for _, id := range s.bidOrder {
		b := s.bids[id]
		if b.ListingID == listingID && b.BidderID == bidderID && b.State == model.BidPending {
			return failure(fmt.Sprintf("bidder %s already has a pending bid on %s", bidderID, listingID))
		}
	}

	bidID := "BID-" + uuid.NewString()[:8]
	rec, err := s.commitEvent(ctx, audit.KindBidSubmitted, bidderID, audit.MarketPayload{
		ListingID: listingID,
		Action:    "bid_submitted",
		BidID:     bidID,
		Amount:    audit.Decimal(amt),
	})
	if err != nil {
		return failErr(err)
	}

	b := &model.Bid{
		BidID:        bidID,
		ListingID:    listingID,
		BidderID:     bidderID,
		Amount:       audit.Decimal(amt),
		Pitch:        pitch,
		State:        model.BidPending,
		SubmittedUTC: s.clock().UTC(),
	}
	s.bids[bidID] = b
	s.bidOrder = append(s.bidOrder, bidID)

	return Result{
		Success: true,
		Data:    map[string]any{"bid_id": bidID, "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// WithdrawBid retracts a pending bid. Withdrawn bids never compete in
// allocation and do not block the bidder from bidding again.
func (s *Service) WithdrawBid(ctx context.Context, listingID, bidID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.listings[listingID]
	if l == nil {
		return notFound(fmt.Sprintf("unknown listing %s", listingID))
	}
	b := s.bids[bidID]
	if b == nil || b.ListingID != listingID {
		return notFound(fmt.Sprintf("unknown bid %s on listing %s", bidID, listingID))
	}
	if b.State != model.BidPending {
		return failure(fmt.Sprintf("bid %s is %s and cannot be withdrawn", bidID, b.State))
	}

	rec, err := s.commitEvent(ctx, audit.KindBidSubmitted, b.BidderID, audit.MarketPayload{
		ListingID: listingID,
		Action:    "bid_withdrawn",
		BidID:     bidID,
		Amount:    b.Amount,
	})
	if err != nil {
		return failErr(err)
	}
	b.State = model.BidWithdrawn

	s.logger.Info("bid withdrawn", zap.String("listing_id", listingID), zap.String("bid_id", bidID))
	return Result{
		Success: true,
		Data:    map[string]any{"bid_id": bidID, "state": string(b.State), "event_id": rec.EventID},
		Warning: s.safePersist(),
	}
}

// AllocateListing picks the winning bid for an open listing (lowest
// amount, then highest bidder trust, then submission order), creates the
// backing delivery mission in the same audited operation, and rejects the
// remaining bids.
func (s *Service) AllocateListing(ctx context.Context, listingID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.listings[listingID]
	if l == nil {
		return notFound(fmt.Sprintf("unknown listing %s", listingID))
	}
	if !l.State.Biddable() {
		return failure(fmt.Sprintf("listing %s is %s and cannot be allocated", listingID, l.State))
	}

	var pending []*model.Bid
	for _, id := range s.bidOrder {
		b := s.bids[id]
		if b.ListingID == listingID && b.State == model.BidPending {
			pending = append(pending, b)
		}
	}
	if len(pending) == 0 {
		return failure(fmt.Sprintf("listing %s has no pending bids", listingID))
	}

	winner := pending[0]
	for _, b := range pending[1:] {
		if betterBid(b, winner, s.roster) {
			winner = b
		}
	}

	rec, err := s.commitEvent(ctx, audit.KindWorkerAllocated, winner.BidderID, audit.MarketPayload{
		ListingID: listingID,
		Action:    "allocated",
		BidID:     winner.BidID,
		Amount:    winner.Amount,
	})
	if err != nil {
		return failErr(err)
	}

	now := s.clock().UTC()
	winner.State = model.BidAccepted
	for _, b := range pending {
		if b.BidID != winner.BidID {
			b.State = model.BidRejected
		}
	}
	l.State = model.ListingAllocated
	l.AllocatedBidID = winner.BidID
	l.AllocatedUTC = &now

	missionID := "MSN-" + uuid.NewString()[:8]
	if _, merr := s.commitEvent(ctx, audit.KindMissionCreated, winner.BidderID, audit.MissionPayload{
		MissionID: missionID,
		Action:    "created",
		State:     string(model.MissionDraft),
		Extra: map[string]string{
			"mission_class": string(model.ClassMarketDelivery),
			"risk_tier":     string(model.ClassTier[model.ClassMarketDelivery]),
			"listing_id":    listingID,
		},
	}); merr != nil {
		// The allocation is already durably audited; the mission record
		// follows on the next successful mutation.
		s.logger.Error("backing mission not recorded", zap.String("listing_id", listingID), zap.Error(merr))
	} else {
		m := &model.Mission{
			MissionID:  missionID,
			Title:      l.Title,
			Class:      model.ClassMarketDelivery,
			RiskTier:   model.ClassTier[model.ClassMarketDelivery],
			DomainType: model.DomainObjective,
			State:      model.MissionDraft,
			WorkerID:   winner.BidderID,
			ListingID:  listingID,
			CreatedUTC: now,
		}
		s.missions[missionID] = m
		s.missionOrder = append(s.missionOrder, missionID)
		l.MissionID = missionID
	}

	s.logger.Info("listing allocated",
		zap.String("listing_id", listingID),
		zap.String("bid_id", winner.BidID),
		zap.String("worker", winner.BidderID))
	return Result{
		Success: true,
		Data: map[string]any{
			"listing_id": listingID,
			"bid_id":     winner.BidID,
			"worker_id":  winner.BidderID,
			"mission_id": l.MissionID,
			"event_id":   rec.EventID,
		},
		Warning: s.safePersist(),
	}
}

// Listings returns listings in creation order.
func (s *Service) Listings() []model.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Listing, 0, len(s.listingOrder))
	for _, id := range s.listingOrder {
		out = append(out, *s.listings[id])
	}
	return out
}

// Bids returns bids for a listing in submission order; a blank listing id
// returns all bids.
func (s *Service) Bids(listingID string) []model.Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Bid
	for _, id := range s.bidOrder {
		b := s.bids[id]
		if listingID == "" || b.ListingID == listingID {
			out = append(out, *b)
		}
	}
	return out
}

// betterBid reports whether a beats b: lower amount wins, ties break on
// higher bidder trust, then earlier submission (the caller iterates in
// submission order).
func betterBid(a, b *model.Bid, roster *model.Roster) bool {
	aAmt, _ := parseAmount(a.Amount)
	bAmt, _ := parseAmount(b.Amount)
	if aAmt != bAmt {
		return aAmt < bAmt
	}
	var aTrust, bTrust float64
	if e := roster.Get(a.BidderID); e != nil {
		aTrust = e.TrustScore
	}
	if e := roster.Get(b.BidderID); e != nil {
		bTrust = e.TrustScore
	}
	return aTrust > bTrust
}

func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %q", s)
	}
	return v, nil
}
