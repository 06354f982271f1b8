package model

import "time"

// ListingState is the lifecycle of a labour-market listing:
// draft → open → accepting_bids → allocated; non-allocated listings may
// be withdrawn. Bids are admissible in both open and accepting_bids; the
// explicit accepting_bids hop lets a requester stage a listing publicly
// before inviting offers.
type ListingState string

const (
	ListingDraft         ListingState = "draft"
	ListingOpen          ListingState = "open"
	ListingAcceptingBids ListingState = "accepting_bids"
	ListingAllocated     ListingState = "allocated"
	ListingWithdrawn     ListingState = "withdrawn"
)

// Biddable reports whether the listing admits new bids.
func (s ListingState) Biddable() bool {
	return s == ListingOpen || s == ListingAcceptingBids
}

// BidState is the lifecycle of a bid on a listing.
type BidState string

const (
	BidPending   BidState = "pending"
	BidAccepted  BidState = "accepted"
	BidRejected  BidState = "rejected"
	BidWithdrawn BidState = "withdrawn"
)

// Listing is a unit of work offered on the labour market. Amounts are
// decimal strings so canonical serialization stays stable across
// round-trips.
type Listing struct {
	ListingID      string       `json:"listing_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	RequesterID    string       `json:"requester_id"`
	Domain         DomainType   `json:"domain,omitempty"`
	RequiredSkills []string     `json:"required_skills,omitempty"`
	MaxAmount      string       `json:"max_amount"`
	State          ListingState `json:"state"`
	AllocatedBidID string       `json:"allocated_bid_id,omitempty"`
	MissionID      string       `json:"mission_id,omitempty"`
	CreatedUTC     time.Time    `json:"created_utc"`
	AllocatedUTC   *time.Time   `json:"allocated_utc,omitempty"`
}

// Bid is an offer to perform a listing's work at a given price.
type Bid struct {
	BidID        string    `json:"bid_id"`
	ListingID    string    `json:"listing_id"`
	BidderID     string    `json:"bidder_id"`
	Amount       string    `json:"amount"`
	Pitch        string    `json:"pitch,omitempty"`
	State        BidState  `json:"state"`
	SubmittedUTC time.Time `json:"submitted_utc"`
}
