// Package client is the Go SDK for the Genesis governance daemon. It
// wraps the HTTP API: operator authentication, status, the audit trail,
// epoch control, and the actor/mission/market mutations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Result mirrors the daemon's mutation response envelope.
type Result struct {
	Success bool           `json:"success"`
	Errors  []string       `json:"errors,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

// Commitment mirrors one sealed epoch commitment.
type Commitment struct {
	EpochID       string         `json:"epoch_id"`
	PreviousHash  string         `json:"previous_hash"`
	ThisHash      string         `json:"this_hash"`
	BeaconRound   uint64         `json:"beacon_round"`
	ChamberNonce  string         `json:"chamber_nonce,omitempty"`
	PerKindCounts map[string]int `json:"per_kind_counts"`
	ClosedUTC     string         `json:"closed_utc"`
}

// Event mirrors one audit log record. The payload is left as raw JSON so
// callers can re-canonicalise it byte for byte.
type Event struct {
	EventID      string          `json:"event_id"`
	EventKind    string          `json:"event_kind"`
	TimestampUTC string          `json:"timestamp_utc"`
	ActorID      string          `json:"actor_id"`
	Payload      json.RawMessage `json:"payload"`
	EventHash    string          `json:"event_hash"`
}

// Client talks to a Genesis daemon.
type Client struct {
	base       string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets an operator token obtained out of band.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a Client for the daemon at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate exchanges the admin secret for an operator token and stores
// it for subsequent mutating calls.
func (c *Client) Authenticate(ctx context.Context, adminSecret, operator string) error {
	var out struct {
		Token string `json:"token"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/token", map[string]string{
		"admin_secret": adminSecret,
		"operator":     operator,
	}, &out)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return nil
}

// Status fetches the system summary.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events fetches audit records, optionally filtered by kind and a since
// timestamp (YYYY-MM-DDTHH:MM:SSZ).
func (c *Client) Events(ctx context.Context, kind, since string) ([]Event, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("kind", kind)
	}
	if since != "" {
		q.Set("since", since)
	}
	path := "/api/v1/audit/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// VerifyAudit asks the daemon to recompute every stored hash.
func (c *Client) VerifyAudit(ctx context.Context) (bool, error) {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/audit/verify", nil, &out)
	if err != nil && out.Error == "" {
		return false, err
	}
	return out.Valid, nil
}

// Commitments fetches the sealed epoch chain.
func (c *Client) Commitments(ctx context.Context) ([]Commitment, string, error) {
	var out struct {
		Commitments  []Commitment `json:"commitments"`
		PreviousHash string       `json:"previous_hash"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/epochs/commitments", nil, &out); err != nil {
		return nil, "", err
	}
	return out.Commitments, out.PreviousHash, nil
}

// OpenEpoch opens a new epoch. A blank id lets the daemon generate one.
func (c *Client) OpenEpoch(ctx context.Context, epochID string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/epochs/open", map[string]any{"epoch_id": epochID})
}

// CloseEpoch seals the open epoch.
func (c *Client) CloseEpoch(ctx context.Context, beaconRound uint64, chamberNonce string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/epochs/close", map[string]any{
		"beacon_round":  beaconRound,
		"chamber_nonce": chamberNonce,
	})
}

// AnchorCommitment records an external anchoring receipt for a committed
// epoch.
func (c *Client) AnchorCommitment(ctx context.Context, epochID, receipt string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/epochs/"+url.PathEscape(epochID)+"/anchor", map[string]any{
		"receipt": receipt,
	})
}

// RegisterActorInput carries the fields for actor registration. Diversity
// attributes and leave-adjudication domains are optional.
type RegisterActorInput struct {
	ActorID      string   `json:"actor_id"`
	Kind         string   `json:"actor_kind"`
	TrustScore   float64  `json:"trust_score,omitempty"`
	Region       string   `json:"region,omitempty"`
	Organization string   `json:"organization,omitempty"`
	ModelFamily  string   `json:"model_family,omitempty"`
	MethodType   string   `json:"method_type,omitempty"`
	Domains      []string `json:"domains,omitempty"`
}

// RegisterActor adds an actor to the roster.
func (c *Client) RegisterActor(ctx context.Context, in RegisterActorInput) (*Result, error) {
	return c.mutate(ctx, "/api/v1/actors", in)
}

// CreateMissionInput carries the fields for mission creation.
type CreateMissionInput struct {
	Title      string `json:"title"`
	Class      string `json:"mission_class"`
	DomainType string `json:"domain_type,omitempty"`
	WorkerID   string `json:"worker_id"`
}

// CreateMission opens a draft mission.
func (c *Client) CreateMission(ctx context.Context, in CreateMissionInput) (*Result, error) {
	return c.mutate(ctx, "/api/v1/missions", in)
}

// SubmitMission moves a draft mission into review intake. The actor id is
// recorded on the audit event.
func (c *Client) SubmitMission(ctx context.Context, missionID, actorID string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/missions/"+url.PathEscape(missionID)+"/submit", map[string]any{
		"actor_id": actorID,
	})
}

// AssignReviewers draws the review panel for a submitted mission. The seed
// keeps the draw reproducible; a blank seed lets the daemon choose one.
func (c *Client) AssignReviewers(ctx context.Context, missionID, seed string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/missions/"+url.PathEscape(missionID)+"/assign", map[string]any{
		"seed": seed,
	})
}

// SubmitReview casts one reviewer verdict on a mission under review.
func (c *Client) SubmitReview(ctx context.Context, missionID, reviewerID, verdict, notes string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/missions/"+url.PathEscape(missionID)+"/reviews", map[string]any{
		"reviewer_id": reviewerID,
		"verdict":     verdict,
		"notes":       notes,
	})
}

// CompleteReview tallies the cast verdicts once every assigned reviewer
// has voted and moves the mission to its outcome state.
func (c *Client) CompleteReview(ctx context.Context, missionID string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/missions/"+url.PathEscape(missionID)+"/complete", map[string]any{})
}

// CreateListingInput carries the fields for a labour-market listing.
type CreateListingInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	RequesterID    string   `json:"requester_id"`
	Domain         string   `json:"domain,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	MaxAmount      string   `json:"max_amount"`
}

// CreateListing posts a draft listing on the labour market.
func (c *Client) CreateListing(ctx context.Context, in CreateListingInput) (*Result, error) {
	return c.mutate(ctx, "/api/v1/listings", in)
}

// OpenListing opens a draft listing for bidding.
func (c *Client) OpenListing(ctx context.Context, listingID string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/listings/"+url.PathEscape(listingID)+"/open", map[string]any{})
}

// StartAcceptingBids moves an open listing into its dedicated bidding phase.
func (c *Client) StartAcceptingBids(ctx context.Context, listingID string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/listings/"+url.PathEscape(listingID)+"/accept-bids", map[string]any{})
}

// SubmitBid places a bid on an open listing. Amount is a decimal string.
func (c *Client) SubmitBid(ctx context.Context, listingID, bidderID, amount, pitch string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/listings/"+url.PathEscape(listingID)+"/bids", map[string]any{
		"bidder_id": bidderID,
		"amount":    amount,
		"pitch":     pitch,
	})
}

// WithdrawBid retracts a pending bid on a listing.
func (c *Client) WithdrawBid(ctx context.Context, listingID, bidID string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/listings/"+url.PathEscape(listingID)+"/bids/"+url.PathEscape(bidID)+"/withdraw", map[string]any{})
}

// AllocateListing awards an open listing to its best pending bid.
func (c *Client) AllocateListing(ctx context.Context, listingID string) (*Result, error) {
	return c.mutate(ctx, "/api/v1/listings/"+url.PathEscape(listingID)+"/allocate", map[string]any{})
}

func (c *Client) mutate(ctx context.Context, path string, body any) (*Result, error) {
	var res Result
	if err := c.doJSON(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// doJSON performs one JSON request. Mutation rejections decode into out
// rather than erroring so callers see the daemon's error strings.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if out != nil {
		if jerr := json.Unmarshal(data, out); jerr != nil {
			if resp.StatusCode >= 400 {
				return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
			}
			return fmt.Errorf("decode response: %w", jerr)
		}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	return nil
}
