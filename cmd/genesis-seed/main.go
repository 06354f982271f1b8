// cmd/genesis-seed populates a running daemon with realistic demo data
// for development.
//
// Running twice is safe: mutations the daemon rejects as duplicates are
// reported and skipped. The tool opens an epoch if none is open, registers
// a small roster with diversity attributes, runs one mission through
// review, and posts a market listing with competing bids.
//
// Usage:
//
//	go run ./cmd/genesis-seed
//	GENESIS_URL=http://localhost:8080 GENESIS_ADMIN_SECRET=... go run ./cmd/genesis-seed
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/genesis-gov/genesis/pkg/client"
)

const (
	defaultURL    = "http://localhost:8080"
	defaultSecret = "genesis-dev-secret"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "genesis-seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	base := os.Getenv("GENESIS_URL")
	if base == "" {
		base = defaultURL
	}
	secret := os.Getenv("GENESIS_ADMIN_SECRET")
	if secret == "" {
		secret = defaultSecret
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := client.New(base)
	if err := c.Authenticate(ctx, secret, "seed-operator"); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	fmt.Printf("connected to %s\n", base)

	if err := seedEpoch(ctx, c); err != nil {
		return fmt.Errorf("seed epoch: %w", err)
	}
	if err := seedRoster(ctx, c); err != nil {
		return fmt.Errorf("seed roster: %w", err)
	}
	if err := seedMission(ctx, c); err != nil {
		return fmt.Errorf("seed mission: %w", err)
	}
	if err := seedMarket(ctx, c); err != nil {
		return fmt.Errorf("seed market: %w", err)
	}

	fmt.Println("\nseed complete")
	return nil
}

// apply runs one mutation and prints the outcome. Duplicate rejections are
// reported and skipped so reruns stay clean.
func apply(label string, res *client.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if !res.Success {
		msg := strings.Join(res.Errors, "; ")
		if strings.Contains(msg, "already") {
			fmt.Printf("  skip  %-44s  %s\n", label, msg)
			return nil
		}
		return fmt.Errorf("%s: %s", label, msg)
	}
	if res.Warning != "" {
		fmt.Printf("  warn  %-44s  %s\n", label, res.Warning)
		return nil
	}
	fmt.Printf("  ok    %s\n", label)
	return nil
}

func seedEpoch(ctx context.Context, c *client.Client) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if open, _ := status["epoch_open"].(bool); open {
		fmt.Printf("  skip  epoch (already open: %v)\n", status["current_epoch"])
		return nil
	}
	res, err := c.OpenEpoch(ctx, "")
	return apply("open epoch", res, err)
}

// ── Roster ───────────────────────────────────────────────────────────────────

var roster = []client.RegisterActorInput{
	{
		ActorID: "gatekeeper-ada", Kind: "human", TrustScore: 0.9,
		Region: "eu", Organization: "genesis-foundation",
		Domains: []string{"healthcare", "social_services", "legal"},
	},
	{
		ActorID: "adjudicator-bea", Kind: "human", TrustScore: 0.8,
		Region: "us", Organization: "civic-trust",
		Domains: []string{"healthcare", "social_services"},
	},
	{
		ActorID: "adjudicator-cyd", Kind: "human", TrustScore: 0.75,
		Region: "apac", Organization: "civic-trust",
		Domains: []string{"healthcare", "mental_health"},
	},
	{
		ActorID: "worker-atlas", Kind: "machine", TrustScore: 0.5,
		Region: "eu", Organization: "acme", ModelFamily: "atlas", MethodType: "static",
	},
	{
		ActorID: "reviewer-iris", Kind: "machine", TrustScore: 0.7,
		Region: "eu", Organization: "acme", ModelFamily: "iris", MethodType: "static",
	},
	{
		ActorID: "reviewer-juno", Kind: "machine", TrustScore: 0.68,
		Region: "us", Organization: "globex", ModelFamily: "juno", MethodType: "dynamic",
	},
	{
		ActorID: "reviewer-kilo", Kind: "machine", TrustScore: 0.66,
		Region: "apac", Organization: "initech", ModelFamily: "kilo", MethodType: "formal",
	},
	{
		ActorID: "bidder-lyra", Kind: "machine", TrustScore: 0.6,
		Region: "us", Organization: "globex", ModelFamily: "lyra", MethodType: "dynamic",
	},
}

func seedRoster(ctx context.Context, c *client.Client) error {
	for _, in := range roster {
		res, err := c.RegisterActor(ctx, in)
		if err := apply("register "+in.ActorID, res, err); err != nil {
			return err
		}
	}
	return nil
}

// ── Missions ─────────────────────────────────────────────────────────────────

func seedMission(ctx context.Context, c *client.Client) error {
	res, err := c.CreateMission(ctx, client.CreateMissionInput{
		Title:      "Quarterly compliance digest",
		Class:      "internal_operations_change",
		DomainType: "objective",
		WorkerID:   "worker-atlas",
	})
	if err := apply("create mission", res, err); err != nil {
		return err
	}
	if !res.Success {
		return nil
	}
	missionID, _ := res.Data["mission_id"].(string)

	res, err = c.SubmitMission(ctx, missionID, "worker-atlas")
	if err := apply("submit "+missionID, res, err); err != nil {
		return err
	}
	res, err = c.AssignReviewers(ctx, missionID, "seed-demo")
	if err := apply("assign reviewers "+missionID, res, err); err != nil {
		return err
	}
	reviewers, _ := res.Data["reviewers"].([]any)
	for _, r := range reviewers {
		id, _ := r.(string)
		res, err = c.SubmitReview(ctx, missionID, id, "APPROVE", "looks sound")
		if err := apply("review by "+id, res, err); err != nil {
			return err
		}
	}
	res, err = c.CompleteReview(ctx, missionID)
	return apply("complete review "+missionID, res, err)
}

// ── Market ───────────────────────────────────────────────────────────────────

func seedMarket(ctx context.Context, c *client.Client) error {
	res, err := c.CreateListing(ctx, client.CreateListingInput{
		Title:          "Translate incident reports",
		Description:    "Batch translation of Q2 incident reports into French.",
		RequesterID:    "reviewer-iris",
		Domain:         "language",
		RequiredSkills: []string{"translation", "fr"},
		MaxAmount:      "100",
	})
	if err := apply("create listing", res, err); err != nil {
		return err
	}
	if !res.Success {
		return nil
	}
	listingID, _ := res.Data["listing_id"].(string)

	res, err = c.OpenListing(ctx, listingID)
	if err := apply("open "+listingID, res, err); err != nil {
		return err
	}
	res, err = c.SubmitBid(ctx, listingID, "bidder-lyra", "80", "fast turnaround")
	if err := apply("bid by bidder-lyra", res, err); err != nil {
		return err
	}
	res, err = c.SubmitBid(ctx, listingID, "worker-atlas", "75", "lowest cost")
	if err := apply("bid by worker-atlas", res, err); err != nil {
		return err
	}
	res, err = c.AllocateListing(ctx, listingID)
	return apply("allocate "+listingID, res, err)
}
