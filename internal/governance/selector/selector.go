// Package selector implements diversity-constrained reviewer selection.
// Selection is deterministic for a given seed so a reviewer panel can be
// reproduced from the audit trail.
package selector

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"

	"github.com/genesis-gov/genesis/internal/governance/model"
)

// Requirements constrains a reviewer panel. Zero-valued minimums impose
// no constraint on that dimension.
type Requirements struct {
	Count            int
	MinRegions       int
	MinOrganizations int
	MinModelFamilies int
	MinMethodTypes   int
	MinTrust         float64
}

// ErrInsufficientPool is wrapped by selection failures caused by the
// candidate pool, as opposed to bad arguments.
var ErrInsufficientPool = fmt.Errorf("insufficient reviewer pool")

// Select picks reviewers from the roster for the given worker. The worker
// and anyone in extraExclude are never selected. The seed (typically the
// mission id) fixes the tie-breaking order.
func Select(roster *model.Roster, workerID, seed string, req Requirements, extraExclude map[string]struct{}) ([]model.Reviewer, error) {
	if req.Count <= 0 {
		return nil, nil
	}

	exclude := map[string]struct{}{workerID: {}}
	for id := range extraExclude {
		exclude[id] = struct{}{}
	}

	pool := roster.AvailableReviewers(exclude, req.MinTrust)
	if len(pool) < req.Count {
		return nil, fmt.Errorf("%w: need %d reviewers, %d candidates available",
			ErrInsufficientPool, req.Count, len(pool))
	}

	rng := seededRand(seed)
	// Shuffle first, then stable-sort by trust descending: equal-trust
	// candidates keep the seeded order.
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].TrustScore > pool[j].TrustScore })

	picked := coverDimensions(pool, req)
	for _, c := range pool {
		if len(picked) >= req.Count {
			break
		}
		if containsActor(picked, c.ActorID) {
			continue
		}
		picked = append(picked, c)
	}

	if len(picked) < req.Count {
		return nil, fmt.Errorf("%w: could only assemble %d of %d reviewers",
			ErrInsufficientPool, len(picked), req.Count)
	}
	picked = picked[:req.Count]

	reviewers := make([]model.Reviewer, 0, len(picked))
	for _, c := range picked {
		reviewers = append(reviewers, model.Reviewer{
			ID:           c.ActorID,
			ModelFamily:  c.ModelFamily,
			MethodType:   c.MethodType,
			Region:       c.Region,
			Organization: c.Organization,
		})
	}

	if err := Validate(reviewers, req); err != nil {
		return nil, err
	}
	return reviewers, nil
}

// coverDimensions greedily picks candidates that extend not-yet-satisfied
// diversity dimensions, at most Count total.
func coverDimensions(pool []*model.RosterEntry, req Requirements) []*model.RosterEntry {
	var picked []*model.RosterEntry
	regions := map[string]struct{}{}
	orgs := map[string]struct{}{}
	families := map[string]struct{}{}
	methods := map[string]struct{}{}

	need := func(c *model.RosterEntry) bool {
		if len(regions) < req.MinRegions {
			if _, ok := regions[c.Region]; !ok && c.Region != "" {
				return true
			}
		}
		if len(orgs) < req.MinOrganizations {
			if _, ok := orgs[c.Organization]; !ok && c.Organization != "" {
				return true
			}
		}
		if len(families) < req.MinModelFamilies {
			if _, ok := families[c.ModelFamily]; !ok && c.ModelFamily != "" {
				return true
			}
		}
		if len(methods) < req.MinMethodTypes {
			if _, ok := methods[c.MethodType]; !ok && c.MethodType != "" {
				return true
			}
		}
		return false
	}

	for _, c := range pool {
		if len(picked) >= req.Count {
			break
		}
		if !need(c) {
			continue
		}
		picked = append(picked, c)
		if c.Region != "" {
			regions[c.Region] = struct{}{}
		}
		if c.Organization != "" {
			orgs[c.Organization] = struct{}{}
		}
		if c.ModelFamily != "" {
			families[c.ModelFamily] = struct{}{}
		}
		if c.MethodType != "" {
			methods[c.MethodType] = struct{}{}
		}
	}
	return picked
}

// Validate checks that a panel meets the requirements. It is also called
// on externally supplied panels before assignment.
func Validate(reviewers []model.Reviewer, req Requirements) error {
	if len(reviewers) < req.Count {
		return fmt.Errorf("%w: panel has %d reviewers, need %d", ErrInsufficientPool, len(reviewers), req.Count)
	}
	regions := map[string]struct{}{}
	orgs := map[string]struct{}{}
	families := map[string]struct{}{}
	methods := map[string]struct{}{}
	seen := map[string]struct{}{}
	for _, r := range reviewers {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate reviewer %s in panel", r.ID)
		}
		seen[r.ID] = struct{}{}
		regions[r.Region] = struct{}{}
		orgs[r.Organization] = struct{}{}
		families[r.ModelFamily] = struct{}{}
		methods[r.MethodType] = struct{}{}
	}
	if distinct(regions) < req.MinRegions {
		return fmt.Errorf("%w: panel spans %d regions, need %d", ErrInsufficientPool, distinct(regions), req.MinRegions)
	}
	if distinct(orgs) < req.MinOrganizations {
		return fmt.Errorf("%w: panel spans %d organizations, need %d", ErrInsufficientPool, distinct(orgs), req.MinOrganizations)
	}
	if distinct(families) < req.MinModelFamilies {
		return fmt.Errorf("%w: panel spans %d model families, need %d", ErrInsufficientPool, distinct(families), req.MinModelFamilies)
	}
	if distinct(methods) < req.MinMethodTypes {
		return fmt.Errorf("%w: panel spans %d method types, need %d", ErrInsufficientPool, distinct(methods), req.MinMethodTypes)
	}
	return nil
}

// distinct counts non-empty keys.
func distinct(set map[string]struct{}) int {
	n := len(set)
	if _, ok := set[""]; ok {
		n--
	}
	return n
}

func containsActor(picked []*model.RosterEntry, id string) bool {
	for _, p := range picked {
		if p.ActorID == id {
			return true
		}
	}
	return false
}

// seededRand derives a deterministic PRNG from an arbitrary seed string.
func seededRand(seed string) *rand.Rand {
	sum := sha256.Sum256([]byte(seed))
	n := int64(binary.BigEndian.Uint64(sum[:8]))
	return rand.New(rand.NewSource(n))
}
