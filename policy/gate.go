// Package policy implements the ingestion gate: a single-owner allowlist and
// a content guard for audio annotations.
package policy

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultOwnerID is the owner identity used when none is configured.
const DefaultOwnerID = "OWNER_ONLY"

// DefaultForbiddenLabels are annotation keys describing biometric traits.
var DefaultForbiddenLabels = []string{"fingerprint", "face", "iris"}

// ErrEmptyOwner is returned by NewGate for a blank owner identity.
var ErrEmptyOwner = errors.New("owner identity must not be empty")

// LabelError reports the annotation key that tripped the content guard.
type LabelError struct {
	Label string
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("annotation contains forbidden label %q", e.Label)
}

// Gate decides who may ingest and which annotations are acceptable.
// A Gate is immutable and safe for concurrent use.
type Gate struct {
	owner     string
	forbidden map[string]struct{}
}

// NewGate creates a gate for owner. A nil labels slice selects
// DefaultForbiddenLabels; an empty non-nil slice disables the guard.
func NewGate(owner string, labels []string) (*Gate, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if labels == nil {
		labels = DefaultForbiddenLabels
	}
	g := &Gate{owner: owner, forbidden: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		g.forbidden[l] = struct{}{}
	}
	return g, nil
}

// Owner returns the configured owner identity.
func (g *Gate) Owner() string { return g.owner }

// Authorize reports whether requesterID is the owner.
func (g *Gate) Authorize(requesterID string) bool {
	return requesterID == g.owner
}

// BiometricGuard reports whether meta is free of forbidden labels.
func (g *Gate) BiometricGuard(meta map[string]any) bool {
	return g.Check(meta) == nil
}

// Check returns a *LabelError naming the first forbidden label found in meta,
// in sorted order so the result is stable.
func (g *Gate) Check(meta map[string]any) error {
	var hits []string
	for k := range meta {
		if _, bad := g.forbidden[k]; bad {
			hits = append(hits, k)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	slices.Sort(hits)
	return &LabelError{Label: hits[0]}
}

// Labels returns the forbidden labels, sorted.
func (g *Gate) Labels() []string {
	out := make([]string, 0, len(g.forbidden))
	for l := range g.forbidden {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}
