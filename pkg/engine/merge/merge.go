// Package merge reconciles a freshly scanned document against the SBOM of
// a previous run. Identity decides which records line up; full field
// equality (checksums included) decides unchanged versus updated.
package merge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

// ErrMalformedPrior means the prior SBOM could not be used. Incremental
// runs fail on it: silently degrading to a fresh scan would hide that the
// merge never happened.
var ErrMalformedPrior = errors.New("prior SBOM is not a usable condensed document")

// Delta lists the identity of every component per reconciliation class.
type Delta struct {
	Unchanged []string
	Updated   []string
	Added     []string
	Removed   []string
}

// LoadPrior parses prior-run bytes, mapping every decode problem onto
// ErrMalformedPrior.
func LoadPrior(data []byte) (*sbom.Document, error) {
	doc, err := sbom.DecodeCondensed(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPrior, err)
	}
	return doc, nil
}

// Merge reconciles fresh against prior and returns the merged document
// plus the classification delta. It is a pure function: neither input is
// mutated, and equal inputs always produce equal output.
//
// Unchanged components are carried over from the prior document verbatim,
// preserving annotations added outside this tool. Updated components take
// the fresh record with the evidence paths of both runs. Components only
// the prior document knows are dropped along with every relationship and
// unresolved hint naming them; the fresh scan is authoritative for
// structure.
func Merge(prior, fresh *sbom.Document) (*sbom.Document, Delta) {
	out := *fresh
	var delta Delta

	if prior == nil {
		out.Components = append([]sbom.Component(nil), fresh.Components...)
		for _, c := range fresh.Components {
			delta.Added = append(delta.Added, c.ID)
		}
		sort.Strings(delta.Added)
		return &out, delta
	}

	priorByID := make(map[string]*sbom.Component, len(prior.Components))
	for i := range prior.Components {
		priorByID[prior.Components[i].ID] = &prior.Components[i]
	}

	merged := make([]sbom.Component, 0, len(fresh.Components))
	freshIDs := make(map[string]struct{}, len(fresh.Components))
	for _, c := range fresh.Components {
		freshIDs[c.ID] = struct{}{}
		old, known := priorByID[c.ID]
		switch {
		case !known:
			delta.Added = append(delta.Added, c.ID)
			merged = append(merged, c)
		case c.EquivalentTo(*old):
			delta.Unchanged = append(delta.Unchanged, c.ID)
			merged = append(merged, *old)
		default:
			delta.Updated = append(delta.Updated, c.ID)
			c.EvidencePaths = unionSorted(old.EvidencePaths, c.EvidencePaths)
			merged = append(merged, c)
		}
	}
	out.Components = merged

	for _, c := range prior.Components {
		if _, confirmed := freshIDs[c.ID]; !confirmed {
			delta.Removed = append(delta.Removed, c.ID)
		}
	}

	sort.Strings(delta.Unchanged)
	sort.Strings(delta.Updated)
	sort.Strings(delta.Added)
	sort.Strings(delta.Removed)
	return &out, delta
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
