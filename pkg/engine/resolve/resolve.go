// Package resolve links extracted components into a relationship set.
// Dependency hints are matched against a provider index built from the
// components' capability lists; containment edges tie packages to the
// image root and to their embedded files.
package resolve

import (
	"sort"
	"strings"

	"github.com/openeuler-mirror/xlin-sbom/pkg/rpm"
	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"github.com/openeuler-mirror/xlin-sbom/pkg/sys/intern"
)

// Input is the assembled extraction output the resolver links.
type Input struct {
	Components []sbom.Component

	// Contains carries the package -> embedded-file edges the extractor
	// derived from package metadata.
	Contains []sbom.Relationship

	// RootID names the image root pseudo-component, or "" when scanning
	// a single package.
	RootID string
}

// Alternative records a dependency that more than one component could
// satisfy. The winner carries the edge; the losers are kept as data so
// the choice is never silent.
type Alternative struct {
	Source     string
	Capability string
	Winner     string
	Losers     []string
}

// Result is the full relationship set for one scan.
type Result struct {
	Relationships []sbom.Relationship
	Unresolved    []sbom.UnresolvedDep
	Alternatives  []Alternative
}

type provider struct {
	id      string
	version string
}

// Build resolves every dependency hint and derives the structural edges.
// It is a pure function of its input: same components in, same result out.
func Build(in Input) *Result {
	res := &Result{}

	pool := intern.NewPool()
	providers := make(map[uint32][]provider)
	addProvider := func(capName string, p provider) {
		key := pool.Get(capName)
		providers[key] = append(providers[key], p)
	}

	// File components index their installed path, so path-shaped hints
	// ("/bin/sh") resolve through containment to the owning package.
	fileOwner := make(map[string][]string)
	for _, edge := range in.Contains {
		fileOwner[edge.Target] = append(fileOwner[edge.Target], edge.Source)
	}

	for i := range in.Components {
		c := &in.Components[i]
		switch c.Origin {
		case sbom.OriginPackage:
			addProvider(c.Name, provider{id: c.ID, version: c.Version})
			for _, raw := range c.Provides {
				offered := parseHint(raw)
				if offered.Name == c.Name {
					continue
				}
				addProvider(offered.Name, provider{id: c.ID, version: offered.Version})
			}
		case sbom.OriginFile:
			for _, path := range c.EvidencePaths {
				if !strings.HasPrefix(path, "/") {
					continue
				}
				for _, owner := range fileOwner[c.ID] {
					addProvider(path, provider{id: owner})
				}
			}
		}
	}

	seenEdge := make(map[sbom.Relationship]struct{})
	addEdge := func(r sbom.Relationship) {
		if _, dup := seenEdge[r]; dup {
			return
		}
		seenEdge[r] = struct{}{}
		res.Relationships = append(res.Relationships, r)
	}

	var packageIDs []string
	for i := range in.Components {
		c := &in.Components[i]
		if c.Origin == sbom.OriginPackage {
			packageIDs = append(packageIDs, c.ID)
		}
		for _, raw := range c.DependsHints {
			hint := parseHint(raw)
			matched, winner, losers := match(providers, pool, hint, c.ID)
			switch {
			case !matched:
				res.Unresolved = append(res.Unresolved, sbom.UnresolvedDep{
					Source:     c.ID,
					Capability: raw,
				})
			case winner == "":
				// Only the component itself satisfies the hint; rpm
				// packages routinely require their own config() entries.
			default:
				addEdge(sbom.Relationship{Source: c.ID, Target: winner, Kind: sbom.RelDependsOn})
				if len(losers) > 0 {
					res.Alternatives = append(res.Alternatives, Alternative{
						Source:     c.ID,
						Capability: raw,
						Winner:     winner,
						Losers:     losers,
					})
				}
			}
		}
	}

	for _, edge := range in.Contains {
		addEdge(edge)
	}
	if in.RootID != "" {
		for _, id := range packageIDs {
			addEdge(sbom.Relationship{Source: in.RootID, Target: id, Kind: sbom.RelContains})
		}
		addEdge(sbom.Relationship{Source: sbom.DocumentElementID, Target: in.RootID, Kind: sbom.RelDescribes})
	} else {
		for _, id := range packageIDs {
			addEdge(sbom.Relationship{Source: sbom.DocumentElementID, Target: id, Kind: sbom.RelDescribes})
		}
	}

	return res
}

// match finds the providers satisfying the hint. It reports whether any
// provider (including the requester itself) matched, the winning provider
// ID (empty when only the requester matched) and the sorted losers.
func match(providers map[uint32][]provider, pool *intern.Pool, hint rpm.Capability, selfID string) (matched bool, winner string, losers []string) {
	key := pool.Lookup(hint.Name)
	if key == intern.InvalidID {
		return false, "", nil
	}

	var candidates []provider
	for _, p := range providers[key] {
		if !satisfies(p.version, hint) {
			continue
		}
		if p.id == selfID {
			matched = true
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return matched, "", nil
	}

	// Highest version wins; equal versions fall back to identity order so
	// repeated scans pick the same winner.
	sort.Slice(candidates, func(i, j int) bool {
		if c := rpm.CompareEVR(candidates[i].version, candidates[j].version); c != 0 {
			return c > 0
		}
		return candidates[i].id < candidates[j].id
	})

	winner = candidates[0].id
	seen := map[string]struct{}{winner: {}}
	for _, c := range candidates[1:] {
		if _, dup := seen[c.id]; dup {
			continue
		}
		seen[c.id] = struct{}{}
		losers = append(losers, c.id)
	}
	return true, winner, losers
}

// satisfies checks a provider's capability version against the hint
// constraint. Unversioned providers satisfy everything: package metadata
// is too patchy to reject a named match on a missing version string.
func satisfies(provided string, hint rpm.Capability) bool {
	if hint.Op == "" || provided == "" {
		return true
	}
	c := rpm.CompareEVR(provided, hint.Version)
	switch hint.Op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case "=":
		return c == 0
	case ">=":
		return c >= 0
	case ">":
		return c > 0
	}
	return false
}

// parseHint splits "name op version" hint strings. Anything that does not
// look like a constraint is treated as a bare capability name.
func parseHint(raw string) rpm.Capability {
	fields := strings.Fields(raw)
	if len(fields) == 3 {
		switch fields[1] {
		case "<", "<=", "=", ">=", ">":
			return rpm.Capability{Name: fields[0], Op: fields[1], Version: fields[2]}
		}
	}
	return rpm.Capability{Name: strings.TrimSpace(raw)}
}
