package sbom

import (
	"errors"
	"fmt"
	"sort"
)

// RelKind is the relationship type between two identities.
type RelKind string

const (
	RelDependsOn RelKind = "DEPENDS_ON"
	RelContains  RelKind = "CONTAINS"
	RelDescribes RelKind = "DESCRIBES"
)

// DocumentElementID is the reserved source identity for DESCRIBES edges.
// It names the document itself, which is not a component.
const DocumentElementID = "SBOM-Document"

// SchemaVersion tags the condensed serialization format.
const SchemaVersion = "xlin-sbom/condensed/1"

var (
	// ErrDuplicateIdentity means two component records share an ID.
	ErrDuplicateIdentity = errors.New("duplicate component identity")
	// ErrDanglingRelationship means an edge endpoint resolves to nothing.
	ErrDanglingRelationship = errors.New("relationship references unknown component")
)

// Relationship is a directed edge between two identities in one document.
type Relationship struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Kind   RelKind `json:"kind"`
}

// LicenseInfo is one extracted-license table entry.
type LicenseInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnresolvedDep records a dependency hint that matched no provider.
// It is data, not an error: the hint stays named but is never linked.
type UnresolvedDep struct {
	Source     string `json:"source"`
	Capability string `json:"capability"`
}

// OSInfo describes the operating system the scanned image carries.
type OSInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Arch    string `json:"arch,omitempty"`
}

// Document is a complete SBOM: every discovered component plus the edges,
// license table and unresolved hints that belong to one scan.
type Document struct {
	Schema        string          `json:"schema"`
	DocumentID    string          `json:"documentId"`
	Name          string          `json:"name"`
	Namespace     string          `json:"documentNamespace"`
	Created       string          `json:"created"`
	ToolName      string          `json:"toolName"`
	ToolVersion   string          `json:"toolVersion"`
	OS            OSInfo          `json:"os"`
	Components    []Component     `json:"components"`
	Relationships []Relationship  `json:"relationships"`
	Licenses      []LicenseInfo   `json:"licenses,omitempty"`
	Unresolved    []UnresolvedDep `json:"unresolved,omitempty"`
}

// NewDocument builds an empty document shell with the schema tag set.
func NewDocument(name, toolName, toolVersion string) *Document {
	return &Document{
		Schema:      SchemaVersion,
		Name:        name,
		ToolName:    toolName,
		ToolVersion: toolVersion,
	}
}

// Component returns the component with the given identity, or nil.
func (d *Document) Component(id string) *Component {
	for i := range d.Components {
		if d.Components[i].ID == id {
			return &d.Components[i]
		}
	}
	return nil
}

// Sort orders every list in the document so that serialization is
// byte-deterministic for the same reconciled content.
func (d *Document) Sort() {
	sort.Slice(d.Components, func(i, j int) bool {
		return d.Components[i].ID < d.Components[j].ID
	})
	for i := range d.Components {
		sort.Strings(d.Components[i].EvidencePaths)
	}
	sort.Slice(d.Relationships, func(i, j int) bool {
		a, b := d.Relationships[i], d.Relationships[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Target < b.Target
	})
	sort.Slice(d.Licenses, func(i, j int) bool {
		return d.Licenses[i].ID < d.Licenses[j].ID
	})
	sort.Slice(d.Unresolved, func(i, j int) bool {
		a, b := d.Unresolved[i], d.Unresolved[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Capability < b.Capability
	})
}

// Validate checks the document invariants: identities are unique and every
// relationship endpoint resolves. A DESCRIBES edge may use the reserved
// document ID as its source; everything else must name real components.
func (d *Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Components))
	for _, c := range d.Components {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateIdentity, c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	for _, r := range d.Relationships {
		if _, ok := seen[r.Source]; !ok {
			if !(r.Kind == RelDescribes && r.Source == DocumentElementID) {
				return fmt.Errorf("%w: %s -> %s (%s)", ErrDanglingRelationship, r.Source, r.Target, r.Kind)
			}
		}
		if _, ok := seen[r.Target]; !ok {
			return fmt.Errorf("%w: %s -> %s (%s)", ErrDanglingRelationship, r.Source, r.Target, r.Kind)
		}
	}

	for _, u := range d.Unresolved {
		if _, ok := seen[u.Source]; !ok {
			return fmt.Errorf("%w: unresolved hint %q on %s", ErrDanglingRelationship, u.Capability, u.Source)
		}
	}
	return nil
}
