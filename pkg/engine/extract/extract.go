// Package extract turns a readable input tree into canonical components.
// It fans the detector set out over the tree, normalizes the raw records
// (identity, license, supplier), merges re-detections of the same logical
// component and synthesizes the image root pseudo-component.
package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/detector"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/licensing"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/suppliers"
	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Options configures one extraction pass.
type Options struct {
	// Root is the mounted image tree, or the package file itself in
	// single-package mode.
	Root string

	// ImageName names the scanned image (ISO filename without extension).
	// It seeds the root pseudo-component identity and the OS metadata.
	ImageName string

	// ImageSource optionally points at the image file backing Root, so the
	// root pseudo-component can be fingerprinted like any other component.
	ImageSource string

	Registry   *detector.Registry
	Reporter   detector.Reporter
	Normalizer *licensing.Normalizer

	// MaxWorkers bounds concurrent detector invocations. Zero means no
	// extra bound beyond the number of applicable detectors.
	MaxWorkers int
}

// Result is the assembled component set of one extraction pass.
type Result struct {
	Components []sbom.Component

	// Contains holds the package -> embedded file edges derived from
	// detector metadata. The resolver adds the image-level edges.
	Contains []sbom.Relationship

	// RootID is the identity of the image root pseudo-component, or ""
	// in single-package mode.
	RootID string

	OS sbom.OSInfo
}

// Run executes the extraction. The only fatal condition is a root that
// cannot be read at all; everything below that surfaces through the
// Reporter as partial failures.
func Run(ctx context.Context, opts Options) (*Result, error) {
	ctx, span := otel.Tracer("xlin-sbom/extract").Start(ctx, "Extract.Run")
	defer span.End()

	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("input root %s is not readable: %w", opts.Root, err)
	}
	if opts.Reporter == nil {
		opts.Reporter = detector.NopReporter{}
	}
	if opts.Normalizer == nil {
		opts.Normalizer = licensing.NewNormalizer(nil)
	}

	records, err := opts.Registry.RunAll(ctx, opts.Root, opts.Reporter, opts.MaxWorkers)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	merger := newMerger(opts.Normalizer)
	for _, rec := range records {
		merger.add(rec)
	}

	if info.IsDir() {
		res.OS = detector.ProbeOS(opts.Root, opts.ImageName)
		res.RootID = merger.addRoot(opts.ImageName, opts.ImageSource, res.OS)
	}

	res.Components, res.Contains = merger.finish()
	span.SetAttributes(attribute.Int("components", len(res.Components)))
	return res, nil
}

// merger folds raw records into canonical components, keyed by identity.
// Re-detections of the same identity union their evidence instead of
// duplicating the component.
type merger struct {
	normalizer *licensing.Normalizer

	order    []string
	byID     map[string]*sbom.Component
	contains map[sbom.Relationship]struct{}
	edges    []sbom.Relationship
}

func newMerger(n *licensing.Normalizer) *merger {
	return &merger{
		normalizer: n,
		byID:       make(map[string]*sbom.Component),
		contains:   make(map[sbom.Relationship]struct{}),
	}
}

func (m *merger) add(rec detector.Record) {
	id := sbom.ComponentID(rec.Format, rec.Name, rec.Version, rec.Arch)
	if existing, ok := m.byID[id]; ok {
		existing.EvidencePaths = unionPaths(existing.EvidencePaths, rec.Evidence)
	} else {
		guess := suppliers.Infer(rec.Vendor, rec.Packager, rec.Release, rec.Homepage)
		m.insert(&sbom.Component{
			ID:            id,
			Name:          rec.Name,
			Version:       rec.Version,
			Architecture:  rec.Arch,
			Format:        rec.Format,
			Origin:        sbom.OriginPackage,
			License:       m.normalizer.Normalize(rec.License),
			Supplier:      guess.Name,
			SupplierURL:   guess.URL,
			Homepage:      rec.Homepage,
			Description:   rec.Description,
			Checksums:     rec.Checksums,
			EvidencePaths: unionPaths(nil, rec.Evidence),
			DependsHints:  rec.Requires,
			Provides:      rec.Provides,
			SourcePath:    rec.SourcePath,
		})
	}

	for _, f := range rec.Files {
		m.addFile(id, rec.Format, f)
	}
}

func (m *merger) addFile(ownerID string, format sbom.Format, f detector.FileRecord) {
	fid := sbom.FileID(f.Name, f.Path)
	if existing, ok := m.byID[fid]; ok {
		existing.EvidencePaths = unionPaths(existing.EvidencePaths, []string{f.Path})
	} else {
		c := &sbom.Component{
			ID:            fid,
			Name:          f.Name,
			Format:        format,
			Origin:        sbom.OriginFile,
			EvidencePaths: []string{f.Path},
		}
		if f.Digest != "" {
			c.Checksums = []sbom.Checksum{{Algorithm: f.Algorithm, Digest: f.Digest}}
		}
		m.insert(c)
	}

	// The same path can be listed by more than one package; each listing
	// is its own containment edge.
	edge := sbom.Relationship{Source: ownerID, Target: fid, Kind: sbom.RelContains}
	if _, dup := m.contains[edge]; !dup {
		m.contains[edge] = struct{}{}
		m.edges = append(m.edges, edge)
	}
}

func (m *merger) addRoot(imageName, imageSource string, osInfo sbom.OSInfo) string {
	id := sbom.ImageID(imageName)
	if _, ok := m.byID[id]; ok {
		return id
	}
	m.insert(&sbom.Component{
		ID:           id,
		Name:         imageName,
		Version:      osInfo.Version,
		Architecture: osInfo.Arch,
		Format:       sbom.FormatImage,
		Origin:       sbom.OriginImageRoot,
		Description:  "scanned image root",
		SourcePath:   imageSource,
	})
	return id
}

func (m *merger) insert(c *sbom.Component) {
	m.byID[c.ID] = c
	m.order = append(m.order, c.ID)
}

func (m *merger) finish() ([]sbom.Component, []sbom.Relationship) {
	comps := make([]sbom.Component, 0, len(m.order))
	for _, id := range m.order {
		comps = append(comps, *m.byID[id])
	}
	return comps, m.edges
}

func unionPaths(have, add []string) []string {
	seen := make(map[string]struct{}, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, lists := range [][]string{have, add} {
		for _, p := range lists {
			if p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
