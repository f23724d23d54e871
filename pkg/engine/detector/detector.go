// Package detector discovers package metadata inside a mounted image tree
// or a standalone package file. Each format ships its own Detector; the
// Registry fans the applicable ones out and merges their results in
// registration order.
package detector

import (
	"context"
	"log/slog"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Record is the raw, pre-identity component data a detector emits.
type Record struct {
	Format  sbom.Format
	Name    string
	Version string // full version-release string
	Release string // release part alone, kept for supplier inference
	Arch    string

	License     string
	Vendor      string
	Packager    string
	Homepage    string
	Description string

	Requires []string
	Provides []string

	SourcePath string // absolute path to backing bytes, "" when none
	Evidence   []string
	Checksums  []sbom.Checksum // digests already known at extraction time

	Files []FileRecord
}

// FileRecord is one file embedded in a package, as listed by its metadata.
type FileRecord struct {
	Path      string
	Name      string
	Algorithm string
	Digest    string
}

// Reporter receives extraction side-channel data. Partial failures are
// recoverable: the offending unit is skipped, the scan continues.
type Reporter interface {
	PartialFailure(scope string, err error)
	Progress(done, total int, current string)
}

// NopReporter drops everything. Useful default for tests and embedders.
type NopReporter struct{}

func (NopReporter) PartialFailure(string, error) {}
func (NopReporter) Progress(int, int, string)    {}

// Detector recognizes and extracts one packaging format.
type Detector interface {
	Name() string
	// Detect reports whether this detector has anything to do under root.
	Detect(root string) bool
	// Extract reads package metadata. Per-unit problems go through the
	// Reporter; a returned error means the detector could not run at all.
	Extract(ctx context.Context, root string, rep Reporter) ([]Record, error)
}

// Registry holds the detector set in registration order.
type Registry struct {
	detectors []Detector
}

// NewRegistry returns a registry preloaded with the standard detectors.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(RPMDetector{})
	r.Register(DpkgDetector{})
	r.Register(ArchiveDetector{})
	return r
}

// Register appends a detector. Order matters: results merge in this order.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
}

// Applicable returns the detectors claiming the given root.
func (r *Registry) Applicable(root string) []Detector {
	var out []Detector
	for _, d := range r.detectors {
		if d.Detect(root) {
			out = append(out, d)
		}
	}
	return out
}

// RunAll executes every applicable detector concurrently, each writing into
// its own private slot. The slots are merged only after all workers finish,
// and in registration order, so the combined output is deterministic.
func (r *Registry) RunAll(ctx context.Context, root string, rep Reporter, limit int) ([]Record, error) {
	active := r.Applicable(root)
	results := make([][]Record, len(active))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, d := range active {
		g.Go(func() error {
			recs, err := runWithTelemetry(gctx, d, root, rep)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Record
	for _, recs := range results {
		merged = append(merged, recs...)
	}
	return merged, nil
}

// runWithTelemetry wraps one detector run in a span. A failing detector is
// a partial result, not a fatal one: the error lands in the reporter and
// the other detectors keep running. Only cancellation propagates.
func runWithTelemetry(ctx context.Context, d Detector, root string, rep Reporter) ([]Record, error) {
	tr := otel.Tracer("xlin-sbom/detector")
	ctx, span := tr.Start(ctx, "Detect."+d.Name())
	span.SetAttributes(attribute.String("detector", d.Name()))
	defer span.End()

	slog.Debug("detector starting", "name", d.Name())
	recs, err := d.Extract(ctx, root, rep)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rep.PartialFailure(d.Name(), err)
		slog.Error("detector failed", "name", d.Name(), "error", err)
		return nil, nil
	}
	span.SetAttributes(attribute.Int("records", len(recs)))
	slog.Debug("detector finished", "name", d.Name(), "records", len(recs))
	return recs, nil
}
