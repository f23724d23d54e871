package detector

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openeuler-mirror/xlin-sbom/pkg/rpm"
	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

// RPMDetector extracts RPM packages, either from the Packages/ repository
// directory of a mounted distribution image or from a single .rpm file.
type RPMDetector struct{}

func (RPMDetector) Name() string { return "rpm" }

func (RPMDetector) Detect(root string) bool {
	info, err := os.Stat(root)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return strings.HasSuffix(strings.ToLower(root), ".rpm")
	}
	return findPackagesDir(root) != ""
}

func (RPMDetector) Extract(ctx context.Context, root string, rep Reporter) ([]Record, error) {
	paths, err := collectRPMPaths(root)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep.Progress(i, len(paths), filepath.Base(path))

		pkg, err := rpm.Open(path)
		if err != nil {
			rep.PartialFailure(relTo(root, path), err)
			continue
		}
		records = append(records, rpmRecord(root, path, pkg))
	}
	rep.Progress(len(paths), len(paths), "")
	return records, nil
}

func collectRPMPaths(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	dir := findPackagesDir(root)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read package directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".rpm") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// findPackagesDir locates the repository directory distribution images
// carry their packages in. Unreadable subtrees are skipped, not fatal.
func findPackagesDir(root string) string {
	var found string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.EqualFold(d.Name(), "Packages") {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found
}

func rpmRecord(root, path string, pkg *rpm.Package) Record {
	rec := Record{
		Format:      sbom.FormatRPM,
		Name:        pkg.Name,
		Version:     pkg.VersionRelease(),
		Release:     pkg.Release,
		Arch:        pkg.Arch,
		License:     pkg.License,
		Vendor:      pkg.Vendor,
		Packager:    pkg.Packager,
		Homepage:    pkg.URL,
		Description: pkg.Description,
		Requires:    dedupe(renderCaps(pkg.Requires())),
		Provides:    dedupe(renderCaps(pkg.Provides())),
		SourcePath:  path,
		Evidence:    []string{relTo(root, path)},
	}
	if rec.Description == "" {
		rec.Description = pkg.Summary
	}
	for _, f := range pkg.Files() {
		// Entries without a digest are directories or ghost files; the
		// package owns no bytes there.
		if f.Digest == "" || f.Name == "" {
			continue
		}
		rec.Files = append(rec.Files, FileRecord{
			Path:      f.Path,
			Name:      f.Name,
			Algorithm: pkg.DigestAlgo,
			Digest:    f.Digest,
		})
	}
	return rec
}

// renderCaps flattens capabilities to hint strings. rpmlib() entries are
// feature flags addressed to the package manager itself, not dependencies
// on any component, so they are dropped here.
func renderCaps(caps []rpm.Capability) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		if strings.HasPrefix(c.Name, "rpmlib(") {
			continue
		}
		out = append(out, c.String())
	}
	return out
}

func relTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		if rel == "." {
			// Single-file mode: root is the package itself.
			return filepath.Base(path)
		}
		return rel
	}
	return path
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
