package detector

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

// evidenceMemberCap bounds how many archive member names land in the
// evidence list. Listing every file of a large tarball helps nobody.
const evidenceMemberCap = 32

// ArchiveDetector handles single-file mode for generic software archives.
// It never claims directory roots; installed trees belong to the package
// database detectors.
type ArchiveDetector struct{}

func (ArchiveDetector) Name() string { return "archive" }

func (ArchiveDetector) Detect(root string) bool {
	info, err := os.Stat(root)
	if err != nil || info.IsDir() {
		return false
	}
	return archiveKind(root) != ""
}

func (ArchiveDetector) Extract(ctx context.Context, root string, rep Reporter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, version := splitNameVersion(stem(root))
	rec := Record{
		Format:      sbom.FormatArchive,
		Name:        name,
		Version:     version,
		SourcePath:  root,
		Description: "software archive " + filepath.Base(root),
		Evidence:    []string{filepath.Base(root)},
	}

	members, err := listMembers(root)
	if err != nil {
		// The stem-derived record stands; only the member listing is lost.
		rep.PartialFailure(filepath.Base(root), err)
	}
	rec.Evidence = append(rec.Evidence, members...)

	rep.Progress(1, 1, "")
	return []Record{rec}, nil
}

// archiveKind classifies the file by suffix: "zip", "tar" or "" for
// formats this detector does not read.
func archiveKind(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return "zip"
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tar"):
		return "tar"
	}
	return ""
}

// stem strips the archive suffix from the basename.
func stem(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, suf := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(lower, suf) {
			return base[:len(base)-len(suf)]
		}
	}
	return base
}

// splitNameVersion cuts "name-1.2.3" style stems at the last hyphen that
// is followed by a digit. Stems without a version part come back whole.
func splitNameVersion(s string) (name, version string) {
	for i := len(s) - 2; i > 0; i-- {
		if s[i] == '-' && s[i+1] >= '0' && s[i+1] <= '9' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// listMembers returns the top-level member names of the archive, sorted,
// capped at evidenceMemberCap entries.
func listMembers(path string) ([]string, error) {
	var names []string
	var err error
	switch archiveKind(path) {
	case "zip":
		names, err = zipMembers(path)
	case "tar":
		names, err = tarMembers(path)
	default:
		return nil, errors.New("unsupported archive format")
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(names))
	top := names[:0]
	for _, n := range names {
		if n = topLevel(n); n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		top = append(top, n)
	}
	sort.Strings(top)
	if len(top) > evidenceMemberCap {
		top = top[:evidenceMemberCap]
	}
	return top, nil
}

func topLevel(member string) string {
	member = strings.TrimPrefix(member, "./")
	member = strings.TrimPrefix(member, "/")
	if i := strings.IndexByte(member, '/'); i >= 0 {
		member = member[:i]
	}
	return member
}

func zipMembers(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func tarMembers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var src io.Reader = f
	if !strings.HasSuffix(strings.ToLower(path), ".tar") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		src = gz
	}

	var names []string
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return names, err
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}
