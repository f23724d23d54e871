package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openeuler-mirror/xlin-sbom/pkg/rpm/rpmtest"
	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

// recordingReporter captures callbacks for assertions. Detector workers may
// run concurrently, so it locks.
type recordingReporter struct {
	mu       sync.Mutex
	failures []string
	progress int
}

func (r *recordingReporter) PartialFailure(scope string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, scope)
}

func (r *recordingReporter) Progress(done, total int, current string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
}

func (r *recordingReporter) failed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

func TestRPMDetectorImageTree(t *testing.T) {
	root := t.TempDir()
	pkgs := filepath.Join(root, "Packages")

	rpmtest.Write(t, pkgs, rpmtest.Spec{
		Name: "bash", Version: "5.2", Release: "1", Arch: "x86_64",
		License:  "GPL-3.0-or-later",
		Requires: []string{"glibc", "rpmlib(CompressedFileNames) <= 3.0.4-1"},
		Files:    []rpmtest.File{{Dir: "/usr/bin/", Name: "bash", MD5: "aabbccddeeff00112233445566778899"}},
	})
	rpmtest.Write(t, pkgs, rpmtest.Spec{
		Name: "glibc", Version: "2.38", Release: "3", Arch: "x86_64",
	})
	// A file the parser must reject.
	if err := os.WriteFile(filepath.Join(pkgs, "broken-1.0-1.x86_64.rpm"), []byte("not an rpm"), 0644); err != nil {
		t.Fatal(err)
	}

	d := RPMDetector{}
	if !d.Detect(root) {
		t.Fatal("detector should claim a tree with a Packages directory")
	}

	rep := &recordingReporter{}
	recs, err := d.Extract(context.Background(), root, rep)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if got := rep.failed(); len(got) != 1 || got[0] != filepath.Join("Packages", "broken-1.0-1.x86_64.rpm") {
		t.Errorf("failures = %v", got)
	}

	// Paths sort, so bash comes first.
	bash := recs[0]
	if bash.Name != "bash" || bash.Version != "5.2-1" || bash.Format != sbom.FormatRPM {
		t.Errorf("bash record = %+v", bash)
	}
	if len(bash.Requires) != 1 || bash.Requires[0] != "glibc" {
		t.Errorf("rpmlib() hints must be dropped: %v", bash.Requires)
	}
	if len(bash.Files) != 1 || bash.Files[0].Path != "/usr/bin/bash" {
		t.Errorf("files = %v", bash.Files)
	}
	if bash.SourcePath == "" {
		t.Error("record should point at its backing bytes")
	}
}

func TestRPMDetectorSingleFile(t *testing.T) {
	path := rpmtest.Write(t, t.TempDir(), rpmtest.Spec{
		Name: "zlib", Version: "1.3", Release: "2", Arch: "aarch64",
	})

	d := RPMDetector{}
	if !d.Detect(path) {
		t.Fatal("detector should claim a single .rpm file")
	}

	recs, err := d.Extract(context.Background(), path, NopReporter{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "zlib" || recs[0].Arch != "aarch64" {
		t.Fatalf("records = %+v", recs)
	}
	if len(recs[0].Evidence) != 1 || recs[0].Evidence[0] != "zlib-1.3-2.aarch64.rpm" {
		t.Errorf("evidence = %v", recs[0].Evidence)
	}
}

func TestRPMDetectorIgnoresTreesWithoutPackages(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0755); err != nil {
		t.Fatal(err)
	}
	if (RPMDetector{}).Detect(root) {
		t.Error("detector claimed a tree with no package repository")
	}
}

const dpkgStatusFixture = `Package: bash
Status: install ok installed
Version: 5.2.15-2+b2
Architecture: amd64
Maintainer: Matthias Klose <doko@debian.org>
Pre-Depends: libc6 (>= 2.34), libtinfo6 (>= 6)
Description: GNU Bourne Again SHell
 Bash is an sh-compatible command language interpreter.

Package: removed-tool
Status: deinstall ok config-files
Version: 1.0-1
Architecture: amd64

Package: libc6
Status: install ok installed
Version: 2.36-9
Architecture: amd64
Provides: libc6-i686 | libc-whatever
Depends: libgcc-s1, libcrypt1 (>= 1:4.1.0)
Description: GNU C Library
`

func writeDpkgStatus(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, "var", "lib", "dpkg")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDpkgDetector(t *testing.T) {
	root := t.TempDir()
	writeDpkgStatus(t, root, dpkgStatusFixture)

	d := DpkgDetector{}
	if !d.Detect(root) {
		t.Fatal("detector should claim a tree with a dpkg status database")
	}

	rep := &recordingReporter{}
	recs, err := d.Extract(context.Background(), root, rep)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	// The config-files stanza is a leftover of a removed package.
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2: %+v", len(recs), recs)
	}
	if len(rep.failed()) != 0 {
		t.Errorf("unexpected failures: %v", rep.failed())
	}

	bash := recs[0]
	if bash.Name != "bash" || bash.Version != "5.2.15-2+b2" || bash.Format != sbom.FormatDeb {
		t.Errorf("bash record = %+v", bash)
	}
	// Constraints ride along as hint suffixes, first alternative kept.
	want := []string{"libc6 >= 2.34", "libtinfo6 >= 6"}
	if len(bash.Requires) != len(want) || bash.Requires[0] != want[0] || bash.Requires[1] != want[1] {
		t.Errorf("requires = %v, want %v", bash.Requires, want)
	}
	if len(bash.Checksums) != 1 || bash.Checksums[0].Algorithm != "MD5" {
		t.Errorf("stanza digest missing: %v", bash.Checksums)
	}

	libc := recs[1]
	if len(libc.Provides) != 1 || libc.Provides[0] != "libc6-i686" {
		t.Errorf("provides = %v", libc.Provides)
	}
	if len(libc.Requires) != 2 || libc.Requires[1] != "libcrypt1 >= 1:4.1.0" {
		t.Errorf("requires = %v, epoch constraint should survive", libc.Requires)
	}
}

func TestSplitDebRelations(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"libc6 (>= 2.34), libtinfo6", []string{"libc6 >= 2.34", "libtinfo6"}},
		{"default-mta | mail-transport-agent", []string{"default-mta"}},
		{"python3:any (>= 3.8)", []string{"python3 >= 3.8"}},
		{"libgcc1 (<< 5.0)", []string{"libgcc1 < 5.0"}},
		{"zlib1g (>> 1.2)", []string{"zlib1g > 1.2"}},
		{"dup, dup", []string{"dup"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitDebRelations(c.in)
		if len(got) != len(c.want) {
			t.Errorf("splitDebRelations(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("splitDebRelations(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestDpkgDetectorMalformedStanza(t *testing.T) {
	root := t.TempDir()
	writeDpkgStatus(t, root, `Package: good
Status: install ok installed
Version: 1.0

this line has no field separator
Package: shadowed

Package: also-good
Status: install ok installed
Version: 2.0
`)

	rep := &recordingReporter{}
	recs, err := DpkgDetector{}.Extract(context.Background(), root, rep)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "good" || recs[1].Name != "also-good" {
		t.Errorf("records = %+v", recs)
	}
	if got := rep.failed(); len(got) != 1 {
		t.Errorf("failures = %v, want the malformed stanza", got)
	}
}

func TestDpkgStanzaDigestIsStable(t *testing.T) {
	root1, root2 := t.TempDir(), t.TempDir()
	writeDpkgStatus(t, root1, dpkgStatusFixture)
	writeDpkgStatus(t, root2, dpkgStatusFixture)

	recs1, err := DpkgDetector{}.Extract(context.Background(), root1, NopReporter{})
	if err != nil {
		t.Fatal(err)
	}
	recs2, err := DpkgDetector{}.Extract(context.Background(), root2, NopReporter{})
	if err != nil {
		t.Fatal(err)
	}
	if recs1[0].Checksums[0].Digest != recs2[0].Checksums[0].Digest {
		t.Error("same stanza must digest identically across scans")
	}
}

func TestSplitNameVersion(t *testing.T) {
	cases := []struct {
		in, name, version string
	}{
		{"htop-3.2.2", "htop", "3.2.2"},
		{"some-tool-1.0", "some-tool", "1.0"},
		{"noversion", "noversion", ""},
		{"trailing-", "trailing-", ""},
	}
	for _, c := range cases {
		name, version := splitNameVersion(c.in)
		if name != c.name || version != c.version {
			t.Errorf("splitNameVersion(%q) = %q, %q; want %q, %q", c.in, name, version, c.name, c.version)
		}
	}
}

func TestProbeOS(t *testing.T) {
	root := t.TempDir()
	efi := filepath.Join(root, "EFI", "BOOT")
	if err := os.MkdirAll(efi, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(efi, "BOOTX64.EFI"), []byte{0x4d, 0x5a}, 0644); err != nil {
		t.Fatal(err)
	}

	info := ProbeOS(root, "openEuler-24.03-LTS-x86_64-dvd")
	if info.Arch != "x86_64" {
		t.Errorf("arch = %q", info.Arch)
	}
	if info.Name != "openEuler" || info.Version != "24.03-LTS" {
		t.Errorf("name/version = %q %q", info.Name, info.Version)
	}

	// Short names only yield the distribution name.
	short := ProbeOS(t.TempDir(), "mini-iso")
	if short.Name != "mini" || short.Version != "" {
		t.Errorf("short name parse = %+v", short)
	}
}

// failingDetector always errors; its failure must stay partial.
type failingDetector struct{}

func (failingDetector) Name() string       { return "failing" }
func (failingDetector) Detect(string) bool { return true }
func (failingDetector) Extract(context.Context, string, Reporter) ([]Record, error) {
	return nil, errors.New("database locked")
}

// stubDetector emits fixed records.
type stubDetector struct {
	name string
	recs []Record
}

func (d stubDetector) Name() string       { return d.name }
func (d stubDetector) Detect(string) bool { return true }
func (d stubDetector) Extract(context.Context, string, Reporter) ([]Record, error) {
	return d.recs, nil
}

func TestRegistryMergesInRegistrationOrder(t *testing.T) {
	r := &Registry{}
	r.Register(stubDetector{name: "first", recs: []Record{{Name: "a"}, {Name: "b"}}})
	r.Register(failingDetector{})
	r.Register(stubDetector{name: "second", recs: []Record{{Name: "c"}}})

	rep := &recordingReporter{}
	recs, err := r.RunAll(context.Background(), t.TempDir(), rep, 2)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	names := make([]string, len(recs))
	for i, rec := range recs {
		names[i] = rec.Name
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("merged order = %v", names)
	}
	if got := rep.failed(); len(got) != 1 || got[0] != "failing" {
		t.Errorf("failures = %v", got)
	}
}

func TestRegistryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := t.TempDir()
	rpmtest.Write(t, filepath.Join(root, "Packages"), rpmtest.Spec{
		Name: "x", Version: "1", Release: "1", Arch: "noarch",
	})

	_, err := NewRegistry().RunAll(ctx, root, NopReporter{}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}
