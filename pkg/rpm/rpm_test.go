package rpm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openeuler-mirror/xlin-sbom/pkg/rpm"
	"github.com/openeuler-mirror/xlin-sbom/pkg/rpm/rpmtest"
)

func TestParseRoundTrip(t *testing.T) {
	raw := rpmtest.Build(rpmtest.Spec{
		Name:     "bash",
		Version:  "5.2.15",
		Release:  "2.oe2403",
		Arch:     "x86_64",
		Summary:  "The GNU Bourne Again shell",
		License:  "GPLv3+",
		Vendor:   "openEuler",
		URL:      "https://www.gnu.org/software/bash",
		Requires: []string{"glibc", "ncurses-libs", "rpmlib(PayloadFilesHavePrefix)"},
		Provides: []string{"bash", "/bin/sh"},
		Files: []rpmtest.File{
			{Dir: "/usr/bin/", Name: "bash", MD5: "0f87d3d45e443dbd3b373f169e4d53cc"},
			{Dir: "/usr/share/man/man1/", Name: "bash.1.gz", MD5: "8b7a5c1e2f0d4f6a9b3c2d1e0f9a8b7c"},
			{Dir: "/usr/share/doc/bash/", Name: "", MD5: ""},
		},
		Payload: []byte("fixture payload"),
	})

	p, err := rpm.Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if p.Name != "bash" || p.Version != "5.2.15" || p.Release != "2.oe2403" {
		t.Errorf("NVR mismatch: %s %s %s", p.Name, p.Version, p.Release)
	}
	if p.Arch != "x86_64" {
		t.Errorf("arch = %q", p.Arch)
	}
	if p.License != "GPLv3+" || p.Vendor != "openEuler" {
		t.Errorf("license/vendor mismatch: %q %q", p.License, p.Vendor)
	}
	if p.Summary != "The GNU Bourne Again shell" {
		t.Errorf("summary = %q", p.Summary)
	}
	if got := p.VersionRelease(); got != "5.2.15-2.oe2403" {
		t.Errorf("VersionRelease = %q", got)
	}
	if len(p.RequireNames) != 3 || p.RequireNames[1] != "ncurses-libs" {
		t.Errorf("requires = %v", p.RequireNames)
	}
	if len(p.ProvideNames) != 2 || p.ProvideNames[1] != "/bin/sh" {
		t.Errorf("provides = %v", p.ProvideNames)
	}
	if len(p.HeaderDigest) != 32 {
		t.Errorf("header digest = %q", p.HeaderDigest)
	}

	files := p.Files()
	if len(files) != 3 {
		t.Fatalf("files = %d, want 3", len(files))
	}
	if files[0].Path != "/usr/bin/bash" || files[0].Digest == "" {
		t.Errorf("file[0] = %+v", files[0])
	}
	if files[2].Digest != "" {
		t.Errorf("directory entry should carry no digest: %+v", files[2])
	}
}

func TestParseEpoch(t *testing.T) {
	raw := rpmtest.Build(rpmtest.Spec{
		Name: "openssl", Version: "3.0.12", Release: "1", Arch: "aarch64", Epoch: 1,
	})
	p, err := rpm.Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Epoch != 1 {
		t.Errorf("epoch = %d", p.Epoch)
	}
	if got := p.EVR(); got != "1:3.0.12-1" {
		t.Errorf("EVR = %q", got)
	}
}

func TestParseVersionedCapabilities(t *testing.T) {
	raw := rpmtest.Build(rpmtest.Spec{
		Name: "foo", Version: "2.0", Release: "1", Arch: "noarch",
		Requires: []string{"bar >= 1.5", "baz", "qux < 3.0"},
		Provides: []string{"libfoo = 2.0", "foo-compat"},
	})
	p, err := rpm.Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	reqs := p.Requires()
	if len(reqs) != 3 {
		t.Fatalf("requires = %d, want 3", len(reqs))
	}
	for i, want := range []string{"bar >= 1.5", "baz", "qux < 3.0"} {
		if got := reqs[i].String(); got != want {
			t.Errorf("requires[%d] = %q, want %q", i, got, want)
		}
	}

	provs := p.Provides()
	if len(provs) != 2 {
		t.Fatalf("provides = %d, want 2", len(provs))
	}
	if got := provs[0].String(); got != "libfoo = 2.0" {
		t.Errorf("provides[0] = %q", got)
	}
	if got := provs[1].String(); got != "foo-compat" {
		t.Errorf("provides[1] = %q", got)
	}
}

func TestRebuildChangesHeaderDigest(t *testing.T) {
	spec := rpmtest.Spec{Name: "foo", Version: "1.0", Release: "1", Arch: "noarch", Payload: []byte("a")}
	first, err := rpm.Parse(bytes.NewReader(rpmtest.Build(spec)))
	if err != nil {
		t.Fatal(err)
	}
	spec.Payload = []byte("b")
	second, err := rpm.Parse(bytes.NewReader(rpmtest.Build(spec)))
	if err != nil {
		t.Fatal(err)
	}
	if first.HeaderDigest == second.HeaderDigest {
		t.Error("rebuilt package should carry a different signature digest")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	var perr *rpm.ParseError

	_, err := rpm.Parse(bytes.NewReader([]byte("definitely not an rpm file")))
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError, got %v", err)
	}

	// Valid lead, truncated header.
	raw := rpmtest.Build(rpmtest.Spec{Name: "x", Version: "1", Release: "1", Arch: "noarch"})
	_, err = rpm.Parse(bytes.NewReader(raw[:100]))
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError for truncated input, got %v", err)
	}
}
