package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"github.com/openeuler-mirror/xlin-sbom/pkg/storage"
)

// goldenDocument is a fixed reconciled scan: one image root, two rpm
// packages, one embedded file. Everything is pinned so the rendered
// bytes never move.
func goldenDocument() *sbom.Document {
	const docUUID = "f2407803-1e2f-558f-b164-fabef84df0b0"

	d := sbom.NewDocument("golden-image", "xlin-sbom", "1.2.0")
	d.DocumentID = "urn:uuid:" + docUUID
	d.Namespace = "https://openeuler.org/spdx/golden-image-" + docUUID
	d.Created = "2026-03-01T12:00:00Z"
	d.OS = sbom.OSInfo{Name: "openEuler", Version: "24.03", Arch: "x86_64"}

	rootID := sbom.ImageID("golden-image")
	bashID := sbom.ComponentID(sbom.FormatRPM, "bash", "5.2-1.oe2403", "x86_64")
	readlineID := sbom.ComponentID(sbom.FormatRPM, "readline", "8.2-2.oe2403", "x86_64")
	fileID := sbom.FileID("bash", "/usr/bin/bash")

	d.Components = []sbom.Component{
		{
			ID:           rootID,
			Name:         "golden-image",
			Version:      "24.03",
			Architecture: "x86_64",
			Format:       sbom.FormatImage,
			Origin:       sbom.OriginImageRoot,
			Description:  "scanned image root",
			Checksums: []sbom.Checksum{
				{Algorithm: "SHA1", Digest: "f572d396fae9206628714fb2ce00f72e94f2258f"},
				{Algorithm: "SHA256", Digest: "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"},
			},
		},
		{
			ID:           bashID,
			Name:         "bash",
			Version:      "5.2-1.oe2403",
			Architecture: "x86_64",
			Format:       sbom.FormatRPM,
			Origin:       sbom.OriginPackage,
			License:      "GPL-3.0-or-later",
			Supplier:     "openEuler Community",
			SupplierURL:  "https://www.openeuler.org",
			Homepage:     "https://www.gnu.org/software/bash",
			Description:  "The GNU Bourne Again shell",
			Checksums: []sbom.Checksum{
				{Algorithm: "SHA1", Digest: "356a192b7913b04c54574d18c28d46e6395428ab"},
				{Algorithm: "SHA256", Digest: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
			},
			EvidencePaths: []string{"Packages/bash-5.2-1.oe2403.x86_64.rpm"},
			DependsHints:  []string{"libreadline.so.8()(64bit)", "systemd"},
			Provides:      []string{"bash = 5.2-1.oe2403"},
		},
		{
			ID:           readlineID,
			Name:         "readline",
			Version:      "8.2-2.oe2403",
			Architecture: "x86_64",
			Format:       sbom.FormatRPM,
			Origin:       sbom.OriginPackage,
			License:      "MIT",
			Supplier:     "openEuler Community",
			SupplierURL:  "https://www.openeuler.org",
			Checksums: []sbom.Checksum{
				{Algorithm: "SHA1", Digest: "86f7e437faa5a7fce15d1ddcb9eaeaea377667b8"},
				{Algorithm: "SHA256", Digest: "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"},
			},
			EvidencePaths: []string{"Packages/readline-8.2-2.oe2403.x86_64.rpm"},
			Provides:      []string{"libreadline.so.8()(64bit)", "readline = 8.2-2.oe2403"},
		},
		{
			ID:            fileID,
			Name:          "bash",
			Format:        sbom.FormatRPM,
			Origin:        sbom.OriginFile,
			Checksums:     []sbom.Checksum{{Algorithm: "MD5", Digest: "d41d8cd98f00b204e9800998ecf8427e"}},
			EvidencePaths: []string{"/usr/bin/bash"},
		},
	}
	d.Relationships = []sbom.Relationship{
		{Source: bashID, Target: readlineID, Kind: sbom.RelDependsOn},
		{Source: bashID, Target: fileID, Kind: sbom.RelContains},
		{Source: rootID, Target: bashID, Kind: sbom.RelContains},
		{Source: rootID, Target: readlineID, Kind: sbom.RelContains},
		{Source: sbom.DocumentElementID, Target: rootID, Kind: sbom.RelDescribes},
	}
	d.Licenses = []sbom.LicenseInfo{
		{ID: sbom.LicenseRefID("GPL-3.0-or-later"), Name: "GPL-3.0-or-later"},
		{ID: sbom.LicenseRefID("MIT"), Name: "MIT"},
	}
	d.Unresolved = []sbom.UnresolvedDep{{Source: bashID, Capability: "systemd"}}
	d.Sort()
	return d
}

func TestGoldenCondensed(t *testing.T) {
	g := goldie.New(t)
	data, err := sbom.EncodeCondensed(goldenDocument())
	if err != nil {
		t.Fatal(err)
	}
	g.Assert(t, "condensed", data)
}

func TestGoldenSPDX(t *testing.T) {
	g := goldie.New(t)
	data, err := EncodeSPDX(goldenDocument())
	if err != nil {
		t.Fatal(err)
	}
	g.Assert(t, "spdx", data)
}

func TestBuildSPDXSplitsFilesFromPackages(t *testing.T) {
	out := BuildSPDX(goldenDocument())

	if len(out.Packages) != 3 || len(out.Files) != 1 {
		t.Fatalf("packages = %d, files = %d", len(out.Packages), len(out.Files))
	}
	if out.Files[0].FileName != "bash" {
		t.Errorf("file name = %q", out.Files[0].FileName)
	}

	root := out.Packages[0]
	if root.Supplier != "NOASSERTION" || root.LicenseDeclared != "NOASSERTION" {
		t.Errorf("image root must not assert metadata: %+v", root)
	}
	if len(root.ExternalRefs) != 0 {
		t.Errorf("image root has no package manager: %v", root.ExternalRefs)
	}

	bash := out.Packages[1]
	if bash.Supplier != "Organization: openEuler Community" {
		t.Errorf("supplier = %q", bash.Supplier)
	}
	if len(bash.ExternalRefs) != 1 ||
		bash.ExternalRefs[0].Locator != "pkg:rpm/bash@5.2-1.oe2403?arch=x86_64" {
		t.Errorf("purl = %+v", bash.ExternalRefs)
	}

	last := out.Relationships[len(out.Relationships)-1]
	if last.SPDXElementID != "SPDXRef-DOCUMENT" || last.RelationshipType != "DESCRIBES" {
		t.Errorf("document describe edge = %+v", last)
	}
}

func TestWriteAllEmitsBothReports(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewLocalStore(dir)
	doc := goldenDocument()

	if err := WriteAll(context.Background(), store, doc); err != nil {
		t.Fatalf("write: %v", err)
	}

	condensed, err := os.ReadFile(filepath.Join(dir, CondensedName("golden-image")))
	if err != nil {
		t.Fatalf("condensed report missing: %v", err)
	}
	if _, err := sbom.DecodeCondensed(condensed); err != nil {
		t.Errorf("emitted condensed report must load back: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, SPDXName("golden-image"))); err != nil {
		t.Errorf("SPDX report missing: %v", err)
	}
}

// faultStore fails Put for one key and records deletes, which is enough to
// watch the rollback happen.
type faultStore struct {
	puts    map[string][]byte
	deleted []string
	failKey string
}

func newFaultStore(failKey string) *faultStore {
	return &faultStore{puts: make(map[string][]byte), failKey: failKey}
}

func (s *faultStore) Put(ctx context.Context, key string, data []byte) error {
	if key == s.failKey {
		return errors.New("no space left on device")
	}
	s.puts[key] = data
	return nil
}

func (s *faultStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.puts[key], nil
}

func (s *faultStore) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (s *faultStore) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.puts, key)
	return nil
}

func TestWriteAllRollsBackCondensedOnSPDXFailure(t *testing.T) {
	store := newFaultStore(SPDXName("golden-image"))

	err := WriteAll(context.Background(), store, goldenDocument())
	if err == nil {
		t.Fatal("expected write failure")
	}
	if len(store.puts) != 0 {
		t.Errorf("condensed report left behind after failed pair: %v", store.puts)
	}
	if len(store.deleted) != 1 || store.deleted[0] != CondensedName("golden-image") {
		t.Errorf("rollback deletes = %v", store.deleted)
	}
}

func TestWriteAllRejectsInvalidDocument(t *testing.T) {
	store := newFaultStore("")
	doc := goldenDocument()
	doc.Relationships = append(doc.Relationships, sbom.Relationship{
		Source: "Package-ghost-000000000000", Target: doc.Components[0].ID, Kind: sbom.RelDependsOn,
	})

	if err := WriteAll(context.Background(), store, doc); err == nil {
		t.Fatal("invalid document must not be written")
	}
	if len(store.puts) != 0 {
		t.Errorf("nothing may land before validation: %v", store.puts)
	}
}
