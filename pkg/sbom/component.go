package sbom

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Format identifies the packaging ecosystem a component was discovered in.
type Format string

const (
	FormatRPM     Format = "rpm"
	FormatDeb     Format = "deb"
	FormatArchive Format = "archive"
	FormatImage   Format = "iso"
	FormatUnknown Format = "unknown"
)

// OriginKind records where in the scanned tree a component came from.
type OriginKind string

const (
	OriginPackage   OriginKind = "filesystem-package"
	OriginFile      OriginKind = "embedded-file"
	OriginImageRoot OriginKind = "iso-root"
)

// Checksum is a single content digest. Algorithm names follow SPDX
// conventions (MD5, SHA1, SHA256).
type Checksum struct {
	Algorithm string `json:"algorithm"`
	Digest    string `json:"checksumValue"`
}

// Component is one discovered software unit: a filesystem package, a file
// embedded in a package, or the scanned image itself.
type Component struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Version      string     `json:"versionInfo,omitempty"`
	Architecture string     `json:"architecture,omitempty"`
	Format       Format     `json:"format"`
	Origin       OriginKind `json:"origin"`

	License     string `json:"license,omitempty"`
	Supplier    string `json:"supplier,omitempty"`
	SupplierURL string `json:"supplierUrl,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	Description string `json:"description,omitempty"`

	Checksums     []Checksum `json:"checksums,omitempty"`
	EvidencePaths []string   `json:"evidencePaths,omitempty"`

	// DependsHints holds raw requirement names as declared by the package
	// metadata. The resolver turns them into edges or unresolved entries.
	DependsHints []string `json:"dependsHints,omitempty"`
	Provides     []string `json:"provides,omitempty"`

	// FingerprintErr marks a component whose backing bytes could not be
	// hashed. The record is kept; the digest set stays empty.
	FingerprintErr string `json:"fingerprintError,omitempty"`

	// Annotations carries externally added metadata. The engine never writes
	// them but round-trips whatever a prior SBOM contained.
	Annotations map[string]string `json:"annotations,omitempty"`

	// SourcePath points at the backing bytes for fingerprinting. Runtime
	// only, never serialized.
	SourcePath string `json:"-"`
}

// ComponentID derives the stable identity for a package-level component.
// Identity is content-free: two scans of the same name/version/arch/format
// yield the same ID even when the bytes changed, which is what lets the
// merge step classify such a change as an update.
func ComponentID(format Format, name, version, arch string) string {
	return "Package-" + name + "-" + shortHash(string(format), name, version, arch)
}

// FileID derives the identity of a file embedded in a package. The path
// inside the image distinguishes files that share a basename.
func FileID(name, path string) string {
	return "File-" + name + "-" + shortHash(path)
}

// ImageID derives the identity of the scanned image's root pseudo-component.
func ImageID(name string) string {
	return "Image-" + name + "-" + shortHash(name)
}

// LicenseRefID derives the extracted-license identifier for a license name.
func LicenseRefID(name string) string {
	sum := md5.Sum([]byte(name))
	return "LicenseRef-" + hex.EncodeToString(sum[:])
}

func shortHash(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])[:12]
}

// EquivalentTo reports whether two records of the same identity carry the
// same content. Evidence paths and annotations are provenance, not content,
// and are excluded; checksums are compared and therefore decide the
// unchanged/updated classification even when version strings match.
func (c Component) EquivalentTo(other Component) bool {
	if c.ID != other.ID ||
		c.Name != other.Name ||
		c.Version != other.Version ||
		c.Architecture != other.Architecture ||
		c.Format != other.Format ||
		c.Origin != other.Origin ||
		c.License != other.License ||
		c.Supplier != other.Supplier ||
		c.SupplierURL != other.SupplierURL ||
		c.Homepage != other.Homepage ||
		c.Description != other.Description ||
		c.FingerprintErr != other.FingerprintErr {
		return false
	}
	if !equalChecksums(c.Checksums, other.Checksums) {
		return false
	}
	if !equalStrings(c.DependsHints, other.DependsHints) {
		return false
	}
	return equalStrings(c.Provides, other.Provides)
}

// ChecksumFor returns the digest for the given algorithm, or "".
func (c Component) ChecksumFor(algorithm string) string {
	for _, cs := range c.Checksums {
		if cs.Algorithm == algorithm {
			return cs.Digest
		}
	}
	return ""
}

func equalChecksums(a, b []Checksum) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
