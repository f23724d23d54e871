// Package rpm reads the metadata headers of RPM package files.
//
// It decodes the lead, the signature header and the main header directly
// from the binary layout. The compressed payload is never unpacked; file
// listings and digests come from the header, which is all SBOM discovery
// needs.
package rpm

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

const leadSize = 96

var leadMagic = []byte{0xed, 0xab, 0xee, 0xdb}

// ParseError describes a malformed or truncated package file.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Path == "" {
		return "rpm: " + msg
	}
	return fmt.Sprintf("rpm %s: %s", e.Path, msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FileEntry is one file recorded in a package header. Digest is empty for
// directories and ghost entries.
type FileEntry struct {
	Path   string
	Name   string
	Digest string
}

// Package is the decoded metadata of one .rpm file.
type Package struct {
	Name        string
	Version     string
	Release     string
	Epoch       int
	Arch        string
	Summary     string
	Description string
	Vendor      string
	License     string
	Packager    string
	URL         string
	SourceRPM   string

	RequireNames    []string
	RequireVersions []string
	RequireFlags    []int32
	ProvideNames    []string
	ProvideVersions []string

	// HeaderDigest is the MD5 recorded in the signature header, hex encoded.
	// It changes whenever the package is rebuilt, even at equal versions.
	HeaderDigest string

	// DigestAlgo names the algorithm of the per-file digests (MD5 unless
	// the header says otherwise).
	DigestAlgo string

	dirNames    []string
	dirIndexes  []int32
	baseNames   []string
	fileDigests []string
}

// Open reads and parses the package file at path.
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Parse(bufio.NewReader(f))
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}
	return p, nil
}

// Parse decodes package metadata from r.
func Parse(r io.Reader) (*Package, error) {
	lead := make([]byte, leadSize)
	if _, err := io.ReadFull(r, lead); err != nil {
		return nil, &ParseError{Reason: "short lead", Err: err}
	}
	if !bytes.Equal(lead[:4], leadMagic) {
		return nil, &ParseError{Reason: "not an rpm package (bad lead magic)"}
	}

	sig, err := readHeader(r, true)
	if err != nil {
		return nil, &ParseError{Reason: "signature header", Err: err}
	}
	hdr, err := readHeader(r, false)
	if err != nil {
		return nil, &ParseError{Reason: "main header", Err: err}
	}

	p := &Package{
		Name:        hdr.str(TagName),
		Version:     hdr.str(TagVersion),
		Release:     hdr.str(TagRelease),
		Arch:        hdr.str(TagArch),
		Summary:     hdr.str(TagSummary),
		Description: hdr.str(TagDescription),
		Vendor:      hdr.str(TagVendor),
		License:     hdr.str(TagLicense),
		Packager:    hdr.str(TagPackager),
		URL:         hdr.str(TagURL),
		SourceRPM:   hdr.str(TagSourceRPM),

		RequireNames:    hdr.strSlice(TagRequireName),
		RequireVersions: hdr.strSlice(TagRequireVersion),
		RequireFlags:    hdr.int32s(TagRequireFlags),
		ProvideNames:    hdr.strSlice(TagProvideName),
		ProvideVersions: hdr.strSlice(TagProvideVersion),

		DigestAlgo: "MD5",

		dirNames:    hdr.strSlice(TagDirNames),
		dirIndexes:  hdr.int32s(TagDirIndexes),
		baseNames:   hdr.strSlice(TagBaseNames),
		fileDigests: hdr.strSlice(TagFileDigests),
	}
	if p.Name == "" {
		return nil, &ParseError{Reason: "header carries no package name"}
	}
	if epoch, ok := hdr.int32Value(TagEpoch); ok {
		p.Epoch = int(epoch)
	}
	if algo, ok := hdr.int32Value(TagFileDigestAlgo); ok && algo == digestAlgoSHA256 {
		p.DigestAlgo = "SHA256"
	}
	if md5sum := sig.bin(SigTagMD5); len(md5sum) == 16 {
		p.HeaderDigest = hex.EncodeToString(md5sum)
	}
	return p, nil
}

// EVR renders the full epoch:version-release string used for ordering.
func (p *Package) EVR() string {
	vr := p.Version + "-" + p.Release
	if p.Epoch > 0 {
		return strconv.Itoa(p.Epoch) + ":" + vr
	}
	return vr
}

// VersionRelease renders version-release without the epoch, the form user
// facing version fields carry.
func (p *Package) VersionRelease() string {
	if p.Release == "" {
		return p.Version
	}
	return p.Version + "-" + p.Release
}

// Sense flag bits of require/provide entries, from rpmds.h.
const (
	senseLess    = 0x02
	senseGreater = 0x04
	senseEqual   = 0x08
)

// Capability is one entry of a requires or provides list: a name plus an
// optional version constraint ("" operator means unversioned).
type Capability struct {
	Name    string
	Op      string // "", "<", "<=", "=", ">=", ">"
	Version string // EVR string, empty when Op is empty
}

// String renders the capability in the conventional "name op version" form.
func (c Capability) String() string {
	if c.Op == "" {
		return c.Name
	}
	return c.Name + " " + c.Op + " " + c.Version
}

// Requires assembles the structured requirement list from the parallel
// name/version/flags arrays.
func (p *Package) Requires() []Capability {
	return capabilities(p.RequireNames, p.RequireVersions, p.RequireFlags)
}

// Provides assembles the structured capability list the package offers.
// Provide flags are not retained; provides carry "=" whenever a version
// string is present.
func (p *Package) Provides() []Capability {
	caps := make([]Capability, 0, len(p.ProvideNames))
	for i, name := range p.ProvideNames {
		c := Capability{Name: name}
		if i < len(p.ProvideVersions) && p.ProvideVersions[i] != "" {
			c.Op, c.Version = "=", p.ProvideVersions[i]
		}
		caps = append(caps, c)
	}
	return caps
}

func capabilities(names, versions []string, flags []int32) []Capability {
	caps := make([]Capability, 0, len(names))
	for i, name := range names {
		c := Capability{Name: name}
		if i < len(versions) && versions[i] != "" {
			c.Version = versions[i]
			if i < len(flags) {
				c.Op = senseOp(flags[i])
			}
			if c.Op == "" {
				c.Op = "="
			}
		}
		caps = append(caps, c)
	}
	return caps
}

func senseOp(flags int32) string {
	switch {
	case flags&senseLess != 0 && flags&senseEqual != 0:
		return "<="
	case flags&senseGreater != 0 && flags&senseEqual != 0:
		return ">="
	case flags&senseLess != 0:
		return "<"
	case flags&senseGreater != 0:
		return ">"
	case flags&senseEqual != 0:
		return "="
	default:
		return ""
	}
}

// Files reconstructs the file list from the dirname/dirindex/basename
// triple. Entries whose digest slot is empty (directories, ghost files)
// are returned with an empty Digest.
func (p *Package) Files() []FileEntry {
	n := len(p.baseNames)
	if n == 0 || len(p.dirIndexes) != n {
		return nil
	}
	out := make([]FileEntry, 0, n)
	for i, base := range p.baseNames {
		di := int(p.dirIndexes[i])
		if di < 0 || di >= len(p.dirNames) {
			continue
		}
		digest := ""
		if i < len(p.fileDigests) {
			digest = p.fileDigests[i]
		}
		out = append(out, FileEntry{
			Path:   p.dirNames[di] + base,
			Name:   base,
			Digest: digest,
		})
	}
	return out
}
