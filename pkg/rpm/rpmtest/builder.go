// Package rpmtest assembles minimal but well-formed .rpm bytes for tests,
// in the spirit of httptest: the fixtures are built in memory, no rpmbuild
// toolchain required.
package rpmtest

import (
	"crypto/md5"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/openeuler-mirror/xlin-sbom/pkg/rpm"
)

// File describes one payload file recorded in the fixture's header.
type File struct {
	Dir  string // directory with trailing slash, e.g. "/usr/bin/"
	Name string
	MD5  string // hex digest; empty marks a directory entry
}

// Spec holds the header fields of a fixture package. Zero-value fields are
// simply omitted from the header.
type Spec struct {
	Name     string
	Version  string
	Release  string
	Epoch    int
	Arch     string
	Summary  string
	License  string
	Vendor   string
	Packager string
	URL      string

	// Requires and Provides entries are either bare capability names or
	// "name op version" constraints, e.g. "bar >= 1.5".
	Requires []string
	Provides []string
	Files    []File

	// Payload stands in for the compressed archive. Parsers ignore it but
	// whole-file digests cover it, so varying it simulates a rebuild.
	Payload []byte
}

// Build renders the spec as .rpm bytes.
func Build(spec Spec) []byte {
	var hdr headerWriter
	hdr.addString(rpm.TagName, spec.Name)
	hdr.addString(rpm.TagVersion, spec.Version)
	hdr.addString(rpm.TagRelease, spec.Release)
	if spec.Epoch > 0 {
		hdr.addInt32(rpm.TagEpoch, []int32{int32(spec.Epoch)})
	}
	hdr.addI18NString(rpm.TagSummary, spec.Summary)
	hdr.addString(rpm.TagVendor, spec.Vendor)
	hdr.addString(rpm.TagLicense, spec.License)
	hdr.addString(rpm.TagPackager, spec.Packager)
	hdr.addString(rpm.TagURL, spec.URL)
	hdr.addString(rpm.TagArch, spec.Arch)

	if len(spec.Requires) > 0 {
		names, versions, flags := capabilityArrays(spec.Requires)
		hdr.addStringArray(rpm.TagRequireName, names)
		hdr.addStringArray(rpm.TagRequireVersion, versions)
		hdr.addInt32(rpm.TagRequireFlags, flags)
	}
	if len(spec.Provides) > 0 {
		names, versions, flags := capabilityArrays(spec.Provides)
		hdr.addStringArray(rpm.TagProvideName, names)
		hdr.addStringArray(rpm.TagProvideVersion, versions)
		hdr.addInt32(rpm.TagProvideFlags, flags)
	}

	if len(spec.Files) > 0 {
		var dirs []string
		dirIndex := map[string]int32{}
		for _, f := range spec.Files {
			if _, ok := dirIndex[f.Dir]; !ok {
				dirIndex[f.Dir] = int32(len(dirs))
				dirs = append(dirs, f.Dir)
			}
		}
		indexes := make([]int32, len(spec.Files))
		bases := make([]string, len(spec.Files))
		digests := make([]string, len(spec.Files))
		for i, f := range spec.Files {
			indexes[i] = dirIndex[f.Dir]
			bases[i] = f.Name
			digests[i] = f.MD5
		}
		hdr.addStringArray(rpm.TagFileDigests, digests)
		hdr.addInt32(rpm.TagDirIndexes, indexes)
		hdr.addStringArray(rpm.TagBaseNames, bases)
		hdr.addStringArray(rpm.TagDirNames, dirs)
	}

	main := hdr.render(false)

	// Signature MD5 covers header plus payload, like the real thing.
	sum := md5.New()
	sum.Write(main)
	sum.Write(spec.Payload)

	var sig headerWriter
	sig.addBin(rpm.SigTagMD5, sum.Sum(nil))
	sigBytes := sig.render(true)

	lead := make([]byte, 96)
	copy(lead, []byte{0xed, 0xab, 0xee, 0xdb})
	lead[4], lead[5] = 3, 0 // format version 3.0
	copy(lead[10:76], spec.Name)

	out := make([]byte, 0, len(lead)+len(sigBytes)+len(main)+len(spec.Payload))
	out = append(out, lead...)
	out = append(out, sigBytes...)
	out = append(out, main...)
	out = append(out, spec.Payload...)
	return out
}

// capabilityArrays splits capability strings into the parallel name,
// version and sense-flag arrays the header stores. Flag bits follow
// rpmds.h: 0x02 less, 0x04 greater, 0x08 equal.
func capabilityArrays(caps []string) ([]string, []string, []int32) {
	names := make([]string, len(caps))
	versions := make([]string, len(caps))
	flags := make([]int32, len(caps))
	for i, raw := range caps {
		names[i] = raw
		fields := strings.Fields(raw)
		if len(fields) != 3 {
			continue
		}
		var f int32
		switch fields[1] {
		case "<":
			f = 0x02
		case "<=":
			f = 0x02 | 0x08
		case "=":
			f = 0x08
		case ">=":
			f = 0x04 | 0x08
		case ">":
			f = 0x04
		default:
			continue
		}
		names[i], versions[i], flags[i] = fields[0], fields[2], f
	}
	return names, versions, flags
}

// Write builds the spec and drops it into dir under the conventional
// name-version-release.arch.rpm filename, returning the full path.
func Write(t *testing.T, dir string, spec Spec) string {
	t.Helper()
	name := spec.Name + "-" + spec.Version + "-" + spec.Release + "." + spec.Arch + ".rpm"
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("rpmtest: mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, Build(spec), 0644); err != nil {
		t.Fatalf("rpmtest: write %s: %v", path, err)
	}
	return path
}

type entry struct {
	tag   int
	typ   int32
	count int32
	data  []byte
	align int
}

type headerWriter struct {
	entries []entry
}

func (w *headerWriter) addString(tag int, s string) {
	if s == "" {
		return
	}
	w.entries = append(w.entries, entry{tag: tag, typ: rpm.TypeString, count: 1, data: append([]byte(s), 0), align: 1})
}

func (w *headerWriter) addI18NString(tag int, s string) {
	if s == "" {
		return
	}
	w.entries = append(w.entries, entry{tag: tag, typ: rpm.TypeI18NString, count: 1, data: append([]byte(s), 0), align: 1})
}

func (w *headerWriter) addStringArray(tag int, vals []string) {
	var data []byte
	for _, v := range vals {
		data = append(data, v...)
		data = append(data, 0)
	}
	w.entries = append(w.entries, entry{tag: tag, typ: rpm.TypeStringArray, count: int32(len(vals)), data: data, align: 1})
}

func (w *headerWriter) addInt32(tag int, vals []int32) {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(data[i*4:], uint32(v))
	}
	w.entries = append(w.entries, entry{tag: tag, typ: rpm.TypeInt32, count: int32(len(vals)), data: data, align: 4})
}

func (w *headerWriter) addBin(tag int, b []byte) {
	w.entries = append(w.entries, entry{tag: tag, typ: rpm.TypeBin, count: int32(len(b)), data: b, align: 1})
}

// render serializes the header region: preamble, index, store. Real rpm
// pads the signature header to an 8 byte boundary, so padded does too.
func (w *headerWriter) render(padded bool) []byte {
	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].tag < w.entries[j].tag })

	var store []byte
	index := make([]byte, 0, len(w.entries)*16)
	for _, e := range w.entries {
		for e.align > 1 && len(store)%e.align != 0 {
			store = append(store, 0)
		}
		var rec [16]byte
		binary.BigEndian.PutUint32(rec[0:4], uint32(e.tag))
		binary.BigEndian.PutUint32(rec[4:8], uint32(e.typ))
		binary.BigEndian.PutUint32(rec[8:12], uint32(len(store)))
		binary.BigEndian.PutUint32(rec[12:16], uint32(e.count))
		index = append(index, rec[:]...)
		store = append(store, e.data...)
	}

	out := make([]byte, 0, 16+len(index)+len(store)+8)
	out = append(out, 0x8e, 0xad, 0xe8, 0x01, 0, 0, 0, 0)
	var sizes [8]byte
	binary.BigEndian.PutUint32(sizes[0:4], uint32(len(w.entries)))
	binary.BigEndian.PutUint32(sizes[4:8], uint32(len(store)))
	out = append(out, sizes[:]...)
	out = append(out, index...)
	out = append(out, store...)
	if padded {
		for pad := (8 - len(store)%8) % 8; pad > 0; pad-- {
			out = append(out, 0)
		}
	}
	return out
}
