package rpm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var headerMagic = []byte{0x8e, 0xad, 0xe8}

// Caps against corrupt or hostile inputs. A header that claims more index
// entries or store bytes than this is treated as malformed, not allocated.
const (
	maxIndexEntries = 0xffff
	maxStoreSize    = 256 << 20
)

type indexEntry struct {
	typ    int32
	offset int32
	count  int32
}

// header holds one parsed header region: the index keyed by tag plus the
// raw data store the index points into.
type header struct {
	entries map[int]indexEntry
	store   []byte
}

// readHeader consumes one header region from r. The signature header is
// padded to an 8-byte boundary on disk; the main header is not.
func readHeader(r io.Reader, padded bool) (*header, error) {
	pre := make([]byte, 16)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("short preamble: %w", err)
	}
	if !bytes.Equal(pre[:3], headerMagic) {
		return nil, errors.New("bad header magic")
	}

	nindex := int(int32(binary.BigEndian.Uint32(pre[8:12])))
	hsize := int(int32(binary.BigEndian.Uint32(pre[12:16])))
	if nindex < 0 || nindex > maxIndexEntries {
		return nil, fmt.Errorf("implausible index entry count %d", nindex)
	}
	if hsize < 0 || hsize > maxStoreSize {
		return nil, fmt.Errorf("implausible store size %d", hsize)
	}

	idx := make([]byte, nindex*16)
	if _, err := io.ReadFull(r, idx); err != nil {
		return nil, fmt.Errorf("short index: %w", err)
	}
	store := make([]byte, hsize)
	if _, err := io.ReadFull(r, store); err != nil {
		return nil, fmt.Errorf("short store: %w", err)
	}
	if padded {
		if pad := (8 - hsize%8) % 8; pad > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
				return nil, fmt.Errorf("short pad: %w", err)
			}
		}
	}

	h := &header{entries: make(map[int]indexEntry, nindex), store: store}
	for i := 0; i < nindex; i++ {
		e := idx[i*16:]
		tag := int(int32(binary.BigEndian.Uint32(e[0:4])))
		h.entries[tag] = indexEntry{
			typ:    int32(binary.BigEndian.Uint32(e[4:8])),
			offset: int32(binary.BigEndian.Uint32(e[8:12])),
			count:  int32(binary.BigEndian.Uint32(e[12:16])),
		}
	}
	return h, nil
}

// str returns the value of a STRING or I18NSTRING tag. For I18N entries
// the first (C locale) string is taken.
func (h *header) str(tag int) string {
	e, ok := h.entries[tag]
	if !ok || (e.typ != TypeString && e.typ != TypeI18NString) {
		return ""
	}
	return h.cstring(int(e.offset))
}

func (h *header) strSlice(tag int) []string {
	e, ok := h.entries[tag]
	if !ok || (e.typ != TypeStringArray && e.typ != TypeI18NString) {
		return nil
	}
	out := make([]string, 0, e.count)
	off := int(e.offset)
	for i := 0; i < int(e.count); i++ {
		if off < 0 || off >= len(h.store) {
			break
		}
		s := h.cstring(off)
		out = append(out, s)
		off += len(s) + 1
	}
	return out
}

func (h *header) int32s(tag int) []int32 {
	e, ok := h.entries[tag]
	if !ok || e.typ != TypeInt32 {
		return nil
	}
	off, n := int(e.offset), int(e.count)
	if off < 0 || n < 0 || off+n*4 > len(h.store) {
		return nil
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		out[i] = int32(binary.BigEndian.Uint32(h.store[off+i*4:]))
	}
	return out
}

func (h *header) int32Value(tag int) (int32, bool) {
	vals := h.int32s(tag)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func (h *header) bin(tag int) []byte {
	e, ok := h.entries[tag]
	if !ok || e.typ != TypeBin {
		return nil
	}
	off, n := int(e.offset), int(e.count)
	if off < 0 || n < 0 || off+n > len(h.store) {
		return nil
	}
	return h.store[off : off+n]
}

func (h *header) cstring(off int) string {
	if off < 0 || off >= len(h.store) {
		return ""
	}
	end := bytes.IndexByte(h.store[off:], 0)
	if end < 0 {
		return string(h.store[off:])
	}
	return string(h.store[off : off+end])
}
