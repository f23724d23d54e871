package sbom

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadSchema means the input is not a condensed SBOM this tool understands.
var ErrBadSchema = errors.New("unsupported condensed SBOM schema")

// EncodeCondensed renders the document as condensed JSON. Callers are
// expected to Sort() first; the encoder writes fields in declaration order
// and adds a trailing newline, so equal documents produce equal bytes.
func EncodeCondensed(d *Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode condensed SBOM: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeCondensed parses a condensed SBOM produced by EncodeCondensed.
// Anything that does not carry the expected schema tag, or fails the
// document invariants, is rejected: a malformed prior SBOM must abort an
// incremental run rather than silently degrade it.
func DecodeCondensed(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse condensed SBOM: %w", err)
	}
	if d.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: %q", ErrBadSchema, d.Schema)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid condensed SBOM: %w", err)
	}
	return &d, nil
}
