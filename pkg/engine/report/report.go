// Package report renders a reconciled document into its two on-disk forms:
// the condensed JSON this tool reads back on incremental runs, and an SPDX
// 2.3 JSON document for everything else.
package report

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"github.com/openeuler-mirror/xlin-sbom/pkg/storage"
)

// CondensedName returns the blob key for the condensed report.
func CondensedName(docName string) string {
	return "xlin-sbom_" + docName + ".json"
}

// SPDXName returns the blob key for the SPDX report.
func SPDXName(docName string) string {
	return "spdx-sbom_" + docName + ".json"
}

// EncodeSPDX renders the SPDX projection of a document, indented, with a
// trailing newline.
func EncodeSPDX(doc *sbom.Document) ([]byte, error) {
	data, err := json.MarshalIndent(BuildSPDX(doc), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode SPDX document: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteAll sorts and validates the document, then writes both report files
// through the store. The pair is treated as one emission: if the second
// write fails, the first is rolled back so a consumer never sees a report
// set that disagrees with itself.
func WriteAll(ctx context.Context, store storage.BlobStore, doc *sbom.Document) error {
	ctx, span := otel.Tracer("xlin-sbom/report").Start(ctx, "Report.WriteAll")
	defer span.End()

	doc.Sort()
	if err := doc.Validate(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("document failed validation before write: %w", err)
	}

	condensed, err := sbom.EncodeCondensed(doc)
	if err != nil {
		return err
	}
	spdx, err := EncodeSPDX(doc)
	if err != nil {
		return err
	}

	span.SetAttributes(
		attribute.Int("report.components", len(doc.Components)),
		attribute.Int("report.relationships", len(doc.Relationships)),
	)

	condensedKey := CondensedName(doc.Name)
	if err := store.Put(ctx, condensedKey, condensed); err != nil {
		span.RecordError(err)
		return fmt.Errorf("write condensed report: %w", err)
	}
	if err := store.Put(ctx, SPDXName(doc.Name), spdx); err != nil {
		span.RecordError(err)
		if rbErr := store.Delete(ctx, condensedKey); rbErr != nil {
			return fmt.Errorf("write SPDX report: %w (rollback of %s also failed: %v)", err, condensedKey, rbErr)
		}
		return fmt.Errorf("write SPDX report: %w", err)
	}
	return nil
}
