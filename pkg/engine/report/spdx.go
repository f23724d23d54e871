package report

import (
	"fmt"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

// SPDX 2.3 JSON shapes, trimmed to the fields this tool emits.

type SPDXDocument struct {
	SPDXVersion       string             `json:"spdxVersion"`
	DataLicense       string             `json:"dataLicense"`
	SPDXID            string             `json:"SPDXID"`
	Name              string             `json:"name"`
	DocumentNamespace string             `json:"documentNamespace"`
	CreationInfo      CreationInfo       `json:"creationInfo"`
	Packages          []SPDXPackage      `json:"packages"`
	Files             []SPDXFile         `json:"files,omitempty"`
	ExtractedLicenses []ExtractedLicense `json:"hasExtractedLicensingInfos,omitempty"`
	Relationships     []SPDXRelationship `json:"relationships,omitempty"`
}

type CreationInfo struct {
	Created            string   `json:"created"`
	Creators           []string `json:"creators"`
	LicenseListVersion string   `json:"licenseListVersion"`
}

type SPDXPackage struct {
	SPDXID           string          `json:"SPDXID"`
	Name             string          `json:"name"`
	VersionInfo      string          `json:"versionInfo"`
	DownloadLocation string          `json:"downloadLocation"`
	FilesAnalyzed    bool            `json:"filesAnalyzed"`
	Supplier         string          `json:"supplier"`
	HomePage         string          `json:"homePage,omitempty"`
	LicenseConcluded string          `json:"licenseConcluded"`
	LicenseDeclared  string          `json:"licenseDeclared"`
	CopyrightText    string          `json:"copyrightText"`
	Description      string          `json:"description"`
	Checksums        []sbom.Checksum `json:"checksums,omitempty"`
	ExternalRefs     []ExternalRef   `json:"externalRefs,omitempty"`
}

type SPDXFile struct {
	FileName  string          `json:"fileName"`
	SPDXID    string          `json:"SPDXID"`
	Checksums []sbom.Checksum `json:"checksums,omitempty"`
}

type ExtractedLicense struct {
	LicenseID     string `json:"licenseId"`
	Name          string `json:"name"`
	ExtractedText string `json:"extractedText"`
}

type SPDXRelationship struct {
	SPDXElementID      string `json:"spdxElementId"`
	RelatedSPDXElement string `json:"relatedSpdxElement"`
	RelationshipType   string `json:"relationshipType"`
}

type ExternalRef struct {
	Category string `json:"referenceCategory"`
	Type     string `json:"referenceType"`
	Locator  string `json:"referenceLocator"`
}

const (
	spdxVersion        = "SPDX-2.3"
	dataLicense        = "CC0-1.0"
	licenseListVersion = "3.23"
	documentRef        = "SPDXRef-DOCUMENT"
	noAssertion        = "NOASSERTION"
)

// BuildSPDX projects a condensed document onto the SPDX 2.3 shape. The input
// is expected to be sorted and validated; projection preserves order, so the
// result is deterministic whenever the input is.
func BuildSPDX(doc *sbom.Document) *SPDXDocument {
	out := &SPDXDocument{
		SPDXVersion:       spdxVersion,
		DataLicense:       dataLicense,
		SPDXID:            documentRef,
		Name:              doc.Name,
		DocumentNamespace: doc.Namespace,
		CreationInfo: CreationInfo{
			Created: doc.Created,
			Creators: []string{
				fmt.Sprintf("Tool: %s-%s", doc.ToolName, doc.ToolVersion),
				"Organization: openEuler community",
			},
			LicenseListVersion: licenseListVersion,
		},
	}

	for _, c := range doc.Components {
		if c.Origin == sbom.OriginFile {
			out.Files = append(out.Files, SPDXFile{
				FileName:  c.Name,
				SPDXID:    spdxRef(c.ID),
				Checksums: c.Checksums,
			})
			continue
		}
		out.Packages = append(out.Packages, buildPackage(c))
	}

	for _, l := range doc.Licenses {
		out.ExtractedLicenses = append(out.ExtractedLicenses, ExtractedLicense{
			LicenseID: l.ID,
			Name:      l.Name,
			ExtractedText: fmt.Sprintf("The license info found in the package meta data is: %s. "+
				"See the specific package info in this SPDX document or the package itself for more details.", l.Name),
		})
	}

	for _, r := range doc.Relationships {
		out.Relationships = append(out.Relationships, SPDXRelationship{
			SPDXElementID:      spdxRef(r.Source),
			RelatedSPDXElement: spdxRef(r.Target),
			RelationshipType:   string(r.Kind),
		})
	}

	return out
}

func buildPackage(c sbom.Component) SPDXPackage {
	pkg := SPDXPackage{
		SPDXID:           spdxRef(c.ID),
		Name:             noassert(c.Name),
		VersionInfo:      noassert(c.Version),
		DownloadLocation: noAssertion,
		FilesAnalyzed:    false,
		Supplier:         supplier(c.Supplier),
		HomePage:         c.Homepage,
		LicenseConcluded: noAssertion,
		LicenseDeclared:  noassert(c.License),
		CopyrightText:    noAssertion,
		Description:      noassert(c.Description),
		Checksums:        c.Checksums,
	}
	if purl := purlFor(c); purl != "" {
		pkg.ExternalRefs = []ExternalRef{{
			Category: "PACKAGE_MANAGER",
			Type:     "purl",
			Locator:  purl,
		}}
	}
	return pkg
}

// spdxRef maps a document element ID onto its SPDX identifier. The reserved
// document element becomes the standard document ref.
func spdxRef(id string) string {
	if id == sbom.DocumentElementID {
		return documentRef
	}
	return "SPDXRef-" + id
}

// purlFor renders a package-url for ecosystem packages. The image root and
// embedded files have no package manager and get none.
func purlFor(c sbom.Component) string {
	if c.Origin != sbom.OriginPackage {
		return ""
	}
	purl := "pkg:" + string(c.Format) + "/" + c.Name
	if c.Version != "" {
		purl += "@" + c.Version
	}
	if c.Architecture != "" {
		purl += "?arch=" + c.Architecture
	}
	return purl
}

func noassert(s string) string {
	if s == "" {
		return noAssertion
	}
	return s
}

func supplier(s string) string {
	if s == "" {
		return noAssertion
	}
	return "Organization: " + s
}
