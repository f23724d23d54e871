// Package licensing maps the free-form license strings found in package
// headers onto SPDX identifiers.
package licensing

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultAliases covers the spellings that dominate RPM and dpkg metadata.
// Keys are matched case-insensitively against whole expression segments.
var defaultAliases = map[string]string{
	"gplv2":                "GPL-2.0-only",
	"gplv2+":               "GPL-2.0-or-later",
	"gplv3":                "GPL-3.0-only",
	"gplv3+":               "GPL-3.0-or-later",
	"gpl+":                 "GPL-1.0-or-later",
	"lgplv2":               "LGPL-2.0-only",
	"lgplv2+":              "LGPL-2.0-or-later",
	"lgplv2.1":             "LGPL-2.1-only",
	"lgplv2.1+":            "LGPL-2.1-or-later",
	"lgplv3":               "LGPL-3.0-only",
	"lgplv3+":              "LGPL-3.0-or-later",
	"agplv3":               "AGPL-3.0-only",
	"agplv3+":              "AGPL-3.0-or-later",
	"asl 2.0":              "Apache-2.0",
	"asl 1.1":              "Apache-1.1",
	"apache-2":             "Apache-2.0",
	"bsd":                  "BSD-3-Clause",
	"bsd with advertising": "BSD-4-Clause",
	"mit/x11":              "MIT",
	"x11":                  "X11",
	"mplv1.1":              "MPL-1.1",
	"mplv2.0":              "MPL-2.0",
	"epl-1.0":              "EPL-1.0",
	"cddl":                 "CDDL-1.0",
	"artistic 2.0":         "Artistic-2.0",
	"zlib":                 "Zlib",
	"openssl":              "OpenSSL",
	"boost":                "BSL-1.0",
	"public domain":        "LicenseRef-public-domain",
	"mulan psl v2":         "MulanPSL-2.0",
	"mulanpsl-2.0":         "MulanPSL-2.0",
	"mulan psl v1":         "MulanPSL-1.0",
}

// splitter keeps the AND/OR connectives and parentheses as tokens so the
// expression shape survives normalization.
var splitter = regexp.MustCompile(`(?i)(\s+and\s+|\s+or\s+|[()])`)

// Normalizer rewrites license expressions using an alias table.
type Normalizer struct {
	aliases map[string]string
}

// NewNormalizer returns a Normalizer with the built-in table, with user
// overrides layered on top.
func NewNormalizer(overrides map[string]string) *Normalizer {
	aliases := make(map[string]string, len(defaultAliases)+len(overrides))
	for k, v := range defaultAliases {
		aliases[strings.ToLower(k)] = v
	}
	for k, v := range overrides {
		aliases[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Normalizer{aliases: aliases}
}

// LoadOverrides reads a flat YAML map of alias -> SPDX id.
func LoadOverrides(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse license aliases %s: %w", path, err)
	}
	return out, nil
}

// Normalize rewrites each segment of a license expression through the alias
// table. Connectives are lowercased to the SPDX spelling; unknown segments
// pass through untouched. A nil Normalizer rewrites nothing.
func (n *Normalizer) Normalize(expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" || n == nil {
		return expr
	}

	tokens := splitter.Split(expr, -1)
	seps := splitter.FindAllString(expr, -1)

	var b strings.Builder
	for i, tok := range tokens {
		seg := strings.TrimSpace(tok)
		if seg != "" {
			if mapped, ok := n.aliases[strings.ToLower(seg)]; ok {
				seg = mapped
			}
			b.WriteString(seg)
		}
		if i < len(seps) {
			sep := strings.TrimSpace(strings.ToUpper(seps[i]))
			switch sep {
			case "AND", "OR":
				if seg != "" {
					b.WriteString(" ")
				}
				b.WriteString(sep)
				b.WriteString(" ")
			default:
				b.WriteString(sep)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
