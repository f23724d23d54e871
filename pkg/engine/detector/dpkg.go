package detector

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

const dpkgStatusPath = "var/lib/dpkg/status"

// DpkgDetector extracts installed packages from a Debian-family dpkg
// status database found inside the image tree.
type DpkgDetector struct{}

func (DpkgDetector) Name() string { return "dpkg" }

func (DpkgDetector) Detect(root string) bool {
	info, err := os.Stat(filepath.Join(root, dpkgStatusPath))
	return err == nil && !info.IsDir()
}

func (DpkgDetector) Extract(ctx context.Context, root string, rep Reporter) ([]Record, error) {
	path := filepath.Join(root, dpkgStatusPath)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dpkg status database: %w", err)
	}
	defer f.Close()

	var (
		records []Record
		stanza  []string
		lineNo  int
		start   int
	)
	flush := func() {
		if len(stanza) == 0 {
			return
		}
		rec, err := dpkgRecord(stanza)
		if err != nil {
			rep.PartialFailure(fmt.Sprintf("%s:%d", dpkgStatusPath, start), err)
		} else if rec != nil {
			records = append(records, *rec)
		}
		stanza = nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(stanza) == 0 {
			start = lineNo
		}
		stanza = append(stanza, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		// A truncated or unreadable database is a partial failure: the
		// stanzas parsed so far stay in the result.
		rep.PartialFailure(dpkgStatusPath, fmt.Errorf("status database read: %w", err))
	}
	rep.Progress(len(records), len(records), "")
	return records, nil
}

// dpkgRecord parses one control stanza. Continuation lines (leading space)
// extend the previous field; only the first line of multi-line fields is
// kept, which is all the SBOM carries anyway.
func dpkgRecord(stanza []string) (*Record, error) {
	fields := make(map[string]string, len(stanza))
	lastKey := ""
	for _, line := range stanza {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if lastKey == "" {
				return nil, fmt.Errorf("continuation line without a field: %q", line)
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed control line: %q", line)
		}
		lastKey = key
		fields[key] = strings.TrimSpace(value)
	}

	name := fields["Package"]
	if name == "" {
		return nil, fmt.Errorf("stanza carries no Package field")
	}
	if status := fields["Status"]; status != "" && !strings.HasSuffix(status, " installed") {
		// Removed packages leave config-files stanzas behind; they are not
		// part of the image's installed software.
		return nil, nil
	}

	sum := md5.Sum([]byte(strings.Join(stanza, "\n")))
	rec := &Record{
		Format:      sbom.FormatDeb,
		Name:        name,
		Version:     fields["Version"],
		Arch:        fields["Architecture"],
		Packager:    fields["Maintainer"],
		Homepage:    fields["Homepage"],
		Description: fields["Description"],
		Requires:    splitDebRelations(fields["Pre-Depends"], fields["Depends"]),
		Provides:    splitDebRelations(fields["Provides"]),
		Evidence:    []string{dpkgStatusPath},
		Checksums:   []sbom.Checksum{{Algorithm: "MD5", Digest: hex.EncodeToString(sum[:])}},
	}
	return rec, nil
}

// splitDebRelations flattens Depends-style lists into hint strings. Only
// the first alternative of each group is kept; parenthesized version
// constraints become "name op version" suffixes so the resolver can apply
// them, with dpkg's strict comparators mapped onto the generic operators.
func splitDebRelations(lists ...string) []string {
	var out []string
	for _, list := range lists {
		for _, part := range strings.Split(list, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if alt, _, ok := strings.Cut(part, "|"); ok {
				part = strings.TrimSpace(alt)
			}
			name, constraint := part, ""
			if n, rest, ok := strings.Cut(part, "("); ok {
				name = strings.TrimSpace(n)
				if c, _, ok := strings.Cut(rest, ")"); ok {
					constraint = strings.TrimSpace(c)
				}
			}
			// Architecture qualifiers ("libc6:amd64") are not part of the
			// capability name.
			if n, _, ok := strings.Cut(name, ":"); ok {
				name = strings.TrimSpace(n)
			}
			if name == "" {
				continue
			}
			if op, ver, ok := strings.Cut(constraint, " "); ok && strings.TrimSpace(ver) != "" {
				out = append(out, name+" "+debOperator(op)+" "+strings.TrimSpace(ver))
			} else {
				out = append(out, name)
			}
		}
	}
	return dedupe(out)
}

func debOperator(op string) string {
	switch op {
	case "<<":
		return "<"
	case ">>":
		return ">"
	}
	return op
}
