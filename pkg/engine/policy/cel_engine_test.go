package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

func compiled(t *testing.T, rules []Rule) *CELEngine {
	t.Helper()
	engine, err := NewCELEngine()
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if err := engine.Compile(rules); err != nil {
		t.Fatalf("Compilation failed: %v", err)
	}
	return engine
}

func TestCELEngine(t *testing.T) {
	engine := compiled(t, []Rule{
		{ID: "no-proprietary", Condition: "license == 'Proprietary'", Action: ActionExclude},
		{ID: "flag-i686", Condition: "arch == 'i686' && format == 'rpm'", Action: ActionWarn},
	})

	hits := engine.Evaluate(sbom.Component{
		Name:    "blobd",
		License: "Proprietary",
		Format:  sbom.FormatRPM,
		Origin:  sbom.OriginPackage,
	})
	if len(hits) != 1 || hits[0].Rule.ID != "no-proprietary" {
		t.Errorf("expected [no-proprietary], got %v", hits)
	}

	hits = engine.Evaluate(sbom.Component{
		Name:         "glibc",
		Architecture: "i686",
		License:      "LGPL-2.1-or-later",
		Format:       sbom.FormatRPM,
		Origin:       sbom.OriginPackage,
	})
	if len(hits) != 1 || hits[0].Rule.ID != "flag-i686" {
		t.Errorf("expected [flag-i686], got %v", hits)
	}

	hits = engine.Evaluate(sbom.Component{
		Name:    "bash",
		License: "GPL-3.0-or-later",
		Format:  sbom.FormatRPM,
	})
	if len(hits) != 0 {
		t.Errorf("expected no matches, got %v", hits)
	}
}

func TestCELEngineMatchOrder(t *testing.T) {
	engine := compiled(t, []Rule{
		{ID: "b-rule", Condition: "name == 'bash'", Action: ActionWarn},
		{ID: "a-rule", Condition: "name.startsWith('ba')", Action: ActionWarn},
	})

	hits := engine.Evaluate(sbom.Component{Name: "bash"})
	if len(hits) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(hits))
	}
	// File order, not alphabetical.
	if hits[0].Rule.ID != "b-rule" || hits[1].Rule.ID != "a-rule" {
		t.Errorf("matches out of order: %q, %q", hits[0].Rule.ID, hits[1].Rule.ID)
	}
}

func TestCompileRejectsBadExpression(t *testing.T) {
	engine, err := NewCELEngine()
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	err = engine.Compile([]Rule{{ID: "broken", Condition: "cost > 100", Action: ActionWarn}})
	if err == nil {
		t.Fatal("expected compilation error for undeclared variable")
	}
}

func TestParse(t *testing.T) {
	rules, err := Parse([]byte(`
rules:
  - id: drop-docs
    condition: name.endsWith('-doc')
    action: exclude
  - id: flag-unknown-license
    condition: license == ''
    action: warn
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Action != ActionExclude || rules[1].Action != ActionWarn {
		t.Errorf("actions decoded wrong: %v", rules)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing id":     "rules:\n  - condition: name == 'x'\n    action: warn\n",
		"missing cond":   "rules:\n  - id: r1\n    action: warn\n",
		"unknown action": "rules:\n  - id: r1\n    condition: name == 'x'\n    action: block\n",
		"duplicate id":   "rules:\n  - id: r1\n    condition: name == 'x'\n    action: warn\n  - id: r1\n    condition: name == 'y'\n    action: warn\n",
		"not yaml":       "rules: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := "rules:\n  - id: drop-i686\n    condition: arch == 'i686'\n    action: exclude\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	rules, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "drop-i686" {
		t.Errorf("unexpected rules: %v", rules)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
