package policy

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

// Match pairs a component hit with the rule that produced it.
type Match struct {
	Rule Rule
}

// CELEngine manages the compilation and execution of dynamic rules.
type CELEngine struct {
	env      *cel.Env
	programs []compiledRule
}

type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// NewCELEngine initializes the CEL environment with the component attribute
// declarations rules can reference.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("name", decls.String),
			decls.NewVar("version", decls.String),
			decls.NewVar("arch", decls.String),
			decls.NewVar("format", decls.String),
			decls.NewVar("license", decls.String),
			decls.NewVar("supplier", decls.String),
			decls.NewVar("origin", decls.String),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &CELEngine{env: env}, nil
}

// Compile compiles a list of rules into executable programs. File order is
// preserved so repeated runs report matches identically.
func (e *CELEngine) Compile(rules []Rule) error {
	for _, r := range rules {
		ast, issues := e.env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("rule %s compilation error: %w", r.ID, issues.Err())
		}

		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("rule %s program creation error: %w", r.ID, err)
		}

		e.programs = append(e.programs, compiledRule{rule: r, prg: prg})
	}
	return nil
}

// Evaluate runs every compiled rule against one component. A rule that
// fails to evaluate is logged and skipped; one bad rule must not abort a
// scan.
func (e *CELEngine) Evaluate(c sbom.Component) []Match {
	vars := map[string]interface{}{
		"name":     c.Name,
		"version":  c.Version,
		"arch":     c.Architecture,
		"format":   string(c.Format),
		"license":  c.License,
		"supplier": c.Supplier,
		"origin":   string(c.Origin),
	}

	var matches []Match
	for _, cr := range e.programs {
		out, _, err := cr.prg.Eval(vars)
		if err != nil {
			slog.Error("rule evaluation failed", "rule_id", cr.rule.ID, "error", err)
			continue
		}

		// Rules return a boolean: true means the component matched.
		if hit, ok := out.Value().(bool); ok && hit {
			matches = append(matches, Match{Rule: cr.rule})
		}
	}
	return matches
}
