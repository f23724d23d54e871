// Package policy filters extracted components through user-defined rules.
// Rules are CEL expressions over component attributes, loaded from a YAML
// file and compiled once per run.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Action tells the engine what to do with a matched component.
type Action string

const (
	// ActionExclude drops the component and its relationships from the
	// document.
	ActionExclude Action = "exclude"

	// ActionWarn keeps the component and surfaces the match as an event.
	ActionWarn Action = "warn"
)

// Rule is one user-defined filter.
type Rule struct {
	ID        string `yaml:"id"`
	Condition string `yaml:"condition"` // CEL expression: "license == 'Proprietary' && arch != 'noarch'"
	Action    Action `yaml:"action"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a rules file from disk.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates rule definitions. Every rule needs an id, a
// condition and a known action; a rules file that cannot be trusted in full
// is rejected in full.
func Parse(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Rules))
	for i, r := range f.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Condition == "" {
			return nil, fmt.Errorf("rule %s: missing condition", r.ID)
		}
		switch r.Action {
		case ActionExclude, ActionWarn:
		default:
			return nil, fmt.Errorf("rule %s: unknown action %q", r.ID, r.Action)
		}
	}
	return f.Rules, nil
}
