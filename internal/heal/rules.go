package heal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Remediation action types.
const (
	ActionStorageCleanup = "storage-cleanup"
	ActionStateReset     = "state-reset"
	ActionRedirect       = "redirect"
)

// Rule maps failure signatures onto exactly one remediation action. A rule
// matches when any of its AnyOf groups has all of its substrings present in
// the lowercased message.
type Rule struct {
	Action string     `yaml:"action"`
	AnyOf  [][]string `yaml:"any_of"`
	Notice string     `yaml:"notice,omitempty"`
}

// Matches reports whether the rule fires for the given lowercased message.
func (r Rule) Matches(lowered string) bool {
	for _, group := range r.AnyOf {
		all := true
		for _, sub := range group {
			if !strings.Contains(lowered, sub) {
				all = false
				break
			}
		}
		if all && len(group) > 0 {
			return true
		}
	}
	return false
}

// DefaultRules is the built-in signature table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Action: ActionStorageCleanup,
			AnyOf:  [][]string{{"quota exceeded"}, {"quotaexceeded"}, {"storage full"}},
			Notice: "Local storage was cleaned up automatically.",
		},
		{
			Action: ActionStateReset,
			AnyOf:  [][]string{{"too many re-renders"}, {"infinite loop"}},
			Notice: "The view was reset after a rendering fault.",
		},
		{
			Action: ActionRedirect,
			AnyOf:  [][]string{{"route", "not found"}},
		},
	}
}

// LoadRulesFile parses additional rules from a YAML file and appends them
// after the built-in table, so custom signatures never shadow the defaults.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for i, rule := range doc.Rules {
		switch rule.Action {
		case ActionStorageCleanup, ActionStateReset, ActionRedirect:
		default:
			return nil, fmt.Errorf("rule %d: unknown action %q", i, rule.Action)
		}
	}
	return append(DefaultRules(), doc.Rules...), nil
}
