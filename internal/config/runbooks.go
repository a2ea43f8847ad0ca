package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"gopkg.in/yaml.v3"
)

// ChaosMarker is the line the demo service logs when chaos mode is switched on.
const ChaosMarker = "CHAOS MODE ACTIVATED"

// Runbook actions. Runbooks never carry code, so only side-effect-free or
// fixed-endpoint actions are allowed.
const (
	RunbookActionResolveExternal = "resolve_external"
	RunbookActionEscalate        = "escalate"
)

// RunbookRule maps log markers to a known, deterministic remediation.
// Markers are substrings. Patterns are wildcard globs matched against whole
// lines: "*" spans any run, "?" is an optional character and "." is exactly one.
type RunbookRule struct {
	Name     string   `yaml:"name"`
	Markers  []string `yaml:"markers,omitempty"`
	Patterns []string `yaml:"patterns,omitempty"`
	Action   string   `yaml:"action"`
	Target   string   `yaml:"target,omitempty"`
	Reason   string   `yaml:"reason,omitempty"`
}

// Runbooks is the ordered rule set; the first matching rule wins.
type Runbooks struct {
	Rules []RunbookRule `yaml:"rules"`
}

// DefaultRunbooks returns the built-in chaos short-circuit.
func DefaultRunbooks() *Runbooks {
	return &Runbooks{
		Rules: []RunbookRule{
			{
				Name:    "chaos-recovery",
				Markers: []string{ChaosMarker},
				Action:  RunbookActionResolveExternal,
				Target:  "http://chaos-app:8000/chaos/resolve",
				Reason:  "Chaos test detected; calling the chaos recovery endpoint",
			},
		},
	}
}

// LoadRunbooks reads rules from a YAML file. An empty path yields the defaults.
func LoadRunbooks(path string) (*Runbooks, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRunbooks(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runbook file: %w", err)
	}
	return ParseRunbooks(data)
}

// ParseRunbooks decodes and validates a YAML rule set.
func ParseRunbooks(data []byte) (*Runbooks, error) {
	var rb Runbooks
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("parse runbooks: %w", err)
	}
	if err := rb.validate(); err != nil {
		return nil, err
	}
	return &rb, nil
}

func (r *Runbooks) validate() error {
	for i, rule := range r.Rules {
		label := rule.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if len(rule.Markers) == 0 && len(rule.Patterns) == 0 {
			return fmt.Errorf("runbook rule %s has no markers or patterns", label)
		}
		for _, m := range append(append([]string{}, rule.Markers...), rule.Patterns...) {
			if strings.TrimSpace(m) == "" {
				return fmt.Errorf("runbook rule %s has an empty marker", label)
			}
		}
		switch rule.Action {
		case RunbookActionResolveExternal:
			if strings.TrimSpace(rule.Target) == "" {
				return fmt.Errorf("runbook rule %s needs a target for %s", label, rule.Action)
			}
		case RunbookActionEscalate:
		default:
			return fmt.Errorf("runbook rule %s has unsupported action %q", label, rule.Action)
		}
	}
	return nil
}

// Match returns the first rule with a marker contained in, or a pattern
// matching a line of, any of texts. Matching is case-sensitive; the chaos
// marker is logged verbatim.
func (r *Runbooks) Match(texts ...string) (RunbookRule, bool) {
	if r == nil {
		return RunbookRule{}, false
	}
	for _, rule := range r.Rules {
		if rule.matches(texts) {
			return rule, true
		}
	}
	return RunbookRule{}, false
}

func (rule RunbookRule) matches(texts []string) bool {
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, marker := range rule.Markers {
			if strings.Contains(text, marker) {
				return true
			}
		}
		if len(rule.Patterns) == 0 {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimRight(line, "\r")
			for _, pattern := range rule.Patterns {
				if wildcard.Match(pattern, line) {
					return true
				}
			}
		}
	}
	return false
}
