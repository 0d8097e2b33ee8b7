package ratelimit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule sets per-window ceilings for a plan and endpoint pattern. The
// pattern is an exact endpoint, a prefix pattern ending in "/*"
// ("/api/clones/*"), or the bare "*" wildcard. An empty Role applies
// to all roles; a rule naming the caller's role wins over the
// role-agnostic rule for the same plan and pattern.
type Rule struct {
	Plan            string `yaml:"plan"`
	Role            string `yaml:"role,omitempty"`
	EndpointPattern string `yaml:"endpoint_pattern"`
	PerMinute       int64  `yaml:"per_minute"`
	PerHour         int64  `yaml:"per_hour"`
	PerDay          int64  `yaml:"per_day"`
}

// Limit returns the ceiling for a window.
func (r Rule) Limit(w Window) int64 {
	switch w {
	case WindowMinute:
		return r.PerMinute
	case WindowHour:
		return r.PerHour
	case WindowDay:
		return r.PerDay
	}
	return r.PerMinute
}

// defaultRule is the conservative fallback applied when no configured
// rule matches. Unknown traffic gets throttled, never waved through.
var defaultRule = Rule{
	EndpointPattern: "*",
	PerMinute:       10,
	PerHour:         100,
	PerDay:          1000,
}

// RuleTable resolves the applicable rule for a (plan, role, endpoint)
// triple. Tables are immutable once built.
type RuleTable struct {
	rules []Rule
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleTable builds a table from explicit rules.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	for i, r := range rules {
		if r.Plan == "" || r.EndpointPattern == "" {
			return nil, fmt.Errorf("rule %d: plan and endpoint_pattern are required", i)
		}
		if r.PerMinute <= 0 || r.PerHour <= 0 || r.PerDay <= 0 {
			return nil, fmt.Errorf("rule %d (%s %s): limits must be positive", i, r.Plan, r.EndpointPattern)
		}
	}
	return &RuleTable{rules: rules}, nil
}

// LoadRuleTable reads a YAML rules file. An empty path yields a table
// with only the built-in default.
func LoadRuleTable(path string) (*RuleTable, error) {
	if path == "" {
		return &RuleTable{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return NewRuleTable(f.Rules)
}

// matchEndpoint reports how specifically pattern covers endpoint:
// 4 for an exact match, 2 for a "/*" prefix match, 0 for the bare
// wildcard, -1 for no match. A prefix pattern covers its own root, so
// "/api/clones/*" matches both "/api/clones" and "/api/clones/{id}".
func matchEndpoint(pattern, endpoint string) int {
	switch {
	case pattern == "*":
		return 0
	case pattern == endpoint:
		return 4
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		if endpoint == prefix || strings.HasPrefix(endpoint, prefix+"/") {
			return 2
		}
	}
	return -1
}

// Resolve picks the best-matching rule. A rule matching the caller's
// role beats any role-agnostic rule; among endpoint patterns an exact
// match beats a prefix pattern, which beats the bare wildcard, and a
// longer prefix beats a shorter one. No match falls back to the
// built-in default.
func (t *RuleTable) Resolve(plan, role, endpoint string) Rule {
	var best *Rule
	bestScore := -1
	for i := range t.rules {
		r := &t.rules[i]
		if r.Plan != plan {
			continue
		}
		if r.Role != "" && r.Role != role {
			continue
		}
		endpointScore := matchEndpoint(r.EndpointPattern, endpoint)
		if endpointScore < 0 {
			continue
		}
		score := endpointScore
		if r.Role != "" {
			score += 8
		}
		if score > bestScore ||
			(score == bestScore && len(r.EndpointPattern) > len(best.EndpointPattern)) {
			best = r
			bestScore = score
		}
	}
	if best == nil {
		return defaultRule
	}
	return *best
}
