// Package scope loads the governance scope configuration and builds the
// exact-match path classification table. Classification is deliberately
// strict and exact: no prefix or partial matching, so a path is never
// miscounted as governance-relevant by accident.
package scope

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/qledger/internal/logparse"
)

// Closed category vocabulary. Paths outside the scope always classify as
// CategoryOther.
const (
	CategoryEntrypoint   = "entrypoint"
	CategoryPolicy       = "policy"
	CategoryQLayer       = "q_layer"
	CategoryCanon        = "canon"
	CategoryConstraints  = "constraints"
	CategoryDiscovery    = "discovery"
	CategoryOntology     = "ontology"
	CategoryIndex        = "index"
	CategoryObservation  = "observation"
	CategoryTraceability = "traceability"
	CategoryReporting    = "reporting"
	CategoryContent      = "content"
	CategoryOther        = "other"
)

// GovernedCategories are the categories counting as governed layers for
// escape detection.
var GovernedCategories = []string{
	CategoryPolicy,
	CategoryQLayer,
	CategoryConstraints,
	CategoryOntology,
	CategoryIndex,
	CategoryReporting,
	CategoryTraceability,
	CategoryObservation,
	CategoryDiscovery,
}

// ExpectedSequence declares an expected traversal pattern over layer names.
type ExpectedSequence struct {
	Name    string   `yaml:"name" json:"name"`
	Pattern []string `yaml:"pattern" json:"pattern"`
}

// Scope is the operator-maintained governance scope configuration: named
// layers mapped to exact paths, plus metric defaults.
type Scope struct {
	Layers               map[string][]string `yaml:"layers" json:"layers"`
	ExpectedSequences    []ExpectedSequence  `yaml:"expected_sequences" json:"expected_sequences"`
	WindowDays           int                 `yaml:"window_days" json:"window_days"`
	SessionWindowMinutes int                 `yaml:"session_window_minutes" json:"session_window_minutes"`
}

// layerCategories maps scope layer names to canonical categories, in the
// order the table is built. canon stays canon here; metrics remap it to
// constraints at check time.
var layerCategories = []struct {
	layer    string
	category string
}{
	{"entrypoints", CategoryEntrypoint},
	{"policy", CategoryPolicy},
	{"q_layer", CategoryQLayer},
	{"canon_identity_boundaries", CategoryCanon},
	{"constraints", CategoryConstraints},
	{"routing_discovery", CategoryDiscovery},
	{"ontology", CategoryOntology},
	{"ontology_fallback", CategoryOntology},
	{"index", CategoryIndex},
	{"observation", CategoryObservation},
	{"traceability", CategoryTraceability},
	{"reporting", CategoryReporting},
}

// patternCategories maps layer names appearing in expected_sequences to
// categories; unknown names pass through unchanged.
var patternCategories = map[string]string{
	"entrypoints": CategoryEntrypoint,
	"policy":      CategoryPolicy,
	"q_layer":     CategoryQLayer,
	"constraints": CategoryConstraints,
	"index":       CategoryIndex,
	"ontology":    CategoryOntology,
	"content":     CategoryContent,
}

// Load reads a scope file (YAML or JSON). A missing file returns (nil, nil):
// the scope is optional and its absence degrades classification to all-other.
func Load(path string) (*Scope, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scope: %w", err)
	}
	var s Scope
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}
	for layer, paths := range s.Layers {
		normalized := make([]string, 0, len(paths))
		for _, p := range paths {
			if np := logparse.NormalizePath(p); np != "" {
				normalized = append(normalized, np)
			}
		}
		s.Layers[layer] = normalized
	}
	return &s, nil
}

// CategoryMap builds the exact path-to-category lookup table. Nil-safe.
func (s *Scope) CategoryMap() map[string]string {
	out := map[string]string{}
	if s == nil {
		return out
	}
	for _, lc := range layerCategories {
		for _, p := range s.Layers[lc.layer] {
			out[p] = lc.category
		}
	}
	return out
}

// GovernancePaths flattens every layer into a single exact-path allowlist,
// deduplicated and sorted for deterministic output. Nil-safe.
func (s *Scope) GovernancePaths() []string {
	if s == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, paths := range s.Layers {
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// ExpectedPattern returns the first declared expected sequence translated to
// category names, or nil when the scope declares none. Nil-safe.
func (s *Scope) ExpectedPattern() []string {
	if s == nil || len(s.ExpectedSequences) == 0 {
		return nil
	}
	pattern := s.ExpectedSequences[0].Pattern
	if len(pattern) == 0 {
		return nil
	}
	out := make([]string, 0, len(pattern))
	for _, layer := range pattern {
		if c, ok := patternCategories[layer]; ok {
			out = append(out, c)
		} else {
			out = append(out, layer)
		}
	}
	return out
}

// Classify returns the category of path under the given exact-match table.
func Classify(path string, table map[string]string) string {
	if c, ok := table[path]; ok {
		return c
	}
	return CategoryOther
}
