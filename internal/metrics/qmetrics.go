// Package metrics derives observability metrics from one ledger document:
// the QMetrics rate document and the legacy daily aggregate with regime
// classification. Everything here is descriptive and non-authoritative.
package metrics

import (
	"time"

	"github.com/yourorg/qledger/internal/logparse"
	"github.com/yourorg/qledger/internal/scope"
	"github.com/yourorg/qledger/pkg/types"
)

const (
	qMetricsSchemaVersion = "0.1.0"

	qMetricsPurpose = "Publish non-normative, derived observability metrics from the session ledger to make " +
		"interpretive governance behavior measurable, reproducible, and contestable. This document does not " +
		"grant response authorization and does not define truth."

	qMetricsNotice = "Metrics are descriptive. They must not be treated as authorization, compliance, " +
		"certification, or guarantees."
)

// governanceOnlyPattern is the fallback expected traversal when no human
// content is in scope: entrypoint, then constraints, then ontology, as an
// ordered subsequence.
var governanceOnlyPattern = []string{
	scope.CategoryEntrypoint,
	scope.CategoryConstraints,
	scope.CategoryOntology,
}

// Provenance are the static traceability pointers embedded in the QMetrics
// document.
type Provenance struct {
	Site         string
	Canonical    string
	DerivedFrom  []string
	Traceability map[string]string
}

// NormalizeCategories drops other and collapses consecutive duplicates.
// Repeated hits to the same category in a row count once for pattern
// matching; this is deliberate noise reduction.
func NormalizeCategories(cats []string) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		if c == "" || c == scope.CategoryOther {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CanonToConstraints remaps canon to constraints for metric checks only; the
// ledger keeps canon as canon.
func CanonToConstraints(cats []string) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		if c == scope.CategoryCanon {
			out[i] = scope.CategoryConstraints
		} else {
			out[i] = c
		}
	}
	return out
}

// SubsequenceMatch reports whether expected occurs in seq as an ordered, not
// necessarily contiguous, subsequence. An empty expected always matches.
func SubsequenceMatch(seq, expected []string) bool {
	if len(expected) == 0 {
		return true
	}
	j := 0
	for _, c := range seq {
		if c == expected[j] {
			j++
			if j == len(expected) {
				return true
			}
		}
	}
	return false
}

// ComputeQMetrics derives the QMetrics document from one ledger and an
// optional scope. Sessions classified entirely as other are excluded from
// every denominator rather than counted as failures.
func ComputeQMetrics(l *types.Ledger, sc *scope.Scope, prov Provenance, now time.Time) *types.QMetrics {
	sessions := l.SessionsInferred
	exactMap := sc.CategoryMap()
	expectedFull := sc.ExpectedPattern()

	categoriesOf := func(s types.Session) []string {
		cats := s.PathCategories
		if len(cats) == 0 {
			cats = make([]string, len(s.Path))
			for i, p := range s.Path {
				cats[i] = scope.Classify(p, exactMap)
			}
		}
		return NormalizeCategories(cats)
	}

	// The pattern fallback is decided once, ledger-wide: the declared
	// pattern applies only when some session anywhere shows content.
	observedAnyContent := false
	for _, s := range sessions {
		for _, c := range categoriesOf(s) {
			if c == scope.CategoryContent {
				observedAnyContent = true
				break
			}
		}
		if observedAnyContent {
			break
		}
	}

	governed := map[string]struct{}{}
	for _, c := range scope.GovernedCategories {
		governed[c] = struct{}{}
	}

	var (
		total              int
		entrypointFirst    int
		constraintsTouched int
		escaped            int
		seqMatch           int
		governanceOnly     bool
		usedPattern        []string
	)

	var starts, ends []time.Time
	for _, s := range sessions {
		if t, err := logparse.ParseTimestamp(s.WindowUTC.Start); err == nil {
			starts = append(starts, t)
		}
		if t, err := logparse.ParseTimestamp(s.WindowUTC.End); err == nil {
			ends = append(ends, t)
		}

		cats := categoriesOf(s)
		if len(cats) == 0 {
			continue
		}
		total++

		if cats[0] == scope.CategoryEntrypoint {
			entrypointFirst++
		}

		checks := CanonToConstraints(cats)
		if containsCategory(checks, scope.CategoryConstraints) {
			constraintsTouched++
		}

		if !containsCategory(checks, scope.CategoryEntrypoint) && touchesAny(checks, governed) {
			escaped++
		}

		if len(expectedFull) > 0 && observedAnyContent {
			usedPattern = expectedFull
		} else {
			governanceOnly = true
			usedPattern = governanceOnlyPattern
		}
		if SubsequenceMatch(checks, usedPattern) {
			seqMatch++
		}
	}

	startDate, endDate := "to-be-generated", "to-be-generated"
	if len(starts) > 0 && len(ends) > 0 {
		startDate = minTime(starts).Format("2006-01-02")
		endDate = maxTime(ends).Format("2006-01-02")
	}

	notes := []string{
		"All values are derived from observational logs and are weak evidence only.",
		"If the session ledger is unavailable, these metrics must be treated as unavailable.",
		"Canon identity/boundary files are treated as constraints for constraint touch and sequence fidelity.",
		"Escape rate is computed in governance-only mode unless human content is included in the ledger scope.",
	}
	if governanceOnly {
		notes = append(notes, "Sequence fidelity computed in governance-only mode (content not observed or not included).")
	}

	site := prov.Site
	if site == "" {
		site = l.Site
	}

	windowDays := 7
	sessionWindowMinutes := 30
	if sc != nil {
		if sc.WindowDays > 0 {
			windowDays = sc.WindowDays
		}
		if sc.SessionWindowMinutes > 0 {
			sessionWindowMinutes = sc.SessionWindowMinutes
		}
	}

	return &types.QMetrics{
		SchemaVersion:      qMetricsSchemaVersion,
		Type:               "QMetrics",
		Site:               site,
		Canonical:          prov.Canonical,
		DerivedFrom:        prov.DerivedFrom,
		Purpose:            qMetricsPurpose,
		NonNormativeNotice: qMetricsNotice,
		MetricConfig: types.QMetricConfig{
			TimeWindowDays:       windowDays,
			SessionWindowMinutes: sessionWindowMinutes,
			ExpectedPatternUsed:  usedPattern,
		},
		Metrics: types.QMetricsBlock{
			Window: types.QMetricsWindow{
				StartDate:      startDate,
				EndDate:        endDate,
				GeneratedAtUTC: logparse.FormatUTC(now),
			},
			Counts: types.QMetricsCounts{
				SessionsInferredTotal:            intOrNil(total, total),
				SessionsWithEntrypointFirst:      intOrNil(entrypointFirst, total),
				SessionsWithConstraintsTouched:   intOrNil(constraintsTouched, total),
				SessionsEscaped:                  intOrNil(escaped, total),
				SessionsMatchingExpectedSequence: intOrNil(seqMatch, total),
			},
			Rates: types.QMetricsRates{
				EntryComplianceRate: rateOrNil(entrypointFirst, total),
				ConstraintTouchRate: rateOrNil(constraintsTouched, total),
				EscapeRate:          rateOrNil(escaped, total),
				SequenceFidelity:    rateOrNil(seqMatch, total),
			},
			Notes: notes,
		},
		Traceability: prov.Traceability,
		LastReviewed: now.UTC().Format("2006-01-02"),
		Stability:    "high",
	}
}

func containsCategory(cats []string, c string) bool {
	for _, v := range cats {
		if v == c {
			return true
		}
	}
	return false
}

func touchesAny(cats []string, set map[string]struct{}) bool {
	for _, c := range cats {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func intOrNil(v, total int) *int {
	if total == 0 {
		return nil
	}
	return &v
}

func rateOrNil(count, total int) *float64 {
	if total == 0 {
		return nil
	}
	r := float64(count) / float64(total)
	return &r
}

func minTime(ts []time.Time) time.Time {
	m := ts[0]
	for _, t := range ts[1:] {
		if t.Before(m) {
			m = t
		}
	}
	return m
}

func maxTime(ts []time.Time) time.Time {
	m := ts[0]
	for _, t := range ts[1:] {
		if t.After(m) {
			m = t
		}
	}
	return m
}
