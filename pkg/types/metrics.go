package types

// PathCount is one revisited path with its aggregated revisit count.
type PathCount struct {
	Path  string `json:"path" yaml:"path"`
	Count int    `json:"count" yaml:"count"`
}

// MotifCounts holds structural 2-gram/3-gram adjacency motifs detected over
// session path sequences.
type MotifCounts struct {
	YamlThenLedger     int `json:"yaml_then_ledger" yaml:"yaml_then_ledger"`
	YamlThenProtocol   int `json:"yaml_then_protocol" yaml:"yaml_then_protocol"`
	LedgerThenProtocol int `json:"ledger_then_protocol" yaml:"ledger_then_protocol"`
	GovContentGov      int `json:"gov_content_gov" yaml:"gov_content_gov"`
}

// Total sums all motif counters.
func (m MotifCounts) Total() int {
	return m.YamlThenLedger + m.YamlThenProtocol + m.LedgerThenProtocol + m.GovContentGov
}

// DeltaStats summarizes approximate seconds between revisits of a path.
type DeltaStats struct {
	Count  int      `json:"count" yaml:"count"`
	Min    *float64 `json:"min" yaml:"min"`
	Median *float64 `json:"median" yaml:"median"`
	P90    *float64 `json:"p90" yaml:"p90"`
	Max    *float64 `json:"max" yaml:"max"`
}

// LegacyMetrics is the daily aggregate derived from one ledger, including the
// regime classification.
type LegacyMetrics struct {
	GeneratedUTC         string      `json:"generated_utc" yaml:"generated_utc"`
	LedgerSequence       int         `json:"ledger_sequence" yaml:"ledger_sequence"`
	Hash                 string      `json:"hash" yaml:"hash"`
	PreviousHash         *string     `json:"previous_hash" yaml:"previous_hash"`
	SessionsTotal        int         `json:"sessions_total" yaml:"sessions_total"`
	SingleHitRatio       float64     `json:"single_hit_ratio" yaml:"single_hit_ratio"`
	MeanHitsPerSession   float64     `json:"mean_hits_per_session" yaml:"mean_hits_per_session"`
	DistinctPathsTotal   int         `json:"distinct_paths_total" yaml:"distinct_paths_total"`
	Regime               string      `json:"regime" yaml:"regime"`
	RegimeRationale      string      `json:"regime_rationale" yaml:"regime_rationale"`
	TopRevisits          []PathCount `json:"top_revisits" yaml:"top_revisits"`
	Motifs               MotifCounts `json:"motifs" yaml:"motifs"`
	RevisitDeltasSeconds DeltaStats  `json:"revisit_deltas_seconds" yaml:"revisit_deltas_seconds"`
}

// QMetricConfig records the parameters the QMetrics run was computed with.
type QMetricConfig struct {
	TimeWindowDays       int      `json:"time_window_days" yaml:"time_window_days"`
	SessionWindowMinutes int      `json:"session_window_minutes" yaml:"session_window_minutes"`
	ExpectedPatternUsed  []string `json:"expected_pattern_used" yaml:"expected_pattern_used"`
}

// QMetricsWindow is the observation window the metrics cover.
type QMetricsWindow struct {
	StartDate      string `json:"start_date" yaml:"start_date"`
	EndDate        string `json:"end_date" yaml:"end_date"`
	GeneratedAtUTC string `json:"generated_at_utc" yaml:"generated_at_utc"`
}

// QMetricsCounts are raw counters; nil when no session qualified.
type QMetricsCounts struct {
	SessionsInferredTotal            *int `json:"sessions_inferred_total" yaml:"sessions_inferred_total"`
	SessionsWithEntrypointFirst      *int `json:"sessions_with_entrypoint_first" yaml:"sessions_with_entrypoint_first"`
	SessionsWithConstraintsTouched   *int `json:"sessions_with_constraints_touched" yaml:"sessions_with_constraints_touched"`
	SessionsEscaped                  *int `json:"sessions_escaped" yaml:"sessions_escaped"`
	SessionsMatchingExpectedSequence *int `json:"sessions_matching_expected_sequence" yaml:"sessions_matching_expected_sequence"`
}

// QMetricsRates are derived rates; nil when no session qualified.
type QMetricsRates struct {
	EntryComplianceRate *float64 `json:"entry_compliance_rate" yaml:"entry_compliance_rate"`
	ConstraintTouchRate *float64 `json:"constraint_touch_rate" yaml:"constraint_touch_rate"`
	EscapeRate          *float64 `json:"escape_rate" yaml:"escape_rate"`
	SequenceFidelity    *float64 `json:"sequence_fidelity" yaml:"sequence_fidelity"`
}

// QMetricsBlock groups window, counts, rates and caveats.
type QMetricsBlock struct {
	Window QMetricsWindow `json:"window" yaml:"window"`
	Counts QMetricsCounts `json:"counts" yaml:"counts"`
	Rates  QMetricsRates  `json:"rates" yaml:"rates"`
	Notes  []string       `json:"notes" yaml:"notes"`
}

// QMetrics is the derived, non-authoritative observability document computed
// from one ledger. It is recomputed fresh each run and never chain-linked.
type QMetrics struct {
	SchemaVersion      string            `json:"schemaVersion" yaml:"schemaVersion"`
	Type               string            `json:"type" yaml:"type"`
	Site               string            `json:"site" yaml:"site"`
	Canonical          string            `json:"canonical" yaml:"canonical"`
	DerivedFrom        []string          `json:"derived_from" yaml:"derived_from"`
	Purpose            string            `json:"purpose" yaml:"purpose"`
	NonNormativeNotice string            `json:"non_normative_notice" yaml:"non_normative_notice"`
	MetricConfig       QMetricConfig     `json:"metric_config" yaml:"metric_config"`
	Metrics            QMetricsBlock     `json:"metrics" yaml:"metrics"`
	Traceability       map[string]string `json:"traceability" yaml:"traceability"`
	LastReviewed       string            `json:"last_reviewed" yaml:"last_reviewed"`
	Stability          string            `json:"stability" yaml:"stability"`
}
