package types

import "time"

// NormalizedRequest is one observed HTTP request in the provider-agnostic
// intermediate format. Only the minimal attributes needed for session
// inference are carried; raw log lines are never retained.
type NormalizedRequest struct {
	Timestamp time.Time `json:"ts"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path"`
	Status    string `json:"status,omitempty"`
	Host      string `json:"host,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// Window is a UTC time window in ISO-8601 form.
type Window struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// AgentClassification is the weak, non-cryptographic behavioral verdict
// attached to an inferred session.
type AgentClassification struct {
	ConfidenceLevel         string `json:"confidence_level" yaml:"confidence_level"`
	PrimarySignal           string `json:"primary_signal" yaml:"primary_signal"`
	HumanReadableHypothesis string `json:"human_readable_hypothesis" yaml:"human_readable_hypothesis"`
	Warning                 string `json:"warning" yaml:"warning"`
}

// Session is one inferred client session. The fingerprint hash is a
// truncated salted digest; raw IP and user agent are never stored.
type Session struct {
	SessionID             string              `json:"session_id" yaml:"session_id"`
	WindowUTC             Window              `json:"window_utc" yaml:"window_utc"`
	ClientFingerprintHash string              `json:"client_fingerprint_hash" yaml:"client_fingerprint_hash"`
	Confidence            float64             `json:"confidence" yaml:"confidence"`
	Path                  []string            `json:"path" yaml:"path"`
	PathCategories        []string            `json:"path_categories" yaml:"path_categories"`
	Signals               []string            `json:"signals" yaml:"signals"`
	AgentClassification   AgentClassification `json:"agent_classification" yaml:"agent_classification"`
}

// Method describes the inference algorithm that produced a ledger.
type Method struct {
	Name              string `json:"name" yaml:"name"`
	Version           string `json:"version" yaml:"version"`
	SessionGapMinutes int    `json:"session_gap_minutes" yaml:"session_gap_minutes"`
	Notes             string `json:"notes" yaml:"notes"`
}

// InputStats counts ingestion outcomes. rows_total == rows_loaded + rows_skipped.
type InputStats struct {
	RowsTotal   int `json:"rows_total" yaml:"rows_total"`
	RowsLoaded  int `json:"rows_loaded" yaml:"rows_loaded"`
	RowsSkipped int `json:"rows_skipped" yaml:"rows_skipped"`
}

// Integrity carries the hash chain. ContentHashSHA256 is omitted while the
// canonical digest of the document is computed, then inserted.
type Integrity struct {
	PreviousLedgerHashSHA256 *string `json:"previous_ledger_hash_sha256" yaml:"previous_ledger_hash_sha256"`
	Canonicalization         string  `json:"canonicalization" yaml:"canonicalization"`
	ContentHashSHA256        string  `json:"content_hash_sha256,omitempty" yaml:"content_hash_sha256,omitempty"`
}

// Ledger is one versioned, append-only snapshot of inferred sessions.
type Ledger struct {
	LedgerVersion         string     `json:"ledger_version" yaml:"ledger_version"`
	LedgerSequence        int        `json:"ledger_sequence" yaml:"ledger_sequence"`
	Site                  string     `json:"site" yaml:"site"`
	GeneratedUTC          string     `json:"generated_utc" yaml:"generated_utc"`
	Method                Method     `json:"method" yaml:"method"`
	ExportWindow          string     `json:"export_window" yaml:"export_window"`
	InputStats            InputStats `json:"input_stats" yaml:"input_stats"`
	SessionsInferred      []Session  `json:"sessions_inferred" yaml:"sessions_inferred"`
	AttestationsValidated []any      `json:"attestations_validated" yaml:"attestations_validated"`
	Integrity             Integrity  `json:"integrity" yaml:"integrity"`
}

// LedgerState is the tiny persisted chaining record, read at the start of a
// run and atomically replaced at the end.
type LedgerState struct {
	LedgerSequence int     `json:"ledger_sequence"`
	LastLedgerHash *string `json:"last_ledger_hash"`
}
