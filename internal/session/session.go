// Package session implements fingerprint-based session grouping and the
// conservative heuristic scorer. No raw IP or user agent ever leaves this
// package: only truncated salted digests are emitted.
package session

import (
	"math"
	"sort"
	"time"

	"github.com/yourorg/qledger/internal/canonical"
	"github.com/yourorg/qledger/internal/logparse"
	"github.com/yourorg/qledger/internal/scope"
	"github.com/yourorg/qledger/pkg/types"
)

// Algorithm descriptor recorded in every ledger.
const (
	AlgorithmName    = "ledger-derived-from-logs"
	AlgorithmVersion = "session-inference-1.5"

	// DefaultGapMinutes is the inactivity threshold splitting sessions.
	DefaultGapMinutes = 30

	sessionIDHexLen   = 16
	fingerprintHexLen = 24
)

// Fingerprint returns the full salted one-way digest grouping requests of one
// client. Empty attributes collapse to fixed placeholders so they still
// group.
func Fingerprint(ip, ua, salt string) string {
	if ip == "" {
		ip = "noip"
	}
	if ua == "" {
		ua = "noua"
	}
	return canonical.SHA256Hex(ip + "|" + ua + "|" + salt)
}

// Inferrer groups a time-ordered request stream into scored sessions.
type Inferrer struct {
	// Salt is the secret fingerprinting salt. Required; the caller aborts
	// before constructing an Inferrer when it is absent.
	Salt string
	// Gap is the inactivity threshold; a strictly larger gap starts a new
	// session, an exactly equal gap does not.
	Gap time.Duration
	// SiteHost, when set, drops requests for other hosts before grouping.
	SiteHost string
	// GovPaths is the exact governance allowlist. When empty, every path
	// counts as governance-relevant (weaker default).
	GovPaths []string
	// Categories is the exact path-to-category table; missing entries
	// classify as other.
	Categories map[string]string
}

// Infer returns all sessions across all fingerprints, sorted by window start
// ascending. Ordering is stable and independent of map iteration order.
func (in *Inferrer) Infer(rows []types.NormalizedRequest) []types.Session {
	gap := in.Gap
	if gap <= 0 {
		gap = DefaultGapMinutes * time.Minute
	}

	if in.SiteHost != "" {
		filtered := make([]types.NormalizedRequest, 0, len(rows))
		for _, r := range rows {
			if r.Host == in.SiteHost {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	grouped := map[string][]types.NormalizedRequest{}
	for _, r := range rows {
		fp := Fingerprint(r.IP, r.UserAgent, in.Salt)
		grouped[fp] = append(grouped[fp], r)
	}

	govSet := map[string]struct{}{}
	for _, p := range in.GovPaths {
		govSet[p] = struct{}{}
	}

	type timed struct {
		start   time.Time
		session types.Session
	}
	var out []timed

	for fp, items := range grouped {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Timestamp.Before(items[j].Timestamp)
		})

		var current []types.NormalizedRequest
		flush := func() {
			if len(current) == 0 {
				return
			}
			s := in.score(fp, current, govSet)
			out = append(out, timed{start: current[0].Timestamp, session: s})
			current = nil
		}
		for _, r := range items {
			if len(current) > 0 && r.Timestamp.Sub(current[len(current)-1].Timestamp) > gap {
				flush()
			}
			current = append(current, r)
		}
		flush()
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].start.Equal(out[j].start) {
			return out[i].start.Before(out[j].start)
		}
		return out[i].session.SessionID < out[j].session.SessionID
	})

	sessions := make([]types.Session, 0, len(out))
	for _, t := range out {
		sessions = append(sessions, t.session)
	}
	return sessions
}

// sessionStats are the per-session facts the signal rules are evaluated over.
type sessionStats struct {
	total    int
	govHits  int
	revisits int
	yaml     bool
	jsonld   bool
}

// signalRule is one predicate-to-adjustment pair. Rules are evaluated in
// fixed order; each fires at most once.
type signalRule struct {
	name  string
	bonus float64
	match func(st sessionStats) bool
}

var signalRules = []signalRule{
	{name: "governance_path_hit", match: func(st sessionStats) bool { return st.govHits >= 1 }},
	{name: "multiple_governance_hits", match: func(st sessionStats) bool { return st.govHits >= 2 }},
	{name: "yaml_accessed", match: func(st sessionStats) bool { return st.yaml }},
	{name: "jsonld_accessed", match: func(st sessionStats) bool { return st.jsonld }},
	{name: "path_revisited", match: func(st sessionStats) bool { return st.revisits > 0 }},
	{name: "yaml_preference_observed", bonus: 0.10, match: func(st sessionStats) bool { return st.yaml && !st.jsonld }},
	{name: "systematic_governance_check", bonus: 0.10, match: func(st sessionStats) bool { return st.total >= 5 && st.govHits >= 3 }},
}

func (in *Inferrer) score(fp string, chunk []types.NormalizedRequest, govSet map[string]struct{}) types.Session {
	paths := make([]string, len(chunk))
	cats := make([]string, len(chunk))
	for i, r := range chunk {
		paths[i] = r.Path
		cats[i] = scope.Classify(r.Path, in.Categories)
	}

	st := sessionStats{total: len(paths)}
	distinct := map[string]struct{}{}
	for _, p := range paths {
		distinct[p] = struct{}{}
		if len(govSet) == 0 {
			st.govHits++
		} else if _, ok := govSet[p]; ok {
			st.govHits++
		}
		if hasSuffixAny(p, ".yml", ".yaml") {
			st.yaml = true
		}
		if hasSuffixAny(p, ".jsonld") {
			st.jsonld = true
		}
	}
	st.revisits = st.total - len(distinct)

	confidence := 0.20 + float64(st.govHits)/float64(st.total)*0.55
	signals := []string{}
	for _, rule := range signalRules {
		if rule.match(st) {
			signals = append(signals, rule.name)
			confidence += rule.bonus
		}
	}

	cap := 0.95
	if st.total == 1 {
		cap = 0.55
	}
	confidence = math.Min(cap, math.Max(0.05, confidence))

	level := "low"
	switch {
	case st.total == 1:
		level = "low"
	case confidence >= 0.75:
		level = "high"
	case confidence >= 0.50:
		level = "medium"
	}

	primary := "unknown"
	switch {
	case contains(signals, "yaml_preference_observed"):
		primary = "yaml_preference"
	case st.govHits >= 2:
		primary = "governance_sequence"
	case st.govHits == 1:
		primary = "single_governance_hit"
	}

	hypothesis := "weak hypothesis"
	if confidence >= 0.60 && st.total >= 2 {
		hypothesis = "behavior consistent with an autonomous agent"
	}

	start := logparse.FormatUTC(chunk[0].Timestamp)
	end := logparse.FormatUTC(chunk[len(chunk)-1].Timestamp)
	sid := canonical.SHA256Hex(fp + "|" + start + "|" + end)[:sessionIDHexLen]

	return types.Session{
		SessionID:             sid,
		WindowUTC:             types.Window{Start: start, End: end},
		ClientFingerprintHash: fp[:fingerprintHexLen],
		Confidence:            math.Round(confidence*100) / 100,
		Path:                  paths,
		PathCategories:        cats,
		Signals:               signals,
		AgentClassification: types.AgentClassification{
			ConfidenceLevel:         level,
			PrimarySignal:           primary,
			HumanReadableHypothesis: hypothesis,
			Warning:                 "no cryptographic proof of identity",
		},
	}
}

func hasSuffixAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
