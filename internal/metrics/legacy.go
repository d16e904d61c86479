package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yourorg/qledger/internal/logparse"
	"github.com/yourorg/qledger/pkg/types"
)

// Regime labels for the daily behavioral classification.
const (
	RegimeValidationIngestion   = "validation_ingestion"
	RegimeExplorationNavigation = "exploration_navigation"
	RegimeMixed                 = "mixed"
	RegimeOtherLowData          = "other_low_data"
)

// governanceMarkers are well-known governance-relevant path fragments used by
// the legacy analysis, which predates the scope configuration.
var governanceMarkers = []string{
	"/.well-known/",
	"/ai-governance.json",
	"/ai-manifest.json",
	"/dualweb-index.md",
	"/response-legitimacy",
	"/llms",
	"/readme.llm.txt",
	"/canon.md",
	"/identity.json",
	"/services-non-publics.md",
	"/author.md",
	"/humans.txt",
	"/site-context.md",
	"/editorial-context.md",
	"/non-goals.md",
	"/negative-definitions.md",
	"/output-constraints.md",
	"/data-handling.md",
	"/citations.md",
	"/changelog-ai.md",
}

func isGovernancePathLegacy(path string) bool {
	for _, m := range governanceMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

func isContentPathLegacy(path string) bool {
	if isGovernancePathLegacy(path) {
		return false
	}
	for _, ext := range []string{".json", ".jsonld", ".yaml", ".yml", ".txt", ".md"} {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return strings.HasSuffix(path, "/") || strings.Count(path, "/") >= 1
}

// ComputeLegacy derives the daily aggregate (revisits, motifs, regime) from
// one ledger.
func ComputeLegacy(l *types.Ledger) types.LegacyMetrics {
	sessions := l.SessionsInferred

	revisitCounts := map[string]int{}
	var allDeltas []float64
	var motifs types.MotifCounts

	distinct := map[string]struct{}{}
	totalHits := 0
	singleHit := 0

	for _, s := range sessions {
		totalHits += len(s.Path)
		if len(s.Path) == 1 {
			singleHit++
		}
		for _, p := range s.Path {
			distinct[p] = struct{}{}
		}

		counts, deltas := sessionRevisitStats(s)
		for p, c := range counts {
			if c >= 2 {
				revisitCounts[p] += c - 1
			}
		}
		allDeltas = append(allDeltas, deltas...)

		m := detectMotifs(s.Path)
		motifs.YamlThenLedger += m.YamlThenLedger
		motifs.YamlThenProtocol += m.YamlThenProtocol
		motifs.LedgerThenProtocol += m.LedgerThenProtocol
		motifs.GovContentGov += m.GovContentGov
	}

	sessionsTotal := len(sessions)
	singleHitRatio := 0.0
	meanHits := 0.0
	if sessionsTotal > 0 {
		singleHitRatio = float64(singleHit) / float64(sessionsTotal)
		meanHits = float64(totalHits) / float64(sessionsTotal)
	}

	topRevisits := topPathCounts(revisitCounts, 10)
	regime, rationale := classifyRegime(sessionsTotal, singleHitRatio, meanHits, motifs.Total(), topRevisits)

	return types.LegacyMetrics{
		GeneratedUTC:         l.GeneratedUTC,
		LedgerSequence:       l.LedgerSequence,
		Hash:                 l.Integrity.ContentHashSHA256,
		PreviousHash:         l.Integrity.PreviousLedgerHashSHA256,
		SessionsTotal:        sessionsTotal,
		SingleHitRatio:       round4(singleHitRatio),
		MeanHitsPerSession:   round4(meanHits),
		DistinctPathsTotal:   len(distinct),
		Regime:               regime,
		RegimeRationale:      rationale,
		TopRevisits:          topRevisits,
		Motifs:               motifs,
		RevisitDeltasSeconds: deltaStats(allDeltas),
	}
}

// sessionRevisitStats returns per-path hit counts and approximate deltas
// between repeated hits. The ledger keeps only the session window, not
// per-hit times, so hits are assumed uniformly spaced across the window.
func sessionRevisitStats(s types.Session) (map[string]int, []float64) {
	counts := map[string]int{}
	for _, p := range s.Path {
		counts[p]++
	}

	var deltas []float64
	totalHits := len(s.Path)
	if totalHits <= 1 {
		return counts, deltas
	}

	start, err1 := logparse.ParseTimestamp(s.WindowUTC.Start)
	end, err2 := logparse.ParseTimestamp(s.WindowUTC.End)
	if err1 != nil || err2 != nil {
		return counts, deltas
	}
	duration := end.Sub(start).Seconds()
	if duration <= 0 {
		return counts, deltas
	}

	step := duration / float64(totalHits-1)
	positions := map[string][]int{}
	for i, p := range s.Path {
		positions[p] = append(positions[p], i)
	}
	// Deterministic iteration over repeated paths.
	repeated := make([]string, 0, len(positions))
	for p, idxs := range positions {
		if len(idxs) >= 2 {
			repeated = append(repeated, p)
		}
	}
	sort.Strings(repeated)
	for _, p := range repeated {
		idxs := positions[p]
		for i := 1; i < len(idxs); i++ {
			deltas = append(deltas, float64(idxs[i]-idxs[i-1])*step)
		}
	}
	return counts, deltas
}

func detectMotifs(paths []string) types.MotifCounts {
	var m types.MotifCounts
	for i := 0; i+1 < len(paths); i++ {
		a, b := paths[i], paths[i+1]
		yamlA := strings.HasSuffix(a, ".yml") || strings.HasSuffix(a, ".yaml")
		if yamlA && strings.Contains(b, "/.well-known/q-ledger") {
			m.YamlThenLedger++
		}
		if yamlA && strings.Contains(b, "q-attest-protocol") {
			m.YamlThenProtocol++
		}
		if strings.Contains(a, "/.well-known/q-ledger") && strings.Contains(b, "q-attest-protocol") {
			m.LedgerThenProtocol++
		}
	}
	for i := 0; i+2 < len(paths); i++ {
		if isGovernancePathLegacy(paths[i]) && isContentPathLegacy(paths[i+1]) && isGovernancePathLegacy(paths[i+2]) {
			m.GovContentGov++
		}
	}
	return m
}

// classifyRegime applies the ordered heuristic rules; first match wins.
func classifyRegime(sessionsTotal int, singleHitRatio, meanHits float64, motifsTotal int, topRevisits []types.PathCount) (string, string) {
	if sessionsTotal < 5 {
		return RegimeOtherLowData, "sessions_total < 5"
	}

	topManifest := 0
	for _, pc := range topRevisits {
		if pc.Path == "/ai-manifest.json" {
			topManifest = pc.Count
			break
		}
	}

	if singleHitRatio >= 0.70 && motifsTotal == 0 && (topManifest >= 5 || meanHits <= 1.5) {
		return RegimeValidationIngestion, fmt.Sprintf(
			"single_hit_ratio>=0.70, motifs_total=0, manifest_revisits=%d, mean_hits=%.2f", topManifest, meanHits)
	}
	if motifsTotal >= 1 {
		return RegimeExplorationNavigation, fmt.Sprintf("motifs_total>=1 (%d)", motifsTotal)
	}
	if meanHits >= 2.3 && singleHitRatio <= 0.55 {
		return RegimeExplorationNavigation, fmt.Sprintf(
			"mean_hits>=2.3 and single_hit_ratio<=0.55 (mean_hits=%.2f, ratio=%.2f)", meanHits, singleHitRatio)
	}
	return RegimeMixed, fmt.Sprintf(
		"no strong rule matched (mean_hits=%.2f, ratio=%.2f, motifs_total=%d, manifest_revisits=%d)",
		meanHits, singleHitRatio, motifsTotal, topManifest)
}

func topPathCounts(counts map[string]int, n int) []types.PathCount {
	out := make([]types.PathCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, types.PathCount{Path: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func deltaStats(deltas []float64) types.DeltaStats {
	st := types.DeltaStats{Count: len(deltas)}
	if len(deltas) == 0 {
		return st
	}
	sorted := append([]float64(nil), deltas...)
	sort.Float64s(sorted)
	st.Min = floatPtr(sorted[0])
	st.Max = floatPtr(sorted[len(sorted)-1])
	st.Median = floatPtr(median(sorted))
	st.P90 = floatPtr(percentile(sorted, 0.90))
	return st
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile expects sorted input and uses nearest-rank rounding.
func percentile(sorted []float64, p float64) float64 {
	k := int(math.Round(float64(len(sorted)-1) * p))
	return sorted[k]
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func floatPtr(v float64) *float64 { return &v }
