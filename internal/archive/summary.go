package archive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yourorg/qledger/pkg/types"
)

// Summary aggregates the archived day records into a multi-day overview.
type Summary struct {
	GeneratedUTC      string             `json:"generated_utc"`
	DaysCovered       int                `json:"days_covered"`
	RegimeCounts      map[string]int     `json:"regime_counts"`
	AvgSingleHitRatio float64            `json:"avg_single_hit_ratio"`
	AvgMeanHits       float64            `json:"avg_mean_hits_per_session"`
	AvgSessionsPerDay float64            `json:"avg_sessions_per_day"`
	DominantFiles     []types.PathCount  `json:"dominant_files"`
	AvgRates          map[string]float64 `json:"avg_rates,omitempty"`
	Days              []DayRecord        `json:"days"`
}

// BuildSummary computes the aggregate over the given day records.
func BuildSummary(records []DayRecord, generatedUTC string) Summary {
	s := Summary{
		GeneratedUTC: generatedUTC,
		DaysCovered:  len(records),
		RegimeCounts: map[string]int{},
		Days:         records,
	}
	if len(records) == 0 {
		return s
	}

	fileCounts := map[string]int{}
	rateSums := map[string]float64{}
	rateCounts := map[string]int{}
	var ratioSum, hitsSum, sessionsSum float64

	for _, r := range records {
		s.RegimeCounts[r.Regime]++
		ratioSum += r.SingleHitRatio
		hitsSum += r.MeanHitsPerSession
		sessionsSum += float64(r.SessionsTotal)
		for _, pc := range r.TopRevisits {
			fileCounts[pc.Path] += pc.Count
		}
		addRate(rateSums, rateCounts, "entry_compliance_rate", r.EntryComplianceRate)
		addRate(rateSums, rateCounts, "constraint_touch_rate", r.ConstraintTouchRate)
		addRate(rateSums, rateCounts, "escape_rate", r.EscapeRate)
		addRate(rateSums, rateCounts, "sequence_fidelity", r.SequenceFidelity)
	}

	n := float64(len(records))
	s.AvgSingleHitRatio = ratioSum / n
	s.AvgMeanHits = hitsSum / n
	s.AvgSessionsPerDay = sessionsSum / n

	s.DominantFiles = make([]types.PathCount, 0, len(fileCounts))
	for p, c := range fileCounts {
		s.DominantFiles = append(s.DominantFiles, types.PathCount{Path: p, Count: c})
	}
	sort.Slice(s.DominantFiles, func(i, j int) bool {
		if s.DominantFiles[i].Count != s.DominantFiles[j].Count {
			return s.DominantFiles[i].Count > s.DominantFiles[j].Count
		}
		return s.DominantFiles[i].Path < s.DominantFiles[j].Path
	})
	if len(s.DominantFiles) > 10 {
		s.DominantFiles = s.DominantFiles[:10]
	}

	if len(rateSums) > 0 {
		s.AvgRates = map[string]float64{}
		for k, sum := range rateSums {
			s.AvgRates[k] = sum / float64(rateCounts[k])
		}
	}
	return s
}

func addRate(sums map[string]float64, counts map[string]int, name string, v *float64) {
	if v == nil {
		return
	}
	sums[name] += *v
	counts[name]++
}

// RenderSummaryMarkdown renders the multi-day summary as markdown.
func RenderSummaryMarkdown(s Summary) string {
	b := &strings.Builder{}

	fmt.Fprintln(b, "# multi-day ledger summary")
	fmt.Fprintln(b)
	fmt.Fprintf(b, "- Generated: `%s`\n", s.GeneratedUTC)
	fmt.Fprintf(b, "- Days covered: `%d`\n", s.DaysCovered)
	fmt.Fprintln(b)

	if s.DaysCovered == 0 {
		fmt.Fprintln(b, "No archived runs found.")
		return b.String()
	}

	fmt.Fprintln(b, "## Regime distribution")
	regimes := make([]string, 0, len(s.RegimeCounts))
	for r := range s.RegimeCounts {
		regimes = append(regimes, r)
	}
	sort.Strings(regimes)
	for _, r := range regimes {
		fmt.Fprintf(b, "- `%s`: %d day(s)\n", r, s.RegimeCounts[r])
	}
	fmt.Fprintln(b)

	fmt.Fprintln(b, "## Averages")
	fmt.Fprintf(b, "- Single-hit ratio: `%.2f`\n", s.AvgSingleHitRatio)
	fmt.Fprintf(b, "- Mean hits per session: `%.2f`\n", s.AvgMeanHits)
	fmt.Fprintf(b, "- Sessions per day: `%.1f`\n", s.AvgSessionsPerDay)
	fmt.Fprintln(b)

	if len(s.AvgRates) > 0 {
		fmt.Fprintln(b, "## Average governance rates")
		keys := make([]string, 0, len(s.AvgRates))
		for k := range s.AvgRates {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "- `%s`: %.3f\n", k, s.AvgRates[k])
		}
		fmt.Fprintln(b)
	}

	fmt.Fprintln(b, "## Dominant files (by revisits)")
	if len(s.DominantFiles) == 0 {
		fmt.Fprintln(b, "- n/a")
	} else {
		for _, pc := range s.DominantFiles {
			fmt.Fprintf(b, "- `%s`: %d\n", pc.Path, pc.Count)
		}
	}
	fmt.Fprintln(b)

	fmt.Fprintln(b, "## Per-day records")
	for _, r := range s.Days {
		fmt.Fprintf(b, "- `%s` | seq=%d | `%s` | sessions=%d | ratio=%.2f | mean_hits=%.2f\n",
			r.DateUTC, r.LedgerSequence, r.Regime, r.SessionsTotal, r.SingleHitRatio, r.MeanHitsPerSession)
	}
	fmt.Fprintln(b)

	return b.String()
}
