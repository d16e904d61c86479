package metrics

import (
	"fmt"
	"strings"

	"github.com/yourorg/qledger/pkg/types"
)

// RenderReport builds the human-readable markdown metrics report for one
// ledger and its legacy aggregate.
func RenderReport(l *types.Ledger, m types.LegacyMetrics) string {
	b := &strings.Builder{}

	fmt.Fprintln(b, "# session ledger metrics")
	fmt.Fprintln(b)
	fmt.Fprintf(b, "- Generated: `%s`\n", l.GeneratedUTC)
	fmt.Fprintf(b, "- Ledger sequence: `%d`\n", l.LedgerSequence)
	fmt.Fprintf(b, "- Hash: `%s`\n", m.Hash)
	fmt.Fprintf(b, "- Previous hash: `%s`\n", strOrNA(m.PreviousHash))
	fmt.Fprintf(b, "- Sessions: `%d`\n", m.SessionsTotal)
	fmt.Fprintf(b, "- Single-hit ratio: `%.2f`\n", m.SingleHitRatio)
	fmt.Fprintf(b, "- Mean hits per session: `%.2f`\n", m.MeanHitsPerSession)
	fmt.Fprintf(b, "- Distinct paths: `%d`\n", m.DistinctPathsTotal)
	fmt.Fprintln(b)

	fmt.Fprintln(b, "## Daily regime classification")
	fmt.Fprintf(b, "- Regime: `%s`\n", m.Regime)
	fmt.Fprintf(b, "- Rationale: `%s`\n", m.RegimeRationale)
	fmt.Fprintln(b)

	fmt.Fprintln(b, "## Top revisits (approx.)")
	if len(m.TopRevisits) == 0 {
		fmt.Fprintln(b, "- n/a")
	} else {
		for _, pc := range m.TopRevisits {
			fmt.Fprintf(b, "- `%s`: %d\n", pc.Path, pc.Count)
		}
	}
	fmt.Fprintln(b)

	fmt.Fprintln(b, "## Time between revisits (approx.)")
	d := m.RevisitDeltasSeconds
	if d.Count == 0 {
		fmt.Fprintln(b, "- n/a")
	} else {
		fmt.Fprintf(b, "- Count: %d\n", d.Count)
		fmt.Fprintf(b, "- Min: %s\n", fmtSeconds(d.Min))
		fmt.Fprintf(b, "- Median: %s\n", fmtSeconds(d.Median))
		fmt.Fprintf(b, "- P90: %s\n", fmtSeconds(d.P90))
		fmt.Fprintf(b, "- Max: %s\n", fmtSeconds(d.Max))
	}
	fmt.Fprintln(b)

	fmt.Fprintln(b, "## Motifs detected")
	fmt.Fprintf(b, "- `yaml_then_ledger`: %d\n", m.Motifs.YamlThenLedger)
	fmt.Fprintf(b, "- `yaml_then_protocol`: %d\n", m.Motifs.YamlThenProtocol)
	fmt.Fprintf(b, "- `ledger_then_protocol`: %d\n", m.Motifs.LedgerThenProtocol)
	fmt.Fprintf(b, "- `gov_content_gov`: %d\n", m.Motifs.GovContentGov)
	fmt.Fprintln(b)

	fmt.Fprintln(b, "## Sessions (summary)")
	for _, s := range l.SessionsInferred {
		fmt.Fprintf(b, "- `%s` | `%s` -> `%s` | conf=%.2f | `%s` | hits=%d\n",
			s.SessionID, s.WindowUTC.Start, s.WindowUTC.End, s.Confidence,
			s.AgentClassification.PrimarySignal, len(s.Path))
	}
	fmt.Fprintln(b)

	return b.String()
}

func fmtSeconds(v *float64) string {
	if v == nil {
		return "n/a"
	}
	s := *v
	switch {
	case s < 60:
		return fmt.Sprintf("%.1f s", s)
	case s < 3600:
		return fmt.Sprintf("%.1f min", s/60)
	default:
		return fmt.Sprintf("%.2f h", s/3600)
	}
}

func strOrNA(s *string) string {
	if s == nil {
		return "n/a"
	}
	return *s
}
