package metrics

import (
	"testing"

	"github.com/yourorg/qledger/pkg/types"
)

func pathSession(start, end string, paths ...string) types.Session {
	return types.Session{
		SessionID: "s",
		WindowUTC: types.Window{Start: start, End: end},
		Path:      paths,
	}
}

func TestComputeLegacyLowData(t *testing.T) {
	hash := "prevhash"
	l := &types.Ledger{
		GeneratedUTC:   "2026-08-30T12:00:00Z",
		LedgerSequence: 3,
		SessionsInferred: []types.Session{
			pathSession("2026-08-30T10:00:00Z", "2026-08-30T10:00:00Z", "/a"),
			pathSession("2026-08-30T11:00:00Z", "2026-08-30T11:00:00Z", "/b"),
		},
		Integrity: types.Integrity{
			PreviousLedgerHashSHA256: &hash,
			ContentHashSHA256:        "currenthash",
		},
	}
	m := ComputeLegacy(l)
	if m.Regime != RegimeOtherLowData {
		t.Fatalf("regime = %q", m.Regime)
	}
	if m.SessionsTotal != 2 || m.DistinctPathsTotal != 2 {
		t.Fatalf("totals = %d/%d", m.SessionsTotal, m.DistinctPathsTotal)
	}
	if m.Hash != "currenthash" || m.PreviousHash == nil || *m.PreviousHash != "prevhash" {
		t.Fatalf("hash linkage = %q / %v", m.Hash, m.PreviousHash)
	}
}

func fiveSingleHitSessions(path string) []types.Session {
	out := make([]types.Session, 0, 5)
	times := []string{"10", "11", "12", "13", "14"}
	for _, h := range times {
		ts := "2026-08-30T" + h + ":00:00Z"
		out = append(out, pathSession(ts, ts, path))
	}
	return out
}

func TestComputeLegacyValidationIngestion(t *testing.T) {
	// Five single-hit sessions, no motifs, mean hits 1.0 <= 1.5.
	l := &types.Ledger{SessionsInferred: fiveSingleHitSessions("/ai-manifest.json")}
	m := ComputeLegacy(l)
	if m.Regime != RegimeValidationIngestion {
		t.Fatalf("regime = %q (%s)", m.Regime, m.RegimeRationale)
	}
	if m.SingleHitRatio != 1.0 || m.MeanHitsPerSession != 1.0 {
		t.Fatalf("ratio=%v mean=%v", m.SingleHitRatio, m.MeanHitsPerSession)
	}
}

func TestComputeLegacyMotifForcesExploration(t *testing.T) {
	sessions := fiveSingleHitSessions("/x")
	sessions = append(sessions, pathSession(
		"2026-08-30T15:00:00Z", "2026-08-30T15:05:00Z",
		"/spec.yml", "/.well-known/q-ledger.json",
	))
	l := &types.Ledger{SessionsInferred: sessions}
	m := ComputeLegacy(l)
	if m.Motifs.YamlThenLedger != 1 {
		t.Fatalf("motifs = %+v", m.Motifs)
	}
	if m.Regime != RegimeExplorationNavigation {
		t.Fatalf("regime = %q (%s)", m.Regime, m.RegimeRationale)
	}
}

func TestComputeLegacyMixedFallback(t *testing.T) {
	// Five sessions, two hits each on distinct non-governance paths: ratio 0,
	// mean 2.0, no motifs. No rule matches.
	var sessions []types.Session
	times := []string{"10", "11", "12", "13", "14"}
	for i, h := range times {
		start := "2026-08-30T" + h + ":00:00Z"
		end := "2026-08-30T" + h + ":05:00Z"
		a := "/page-a-" + times[i]
		b := "/page-b-" + times[i]
		sessions = append(sessions, pathSession(start, end, a, b))
	}
	l := &types.Ledger{SessionsInferred: sessions}
	m := ComputeLegacy(l)
	if m.Regime != RegimeMixed {
		t.Fatalf("regime = %q (%s)", m.Regime, m.RegimeRationale)
	}
}

func TestDetectMotifsGovContentGov(t *testing.T) {
	m := detectMotifs([]string{"/ai-governance.json", "/articles/post", "/canon.md"})
	if m.GovContentGov != 1 {
		t.Fatalf("motifs = %+v", m)
	}
}

func TestSessionRevisitStats(t *testing.T) {
	s := pathSession("2026-08-30T10:00:00Z", "2026-08-30T10:03:00Z", "/a", "/b", "/a", "/a")
	counts, deltas := sessionRevisitStats(s)
	if counts["/a"] != 3 || counts["/b"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	// 4 hits over 180s: step 60s; /a at positions 0, 2, 3 gives deltas 120, 60.
	if len(deltas) != 2 {
		t.Fatalf("deltas = %v", deltas)
	}
	if deltas[0] != 120 || deltas[1] != 60 {
		t.Fatalf("deltas = %v", deltas)
	}
}

func TestTopPathCountsOrdering(t *testing.T) {
	got := topPathCounts(map[string]int{"/b": 2, "/a": 2, "/c": 5}, 10)
	if got[0].Path != "/c" || got[1].Path != "/a" || got[2].Path != "/b" {
		t.Fatalf("order = %v", got)
	}
}

func TestDeltaStats(t *testing.T) {
	st := deltaStats([]float64{10, 20, 30, 40})
	if st.Count != 4 {
		t.Fatalf("count = %d", st.Count)
	}
	if *st.Min != 10 || *st.Max != 40 || *st.Median != 25 {
		t.Fatalf("stats = %+v", st)
	}

	empty := deltaStats(nil)
	if empty.Count != 0 || empty.Min != nil {
		t.Fatalf("empty stats = %+v", empty)
	}
}
