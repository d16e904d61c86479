package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourorg/qledger/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func legacyFixture(seq int, regime string) types.LegacyMetrics {
	return types.LegacyMetrics{
		LedgerSequence:     seq,
		Regime:             regime,
		RegimeRationale:    "test",
		SessionsTotal:      6,
		SingleHitRatio:     0.5,
		MeanHitsPerSession: 2.0,
		DistinctPathsTotal: 4,
		Hash:               "hash",
		TopRevisits:        []types.PathCount{{Path: "/ai-manifest.json", Count: 3}},
	}
}

func rate(v float64) *float64 { return &v }

func TestRecordRunAndLatestPerDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	if err := s.RecordRun(ctx, legacyFixture(1, "mixed"), types.QMetricsRates{}, day1); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	// Second run on the same day supersedes the first.
	if err := s.RecordRun(ctx, legacyFixture(2, "exploration_navigation"), types.QMetricsRates{}, day1); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := s.RecordRun(ctx, legacyFixture(3, "mixed"), types.QMetricsRates{EntryComplianceRate: rate(0.8)}, day2); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	records, err := s.LatestPerDay(ctx, 7)
	if err != nil {
		t.Fatalf("LatestPerDay: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].DateUTC != "2026-08-28" || records[1].DateUTC != "2026-08-29" {
		t.Fatalf("dates = %s, %s", records[0].DateUTC, records[1].DateUTC)
	}
	if records[0].LedgerSequence != 2 {
		t.Fatalf("expected latest sequence 2 for first day, got %d", records[0].LedgerSequence)
	}
	if records[0].Regime != "exploration_navigation" {
		t.Fatalf("regime = %q", records[0].Regime)
	}
	if len(records[0].TopRevisits) != 1 || records[0].TopRevisits[0].Path != "/ai-manifest.json" {
		t.Fatalf("top revisits = %v", records[0].TopRevisits)
	}
	if records[1].EntryComplianceRate == nil || *records[1].EntryComplianceRate != 0.8 {
		t.Fatalf("rate = %v", records[1].EntryComplianceRate)
	}
}

func TestLatestPerDayLimitsDays(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		day := time.Date(2026, 8, 20+i, 12, 0, 0, 0, time.UTC)
		if err := s.RecordRun(ctx, legacyFixture(i+1, "mixed"), types.QMetricsRates{}, day); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	records, err := s.LatestPerDay(ctx, 3)
	if err != nil {
		t.Fatalf("LatestPerDay: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	// The most recent three days, ascending.
	if records[0].DateUTC != "2026-08-22" || records[2].DateUTC != "2026-08-24" {
		t.Fatalf("dates = %s .. %s", records[0].DateUTC, records[2].DateUTC)
	}
}

func TestBuildSummary(t *testing.T) {
	records := []DayRecord{
		{
			DateUTC: "2026-08-28", Regime: "mixed", SessionsTotal: 10,
			SingleHitRatio: 0.4, MeanHitsPerSession: 2.0,
			TopRevisits:         []types.PathCount{{Path: "/a", Count: 2}},
			EntryComplianceRate: rate(0.5),
		},
		{
			DateUTC: "2026-08-29", Regime: "mixed", SessionsTotal: 20,
			SingleHitRatio: 0.6, MeanHitsPerSession: 3.0,
			TopRevisits:         []types.PathCount{{Path: "/a", Count: 3}, {Path: "/b", Count: 1}},
			EntryComplianceRate: rate(1.0),
		},
	}
	s := BuildSummary(records, "2026-08-30T12:00:00Z")
	if s.DaysCovered != 2 {
		t.Fatalf("days = %d", s.DaysCovered)
	}
	if s.RegimeCounts["mixed"] != 2 {
		t.Fatalf("regime counts = %v", s.RegimeCounts)
	}
	if s.AvgSingleHitRatio != 0.5 || s.AvgMeanHits != 2.5 || s.AvgSessionsPerDay != 15 {
		t.Fatalf("averages = %v/%v/%v", s.AvgSingleHitRatio, s.AvgMeanHits, s.AvgSessionsPerDay)
	}
	if len(s.DominantFiles) != 2 || s.DominantFiles[0].Path != "/a" || s.DominantFiles[0].Count != 5 {
		t.Fatalf("dominant files = %v", s.DominantFiles)
	}
	if s.AvgRates["entry_compliance_rate"] != 0.75 {
		t.Fatalf("avg rates = %v", s.AvgRates)
	}
}

func TestRenderSummaryMarkdownEmpty(t *testing.T) {
	md := RenderSummaryMarkdown(BuildSummary(nil, "2026-08-30T12:00:00Z"))
	if md == "" {
		t.Fatalf("empty render")
	}
}
