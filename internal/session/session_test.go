package session

import (
	"testing"
	"time"

	"github.com/yourorg/qledger/pkg/types"
)

func req(ts string, ip, ua, path string) types.NormalizedRequest {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return types.NormalizedRequest{Timestamp: t, IP: ip, UserAgent: ua, Path: path}
}

func TestFingerprintPlaceholders(t *testing.T) {
	withIP := Fingerprint("1.2.3.4", "bot", "salt")
	noIP := Fingerprint("", "bot", "salt")
	if withIP == noIP {
		t.Fatalf("expected different fingerprints")
	}
	if noIP != Fingerprint("", "bot", "salt") {
		t.Fatalf("fingerprint not deterministic")
	}
	if len(withIP) != 64 {
		t.Fatalf("expected full sha256 hex, got %d chars", len(withIP))
	}
}

func TestSingleHitSessionIsCapped(t *testing.T) {
	in := &Inferrer{Salt: "s", GovPaths: []string{"/ai.txt"}}
	sessions := in.Infer([]types.NormalizedRequest{
		req("2026-08-30T10:00:00Z", "1.2.3.4", "bot", "/ai.txt"),
	})
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.Confidence > 0.55 {
		t.Fatalf("single-hit confidence %v exceeds cap", s.Confidence)
	}
	if s.AgentClassification.ConfidenceLevel != "low" {
		t.Fatalf("single-hit level = %q", s.AgentClassification.ConfidenceLevel)
	}
	if len(s.ClientFingerprintHash) != 24 {
		t.Fatalf("fingerprint hash length = %d", len(s.ClientFingerprintHash))
	}
	if len(s.SessionID) != 16 {
		t.Fatalf("session id length = %d", len(s.SessionID))
	}
	if s.AgentClassification.PrimarySignal != "single_governance_hit" {
		t.Fatalf("primary = %q", s.AgentClassification.PrimarySignal)
	}
}

func TestGapSplitsSessions(t *testing.T) {
	in := &Inferrer{Salt: "s"}
	sessions := in.Infer([]types.NormalizedRequest{
		req("2026-08-30T10:00:00Z", "1.2.3.4", "bot", "/a"),
		req("2026-08-30T10:45:00Z", "1.2.3.4", "bot", "/b"),
	})
	if len(sessions) != 2 {
		t.Fatalf("45-minute gap: expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].WindowUTC.Start >= sessions[1].WindowUTC.Start {
		t.Fatalf("sessions not sorted by start")
	}
}

func TestExactGapStaysOneSession(t *testing.T) {
	in := &Inferrer{Salt: "s"}
	sessions := in.Infer([]types.NormalizedRequest{
		req("2026-08-30T10:00:00Z", "1.2.3.4", "bot", "/a"),
		req("2026-08-30T10:30:00Z", "1.2.3.4", "bot", "/b"),
	})
	if len(sessions) != 1 {
		t.Fatalf("exact 30-minute gap: expected 1 session, got %d", len(sessions))
	}
	if len(sessions[0].Path) != 2 {
		t.Fatalf("expected both hits in one session")
	}
}

func TestDifferentClientsNeverMerge(t *testing.T) {
	in := &Inferrer{Salt: "s"}
	sessions := in.Infer([]types.NormalizedRequest{
		req("2026-08-30T10:00:00Z", "1.2.3.4", "bot", "/a"),
		req("2026-08-30T10:01:00Z", "5.6.7.8", "bot", "/a"),
	})
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ClientFingerprintHash == sessions[1].ClientFingerprintHash {
		t.Fatalf("different clients share a fingerprint")
	}
}

func TestYamlPreferenceSignal(t *testing.T) {
	gov := []string{"/a.yml", "/b"}
	in := &Inferrer{Salt: "s", GovPaths: gov}
	sessions := in.Infer([]types.NormalizedRequest{
		req("2026-08-30T10:00:00Z", "1.2.3.4", "bot", "/a.yml"),
		req("2026-08-30T10:01:00Z", "1.2.3.4", "bot", "/b"),
	})
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.AgentClassification.PrimarySignal != "yaml_preference" {
		t.Fatalf("primary = %q, signals = %v", s.AgentClassification.PrimarySignal, s.Signals)
	}
	found := false
	for _, sig := range s.Signals {
		if sig == "yaml_preference_observed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("yaml_preference_observed missing from %v", s.Signals)
	}
}

func TestSystematicGovernanceCheckRaisesConfidence(t *testing.T) {
	gov := []string{"/a", "/b", "/c", "/d", "/e"}
	in := &Inferrer{Salt: "s", GovPaths: gov}
	var rows []types.NormalizedRequest
	times := []string{
		"2026-08-30T10:00:00Z",
		"2026-08-30T10:01:00Z",
		"2026-08-30T10:02:00Z",
		"2026-08-30T10:03:00Z",
		"2026-08-30T10:04:00Z",
	}
	for i, ts := range times {
		rows = append(rows, req(ts, "1.2.3.4", "bot", gov[i]))
	}
	sessions := in.Infer(rows)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	// All 5 hits governance: base 0.20+0.55, plus systematic bonus, clamped.
	if s.Confidence != 0.95 {
		t.Fatalf("confidence = %v, want 0.95", s.Confidence)
	}
	if s.AgentClassification.ConfidenceLevel != "high" {
		t.Fatalf("level = %q", s.AgentClassification.ConfidenceLevel)
	}
	if s.AgentClassification.PrimarySignal != "governance_sequence" {
		t.Fatalf("primary = %q", s.AgentClassification.PrimarySignal)
	}
	if s.AgentClassification.HumanReadableHypothesis != "behavior consistent with an autonomous agent" {
		t.Fatalf("hypothesis = %q", s.AgentClassification.HumanReadableHypothesis)
	}
}

func TestConfidenceBounds(t *testing.T) {
	in := &Inferrer{Salt: "s", GovPaths: []string{"/gov"}}
	sessions := in.Infer([]types.NormalizedRequest{
		req("2026-08-30T10:00:00Z", "1.2.3.4", "bot", "/plain1"),
		req("2026-08-30T10:01:00Z", "1.2.3.4", "bot", "/plain2"),
	})
	for _, s := range sessions {
		if s.Confidence < 0.05 || s.Confidence > 0.95 {
			t.Fatalf("confidence %v out of bounds", s.Confidence)
		}
	}
}

func TestSiteHostFilter(t *testing.T) {
	in := &Inferrer{Salt: "s", SiteHost: "example.com"}
	a := req("2026-08-30T10:00:00Z", "1.2.3.4", "bot", "/a")
	a.Host = "example.com"
	b := req("2026-08-30T10:01:00Z", "1.2.3.4", "bot", "/b")
	b.Host = "other.com"
	sessions := in.Infer([]types.NormalizedRequest{a, b})
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if len(sessions[0].Path) != 1 || sessions[0].Path[0] != "/a" {
		t.Fatalf("host filter kept wrong rows: %v", sessions[0].Path)
	}
}

func TestInferDeterministicOrdering(t *testing.T) {
	in := &Inferrer{Salt: "s"}
	rows := []types.NormalizedRequest{
		req("2026-08-30T10:00:00Z", "1.1.1.1", "a", "/x"),
		req("2026-08-30T10:00:00Z", "2.2.2.2", "b", "/y"),
		req("2026-08-30T10:00:00Z", "3.3.3.3", "c", "/z"),
	}
	first := in.Infer(rows)
	for i := 0; i < 10; i++ {
		again := in.Infer(rows)
		for j := range first {
			if first[j].SessionID != again[j].SessionID {
				t.Fatalf("ordering not deterministic at run %d", i)
			}
		}
	}
}
