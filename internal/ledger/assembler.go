// Package ledger assembles scored sessions into the versioned, hash-chained
// ledger document and owns the persisted chaining state.
package ledger

import (
	"time"

	"github.com/yourorg/qledger/internal/canonical"
	"github.com/yourorg/qledger/internal/logparse"
	"github.com/yourorg/qledger/internal/session"
	"github.com/yourorg/qledger/pkg/types"
)

const (
	ledgerVersion = "1.1"

	// canonicalization documents the digest contract inside the ledger.
	canonicalization = "json(sort_keys=true,separators=(',',':'))"

	methodNotes = "sessions inferred from logs; no model identity is asserted"
)

// Assembler produces one ledger per run.
type Assembler struct {
	Site         string
	GapMinutes   int
	ExportWindow string
}

// Assemble builds the next ledger in the chain. The content hash is computed
// over the canonical serialization of the document with the content-hash
// field absent, then inserted. The returned state must be persisted after the
// ledger is written.
func (a Assembler) Assemble(sessions []types.Session, stats types.InputStats, prior types.LedgerState, now time.Time) (*types.Ledger, types.LedgerState, error) {
	if sessions == nil {
		sessions = []types.Session{}
	}
	exportWindow := a.ExportWindow
	if exportWindow == "" {
		exportWindow = "manual"
	}

	l := &types.Ledger{
		LedgerVersion:  ledgerVersion,
		LedgerSequence: prior.LedgerSequence + 1,
		Site:           a.Site,
		GeneratedUTC:   logparse.FormatUTC(now),
		Method: types.Method{
			Name:              session.AlgorithmName,
			Version:           session.AlgorithmVersion,
			SessionGapMinutes: a.GapMinutes,
			Notes:             methodNotes,
		},
		ExportWindow:          exportWindow,
		InputStats:            stats,
		SessionsInferred:      sessions,
		AttestationsValidated: []any{},
		Integrity: types.Integrity{
			PreviousLedgerHashSHA256: prior.LastLedgerHash,
			Canonicalization:         canonicalization,
		},
	}

	hash, err := canonical.HashJSON(l)
	if err != nil {
		return nil, types.LedgerState{}, err
	}
	l.Integrity.ContentHashSHA256 = hash

	next := types.LedgerState{
		LedgerSequence: l.LedgerSequence,
		LastLedgerHash: &hash,
	}
	return l, next, nil
}
