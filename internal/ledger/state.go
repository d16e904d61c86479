package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourorg/qledger/pkg/types"
)

// LoadState reads the chaining state. A missing file is a valid first-run
// state: sequence 0, no previous hash.
func LoadState(path string) (types.LedgerState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return types.LedgerState{}, nil
	}
	if err != nil {
		return types.LedgerState{}, fmt.Errorf("read state: %w", err)
	}
	var st types.LedgerState
	if err := json.Unmarshal(data, &st); err != nil {
		return types.LedgerState{}, fmt.Errorf("parse state: %w", err)
	}
	return st, nil
}

// SaveState atomically replaces the chaining state. A partial write would
// corrupt the hash chain for the next run, so the file is written to a temp
// name and renamed into place.
func SaveState(path string, st types.LedgerState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ledger-state-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
