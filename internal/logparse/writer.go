package logparse

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/yourorg/qledger/pkg/types"
)

// WriteNDJSON writes rows as one JSON object per line. NDJSON is the
// preferred intermediate format.
func WriteNDJSON(path string, rows []types.NormalizedRequest) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	count := 0
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return count, err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return count, err
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return count, err
	}
	return count, nil
}

// WriteCSV writes rows using the normalized column layout.
func WriteCSV(path string, rows []types.NormalizedRequest) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"ts", "host", "method", "path", "status", "ip", "user_agent", "provider"}
	if err := w.Write(header); err != nil {
		return 0, err
	}
	count := 0
	for _, r := range rows {
		rec := []string{
			FormatUTC(r.Timestamp),
			r.Host,
			r.Method,
			r.Path,
			r.Status,
			r.IP,
			r.UserAgent,
			r.Provider,
		}
		if err := w.Write(rec); err != nil {
			return count, err
		}
		count++
	}
	w.Flush()
	return count, w.Error()
}
