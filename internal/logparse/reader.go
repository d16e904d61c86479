package logparse

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/yourorg/qledger/pkg/types"
)

// ReadCSV loads normalized requests from a CSV file using the given column
// map. Header matching is case-insensitive. Rows that fail to parse are
// skipped and counted in stats; the result is sorted by timestamp.
func ReadCSV(path string, cols ColumnMap, stats *Stats) ([]types.NormalizedRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := map[string]int{}
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	field := func(rec []string, name string) string {
		if name == "" {
			return ""
		}
		i, ok := index[strings.ToLower(strings.TrimSpace(name))]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []types.NormalizedRequest
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.RowsTotal++
			stats.RowsSkipped++
			continue
		}
		stats.RowsTotal++

		ts, err := ParseTimestamp(field(rec, cols.Timestamp))
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		p := NormalizePath(field(rec, cols.Path))
		if p == "" {
			stats.RowsSkipped++
			continue
		}
		rows = append(rows, types.NormalizedRequest{
			Timestamp: ts,
			IP:        field(rec, cols.IP),
			UserAgent: field(rec, cols.UserAgent),
			Path:      p,
			Host:      field(rec, cols.Host),
			Method:    field(rec, cols.Method),
			Status:    field(rec, cols.Status),
		})
		stats.RowsLoaded++
	}

	sortByTime(rows)
	return rows, nil
}

// ReadNDJSON loads normalized requests from an NDJSON file (one JSON object
// per line) using the given key map. Key matching is case-insensitive. Rows
// that fail to parse are skipped and counted; the result is sorted by
// timestamp.
func ReadNDJSON(path string, keys ColumnMap, stats *Stats) ([]types.NormalizedRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var rows []types.NormalizedRequest
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		stats.RowsTotal++

		obj, err := decodeLine(line)
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		ts, err := ParseTimestamp(stringKey(obj, keys.Timestamp))
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		p := NormalizePath(stringKey(obj, keys.Path))
		if p == "" {
			stats.RowsSkipped++
			continue
		}
		rows = append(rows, types.NormalizedRequest{
			Timestamp: ts,
			IP:        stringKey(obj, keys.IP),
			UserAgent: stringKey(obj, keys.UserAgent),
			Path:      p,
			Host:      stringKey(obj, keys.Host),
			Method:    stringKey(obj, keys.Method),
			Status:    stringKey(obj, keys.Status),
		})
		stats.RowsLoaded++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	sortByTime(rows)
	return rows, nil
}

func decodeLine(line string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	// Lowercase keys for parity with the CSV loader.
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

func stringKey(obj map[string]any, key string) string {
	if key == "" {
		return ""
	}
	v, ok := obj[strings.ToLower(strings.TrimSpace(key))]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func sortByTime(rows []types.NormalizedRequest) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
}
