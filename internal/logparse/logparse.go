// Package logparse converts provider-specific access logs into the
// provider-agnostic NormalizedRequest format and reads the normalized
// intermediate formats back for ledger building.
package logparse

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Stats counts ingestion outcomes for one input file. Malformed rows are
// skipped and counted, never fatal.
type Stats struct {
	RowsTotal   int
	RowsLoaded  int
	RowsSkipped int
}

// ColumnMap names the source columns (CSV) or object keys (NDJSON) holding
// each normalized attribute. Method and Status may be empty.
type ColumnMap struct {
	Timestamp string
	IP        string
	UserAgent string
	Path      string
	Host      string
	Method    string
	Status    string
}

// NormalizedColumns is the column map of the normalized intermediate format
// produced by the normalize command.
var NormalizedColumns = ColumnMap{
	Timestamp: "ts",
	IP:        "ip",
	UserAgent: "user_agent",
	Path:      "path",
	Host:      "host",
	Method:    "method",
	Status:    "status",
}

// CloudflareColumns is the default column map for Cloudflare Log Search CSV
// exports.
var CloudflareColumns = ColumnMap{
	Timestamp: "EdgeStartTimestamp",
	IP:        "ClientIP",
	UserAgent: "ClientRequestUserAgent",
	Path:      "ClientRequestPath",
	Host:      "ClientRequestHost",
	Method:    "ClientRequestMethod",
	Status:    "EdgeResponseStatus",
}

// FromConfigColumns builds a ColumnMap from the config-level column mapping,
// falling back to def for missing keys.
func FromConfigColumns(cols map[string]string, def ColumnMap) ColumnMap {
	out := def
	if v := cols["timestamp"]; v != "" {
		out.Timestamp = v
	}
	if v := cols["ip"]; v != "" {
		out.IP = v
	}
	if v := cols["ua"]; v != "" {
		out.UserAgent = v
	}
	if v := cols["path"]; v != "" {
		out.Path = v
	}
	if v := cols["host"]; v != "" {
		out.Host = v
	}
	if v := cols["method"]; v != "" {
		out.Method = v
	}
	if v := cols["status"]; v != "" {
		out.Status = v
	}
	return out
}

// NormalizePath strips scheme, query and fragment, forces a leading slash and
// collapses duplicate slashes. Returns "" for empty input.
func NormalizePath(uri string) string {
	u := strings.TrimSpace(uri)
	if u == "" {
		return ""
	}
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
		if j := strings.Index(u, "/"); j >= 0 {
			u = u[j:]
		} else {
			u = "/"
		}
	}
	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	if i := strings.Index(u, "#"); i >= 0 {
		u = u[:i]
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	for strings.Contains(u, "//") {
		u = strings.ReplaceAll(u, "//", "/")
	}
	return u
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 (with or without fractional seconds),
// ISO-8601 without a zone (assumed UTC) and epoch milliseconds (12+ digits).
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if len(s) >= 12 && isDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized timestamp: " + s)
}

// FormatUTC renders t as an ISO-8601 UTC instant with a Z suffix.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
