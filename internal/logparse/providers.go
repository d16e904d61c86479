package logparse

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/yourorg/qledger/pkg/types"
)

// Provider identifiers accepted by the normalize command.
const (
	ProviderCloudflareCSV = "cloudflare_csv"
	ProviderNginxCombined = "nginx_combined"
	ProviderAWSALB        = "aws_alb"
	ProviderGenericJSONL  = "generic_jsonl"
)

// ParseCloudflareCSV converts a Cloudflare Log Search CSV export into
// normalized requests.
func ParseCloudflareCSV(path string, cols ColumnMap, stats *Stats) ([]types.NormalizedRequest, error) {
	rows, err := ReadCSV(path, cols, stats)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Method = upperOrGet(rows[i].Method)
		rows[i].Provider = ProviderCloudflareCSV
	}
	return rows, nil
}

var nginxCombinedRe = regexp.MustCompile(
	`^(\S+)\s+\S+\s+\S+\s+\[([^\]]+)\]\s+"([^"]+)"\s+(\d{3})\s+\S+\s+"[^"]*"\s+"([^"]*)"`)

// ParseNginxCombined converts an nginx "combined" access log. The combined
// format carries no host, so defaultHost is stamped on every row.
func ParseNginxCombined(path, defaultHost string, stats *Stats) ([]types.NormalizedRequest, error) {
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

		m := nginxCombinedRe.FindStringSubmatch(line)
		if m == nil {
			stats.RowsSkipped++
			continue
		}
		// Example: 10/Oct/2000:13:55:36 -0700
		ts, err := time.Parse("02/Jan/2006:15:04:05 -0700", m[2])
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		reqParts := strings.Fields(m[3])
		method := "GET"
		pathVal := "/"
		if len(reqParts) > 0 {
			method = strings.ToUpper(reqParts[0])
		}
		if len(reqParts) > 1 {
			pathVal = reqParts[1]
		}
		rows = append(rows, types.NormalizedRequest{
			Timestamp: ts.UTC(),
			IP:        m[1],
			UserAgent: m[5],
			Path:      NormalizePath(pathVal),
			Host:      defaultHost,
			Method:    method,
			Status:    m[4],
			Provider:  ProviderNginxCombined,
		})
		stats.RowsLoaded++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	sortByTime(rows)
	return rows, nil
}

// ParseAWSALB converts AWS ALB access logs (space-separated with quoted
// fields). Best-effort: it reads time, client ip, elb status, the request
// line and user agent.
func ParseAWSALB(path string, stats *Stats) ([]types.NormalizedRequest, error) {
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

		parts := splitQuoted(line)
		if len(parts) < 14 {
			stats.RowsSkipped++
			continue
		}
		ts, err := ParseTimestamp(parts[1])
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		ip := parts[3]
		if i := strings.Index(ip, ":"); i >= 0 {
			ip = ip[:i]
		}
		status := parts[8]
		if !isDigits(status) {
			status = "0"
		}

		// Example request field: GET https://example.com:443/path HTTP/1.1
		reqParts := strings.Fields(parts[12])
		method := "GET"
		rawURL := "/"
		if len(reqParts) > 0 {
			method = strings.ToUpper(reqParts[0])
		}
		if len(reqParts) > 1 {
			rawURL = reqParts[1]
		}
		host := ""
		pathVal := rawURL
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			host = u.Hostname()
			pathVal = u.Path
		}

		rows = append(rows, types.NormalizedRequest{
			Timestamp: ts,
			IP:        ip,
			UserAgent: parts[13],
			Path:      NormalizePath(pathVal),
			Host:      host,
			Method:    method,
			Status:    status,
			Provider:  ProviderAWSALB,
		})
		stats.RowsLoaded++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	sortByTime(rows)
	return rows, nil
}

// ParseGenericJSONLines converts generic JSON-lines logs using a configurable
// key map, stamping the given provider name.
func ParseGenericJSONLines(path string, keys ColumnMap, provider string, stats *Stats) ([]types.NormalizedRequest, error) {
	rows, err := ReadNDJSON(path, keys, stats)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Method = upperOrGet(rows[i].Method)
		rows[i].Provider = provider
	}
	return rows, nil
}

func upperOrGet(method string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return "GET"
	}
	return m
}

// splitQuoted splits on spaces while keeping double-quoted fields intact,
// stripping the quotes.
func splitQuoted(line string) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}
