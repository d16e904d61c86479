// Package verify checks that the published well-known artifacts match the
// locally generated ones by comparing canonical digests.
package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/qledger/internal/canonical"
)

// DefaultEndpoints maps artifact names to their well-known publication paths.
var DefaultEndpoints = map[string]string{
	"q_ledger_json":  "/.well-known/q-ledger.json",
	"q_ledger_yml":   "/.well-known/q-ledger.yml",
	"q_metrics_json": "/.well-known/q-metrics.json",
	"q_metrics_yml":  "/.well-known/q-metrics.yml",
}

// Result is the outcome of one artifact comparison.
type Result struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	OK           bool   `json:"ok"`
	LocalSHA256  string `json:"local_sha256,omitempty"`
	RemoteSHA256 string `json:"remote_sha256,omitempty"`
	LocalSize    int    `json:"local_size"`
	RemoteSize   int    `json:"remote_size"`
	Note         string `json:"note,omitempty"`
}

// Verifier fetches published artifacts and compares them with local files.
type Verifier struct {
	BaseURL   string
	Endpoints map[string]string
	UserAgent string
	Client    *http.Client
}

// New returns a Verifier with default endpoints and timeout.
func New(baseURL string, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	endpoints := make(map[string]string, len(DefaultEndpoints))
	for k, v := range DefaultEndpoints {
		endpoints[k] = v
	}
	return &Verifier{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Endpoints: endpoints,
		UserAgent: "qledger-verifier",
		Client:    &http.Client{Timeout: timeout},
	}
}

func (v *Verifier) fetch(ctx context.Context, endpoint string) ([]byte, http.Header, error) {
	u, err := url.JoinPath(v.BaseURL, endpoint)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", v.UserAgent)
	resp, err := v.Client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.Header, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, err
	}
	return body, resp.Header, nil
}

// VerifyJSON compares the canonical digest of a local JSON file with the
// published JSON document at the named endpoint. Whitespace and key order do
// not matter; the comparison is over canonical serializations.
func (v *Verifier) VerifyJSON(ctx context.Context, name, localPath string) Result {
	endpoint, ok := v.Endpoints[name]
	if !ok {
		return Result{Name: name, Note: "unknown endpoint"}
	}
	res := Result{Name: name, URL: v.BaseURL + endpoint}

	local, err := os.ReadFile(localPath)
	if err != nil {
		res.Note = fmt.Sprintf("read local: %v", err)
		return res
	}
	res.LocalSize = len(local)

	remote, hdr, err := v.fetch(ctx, endpoint)
	if err != nil {
		res.Note = err.Error()
		return res
	}
	res.RemoteSize = len(remote)
	res.Note = provenanceNote(hdr)

	var localDoc, remoteDoc any
	if err := yaml.Unmarshal(local, &localDoc); err != nil {
		res.Note = fmt.Sprintf("parse local: %v", err)
		return res
	}
	if err := yaml.Unmarshal(remote, &remoteDoc); err != nil {
		res.Note = fmt.Sprintf("parse remote: %v", err)
		return res
	}

	res.LocalSHA256, err = canonical.HashJSON(localDoc)
	if err != nil {
		res.Note = fmt.Sprintf("hash local: %v", err)
		return res
	}
	res.RemoteSHA256, err = canonical.HashJSON(remoteDoc)
	if err != nil {
		res.Note = fmt.Sprintf("hash remote: %v", err)
		return res
	}
	res.OK = res.LocalSHA256 == res.RemoteSHA256
	return res
}

// VerifyYAML compares a local YAML mirror with the published one. Both are
// decoded and compared via canonical digests so the comment header and
// formatting differences are ignored.
func (v *Verifier) VerifyYAML(ctx context.Context, name, localPath string) Result {
	// YAML decodes into the same generic document shape as JSON, so the
	// comparison is identical.
	return v.VerifyJSON(ctx, name, localPath)
}

// VerifyAll runs all configured pairs and returns results in a stable order.
func (v *Verifier) VerifyAll(ctx context.Context, localPaths map[string]string) []Result {
	order := []string{"q_ledger_json", "q_ledger_yml", "q_metrics_json", "q_metrics_yml"}
	var out []Result
	for _, name := range order {
		local, ok := localPaths[name]
		if !ok {
			continue
		}
		out = append(out, v.VerifyJSON(ctx, name, local))
	}
	return out
}

func provenanceNote(hdr http.Header) string {
	var parts []string
	if lm := hdr.Get("Last-Modified"); lm != "" {
		parts = append(parts, "last-modified: "+lm)
	}
	if et := hdr.Get("ETag"); et != "" {
		parts = append(parts, "etag: "+et)
	}
	return strings.Join(parts, "; ")
}
