package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// YAMLMirrorHeader marks the YAML mirror as derived output.
const YAMLMirrorHeader = "# Human-readable mirror file\n" +
	"# Canonical form is the JSON document\n" +
	"# Do not edit manually when the pipeline is active\n\n"

// WriteJSON writes v as indented JSON without HTML escaping, creating parent
// directories as needed.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteYAML writes v as YAML with an optional header comment block, creating
// parent directories as needed. Field order follows struct declaration.
func WriteYAML(path string, v any, header string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}

// WriteText writes a rendered text artifact, creating parent directories as
// needed.
func WriteText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
