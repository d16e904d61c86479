package canonical

import (
	"testing"
)

func TestJSONBytesKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2, "nested": map[string]any{"y": true, "x": "v"}}
	b := map[string]any{"nested": map[string]any{"x": "v", "y": true}, "b": 2, "a": 1}

	ba, err := JSONBytes(a)
	if err != nil {
		t.Fatalf("JSONBytes(a): %v", err)
	}
	bb, err := JSONBytes(b)
	if err != nil {
		t.Fatalf("JSONBytes(b): %v", err)
	}
	if string(ba) != string(bb) {
		t.Fatalf("canonical forms differ:\n%s\n%s", ba, bb)
	}
}

func TestJSONBytesCompactSortedForm(t *testing.T) {
	v := map[string]any{"b": []any{1, 2}, "a": "x"}
	got, err := JSONBytes(v)
	if err != nil {
		t.Fatalf("JSONBytes: %v", err)
	}
	want := `{"a":"x","b":[1,2]}`
	if string(got) != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestJSONBytesNoHTMLEscaping(t *testing.T) {
	got, err := JSONBytes(map[string]any{"url": "https://example.com/a?b=1&c=<d>"})
	if err != nil {
		t.Fatalf("JSONBytes: %v", err)
	}
	want := `{"url":"https://example.com/a?b=1&c=<d>"}`
	if string(got) != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestJSONBytesStructMatchesMap(t *testing.T) {
	type doc struct {
		B int    `json:"b"`
		A string `json:"a"`
	}
	fromStruct, err := JSONBytes(doc{B: 2, A: "x"})
	if err != nil {
		t.Fatalf("JSONBytes(struct): %v", err)
	}
	fromMap, err := JSONBytes(map[string]any{"a": "x", "b": 2})
	if err != nil {
		t.Fatalf("JSONBytes(map): %v", err)
	}
	if string(fromStruct) != string(fromMap) {
		t.Fatalf("struct and map canonical forms differ:\n%s\n%s", fromStruct, fromMap)
	}
}

func TestHashJSONStable(t *testing.T) {
	h1, err := HashJSON(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("HashJSON: %v", err)
	}
	h2, err := HashJSON(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("HashJSON: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestSHA256Hex(t *testing.T) {
	// sha256("") is a fixed vector.
	got := SHA256Hex("")
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
