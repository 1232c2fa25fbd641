package fileutils

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSONFileAtomic_KeepsUnicodeAndMarkup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "story.json")

	in := map[string]string{"name": "Рассказ <о> будущем & мире"}
	if err := WriteJSONFileAtomic(p, in, true); err != nil {
		t.Fatalf("write: %v", err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "Рассказ <о> будущем & мире") {
		t.Fatalf("expected raw unicode and markup on disk, got %q", string(b))
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Fatalf("expected trailing newline")
	}

	var out map[string]string
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["name"] != in["name"] {
		t.Fatalf("name=%q, want %q", out["name"], in["name"])
	}

	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestTruncate_CountsRunes(t *testing.T) {
	t.Parallel()

	if got := Truncate("  привет мир  ", 6); got != "привет…" {
		t.Fatalf("got=%q", got)
	}
	if got := Truncate("short", 0); got != "short" {
		t.Fatalf("got=%q", got)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	var out struct {
		Name string `json:"name"`
	}
	if err := DecodeModelJSON("```json\n{\"name\": \"Tale\"}\n```", &out); err != nil {
		t.Fatalf("decode fenced: %v", err)
	}
	if out.Name != "Tale" {
		t.Fatalf("Name=%q", out.Name)
	}

	var points []string
	if err := DecodeModelJSON("```json\n[\"a\", \"b\"]\n```", &points); err != nil {
		t.Fatalf("decode fenced array: %v", err)
	}
	if len(points) != 2 || points[1] != "b" {
		t.Fatalf("points=%q", points)
	}

	var text string
	if err := DecodeModelJSON("```\n\"plain summary\"\n```", &text); err != nil || text != "plain summary" {
		t.Fatalf("text=%q err=%v", text, err)
	}

	if err := DecodeModelJSON("```json\n```", &out); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("empty fence: expected ErrUnexpectedEOF, got %v", err)
	}

	if err := DecodeModelJSON("   ", &out); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
	if err := DecodeModelJSON("no json here", &out); err == nil {
		t.Fatalf("expected error")
	}
}
