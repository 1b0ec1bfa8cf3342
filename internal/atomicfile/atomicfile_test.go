package atomicfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/fakeyudi/sandbox/internal/atomicfile"
)

// Feature: sandbox, Property 10: Atomic writes round-trip and leave no temp files
func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringMatching(`[a-z]{1,8}(/[a-z]{1,8})?\.txt`).Draw(rt, "name")
		data := rapid.SliceOf(rapid.Byte()).Draw(rt, "data")
		path := filepath.Join(dir, filepath.FromSlash(name))

		if err := atomicfile.Write(path, data, 0o644); err != nil {
			rt.Fatalf("Write: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			rt.Fatalf("ReadFile: %v", err)
		}
		if string(got) != string(data) {
			rt.Fatalf("content mismatch: got %q, want %q", got, data)
		}

		entries, _ := os.ReadDir(filepath.Dir(path))
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".tmp" {
				rt.Fatalf("temp file left behind: %s", e.Name())
			}
		}
	})
}

func TestWriteFailsWhenParentIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := atomicfile.Write(filepath.Join(blocker, "child.txt"), []byte("y"), 0o644); err == nil {
		t.Fatal("expected an error when the parent path is a regular file")
	}
}
