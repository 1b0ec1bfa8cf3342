package importer

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/sandbox/internal/edit"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkImportsTextFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "<html></html>")
	writeFile(t, filepath.Join(dir, "css", "site.css"), "body{}")
	writeFile(t, filepath.Join(dir, "node_modules", "lib", "x.js"), "skip me")
	writeFile(t, filepath.Join(dir, "debug.log"), "skip me too")
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(dir, ".gitignore"), "# deps\nnode_modules/\n")
	writeFile(t, filepath.Join(dir, "logo.png"), string([]byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}))

	im := &Importer{Dir: dir, IgnorePatterns: []string{"*.log"}}
	edits, warnings, err := im.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	got := map[string]string{}
	for _, e := range edits {
		got[e.Path] = e.Content
	}
	want := map[string]string{
		"/.gitignore":   "# deps\nnode_modules/\n",
		"/css/site.css": "body{}",
		"/index.html":   "<html></html>",
	}
	if len(got) != len(want) {
		t.Fatalf("imported %v, want %v", got, want)
	}
	for p, c := range want {
		if got[p] != c {
			t.Errorf("%s = %q, want %q", p, got[p], c)
		}
	}

	if len(warnings) != 1 || !strings.Contains(warnings[0], "logo.png") {
		t.Errorf("warnings = %v, want one about logo.png", warnings)
	}
}

func TestWalkRejectsMissingDir(t *testing.T) {
	im := &Importer{Dir: filepath.Join(t.TempDir(), "nope")}
	if _, _, err := im.Walk(); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestWalkSkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.txt"), strings.Repeat("a", 64))
	im := &Importer{Dir: dir, MaxFileSize: 10}
	edits, warnings, err := im.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(edits) != 0 || len(warnings) != 1 {
		t.Errorf("edits=%v warnings=%v", edits, warnings)
	}
}

// Feature: sandbox, Property 11: Ignore patterns match base names and relative paths
func TestIgnorePatterns(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "dir")
		name := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "name")
		ext := rapid.SampledFrom([]string{"js", "css", "log"}).Draw(t, "ext")

		im := &Importer{Dir: "/work"}
		path := filepath.Join("/work", dir, name+"."+ext)

		if !im.isIgnored(path, []string{"*." + ext}) {
			t.Fatalf("%s not matched by extension pattern", path)
		}
		if !im.isIgnored(path, []string{dir + "/*"}) {
			t.Fatalf("%s not matched by relative pattern", path)
		}
		if im.isIgnored(path, []string{"*.nomatch"}) {
			t.Fatalf("%s matched an unrelated pattern", path)
		}
	})
}

func TestWatchReportsWrites(t *testing.T) {
	dir := t.TempDir()
	im := &Importer{Dir: dir}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan edit.Edit, 16)
	done := make(chan error, 1)
	go func() {
		done <- im.Watch(ctx, func(edits []edit.Edit) {
			for _, e := range edits {
				got <- e
			}
		})
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "app.js"), "run()")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-got:
			if e.Path == "/app.js" && e.Content == "run()" {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("Watch: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the write event")
		}
	}
}

func TestWatchBatchesABurst(t *testing.T) {
	dir := t.TempDir()
	im := &Importer{Dir: dir, Debounce: 300 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan []edit.Edit, 16)
	done := make(chan error, 1)
	go func() {
		done <- im.Watch(ctx, func(edits []edit.Edit) { batches <- edits })
	}()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "a.js"), "a()")
	writeFile(t, filepath.Join(dir, "b.js"), "b()")
	writeFile(t, filepath.Join(dir, "a.js"), "a2()")

	select {
	case got := <-batches:
		want := []edit.Edit{{Path: "/a.js", Content: "a2()"}, {Path: "/b.js", Content: "b()"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("batch = %+v, want %+v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the batch")
	}

	select {
	case extra := <-batches:
		t.Errorf("unexpected second batch %+v", extra)
	case <-time.After(500 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
