package edit

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/fakeyudi/sandbox/internal/vfs"
)

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func newEngine(t fataler, initial vfs.State) *Engine {
	t.Helper()
	fs, err := vfs.New(initial)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	return NewEngine(fs, nil)
}

var pathGen = rapid.SampledFrom([]string{
	"/index.html", "/style.css", "/script.js", "/a/b.js", "/containers/container_1/index.html",
})

func genState(t *rapid.T) vfs.State {
	s := make(vfs.State)
	for _, p := range rapid.SliceOfDistinct(pathGen, func(p string) string { return p }).Draw(t, "paths") {
		s[p] = rapid.String().Draw(t, "content")
	}
	return s
}

func genBatch(t *rapid.T) []Edit {
	n := rapid.IntRange(1, 6).Draw(t, "batch")
	out := make([]Edit, n)
	for i := range out {
		out[i] = Edit{Path: pathGen.Draw(t, "path"), Content: rapid.String().Draw(t, "content")}
	}
	return out
}

// Feature: sandbox, Property 2: Undo restores the prior state exactly
func TestUndoRestoresPriorState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := genState(t)
		e := newEngine(t, initial)

		batches := rapid.IntRange(1, 4).Draw(t, "batches")
		for i := 0; i < batches; i++ {
			if _, err := e.Apply(SourceAI, genBatch(t)); err != nil {
				t.Fatalf("Apply: %v", err)
			}
		}
		for i := 0; i < batches; i++ {
			if _, ok := e.Undo(); !ok {
				t.Fatalf("Undo %d reported nothing to undo", i)
			}
		}
		if got := e.Snapshot(); !reflect.DeepEqual(got, initial) {
			t.Fatalf("state after undo = %v, want %v", got, initial)
		}
	})
}

// Feature: sandbox, Property 3: Redo reproduces the post-apply state and a new edit clears redo
func TestRedoReproducesPostApplyState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newEngine(t, genState(t))

		if _, err := e.Apply(SourceUI, genBatch(t)); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		after := e.Snapshot()

		e.Undo()
		if _, ok := e.Redo(); !ok {
			t.Fatal("Redo reported nothing to redo")
		}
		if got := e.Snapshot(); !reflect.DeepEqual(got, after) {
			t.Fatalf("state after redo = %v, want %v", got, after)
		}

		e.Undo()
		if _, err := e.Apply(SourceUI, genBatch(t)); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if e.CanRedo() {
			t.Fatal("redo stack not cleared by a new edit")
		}
		if _, ok := e.Redo(); ok {
			t.Fatal("Redo succeeded after an intervening edit")
		}
	})
}

func TestApplyEmptyBatchIsNoOp(t *testing.T) {
	e := newEngine(t, vfs.State{"/index.html": "x"})
	res, err := e.Apply(SourceAI, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.NoOp {
		t.Error("expected NoOp result")
	}
	if e.CanUndo() {
		t.Error("empty batch created an undo entry")
	}
}

func TestUndoRedoOnEmptyStacks(t *testing.T) {
	e := newEngine(t, nil)
	if _, ok := e.Undo(); ok {
		t.Error("Undo on empty history reported success")
	}
	if _, ok := e.Redo(); ok {
		t.Error("Redo on empty history reported success")
	}
}

func TestApplyInvalidPathLeavesStateUntouched(t *testing.T) {
	e := newEngine(t, vfs.State{"/index.html": "x"})
	_, err := e.Apply(SourceAI, []Edit{
		{Path: "/index.html", Content: "changed"},
		{Path: "/../escape.txt", Content: "nope"},
	})
	if !errors.Is(err, vfs.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if got, _ := e.Read("/index.html"); got != "x" {
		t.Errorf("partial write leaked: %q", got)
	}
	if e.CanUndo() {
		t.Error("rejected batch created an undo entry")
	}
}

func TestApplyLastDuplicateWins(t *testing.T) {
	e := newEngine(t, nil)
	res, err := e.Apply(SourceAI, []Edit{
		{Path: "/a.js", Content: "1"},
		{Path: "a.js", Content: "2"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Touched) != 1 || res.Touched[0] != "/a.js" {
		t.Errorf("Touched = %v", res.Touched)
	}
	if got, _ := e.Read("/a.js"); got != "2" {
		t.Errorf("content = %q, want 2", got)
	}
}

func TestRemoveAndRemovePrefixAreUndoable(t *testing.T) {
	initial := vfs.State{
		"/index.html":                   "root",
		"/containers/container_1/a.css": "a",
		"/containers/container_1/b.js":  "b",
	}
	e := newEngine(t, initial)

	res, err := e.RemovePrefix(SourceUI, "/containers/container_1")
	if err != nil {
		t.Fatalf("RemovePrefix: %v", err)
	}
	if len(res.Touched) != 2 {
		t.Errorf("Touched = %v", res.Touched)
	}
	if e.Has("/containers/container_1/a.css") {
		t.Error("file still present after RemovePrefix")
	}
	e.Undo()
	if got := e.Snapshot(); !reflect.DeepEqual(got, initial) {
		t.Errorf("state after undo = %v", got)
	}

	res, err = e.Remove(SourceUI, []string{"/missing.txt"})
	if err != nil || !res.NoOp {
		t.Errorf("Remove of absent path = %+v, %v; want no-op", res, err)
	}

	if _, err := e.RemovePrefix(SourceUI, "/"); !errors.Is(err, vfs.ErrInvalidPath) {
		t.Errorf("RemovePrefix(/) = %v, want ErrInvalidPath", err)
	}
}

func TestReplaceSwapsWholeProject(t *testing.T) {
	initial := vfs.State{"/index.html": "old", "/keep.css": "same", "/drop.js": "x"}
	e := newEngine(t, initial)

	want := vfs.State{"/index.html": "new", "/keep.css": "same", "/added.md": "hi"}
	res, err := e.Replace(SourceImport, want)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if !reflect.DeepEqual(res.Touched, []string{"/added.md", "/drop.js", "/index.html"}) {
		t.Errorf("Touched = %v", res.Touched)
	}
	if got := e.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("state = %v", got)
	}

	if res, _ := e.Replace(SourceImport, want); !res.NoOp {
		t.Errorf("replacing with the same state = %+v, want no-op", res)
	}
	if _, err := e.Replace(SourceImport, vfs.State{"/../x": ""}); !errors.Is(err, vfs.ErrInvalidPath) {
		t.Errorf("invalid path: %v", err)
	}

	e.Undo()
	if got := e.Snapshot(); !reflect.DeepEqual(got, initial) {
		t.Errorf("state after undo = %v", got)
	}
}

func TestSubscribersSeeEveryMutation(t *testing.T) {
	e := newEngine(t, nil)
	var kinds []ChangeKind
	unsubscribe := e.Subscribe(func(c Change) {
		kinds = append(kinds, c.Kind)
		// Reading from inside a listener must not deadlock.
		_ = e.Snapshot()
	})

	e.Apply(SourceUI, []Edit{{Path: "/a.txt", Content: "a"}})
	e.Undo()
	e.Redo()
	e.Apply(SourceUI, nil)

	want := []ChangeKind{ChangeApply, ChangeUndo, ChangeRedo}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("changes = %v, want %v", kinds, want)
	}

	unsubscribe()
	e.Apply(SourceUI, []Edit{{Path: "/b.txt", Content: "b"}})
	if len(kinds) != 3 {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestHistoryRecordsSourceAndPaths(t *testing.T) {
	e := newEngine(t, nil)
	e.Apply(SourceComposer, []Edit{{Path: "/b.txt"}, {Path: "/a.txt"}})
	h := e.History()
	if len(h) != 1 {
		t.Fatalf("history length = %d, want 1", len(h))
	}
	if h[0].Source != SourceComposer || h[0].ID == "" {
		t.Errorf("unexpected entry %+v", h[0])
	}
	if !reflect.DeepEqual(h[0].Paths, []string{"/a.txt", "/b.txt"}) {
		t.Errorf("paths = %v", h[0].Paths)
	}
}

func TestConcurrentBatchesDoNotInterleave(t *testing.T) {
	e := newEngine(t, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		content := strings.Repeat(string(rune('a'+i)), 4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Apply(SourceUI, []Edit{{Path: "/x.txt", Content: content}, {Path: "/y.txt", Content: content}})
		}()
	}
	wg.Wait()

	x, _ := e.Read("/x.txt")
	y, _ := e.Read("/y.txt")
	if x != y {
		t.Fatalf("batches interleaved: x=%q y=%q", x, y)
	}
	if n := len(e.History()); n != 20 {
		t.Errorf("history length = %d, want 20", n)
	}
}

func TestReplaceAgainstConcurrentApply(t *testing.T) {
	want := vfs.State{"/index.html": "bundle"}
	for i := 0; i < 300; i++ {
		e := newEngine(t, vfs.State{"/index.html": "start"})
		extra := fmt.Sprintf("/extra/%d.txt", i)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Apply(SourceUI, []Edit{{Path: extra, Content: "late"}})
		}()
		go func() {
			defer wg.Done()
			e.Replace(SourceImport, want)
		}()
		wg.Wait()

		// When the apply committed first, the replace must have deleted its file.
		h := e.History()
		if len(h) != 2 {
			t.Fatalf("history length = %d, want 2", len(h))
		}
		if h[0].Source == SourceUI {
			if got := e.Snapshot(); !reflect.DeepEqual(got, want) {
				t.Fatalf("iteration %d: state after replace = %v, want %v", i, got, want)
			}
		} else if !e.Has(extra) {
			t.Fatalf("iteration %d: apply after replace was lost", i)
		}
	}
}
