// Package edit applies batches of whole-file writes to the project and keeps
// the linear undo/redo history of those batches.
package edit

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/sandbox/internal/logging"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

// Source tags where a batch came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceUI       Source = "ui"
	SourceComposer Source = "composer"
	SourceImport   Source = "import"
	SourceSystem   Source = "system"
)

// Edit is a full-file replacement of the content at Path.
type Edit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Result describes what a mutation touched.
type Result struct {
	Touched []string `json:"touched"`
	NoOp    bool     `json:"noop"`
}

// ChangeKind identifies the operation that produced a Change.
type ChangeKind string

const (
	ChangeApply ChangeKind = "apply"
	ChangeUndo  ChangeKind = "undo"
	ChangeRedo  ChangeKind = "redo"
)

// Change is delivered to subscribers after every successful mutation.
type Change struct {
	Kind   ChangeKind
	Source Source
	Paths  []string
}

// TransactionInfo is the read-only view of one undo entry.
type TransactionInfo struct {
	ID     string    `json:"id"`
	Source Source    `json:"source"`
	Paths  []string  `json:"paths"`
	At     time.Time `json:"at"`
}

// value is a path's content at one point in time; a tombstone when !exists.
type value struct {
	content string
	exists  bool
}

type transaction struct {
	id     string
	source Source
	at     time.Time
	paths  []string
	before map[string]value
	after  map[string]value
}

func (tx *transaction) info() TransactionInfo {
	return TransactionInfo{
		ID:     tx.id,
		Source: tx.source,
		Paths:  append([]string(nil), tx.paths...),
		At:     tx.at,
	}
}

// Engine is the only writer of a vfs.FileSystem. Every mutation runs under an
// exclusive lock so batches never interleave; reads take the shared lock.
type Engine struct {
	mu   sync.RWMutex
	fs   *vfs.FileSystem
	undo []*transaction
	redo []*transaction

	subMu     sync.Mutex
	subs      map[int]func(Change)
	nextSubID int

	now    func() time.Time
	logger *slog.Logger
}

// NewEngine returns an Engine owning fs. A nil logger discards output.
func NewEngine(fs *vfs.FileSystem, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		fs:     fs,
		subs:   make(map[int]func(Change)),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Apply writes edits as one transaction. All paths are validated before
// anything is written; when several edits name the same path the last wins.
func (e *Engine) Apply(src Source, edits []Edit) (Result, error) {
	if len(edits) == 0 {
		return Result{NoOp: true}, nil
	}

	after := make(map[string]value, len(edits))
	for i, ed := range edits {
		p, err := vfs.CleanPath(ed.Path)
		if err != nil {
			return Result{}, fmt.Errorf("edit %d: %w", i, err)
		}
		after[p] = value{content: ed.Content, exists: true}
	}

	return e.commit(src, func() map[string]value { return after })
}

// Remove deletes paths as one undoable transaction. Absent paths are ignored.
func (e *Engine) Remove(src Source, paths []string) (Result, error) {
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		c, err := vfs.CleanPath(p)
		if err != nil {
			return Result{}, err
		}
		clean = append(clean, c)
	}
	return e.commit(src, func() map[string]value { return e.tombstones(clean) })
}

// RemovePrefix deletes every file below root as one transaction.
func (e *Engine) RemovePrefix(src Source, root string) (Result, error) {
	base := strings.TrimSuffix(root, "/") + "/"
	if base == "/" {
		return Result{}, fmt.Errorf("%w: refusing to remove the project root", vfs.ErrInvalidPath)
	}
	return e.commit(src, func() map[string]value { return e.tombstones(e.fs.List(base)) })
}

// tombstones marks the existing paths for deletion. Caller holds e.mu.
func (e *Engine) tombstones(paths []string) map[string]value {
	after := make(map[string]value, len(paths))
	for _, p := range paths {
		if e.fs.Has(p) {
			after[p] = value{}
		}
	}
	return after
}

// Replace makes state the whole project in one transaction: files missing
// from state are deleted, the rest are written. Unchanged files are left out
// of the transaction.
func (e *Engine) Replace(src Source, state vfs.State) (Result, error) {
	want := make(vfs.State, len(state))
	for p, c := range state {
		clean, err := vfs.CleanPath(p)
		if err != nil {
			return Result{}, err
		}
		want[clean] = c
	}

	return e.commit(src, func() map[string]value {
		current := e.fs.Snapshot()
		after := make(map[string]value)
		for p := range current {
			if _, ok := want[p]; !ok {
				after[p] = value{}
			}
		}
		for p, c := range want {
			if old, ok := current[p]; !ok || old != c {
				after[p] = value{content: c, exists: true}
			}
		}
		return after
	})
}

// commit computes the batch with plan, records prior values for every path in
// it, writes it and clears the redo stack. plan runs under the write lock so
// the batch reflects the state it is applied to. An empty plan is a no-op.
func (e *Engine) commit(src Source, plan func() map[string]value) (Result, error) {
	e.mu.Lock()
	after := plan()
	if len(after) == 0 {
		e.mu.Unlock()
		return Result{NoOp: true}, nil
	}
	tx := &transaction{
		id:     uuid.NewString(),
		source: src,
		at:     e.now(),
		before: make(map[string]value, len(after)),
		after:  after,
	}
	for p := range after {
		tx.paths = append(tx.paths, p)
		content, err := e.fs.Read(p)
		tx.before[p] = value{content: content, exists: err == nil}
	}
	sort.Strings(tx.paths)

	if err := e.restore(after); err != nil {
		e.restore(tx.before)
		e.mu.Unlock()
		return Result{}, err
	}
	e.undo = append(e.undo, tx)
	e.redo = nil
	e.mu.Unlock()

	e.logger.Debug("applied batch", "source", src, "tx", tx.id, "paths", len(tx.paths))
	e.notify(Change{Kind: ChangeApply, Source: src, Paths: tx.paths})
	return Result{Touched: append([]string(nil), tx.paths...)}, nil
}

func (e *Engine) restore(values map[string]value) error {
	for p, v := range values {
		if !v.exists {
			e.fs.Remove(p)
			continue
		}
		if err := e.fs.Write(p, v.content); err != nil {
			return err
		}
	}
	return nil
}

// Undo reverts the most recent transaction. It reports false when there is
// nothing to undo.
func (e *Engine) Undo() (Result, bool) {
	e.mu.Lock()
	if len(e.undo) == 0 {
		e.mu.Unlock()
		return Result{NoOp: true}, false
	}
	tx := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	// Paths were validated when the transaction was recorded.
	_ = e.restore(tx.before)
	e.redo = append(e.redo, tx)
	e.mu.Unlock()

	e.notify(Change{Kind: ChangeUndo, Source: tx.source, Paths: tx.paths})
	return Result{Touched: append([]string(nil), tx.paths...)}, true
}

// Redo re-applies the most recently undone transaction. It reports false when
// there is nothing to redo.
func (e *Engine) Redo() (Result, bool) {
	e.mu.Lock()
	if len(e.redo) == 0 {
		e.mu.Unlock()
		return Result{NoOp: true}, false
	}
	tx := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	_ = e.restore(tx.after)
	e.undo = append(e.undo, tx)
	e.mu.Unlock()

	e.notify(Change{Kind: ChangeRedo, Source: tx.source, Paths: tx.paths})
	return Result{Touched: append([]string(nil), tx.paths...)}, true
}

func (e *Engine) CanUndo() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.undo) > 0
}

func (e *Engine) CanRedo() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.redo) > 0
}

// History returns the undo stack, oldest first.
func (e *Engine) History() []TransactionInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TransactionInfo, 0, len(e.undo))
	for _, tx := range e.undo {
		out = append(out, tx.info())
	}
	return out
}

// Read returns the content at p.
func (e *Engine) Read(p string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fs.Read(p)
}

func (e *Engine) Has(p string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fs.Has(p)
}

func (e *Engine) List(prefix string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fs.List(prefix)
}

// Snapshot returns a copy of the whole project.
func (e *Engine) Snapshot() vfs.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fs.Snapshot()
}

// Subscribe registers fn to be called after every successful apply, undo or
// redo. fn runs outside the engine lock and may read from the engine.
func (e *Engine) Subscribe(fn func(Change)) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) notify(c Change) {
	e.subMu.Lock()
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(Change{Kind: c.Kind, Source: c.Source, Paths: append([]string(nil), c.Paths...)})
	}
}
