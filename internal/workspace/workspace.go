// Package workspace binds the project store, the edit engine, the composer,
// the conversation and the preview into one session.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fakeyudi/sandbox/internal/bookmark"
	"github.com/fakeyudi/sandbox/internal/bundle"
	"github.com/fakeyudi/sandbox/internal/component"
	"github.com/fakeyudi/sandbox/internal/container"
	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/edit"
	"github.com/fakeyudi/sandbox/internal/importer"
	"github.com/fakeyudi/sandbox/internal/logging"
	"github.com/fakeyudi/sandbox/internal/preview"
	"github.com/fakeyudi/sandbox/internal/template"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

// DefaultOperator is recorded in handover logs when none is configured.
const DefaultOperator = "system_operator"

// ErrNotFound is returned for unknown containers and starters.
var ErrNotFound = errors.New("not found")

// Options configures a Workspace. Boundary is required for chat.
type Options struct {
	Boundary conversation.Boundary
	// Registry defaults to template.Default().
	Registry *template.Registry
	// Initial replaces the default project when non-nil.
	Initial vfs.State
	// Operator is recorded as the creator of composed containers.
	Operator string
	// MirrorDir enables the on-disk preview mirror.
	MirrorDir      string
	IgnorePatterns []string
	Supervisor     string
	Logger         *slog.Logger
}

// Workspace is one sandbox session. All project mutations go through Engine.
type Workspace struct {
	Engine    *edit.Engine
	Registry  *template.Registry
	Composer  *container.Composer
	Chat      *conversation.Controller
	Preview   *preview.Selector
	Bookmarks *bookmark.Store

	mirror      *preview.Mirror
	syncMu      sync.Mutex
	operator    string
	ignore      []string
	logger      *slog.Logger
	now         func() time.Time
	unsubscribe func()
}

// DefaultProject returns the files a new session starts with: the VANILLA
// base template plus the orchestrator instructions.
func DefaultProject(reg *template.Registry) vfs.State {
	state := vfs.State{conversation.InstructionsPath: conversation.DefaultOrchestrator}
	if t, ok := reg.Lookup(template.KindBase, "VANILLA"); ok {
		for p, c := range t.Files {
			state[p] = c
		}
	}
	return state
}

// New builds a Workspace. With a mirror directory configured the previewed
// files are written to disk immediately and after every change.
func New(opts Options) (*Workspace, error) {
	reg := opts.Registry
	if reg == nil {
		reg = template.Default()
	}
	initial := opts.Initial
	if initial == nil {
		initial = DefaultProject(reg)
	}
	fs, err := vfs.New(initial)
	if err != nil {
		return nil, fmt.Errorf("initial project: %w", err)
	}

	logger := logging.OrDiscard(opts.Logger)
	w := &Workspace{
		Engine:    edit.NewEngine(fs, logger.With("component", "engine")),
		Registry:  reg,
		Composer:  container.NewComposer(reg),
		Preview:   preview.NewSelector(),
		Bookmarks: bookmark.NewStore(),
		operator:  opts.Operator,
		ignore:    opts.IgnorePatterns,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if w.operator == "" {
		w.operator = DefaultOperator
	}
	w.Chat = conversation.New(conversation.Options{
		Boundary:    opts.Boundary,
		Project:     w.Engine,
		PreviewRoot: w.Preview.Root,
		Supervisor:  opts.Supervisor,
		Logger:      logger.With("component", "chat"),
	})

	if opts.MirrorDir != "" {
		w.mirror = preview.NewMirror(opts.MirrorDir)
		w.unsubscribe = w.Engine.Subscribe(func(edit.Change) { w.syncMirror() })
		w.syncMirror()
	}
	return w, nil
}

// Close detaches the mirror from the engine.
func (w *Workspace) Close() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

// syncMirror writes the current preview to disk. Calls are serialized so an
// older snapshot never overwrites a newer one.
func (w *Workspace) syncMirror() {
	if w.mirror == nil {
		return
	}
	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	if err := w.mirror.Sync(w.Engine.Snapshot(), w.Preview.Root()); err != nil {
		w.logger.Warn("preview mirror sync failed", "dir", w.mirror.Dir, "error", err)
	}
}

// SetPreviewRoot points the preview at dir and refreshes the mirror.
func (w *Workspace) SetPreviewRoot(dir string) {
	w.Preview.Set(dir)
	w.syncMirror()
}

// PreviewFiles returns the previewed files keyed relative to the root.
func (w *Workspace) PreviewFiles() map[string]string {
	return preview.Files(w.Engine.Snapshot(), w.Preview.Root())
}

// CreateContainer composes a container, applies it as one undoable batch and
// previews it. An empty operator falls back to the configured one.
func (w *Workspace) CreateContainer(req container.Request) (container.Result, error) {
	if req.Operator == "" {
		req.Operator = w.operator
	}
	res, err := w.Composer.Compose(req)
	if err != nil {
		return container.Result{}, err
	}
	edits := make([]edit.Edit, 0, len(res.Files))
	for _, p := range res.Files.Paths() {
		edits = append(edits, edit.Edit{Path: p, Content: res.Files[p]})
	}
	if _, err := w.Engine.Apply(edit.SourceComposer, edits); err != nil {
		return container.Result{}, err
	}
	w.logger.Info("container created", "root", res.Root, "base", req.Selection.Base, "files", len(edits))
	w.SetPreviewRoot(res.Root)
	return res, nil
}

// containerRoot accepts a container id or root path.
func containerRoot(idOrRoot string) (string, error) {
	root := strings.TrimSuffix(idOrRoot, "/")
	if !strings.HasPrefix(root, "/") {
		root = container.Dir + "/" + root
	}
	if !container.IsRoot(root) {
		return "", fmt.Errorf("%w: %q is not a container", vfs.ErrInvalidPath, idOrRoot)
	}
	return root, nil
}

// DeleteContainer removes a container as one undoable batch. The preview is
// reset when it pointed into the container.
func (w *Workspace) DeleteContainer(idOrRoot string) (edit.Result, error) {
	root, err := containerRoot(idOrRoot)
	if err != nil {
		return edit.Result{}, err
	}
	res, err := w.Engine.RemovePrefix(edit.SourceUI, root)
	if err != nil {
		return edit.Result{}, err
	}
	if res.NoOp {
		return res, fmt.Errorf("container %s: %w", root, ErrNotFound)
	}
	if cur := w.Preview.Root(); cur == root || strings.HasPrefix(cur, root+"/") {
		w.Preview.Reset()
	}
	w.syncMirror()
	return res, nil
}

// Containers lists the containers in the project. Unreadable handover logs
// are logged and skipped.
func (w *Workspace) Containers() []container.Summary {
	list, errs := container.List(w.Engine.Snapshot())
	for _, err := range errs {
		w.logger.Warn("skipping container with unreadable handover log", "error", err)
	}
	return list
}

// ApplyStarter loads a starter project into the root as one batch and
// previews the root.
func (w *Workspace) ApplyStarter(id string) (template.Starter, error) {
	s, ok := w.Registry.Starter(id)
	if !ok {
		return template.Starter{}, fmt.Errorf("starter %q: %w", id, ErrNotFound)
	}
	edits := make([]edit.Edit, 0, len(s.Files))
	for _, p := range s.Files.Paths() {
		edits = append(edits, edit.Edit{Path: p, Content: s.Files[p]})
	}
	if _, err := w.Engine.Apply(edit.SourceUI, edits); err != nil {
		return template.Starter{}, err
	}
	w.SetPreviewRoot(preview.Root)
	return s, nil
}

// InsertComponent adds c's markup to the document at p, before its closing
// body tag. An empty p targets index.html in the previewed directory.
func (w *Workspace) InsertComponent(p string, c component.Component) (edit.Result, error) {
	if p == "" {
		p = path.Join(w.Preview.Root(), "index.html")
	}
	doc, err := w.Engine.Read(p)
	if err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return edit.Result{}, err
	}
	return w.Engine.Apply(edit.SourceUI, []edit.Edit{{Path: p, Content: component.Insert(doc, c.HTML)}})
}

// ReviewMessage diffs the code proposed by the model message at index
// against the current project without applying it.
func (w *Workspace) ReviewMessage(index int) ([]edit.FileDiff, error) {
	history := w.Chat.History()
	if index < 0 || index >= len(history) {
		return nil, fmt.Errorf("message %d: %w", index, ErrNotFound)
	}
	m := history[index]
	if m.Role != conversation.RoleModel || len(m.Code) == 0 {
		return nil, fmt.Errorf("message %d: %w", index, conversation.ErrNotAppliable)
	}
	return w.Engine.Review(m.Code), nil
}

// Export captures the session as a bundle.
func (w *Workspace) Export() *bundle.ProjectBundle {
	return &bundle.ProjectBundle{
		Version:     bundle.Version,
		ExportedAt:  w.now(),
		PreviewRoot: w.Preview.Root(),
		Files:       w.Engine.Snapshot(),
		Messages:    w.Chat.History(),
		SavedURLs:   w.Bookmarks.List(),
	}
}

// Import replaces the project with b's files as one undoable batch and
// restores its conversation, saved URLs and preview root.
func (w *Workspace) Import(b *bundle.ProjectBundle) (edit.Result, error) {
	if err := w.Bookmarks.Replace(b.SavedURLs); err != nil {
		return edit.Result{}, err
	}
	res, err := w.Engine.Replace(edit.SourceImport, b.Files)
	if err != nil {
		return edit.Result{}, err
	}
	w.Chat.Restore(b.Messages)
	w.SetPreviewRoot(b.PreviewRoot)
	return res, nil
}

// ImportDir loads the text files of a local directory into the project root
// as one batch. Skipped files are returned as warnings.
func (w *Workspace) ImportDir(dir string) (edit.Result, []string, error) {
	im := &importer.Importer{Dir: dir, IgnorePatterns: w.ignore, Logger: w.logger}
	edits, warnings, err := im.Walk()
	if err != nil {
		return edit.Result{}, warnings, err
	}
	res, err := w.Engine.Apply(edit.SourceImport, edits)
	return res, warnings, err
}

// WatchMirror feeds edits made to files in the mirror directory back into the
// project until ctx is cancelled. The mirror's own writes are skipped, and a
// changed file is mapped onto the root it was last synced for.
func (w *Workspace) WatchMirror(ctx context.Context) error {
	if w.mirror == nil {
		return errors.New("no mirror directory configured")
	}
	im := &importer.Importer{Dir: w.mirror.Dir, IgnorePatterns: w.ignore, Logger: w.logger}
	return im.Watch(ctx, func(edits []edit.Edit) {
		var changed []edit.Edit
		for _, e := range edits {
			target, content, ok := w.mirror.External(strings.TrimPrefix(e.Path, "/"))
			if !ok {
				continue
			}
			if cur, err := w.Engine.Read(target); err == nil && cur == content {
				continue
			}
			changed = append(changed, edit.Edit{Path: target, Content: content})
		}
		if len(changed) == 0 {
			return
		}
		if _, err := w.Engine.Apply(edit.SourceUI, changed); err != nil {
			w.logger.Warn("external edit rejected", "error", err)
			return
		}
		w.logger.Debug("external edit applied", "paths", len(changed))
	})
}
