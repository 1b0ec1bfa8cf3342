// Package server exposes a Workspace over a JSON HTTP API and serves the
// previewed files.
package server

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/fakeyudi/sandbox/internal/bookmark"
	"github.com/fakeyudi/sandbox/internal/bundle"
	"github.com/fakeyudi/sandbox/internal/component"
	"github.com/fakeyudi/sandbox/internal/container"
	"github.com/fakeyudi/sandbox/internal/edit"
	"github.com/fakeyudi/sandbox/internal/logging"
	"github.com/fakeyudi/sandbox/internal/template"
	"github.com/fakeyudi/sandbox/internal/vfs"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

// Server is the HTTP transport for a Workspace.
type Server struct {
	WS     *workspace.Workspace
	Logger *slog.Logger
	// DefaultFormat is the export format used when the request names none.
	DefaultFormat string
}

func (s Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":   true,
			"time": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Files and history
	mux.HandleFunc("GET /api/files", s.handleFiles)
	mux.HandleFunc("GET /api/files/content", s.handleFileContent)
	mux.HandleFunc("POST /api/files", s.handleApply)
	mux.HandleFunc("DELETE /api/files", s.handleDeleteFile)
	mux.HandleFunc("POST /api/undo", s.handleUndo)
	mux.HandleFunc("POST /api/redo", s.handleRedo)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Conversation
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/discard", s.handleDiscard)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("POST /api/messages/{index}/apply", s.handleApplyMessage)
	mux.HandleFunc("POST /api/messages/{index}/review", s.handleReviewMessage)
	mux.HandleFunc("GET /api/hint", s.handleHint)
	mux.HandleFunc("POST /api/refine", s.handleRefine)
	mux.HandleFunc("GET /api/instructions", s.handleInstructions)
	mux.HandleFunc("PUT /api/instructions", s.handleSetInstructions)

	// Templates and containers
	mux.HandleFunc("GET /api/templates", s.handleTemplates)
	mux.HandleFunc("GET /api/starters", s.handleStarters)
	mux.HandleFunc("POST /api/starters/{id}", s.handleApplyStarter)
	mux.HandleFunc("GET /api/containers", s.handleContainers)
	mux.HandleFunc("POST /api/containers", s.handleCreateContainer)
	mux.HandleFunc("DELETE /api/containers/{id}", s.handleDeleteContainer)

	// Preview
	mux.HandleFunc("GET /api/preview", s.handlePreview)
	mux.HandleFunc("PUT /api/preview", s.handleSetPreview)
	mux.HandleFunc("GET /preview/{path...}", s.handlePreviewFile)

	// Saved URLs and components
	mux.HandleFunc("GET /api/urls", s.handleURLs)
	mux.HandleFunc("POST /api/urls", s.handleSaveURL)
	mux.HandleFunc("DELETE /api/urls/{id}", s.handleDeleteURL)
	mux.HandleFunc("POST /api/urls/resolve", s.handleResolveURL)
	mux.HandleFunc("GET /api/components", s.handleComponents)
	mux.HandleFunc("POST /api/components/insert", s.handleInsertComponent)

	// Bundles
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)

	return s.logRequests(mux)
}

func (s Server) logRequests(next http.Handler) http.Handler {
	log := logging.OrDiscard(s.Logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

////////////////////////////////////////////////////////////////////////////////
// Files
////////////////////////////////////////////////////////////////////////////////

func (s Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	snap := s.WS.Engine.Snapshot()
	dirPrefix := prefix
	if dirPrefix == "" {
		dirPrefix = "/"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"files": s.WS.Engine.List(prefix),
		"dirs":  vfs.Dirs(snap, dirPrefix),
	})
}

func (s Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimSpace(r.URL.Query().Get("path"))
	if p == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing path"})
		return
	}
	content, err := s.WS.Engine.Read(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"path":     p,
		"content":  content,
		"language": vfs.Language(p),
	})
}

func (s Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Edits []edit.Edit `json:"edits"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	res, err := s.WS.Engine.Apply(edit.SourceUI, body.Edits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

func (s Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimSpace(r.URL.Query().Get("path"))
	if p == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing path"})
		return
	}
	res, err := s.WS.Engine.Remove(edit.SourceUI, []string{p})
	if err != nil {
		writeError(w, err)
		return
	}
	if res.NoOp {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "file not found: " + p})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

func (s Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	res, ok := s.WS.Engine.Undo()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": ok, "result": res})
}

func (s Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	res, ok := s.WS.Engine.Redo()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": ok, "result": res})
}

func (s Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"transactions": s.WS.Engine.History(),
		"can_undo":     s.WS.Engine.CanUndo(),
		"can_redo":     s.WS.Engine.CanRedo(),
	})
}

////////////////////////////////////////////////////////////////////////////////
// Conversation
////////////////////////////////////////////////////////////////////////////////

func (s Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	msg, err := s.WS.Chat.Submit(r.Context(), body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"index":   len(s.WS.Chat.History()) - 1,
		"message": msg,
	})
}

func (s Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "discarded": s.WS.Chat.Discard()})
}

func (s Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"state":    s.WS.Chat.State(),
		"messages": s.WS.Chat.History(),
	})
}

func messageIndex(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || n < 0 {
		return 0, errors.New("invalid message index")
	}
	return n, nil
}

func (s Server) handleApplyMessage(w http.ResponseWriter, r *http.Request) {
	index, err := messageIndex(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	res, err := s.WS.Chat.Apply(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

func (s Server) handleReviewMessage(w http.ResponseWriter, r *http.Request) {
	index, err := messageIndex(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	diffs, err := s.WS.ReviewMessage(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "files": diffs})
}

func (s Server) handleHint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hint": s.WS.Chat.Hint(r.Context())})
}

func (s Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code        string `json:"code"`
		Language    string `json:"language"`
		Instruction string `json:"instruction"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	out, err := s.WS.Chat.Refine(r.Context(), body.Code, body.Language, body.Instruction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "code": out})
}

func (s Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"supervisor":   s.WS.Chat.Supervisor(),
		"orchestrator": s.WS.Chat.Orchestrator(),
	})
}

func (s Server) handleSetInstructions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Orchestrator string `json:"orchestrator"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	res, err := s.WS.Chat.SetOrchestrator(body.Orchestrator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

////////////////////////////////////////////////////////////////////////////////
// Templates and containers
////////////////////////////////////////////////////////////////////////////////

func (s Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"ok": true}
	for _, k := range template.Kinds {
		out[string(k)] = s.WS.Registry.Entries(k)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s Server) handleStarters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "starters": s.WS.Registry.Starters()})
}

func (s Server) handleApplyStarter(w http.ResponseWriter, r *http.Request) {
	st, err := s.WS.ApplyStarter(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "starter": st})
}

func (s Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "containers": s.WS.Containers()})
}

func (s Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var req container.Request
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	res, err := s.WS.CreateContainer(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": res.ID, "root": res.Root, "log": res.Log})
}

func (s Server) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	res, err := s.WS.DeleteContainer(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

////////////////////////////////////////////////////////////////////////////////
// Preview
////////////////////////////////////////////////////////////////////////////////

func (s Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "root": s.WS.Preview.Root()})
}

func (s Server) handleSetPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Root string `json:"root"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.WS.SetPreviewRoot(body.Root)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "root": s.WS.Preview.Root()})
}

func (s Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	rel := strings.Trim(r.PathValue("path"), "/")
	if rel == "" {
		rel = "index.html"
	}
	content, ok := s.WS.PreviewFiles()[rel]
	if !ok {
		http.NotFound(w, r)
		return
	}
	ctype := mime.TypeByExtension(path.Ext(rel))
	if ctype == "" {
		ctype = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, content)
}

////////////////////////////////////////////////////////////////////////////////
// Saved URLs and components
////////////////////////////////////////////////////////////////////////////////

func (s Server) handleURLs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "urls": s.WS.Bookmarks.List()})
}

func (s Server) handleSaveURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	saved, err := s.WS.Bookmarks.Save(body.Title, body.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "url": saved})
}

func (s Server) handleDeleteURL(w http.ResponseWriter, r *http.Request) {
	if err := s.WS.Bookmarks.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s Server) handleResolveURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	u, err := bookmark.Normalize(body.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "url": u})
}

func (s Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"mime_type":  component.MIMEType,
		"categories": component.Catalog(),
	})
}

// handleInsertComponent accepts either a drag-and-drop payload (Content-Type
// set to component.MIMEType, target path in the query) or a JSON body naming
// a catalog component by id.
func (s Server) handleInsertComponent(w http.ResponseWriter, r *http.Request) {
	var (
		target string
		c      component.Component
	)
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == component.MIMEType {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if c, err = component.Decode(data); err != nil {
			writeError(w, err)
			return
		}
		target = r.URL.Query().Get("path")
	} else {
		var body struct {
			Path string `json:"path"`
			ID   string `json:"id"`
		}
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		found, ok := component.Find(body.ID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown component: " + body.ID})
			return
		}
		c, target = found, body.Path
	}

	res, err := s.WS.InsertComponent(strings.TrimSpace(target), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

////////////////////////////////////////////////////////////////////////////////
// Bundles
////////////////////////////////////////////////////////////////////////////////

func (s Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.DefaultFormat
	}
	renderer, ext, err := bundle.RendererFor(format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	data, err := renderer.Render(s.WS.Export())
	if err != nil {
		writeError(w, err)
		return
	}
	ctype := "text/markdown; charset=utf-8"
	if ext == ".json" {
		ctype = "application/json; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="sandbox`+ext+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s Server) handleImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	var parser bundle.BundleParser = &bundle.JSONParser{}
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "text/markdown" {
		parser = &bundle.MarkdownParser{}
	}
	b, err := parser.Parse(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	res, err := s.WS.Import(b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}
