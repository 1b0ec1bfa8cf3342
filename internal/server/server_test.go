package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/sandbox/internal/component"
	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/edit"
	"github.com/fakeyudi/sandbox/internal/vfs"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

type fakeBoundary struct {
	chat   func() ([]byte, error)
	hint   string
	refine string
}

func (f *fakeBoundary) Chat(context.Context, conversation.ChatRequest) ([]byte, error) {
	return f.chat()
}

func (f *fakeBoundary) Hint(context.Context, []conversation.Turn) (string, error) {
	return f.hint, nil
}

func (f *fakeBoundary) Refine(context.Context, conversation.RefineRequest) (string, error) {
	return f.refine, nil
}

func newTestServer(t *testing.T, b *fakeBoundary, initial vfs.State) (*httptest.Server, *workspace.Workspace) {
	t.Helper()
	if b == nil {
		b = &fakeBoundary{chat: func() ([]byte, error) { return nil, errors.New("unused") }}
	}
	ws, err := workspace.New(workspace.Options{Boundary: b, Initial: initial})
	require.NoError(t, err)
	srv := httptest.NewServer(Server{WS: ws}.Handler())
	t.Cleanup(srv.Close)
	return srv, ws
}

func do(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	status, out := do(t, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, out["ok"])
}

func TestFilesApplyUndoRedo(t *testing.T) {
	srv, ws := newTestServer(t, nil, vfs.State{"/index.html": "<p>a</p>"})

	status, out := do(t, http.MethodPost, srv.URL+"/api/files", map[string]any{
		"edits": []map[string]string{{"path": "/css/site.css", "content": "body{}"}},
	})
	require.Equal(t, http.StatusOK, status, out)

	status, out = do(t, http.MethodGet, srv.URL+"/api/files", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []any{"/css/site.css", "/index.html"}, out["files"])
	require.Equal(t, []any{"/css"}, out["dirs"])

	status, out = do(t, http.MethodGet, srv.URL+"/api/files/content?path=/css/site.css", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "body{}", out["content"])
	require.Equal(t, "css", out["language"])

	status, out = do(t, http.MethodPost, srv.URL+"/api/undo", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, out["changed"])
	require.False(t, ws.Engine.Has("/css/site.css"))

	_, out = do(t, http.MethodPost, srv.URL+"/api/redo", nil)
	require.Equal(t, true, out["changed"])
	require.True(t, ws.Engine.Has("/css/site.css"))

	_, out = do(t, http.MethodPost, srv.URL+"/api/redo", nil)
	require.Equal(t, false, out["changed"])

	_, out = do(t, http.MethodGet, srv.URL+"/api/history", nil)
	require.Len(t, out["transactions"], 1)
	require.Equal(t, true, out["can_undo"])
}

func TestFileErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil, vfs.State{"/index.html": "x"})

	status, _ := do(t, http.MethodGet, srv.URL+"/api/files/content?path=/missing.js", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/api/files", map[string]any{
		"edits": []map[string]string{{"path": "/ok.js", "content": "1"}, {"path": "/../bad", "content": "2"}},
	})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodDelete, srv.URL+"/api/files?path=/missing.js", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodDelete, srv.URL+"/api/files?path=/index.html", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestChatApplyAndReview(t *testing.T) {
	b := &fakeBoundary{chat: func() ([]byte, error) {
		return []byte(`{"text":"Updated.","explanation":"New heading.","code":[{"path":"/index.html","content":"<h1>hi</h1>"}]}`), nil
	}}
	srv, ws := newTestServer(t, b, vfs.State{"/index.html": "<p>a</p>"})

	status, out := do(t, http.MethodPost, srv.URL+"/api/chat", map[string]string{"message": "add a heading"})
	require.Equal(t, http.StatusOK, status, out)
	require.Equal(t, float64(1), out["index"])

	got, _ := ws.Engine.Read("/index.html")
	require.Equal(t, "<p>a</p>", got, "chat never applies on its own")

	status, out = do(t, http.MethodPost, srv.URL+"/api/messages/1/review", nil)
	require.Equal(t, http.StatusOK, status)
	files := out["files"].([]any)
	require.Equal(t, "updated", files[0].(map[string]any)["status"])

	status, _ = do(t, http.MethodPost, srv.URL+"/api/messages/0/apply", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/api/messages/1/apply", nil)
	require.Equal(t, http.StatusOK, status)
	got, _ = ws.Engine.Read("/index.html")
	require.Equal(t, "<h1>hi</h1>", got)

	status, _ = do(t, http.MethodPost, srv.URL+"/api/messages/x/apply", nil)
	require.Equal(t, http.StatusBadRequest, status)

	_, out = do(t, http.MethodGet, srv.URL+"/api/messages", nil)
	require.Equal(t, "idle", out["state"])
	require.Len(t, out["messages"], 2)
}

func TestChatBoundaryFailures(t *testing.T) {
	cases := []struct {
		name    string
		chat    func() ([]byte, error)
		status  int
		message string
	}{
		{"auth", func() ([]byte, error) { return nil, fmt.Errorf("%w: no key", conversation.ErrAuth) }, http.StatusBadGateway, conversation.AuthMessage},
		{"structural", func() ([]byte, error) { return []byte(`{"text":"ok","explanation":""}`), nil }, http.StatusBadGateway, "could not be used"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, ws := newTestServer(t, &fakeBoundary{chat: tc.chat}, nil)
			status, out := do(t, http.MethodPost, srv.URL+"/api/chat", map[string]string{"message": "hello"})
			require.Equal(t, tc.status, status)
			require.Contains(t, out["error"], tc.message)

			history := ws.Chat.History()
			require.Equal(t, conversation.RoleSystem, history[len(history)-1].Role)
		})
	}

	srv, _ := newTestServer(t, nil, nil)
	status, _ := do(t, http.MethodPost, srv.URL+"/api/chat", map[string]string{"message": "   "})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHintRefineInstructions(t *testing.T) {
	b := &fakeBoundary{
		chat:   func() ([]byte, error) { return []byte(`{"text":"a","explanation":"b"}`), nil },
		hint:   "Make it responsive",
		refine: "```js\nx\n```",
	}
	srv, _ := newTestServer(t, b, nil)

	_, out := do(t, http.MethodGet, srv.URL+"/api/hint", nil)
	require.Equal(t, "", out["hint"], "no history, no hint")

	do(t, http.MethodPost, srv.URL+"/api/chat", map[string]string{"message": "hi"})
	_, out = do(t, http.MethodGet, srv.URL+"/api/hint", nil)
	require.Equal(t, "Make it responsive", out["hint"])

	status, _ := do(t, http.MethodPost, srv.URL+"/api/refine", map[string]string{"code": "x", "language": "js", "instruction": "tidy"})
	require.Equal(t, http.StatusBadGateway, status, "fenced output is rejected")

	status, out = do(t, http.MethodPut, srv.URL+"/api/instructions", map[string]string{"orchestrator": "Use tabs."})
	require.Equal(t, http.StatusOK, status, out)
	_, out = do(t, http.MethodGet, srv.URL+"/api/instructions", nil)
	require.Equal(t, "Use tabs.", out["orchestrator"])
	require.Equal(t, conversation.DefaultSupervisor, out["supervisor"])
}

func TestContainersAndPreview(t *testing.T) {
	srv, ws := newTestServer(t, nil, vfs.State{"/index.html": "root"})

	status, out := do(t, http.MethodPost, srv.URL+"/api/containers", map[string]any{
		"operator":  "ops",
		"prompt":    "landing",
		"templates": map[string]any{"base": "VANILLA", "ui": []string{"TAILWIND"}, "datastore": nil},
	})
	require.Equal(t, http.StatusOK, status, out)
	root := out["root"].(string)
	id := out["id"].(string)
	require.Equal(t, root, ws.Preview.Root())

	_, out = do(t, http.MethodGet, srv.URL+"/api/preview", nil)
	require.Equal(t, root, out["root"])

	resp, err := http.Get(srv.URL + "/preview/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	require.Contains(t, string(body), "cdn.tailwindcss.com")

	resp, err = http.Get(srv.URL + "/preview/nope.js")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, out = do(t, http.MethodGet, srv.URL+"/api/containers", nil)
	require.Len(t, out["containers"], 1)

	status, _ = do(t, http.MethodPost, srv.URL+"/api/containers", map[string]any{"templates": map[string]any{"base": "VANILLA", "ui": []string{"BOOTSTRAP"}}})
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, http.MethodPost, srv.URL+"/api/containers", map[string]any{"templates": map[string]any{"base": ""}})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodDelete, srv.URL+"/api/containers/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "/", ws.Preview.Root())
	status, _ = do(t, http.MethodDelete, srv.URL+"/api/containers/"+id, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, out = do(t, http.MethodPut, srv.URL+"/api/preview", map[string]string{"root": "anywhere/"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "/anywhere", out["root"])
}

func TestTemplatesAndStarters(t *testing.T) {
	srv, ws := newTestServer(t, nil, vfs.State{})

	_, out := do(t, http.MethodGet, srv.URL+"/api/templates", nil)
	require.Len(t, out["base"], 2)
	require.Len(t, out["ui"], 1)
	require.Empty(t, out["datastore"])

	_, out = do(t, http.MethodGet, srv.URL+"/api/starters", nil)
	require.NotEmpty(t, out["starters"])

	status, _ := do(t, http.MethodPost, srv.URL+"/api/starters/fetch-json", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, ws.Engine.List(""))

	status, _ = do(t, http.MethodPost, srv.URL+"/api/starters/nope", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestSavedURLs(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	status, out := do(t, http.MethodPost, srv.URL+"/api/urls", map[string]string{"title": "Example", "url": "example.com"})
	require.Equal(t, http.StatusOK, status)
	saved := out["url"].(map[string]any)
	require.Equal(t, "https://example.com", saved["url"])

	_, out = do(t, http.MethodGet, srv.URL+"/api/urls", nil)
	require.Len(t, out["urls"], 1)

	status, _ = do(t, http.MethodPost, srv.URL+"/api/urls", map[string]string{"title": "", "url": "x.com"})
	require.Equal(t, http.StatusBadRequest, status)

	_, out = do(t, http.MethodPost, srv.URL+"/api/urls/resolve", map[string]string{"url": "http://plain.org"})
	require.Equal(t, "http://plain.org", out["url"])

	status, _ = do(t, http.MethodDelete, srv.URL+"/api/urls/"+saved["id"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodDelete, srv.URL+"/api/urls/"+saved["id"].(string), nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestComponentInsert(t *testing.T) {
	srv, ws := newTestServer(t, nil, vfs.State{"/index.html": "<body>\n</body>"})

	_, out := do(t, http.MethodGet, srv.URL+"/api/components", nil)
	require.Equal(t, component.MIMEType, out["mime_type"])
	require.Len(t, out["categories"], 4)

	status, _ := do(t, http.MethodPost, srv.URL+"/api/components/insert", map[string]string{"id": "heading"})
	require.Equal(t, http.StatusOK, status)
	heading, _ := component.Find("heading")
	got, _ := ws.Engine.Read("/index.html")
	require.Contains(t, got, heading.HTML)

	payload, err := component.Encode(component.Component{ID: "custom", Name: "Custom", HTML: "<hr>"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/components/insert?path=/page.html", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", component.MIMEType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ = ws.Engine.Read("/page.html")
	require.Equal(t, "<hr>", got)

	status, _ = do(t, http.MethodPost, srv.URL+"/api/components/insert", map[string]string{"id": "nope"})
	require.Equal(t, http.StatusNotFound, status)
}

func TestExportImport(t *testing.T) {
	srv, ws := newTestServer(t, nil, vfs.State{"/index.html": "<p>export me</p>"})

	resp, err := http.Get(srv.URL + "/api/export?format=json")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(data), `"/index.html"`))

	resp, err = http.Get(srv.URL + "/api/export")
	require.NoError(t, err)
	md, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(md), "## Files")

	_, err = ws.Engine.Replace(edit.SourceUI, vfs.State{"/other.html": "x"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/import", bytes.NewReader(md))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/markdown")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, vfs.State{"/index.html": "<p>export me</p>"}, ws.Engine.Snapshot())

	resp, err = http.Get(srv.URL + "/api/export?format=yaml")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
