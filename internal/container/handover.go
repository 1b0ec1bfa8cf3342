package container

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fakeyudi/sandbox/internal/vfs"
)

// HandoverFile is the provenance file written at every container root.
const HandoverFile = "handover.json"

const (
	StatusInitialized = "initialized"

	ActionCreate  = "create"
	ActionCommand = "command"
)

// HandoverLog records how a container was made. History is append-only.
type HandoverLog struct {
	ContainerID     string            `json:"container_id"`
	Operator        string            `json:"operator"`
	Prompt          string            `json:"prompt"`
	ChosenTemplates Selection         `json:"chosen_templates"`
	Environment     map[string]string `json:"environment,omitempty"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	History         []HandoverEntry   `json:"history"`
}

type HandoverEntry struct {
	Action  string         `json:"action"`
	By      string         `json:"by"`
	At      time.Time      `json:"at"`
	Details map[string]any `json:"details"`
}

func newHandoverLog(id string, req Request, now time.Time) HandoverLog {
	sel := req.Selection
	sel.UI = append([]string{}, sel.UI...)
	return HandoverLog{
		ContainerID:     id,
		Operator:        req.Operator,
		Prompt:          req.Prompt,
		ChosenTemplates: sel,
		Environment:     req.Environment,
		Status:          StatusInitialized,
		CreatedAt:       now,
		History: []HandoverEntry{
			{
				Action:  ActionCreate,
				By:      req.Operator,
				At:      now,
				Details: map[string]any{"templates": sel},
			},
			{
				Action:  ActionCommand,
				By:      "system",
				At:      now,
				Details: map[string]any{"command": "Simulated: npm install", "status": "success"},
			},
		},
	}
}

// Encode renders the log as two-space indented JSON.
func (l HandoverLog) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return nil, fmt.Errorf("encoding handover log: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Summary is a container discovered in the project.
type Summary struct {
	Root string      `json:"root"`
	Log  HandoverLog `json:"log"`
}

var (
	handoverPattern = regexp.MustCompile(`^/containers/container_[a-zA-Z0-9-]+/handover\.json$`)
	rootPattern     = regexp.MustCompile(`^/containers/container_[a-zA-Z0-9-]+`)
)

// List finds every container in s by its handover file. Logs that fail to
// decode are skipped and returned as errors. Results are ordered by creation
// time, then root.
func List(s vfs.State) ([]Summary, []error) {
	var (
		out  []Summary
		errs []error
	)
	for _, p := range s.Paths() {
		if !handoverPattern.MatchString(p) {
			continue
		}
		var log HandoverLog
		if err := json.Unmarshal([]byte(s[p]), &log); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		out = append(out, Summary{Root: strings.TrimSuffix(p, "/"+HandoverFile), Log: log})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Log.CreatedAt.Equal(out[j].Log.CreatedAt) {
			return out[i].Log.CreatedAt.Before(out[j].Log.CreatedAt)
		}
		return out[i].Root < out[j].Root
	})
	return out, errs
}

// IsRoot reports whether p is exactly a container root.
func IsRoot(p string) bool {
	loc := rootPattern.FindStringIndex(p)
	return loc != nil && loc[1] == len(p)
}

// RootOf returns the container root that p lives under.
func RootOf(p string) (string, bool) {
	loc := rootPattern.FindStringIndex(p)
	if loc == nil {
		return "", false
	}
	if loc[1] != len(p) && p[loc[1]] != '/' {
		return "", false
	}
	return p[:loc[1]], true
}
