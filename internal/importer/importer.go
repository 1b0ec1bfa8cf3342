// Package importer brings files from a local directory into the project, once
// via Walk or continuously via Watch.
package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/sandbox/internal/edit"
	"github.com/fakeyudi/sandbox/internal/logging"
)

// DefaultMaxFileSize caps imported files; larger files are skipped.
const DefaultMaxFileSize = 1 << 20

// DefaultDebounce is how long Watch waits for a burst of events to settle.
const DefaultDebounce = 100 * time.Millisecond

// alwaysIgnored is applied on top of configured and file-based patterns.
var alwaysIgnored = []string{".git", "*.tmp"}

// Importer reads text files below Dir. Paths it yields are absolute project
// paths relative to Dir, e.g. Dir/css/site.css becomes /css/site.css.
type Importer struct {
	Dir            string
	IgnorePatterns []string
	MaxFileSize    int64
	Debounce       time.Duration
	Logger         *slog.Logger
}

func (im *Importer) logger() *slog.Logger {
	if im.Logger == nil {
		return logging.Discard()
	}
	return im.Logger
}

func (im *Importer) maxSize() int64 {
	if im.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return im.MaxFileSize
}

func (im *Importer) debounce() time.Duration {
	if im.Debounce <= 0 {
		return DefaultDebounce
	}
	return im.Debounce
}

// Walk loads every importable file below Dir. Files that are ignored, too
// large or not UTF-8 text are skipped and reported as warnings.
func (im *Importer) Walk() ([]edit.Edit, []string, error) {
	info, err := os.Stat(im.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("import %s: %w", im.Dir, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("import %s: not a directory", im.Dir)
	}

	var warnings []string
	patterns, err := im.loadIgnorePatterns()
	if err != nil {
		// Non-fatal: continue with configured patterns only.
		warnings = append(warnings, "failed to load ignore patterns: "+err.Error())
	}

	var edits []edit.Edit
	err = filepath.WalkDir(im.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipping %s: %v", path, err))
			return nil
		}
		if path == im.Dir {
			return nil
		}
		if im.isIgnored(path, patterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		e, err := im.readEdit(path)
		if err != nil {
			warnings = append(warnings, err.Error())
			return nil
		}
		edits = append(edits, e)
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].Path < edits[j].Path })
	return edits, warnings, nil
}

func (im *Importer) readEdit(path string) (edit.Edit, error) {
	info, err := os.Stat(path)
	if err != nil {
		return edit.Edit{}, fmt.Errorf("skipping %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return edit.Edit{}, fmt.Errorf("skipping %s: not a regular file", path)
	}
	if info.Size() > im.maxSize() {
		return edit.Edit{}, fmt.Errorf("skipping %s: larger than %d bytes", path, im.maxSize())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return edit.Edit{}, fmt.Errorf("skipping %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return edit.Edit{}, fmt.Errorf("skipping %s: not UTF-8 text", path)
	}
	rel, err := filepath.Rel(im.Dir, path)
	if err != nil {
		return edit.Edit{}, fmt.Errorf("skipping %s: %w", path, err)
	}
	return edit.Edit{Path: "/" + filepath.ToSlash(rel), Content: string(data)}, nil
}

// Watch starts a recursive fsnotify watcher on Dir until ctx is cancelled.
// Written or created files are collected until no event has arrived for the
// debounce interval, then read and handed to apply as one batch.
func (im *Importer) Watch(ctx context.Context, apply func([]edit.Edit)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	patterns, _ := im.loadIgnorePatterns()

	// Walk the directory tree and add a watcher for every subdirectory.
	if err := filepath.WalkDir(im.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if path != im.Dir && im.isIgnored(path, patterns) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	}); err != nil {
		return err
	}

	log := im.logger()
	pending := make(map[string]struct{})
	timer := time.NewTimer(im.debounce())
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if im.isIgnored(event.Name, patterns) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			// If a new directory was created, watch it too.
			if info.IsDir() {
				if event.Has(fsnotify.Create) {
					_ = watcher.Add(event.Name)
				}
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(im.debounce())

		case <-timer.C:
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			clear(pending)
			sort.Strings(names)

			var edits []edit.Edit
			for _, name := range names {
				e, err := im.readEdit(name)
				if err != nil {
					log.Debug("watch: ignoring file", "error", err)
					continue
				}
				edits = append(edits, e)
			}
			if len(edits) > 0 {
				apply(edits)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			log.Warn("watch error", "dir", im.Dir, "error", err)
		}
	}
}

// isIgnored reports whether path matches any of the given glob patterns.
func (im *Importer) isIgnored(path string, patterns []string) bool {
	rel := path
	if r, err := filepath.Rel(im.Dir, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	base := filepath.Base(path)

	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "/")
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// loadIgnorePatterns merges the built-in and configured patterns with those
// from .gitignore and .sandboxignore in Dir.
func (im *Importer) loadIgnorePatterns() ([]string, error) {
	patterns := append([]string(nil), alwaysIgnored...)
	patterns = append(patterns, im.IgnorePatterns...)

	for _, name := range []string{".gitignore", ".sandboxignore"} {
		extra, err := readPatternFile(filepath.Join(im.Dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return patterns, err
		}
		patterns = append(patterns, extra...)
	}
	return patterns, nil
}

// readPatternFile reads a gitignore-style file and returns non-empty, non-comment lines.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
