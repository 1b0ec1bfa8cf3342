// Package bookmark keeps the user's saved URLs for loading external pages
// into the preview. It is independent of the project files.
package bookmark

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInvalid is returned for a blank title or URL.
	ErrInvalid = errors.New("title and url are required")
	// ErrNotFound is returned when no saved URL has the given id.
	ErrNotFound = errors.New("saved url not found")
)

// SavedURL is one favorite.
type SavedURL struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Normalize prefixes raw with https:// unless it already starts with
// http:// or https://.
func Normalize(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalid)
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u, nil
	}
	return "https://" + u, nil
}

// Store is an in-memory, insertion-ordered list of saved URLs.
type Store struct {
	mu    sync.Mutex
	items []SavedURL
	newID func() string
}

func NewStore() *Store {
	return &Store{newID: uuid.NewString}
}

// Save normalizes url and appends it under a fresh id.
func (s *Store) Save(title, url string) (SavedURL, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return SavedURL{}, fmt.Errorf("%w: empty title", ErrInvalid)
	}
	u, err := Normalize(url)
	if err != nil {
		return SavedURL{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	item := SavedURL{ID: s.newID(), Title: title, URL: u}
	s.items = append(s.items, item)
	return item, nil
}

// Delete removes the saved URL with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, ErrNotFound)
}

// List returns the saved URLs in insertion order.
func (s *Store) List() []SavedURL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SavedURL(nil), s.items...)
}

// Replace swaps the whole list, e.g. when importing a project bundle. Entries
// are normalized; entries without an id get a fresh one.
func (s *Store) Replace(items []SavedURL) error {
	out := make([]SavedURL, 0, len(items))
	for _, item := range items {
		u, err := Normalize(item.URL)
		if err != nil {
			return err
		}
		if item.ID == "" {
			item.ID = s.newID()
		}
		item.URL = u
		out = append(out, item)
	}
	s.mu.Lock()
	s.items = out
	s.mu.Unlock()
	return nil
}
