// Package prefs persists the map visibility toggles across sessions. The
// store is an explicitly constructed dependency passed to whoever needs the
// toggles — there is no package-level singleton.
package prefs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"aidmap/internal/domain/entities"
)

// Store is a file-backed preference store. Reads come from an in-memory
// copy loaded at construction; writes go to disk immediately. Missing keys
// in the backing file resolve to the defaults.
type Store struct {
	mu    sync.Mutex
	path  string
	prefs entities.Preferences
}

// fileFormat uses pointers so absent keys are distinguishable from false.
type fileFormat struct {
	ShowNeedy      *bool `json:"showNeedy,omitempty"`
	ShowVolunteers *bool `json:"showVolunteers,omitempty"`
}

// DefaultPath returns the namespaced preference file location under the
// user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "aidmap", "preferences.json"), nil
}

// NewStore loads preferences from path. A missing file is not an error; it
// yields the defaults.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:  path,
		prefs: entities.DefaultPreferences(),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.ShowNeedy != nil {
		s.prefs.ShowNeedy = *f.ShowNeedy
	}
	if f.ShowVolunteers != nil {
		s.prefs.ShowVolunteers = *f.ShowVolunteers
	}
	return s, nil
}

// Get returns the current preferences.
func (s *Store) Get() entities.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Set persists new preferences immediately.
func (s *Store) Set(p entities.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(fileFormat{
		ShowNeedy:      &p.ShowNeedy,
		ShowVolunteers: &p.ShowVolunteers,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return err
	}
	s.prefs = p
	return nil
}
