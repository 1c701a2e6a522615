// Package prefs persists gridder preferences: the UI theme, the per-grid
// persisted view state and share tokens. Everything lives in one TOML file,
// ~/.config/gridder/prefs.toml by default, unless a SQLite backend is chosen.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds user preferences for the terminal UI.
type Prefs struct {
	Theme string `toml:"theme"`
}

// document is the on-disk shape of the prefs file. State entries are keyed by
// grid namespace and hold JSON payloads.
type document struct {
	Theme string            `toml:"theme,omitempty"`
	State map[string]string `toml:"state,omitempty"`
}

const (
	defaultPrefsPath = "~/.config/gridder/prefs.toml"
	defaultTheme     = "Dracula"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from the given path, falling back to defaults if the
// file is missing or unreadable.
func Load(path string) (Prefs, error) {
	prefs := Prefs{Theme: defaultTheme}

	resolved, err := resolvePath(path)
	if err != nil {
		return prefs, nil
	}
	doc, err := readDocument(resolved)
	if err != nil {
		return prefs, nil // Graceful degradation
	}
	if theme := strings.TrimSpace(doc.Theme); theme != "" {
		prefs.Theme = theme
	}
	return prefs, nil
}

// Save writes preferences to the given path, keeping any stored grid state.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	fileMu.Lock()
	defer fileMu.Unlock()

	doc, err := readDocument(resolved)
	if err != nil {
		doc = document{}
	}
	doc.Theme = strings.TrimSpace(p.Theme)
	return writeDocument(resolved, doc)
}

func readDocument(path string) (document, error) {
	var doc document
	bytes, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("read prefs: %w", err)
	}
	if err := toml.Unmarshal(bytes, &doc); err != nil {
		return document{}, fmt.Errorf("parse prefs: %w", err)
	}
	return doc, nil
}

// writeDocument replaces the file atomically so a watcher in another process
// never observes a half-written document.
func writeDocument(path string, doc document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(bytes); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// ResolvePath expands ~ and returns the absolute prefs file path, using the
// default location for an empty path.
func ResolvePath(path string) (string, error) {
	return resolvePath(path)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
