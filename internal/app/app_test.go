package app

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/config"
	"github.com/five82/gridder/internal/prefs"
)

func TestLoadTheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prefs.toml")

	if got := loadTheme(path, zap.NewNop()); got != "Dracula" {
		t.Fatalf("loadTheme(missing) = %q, want %q", got, "Dracula")
	}

	if err := prefs.Save(path, prefs.Prefs{Theme: "Slate"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if got := loadTheme(path, zap.NewNop()); got != "Slate" {
		t.Fatalf("loadTheme = %q, want %q", got, "Slate")
	}

	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	if got := loadTheme(path, zap.NewNop()); got != "Dracula" {
		t.Fatalf("loadTheme(corrupt) = %q, want %q", got, "Dracula")
	}
}

func TestWatchTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendMemory
	if got := watchTarget(cfg); got != "" {
		t.Fatalf("watchTarget(memory) = %q, want empty", got)
	}
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.Path = "/tmp/state.db"
	if got := watchTarget(cfg); got != "/tmp/state.db" {
		t.Fatalf("watchTarget(sqlite) = %q", got)
	}
}
