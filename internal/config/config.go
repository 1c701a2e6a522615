package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config describes one grid: the API it talks to, the resource it shows and
// where its view state lives.
type Config struct {
	APIURL   string
	Resource string
	Endpoint string
	Headers  map[string]string
	Token    string

	Columns         []string
	IDField         string
	PerPage         int
	DefaultViewMode string
	SearchFields    []string
	Pagination      string // offset or page

	Grouping Grouping
	Store    Store
	Limits   Limits
	Export   Export

	PollInterval time.Duration
	RealtimeURL  string

	LogFile  string
	LogLevel string
}

// Grouping configures grouped and matrix views.
type Grouping struct {
	Enabled         bool
	Field           string
	PivotField      string
	RequireEnvelope bool
}

// Store selects the preference backend.
type Store struct {
	Backend   string // file, sqlite or memory
	Path      string
	Namespace string

	MaxShareEntries int

	Remote       bool
	RemoteKey    string
	SyncDebounce time.Duration
}

// Limits bound inline location encodings.
type Limits struct {
	MaxURLLength     int
	MaxFiltersLength int
}

// Export tunes async export polling.
type Export struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	HeavyFormats []string
}

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const (
	defaultConfigPath   = "~/.config/gridder/config.toml"
	defaultAPIURL       = "http://127.0.0.1:8000/api"
	defaultResource     = "items"
	defaultIDField      = "id"
	defaultPerPage      = 25
	defaultViewMode     = "flat"
	defaultPagination   = "offset"
	defaultStorePath    = "~/.config/gridder/prefs.toml"
	defaultSQLitePath   = "~/.local/state/gridder/state.db"
	defaultPollInterval = 5 * time.Second
	defaultLogFile      = "~/.local/state/gridder/gridder.log"
	defaultLogLevel     = "info"
	defaultSyncDebounce = 800 * time.Millisecond
	defaultMaxShare     = 20
	defaultMaxURL       = 2000
	defaultMaxFilters   = 1000
	defaultExportPoll   = time.Second
	defaultExportWait   = time.Minute
)

// file mirrors the on-disk layout. Durations are strings such as "5s".
type file struct {
	APIURL          string            `toml:"api_url" yaml:"api_url"`
	Resource        string            `toml:"resource" yaml:"resource"`
	Endpoint        string            `toml:"endpoint" yaml:"endpoint"`
	Headers         map[string]string `toml:"headers" yaml:"headers"`
	Token           string            `toml:"token" yaml:"token"`
	Columns         []string          `toml:"columns" yaml:"columns"`
	IDField         string            `toml:"id_field" yaml:"id_field"`
	PerPage         int               `toml:"per_page" yaml:"per_page"`
	DefaultViewMode string            `toml:"default_view_mode" yaml:"default_view_mode"`
	SearchFields    []string          `toml:"search_fields" yaml:"search_fields"`
	Pagination      string            `toml:"pagination" yaml:"pagination"`
	PollInterval    string            `toml:"poll_interval" yaml:"poll_interval"`
	RealtimeURL     string            `toml:"realtime_url" yaml:"realtime_url"`
	LogFile         string            `toml:"log_file" yaml:"log_file"`
	LogLevel        string            `toml:"log_level" yaml:"log_level"`

	Grouping struct {
		Enabled         bool   `toml:"enabled" yaml:"enabled"`
		Field           string `toml:"field" yaml:"field"`
		PivotField      string `toml:"pivot_field" yaml:"pivot_field"`
		RequireEnvelope bool   `toml:"require_envelope" yaml:"require_envelope"`
	} `toml:"grouping" yaml:"grouping"`

	Store struct {
		Backend         string `toml:"backend" yaml:"backend"`
		Path            string `toml:"path" yaml:"path"`
		Namespace       string `toml:"namespace" yaml:"namespace"`
		MaxShareEntries int    `toml:"max_share_entries" yaml:"max_share_entries"`
		Remote          bool   `toml:"remote" yaml:"remote"`
		RemoteKey       string `toml:"remote_key" yaml:"remote_key"`
		SyncDebounce    string `toml:"sync_debounce" yaml:"sync_debounce"`
	} `toml:"store" yaml:"store"`

	Limits struct {
		MaxURLLength     int `toml:"max_url_length" yaml:"max_url_length"`
		MaxFiltersLength int `toml:"max_filters_length" yaml:"max_filters_length"`
	} `toml:"limits" yaml:"limits"`

	Export struct {
		PollInterval string   `toml:"poll_interval" yaml:"poll_interval"`
		PollTimeout  string   `toml:"poll_timeout" yaml:"poll_timeout"`
		HeavyFormats []string `toml:"heavy_formats" yaml:"heavy_formats"`
	} `toml:"export" yaml:"export"`
}

// Load locates and parses the config, falling back to defaults when missing.
// Files ending in .yaml or .yml are read as YAML, anything else as TOML.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw file
	f, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return raw.normalize()
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = toml.Unmarshal(data, &raw)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return raw.normalize()
}

// Default returns the configuration used when no file exists.
func Default() Config {
	cfg, _ := file{}.normalize()
	return cfg
}

func (raw file) normalize() (Config, error) {
	cfg := Config{
		APIURL:          orDefault(raw.APIURL, defaultAPIURL),
		Resource:        orDefault(raw.Resource, defaultResource),
		Endpoint:        strings.TrimSpace(raw.Endpoint),
		Headers:         raw.Headers,
		Token:           strings.TrimSpace(raw.Token),
		Columns:         trimAll(raw.Columns),
		IDField:         orDefault(raw.IDField, defaultIDField),
		PerPage:         raw.PerPage,
		DefaultViewMode: strings.ToLower(orDefault(raw.DefaultViewMode, defaultViewMode)),
		SearchFields:    trimAll(raw.SearchFields),
		Pagination:      strings.ToLower(orDefault(raw.Pagination, defaultPagination)),
		RealtimeURL:     strings.TrimSpace(raw.RealtimeURL),
		LogLevel:        strings.ToLower(orDefault(raw.LogLevel, defaultLogLevel)),
		Grouping: Grouping{
			Enabled:         raw.Grouping.Enabled,
			Field:           strings.TrimSpace(raw.Grouping.Field),
			PivotField:      strings.TrimSpace(raw.Grouping.PivotField),
			RequireEnvelope: raw.Grouping.RequireEnvelope,
		},
		Store: Store{
			Backend:         strings.ToLower(orDefault(raw.Store.Backend, BackendFile)),
			Namespace:       strings.TrimSpace(raw.Store.Namespace),
			MaxShareEntries: raw.Store.MaxShareEntries,
			Remote:          raw.Store.Remote,
			RemoteKey:       strings.TrimSpace(raw.Store.RemoteKey),
		},
		Limits: Limits{
			MaxURLLength:     raw.Limits.MaxURLLength,
			MaxFiltersLength: raw.Limits.MaxFiltersLength,
		},
		Export: Export{HeavyFormats: trimAll(raw.Export.HeavyFormats)},
	}

	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
	}
	switch cfg.DefaultViewMode {
	case "flat", "grouped", "matrix":
	default:
		return Config{}, fmt.Errorf("parse config: unknown default_view_mode %q", cfg.DefaultViewMode)
	}
	switch cfg.Pagination {
	case "offset", "page":
	default:
		return Config{}, fmt.Errorf("parse config: unknown pagination %q", cfg.Pagination)
	}
	if cfg.Grouping.Enabled && cfg.Grouping.Field == "" {
		return Config{}, errors.New("parse config: grouping.field is required when grouping is enabled")
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "gridder:" + cfg.Resource
	}
	if cfg.Store.RemoteKey == "" {
		cfg.Store.RemoteKey = "grid"
	}
	if cfg.Store.MaxShareEntries <= 0 {
		cfg.Store.MaxShareEntries = defaultMaxShare
	}
	if cfg.Limits.MaxURLLength <= 0 {
		cfg.Limits.MaxURLLength = defaultMaxURL
	}
	if cfg.Limits.MaxFiltersLength <= 0 {
		cfg.Limits.MaxFiltersLength = defaultMaxFilters
	}

	var err error
	switch cfg.Store.Backend {
	case BackendFile:
		cfg.Store.Path, err = expandPath(orDefault(raw.Store.Path, defaultStorePath))
	case BackendSQLite:
		cfg.Store.Path, err = expandPath(orDefault(raw.Store.Path, defaultSQLitePath))
	case BackendMemory:
	default:
		return Config{}, fmt.Errorf("parse config: unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: store path: %w", err)
	}

	cfg.LogFile = mustExpand(orDefault(raw.LogFile, defaultLogFile))

	durations := []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"poll_interval", raw.PollInterval, defaultPollInterval, &cfg.PollInterval},
		{"store.sync_debounce", raw.Store.SyncDebounce, defaultSyncDebounce, &cfg.Store.SyncDebounce},
		{"export.poll_interval", raw.Export.PollInterval, defaultExportPoll, &cfg.Export.PollInterval},
		{"export.poll_timeout", raw.Export.PollTimeout, defaultExportWait, &cfg.Export.PollTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(d.raw, d.def)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return cfg, nil
}

// parseDuration accepts Go duration strings. "0" or "off" disable the value.
func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "0", "off":
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
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
