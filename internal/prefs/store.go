package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/gridder/internal/state"
)

// Store persists view preferences and mints share tokens for one grid.
type Store interface {
	LoadPersisted() (state.PersistedState, bool)
	SavePersisted(p state.PersistedState) error
	ClearPersisted() error
	CreateShare(s state.ShareState) (string, error)
	ResolveShare(token string) (state.ShareState, bool)
	Hydrate(ctx context.Context) error
	Close() error
}

// DefaultMaxShareEntries bounds the share ring when no limit is configured.
const DefaultMaxShareEntries = 20

// LocalStore keeps everything in a Backend under a namespace key.
type LocalStore struct {
	backend   Backend
	namespace string
	maxShare  int
	logger    *zap.Logger

	mu sync.Mutex // guards share ring read-modify-write
}

var _ Store = (*LocalStore)(nil)

// LocalOption customizes a LocalStore.
type LocalOption func(*LocalStore)

// WithMaxShareEntries caps the number of share tokens kept.
func WithMaxShareEntries(n int) LocalOption {
	return func(s *LocalStore) {
		if n > 0 {
			s.maxShare = n
		}
	}
}

// WithLogger sets the logger used for discarded payloads.
func WithLogger(l *zap.Logger) LocalOption {
	return func(s *LocalStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLocalStore builds a store over backend scoped to namespace.
func NewLocalStore(backend Backend, namespace string, opts ...LocalOption) *LocalStore {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "grid"
	}
	s := &LocalStore{
		backend:   backend,
		namespace: namespace,
		maxShare:  DefaultMaxShareEntries,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the key persisted state is stored under.
func (s *LocalStore) Namespace() string { return s.namespace }

func (s *LocalStore) shareKey() string { return s.namespace + ":share" }

// LoadPersisted returns the stored state. Missing, corrupt or wrong-version
// payloads report false.
func (s *LocalStore) LoadPersisted() (state.PersistedState, bool) {
	raw, err := s.backend.Get(s.namespace)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("read persisted state", zap.String("namespace", s.namespace), zap.Error(err))
		}
		return state.PersistedState{}, false
	}
	var p state.PersistedState
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Version != state.StateVersion {
		s.logger.Debug("discarding persisted state", zap.String("namespace", s.namespace), zap.Error(err))
		return state.PersistedState{}, false
	}
	return p, true
}

// SavePersisted writes p, stamping UpdatedAt when it is empty.
func (s *LocalStore) SavePersisted(p state.PersistedState) error {
	p.Version = state.StateVersion
	if p.UpdatedAt == "" {
		p.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode persisted state: %w", err)
	}
	if err := s.backend.Set(s.namespace, string(raw)); err != nil {
		return fmt.Errorf("save persisted state: %w", err)
	}
	return nil
}

// ClearPersisted removes the stored state. Share tokens are kept.
func (s *LocalStore) ClearPersisted() error {
	if err := s.backend.Delete(s.namespace); err != nil {
		return fmt.Errorf("clear persisted state: %w", err)
	}
	return nil
}

type shareEntry struct {
	Token string           `json:"token"`
	State state.ShareState `json:"state"`
}

func (s *LocalStore) readRing() []shareEntry {
	raw, err := s.backend.Get(s.shareKey())
	if err != nil {
		return nil
	}
	var ring []shareEntry
	if err := json.Unmarshal([]byte(raw), &ring); err != nil {
		s.logger.Debug("discarding share ring", zap.String("namespace", s.namespace), zap.Error(err))
		return nil
	}
	return ring
}

// CreateShare stores st and returns its token. A state already in the ring,
// timestamps aside, keeps its token and becomes the newest entry. The oldest
// entries are evicted once the ring is full.
func (s *LocalStore) CreateShare(st state.ShareState) (string, error) {
	st.Version = state.StateVersion
	if st.UpdatedAt == "" {
		st.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.readRing()
	entry := shareEntry{Token: uuid.NewString(), State: st}
	key := shareFingerprint(st)
	for i, e := range ring {
		if shareFingerprint(e.State) == key {
			entry.Token = e.Token
			ring = append(ring[:i:i], ring[i+1:]...)
			break
		}
	}
	token := entry.Token
	ring = append(ring, entry)
	if over := len(ring) - s.maxShare; over > 0 {
		ring = ring[over:]
	}
	raw, err := json.Marshal(ring)
	if err != nil {
		return "", fmt.Errorf("encode share state: %w", err)
	}
	if err := s.backend.Set(s.shareKey(), string(raw)); err != nil {
		return "", fmt.Errorf("save share state: %w", err)
	}
	return token, nil
}

// shareFingerprint is the JSON form of st without timestamps.
func shareFingerprint(st state.ShareState) string {
	st.UpdatedAt = ""
	if st.Persisted != nil {
		p := *st.Persisted
		p.UpdatedAt = ""
		st.Persisted = &p
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return ""
	}
	return string(raw)
}

// ResolveShare looks token up in the ring.
func (s *LocalStore) ResolveShare(token string) (state.ShareState, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return state.ShareState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.readRing() {
		if e.Token == token && e.State.Version == state.StateVersion {
			return e.State, true
		}
	}
	return state.ShareState{}, false
}

// Hydrate is a no-op for local storage.
func (s *LocalStore) Hydrate(context.Context) error { return nil }

// Close closes the backend when it holds resources.
func (s *LocalStore) Close() error {
	if c, ok := s.backend.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
