package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/state"
)

// PreferenceClient is the preferences endpoint. *crud.Client satisfies it.
type PreferenceClient interface {
	LoadPreference(ctx context.Context, resource, key string) (json.RawMessage, error)
	SavePreference(ctx context.Context, resource, key string, payload json.RawMessage) error
	DeletePreference(ctx context.Context, resource, key string) error
}

// DefaultSyncDebounce is the quiet period before a preferences write is sent.
const DefaultSyncDebounce = 800 * time.Millisecond

const syncTimeout = 10 * time.Second

// RemoteStore is a write-through cache over a LocalStore. The local copy is
// authoritative for the session; server writes are debounced and best effort.
type RemoteStore struct {
	*LocalStore

	client   PreferenceClient
	resource string
	key      string
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending json.RawMessage
	closed  bool
	wg      sync.WaitGroup
}

var _ Store = (*RemoteStore)(nil)

// RemoteOptions configures a RemoteStore.
type RemoteOptions struct {
	Resource     string
	Key          string
	SyncDebounce time.Duration
	Logger       *zap.Logger
}

// NewRemoteStore wraps local with server sync through client.
func NewRemoteStore(local *LocalStore, client PreferenceClient, opts RemoteOptions) *RemoteStore {
	if opts.SyncDebounce <= 0 {
		opts.SyncDebounce = DefaultSyncDebounce
	}
	if opts.Key == "" {
		opts.Key = local.Namespace()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RemoteStore{
		LocalStore: local,
		client:     client,
		resource:   opts.Resource,
		key:        opts.Key,
		debounce:   opts.SyncDebounce,
		logger:     opts.Logger.With(zap.String("resource", opts.Resource), zap.String("key", opts.Key)),
	}
}

// SavePersisted writes locally right away and schedules one server write for
// the latest payload once saves stop for the debounce window.
func (r *RemoteStore) SavePersisted(p state.PersistedState) error {
	if p.UpdatedAt == "" {
		p.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := r.LocalStore.SavePersisted(p); err != nil {
		return err
	}
	p.Version = state.StateVersion
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode persisted state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.pending = payload
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.flush)
	return nil
}

func (r *RemoteStore) flush() {
	r.mu.Lock()
	payload := r.pending
	r.pending = nil
	if payload == nil || r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	defer r.wg.Done()
	r.send(payload)
}

func (r *RemoteStore) send(payload json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := r.client.SavePreference(ctx, r.resource, r.key, payload); err != nil {
		r.logger.Warn("preferences sync failed", zap.Error(err))
		return
	}
	r.logger.Debug("preferences synced", zap.Int("bytes", len(payload)))
}

// ClearPersisted cancels any pending sync, clears the local copy and asks the
// server to forget its copy. A sync already sending finishes first so it cannot
// land after the delete.
func (r *RemoteStore) ClearPersisted() error {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = nil
	r.mu.Unlock()
	r.wg.Wait()

	if err := r.LocalStore.ClearPersisted(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := r.client.DeletePreference(ctx, r.resource, r.key); err != nil {
		r.logger.Warn("preferences delete failed", zap.Error(err))
	}
	return nil
}

// Hydrate reads the server copy once and overlays it onto the local cache.
func (r *RemoteStore) Hydrate(ctx context.Context) error {
	raw, err := r.client.LoadPreference(ctx, r.resource, r.key)
	if err != nil {
		return fmt.Errorf("hydrate preferences: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var p state.PersistedState
	if err := json.Unmarshal(raw, &p); err != nil || p.Version != state.StateVersion {
		r.logger.Debug("discarding server preferences", zap.Error(err))
		return nil
	}
	return r.LocalStore.SavePersisted(p)
}

// Close sends any pending write, stops the timer and waits for in-flight
// syncs before closing the local backend.
func (r *RemoteStore) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	payload := r.pending
	r.pending = nil
	r.mu.Unlock()

	if payload != nil {
		r.send(payload)
	}
	r.wg.Wait()
	return r.LocalStore.Close()
}
