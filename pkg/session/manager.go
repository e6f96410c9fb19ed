package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a map.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes access to stored maps, so read-modify-write cycles on
// the same map never interleave. It uses reference counting to garbage
// collect unused locks.
type Manager struct {
	store ports.MapStore

	mu    sync.Mutex            // Global lock for the map of locks
	locks map[string]*lockEntry // Active locks by map ID

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger // Logger for internal events (like deferred errors)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given map store.
func NewManager(store ports.MapStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release(mapID) after unlocking.
func (m *Manager) acquire(mapID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[mapID]
	if !exists {
		entry = &lockEntry{}
		m.locks[mapID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(mapID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[mapID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, mapID)
	}
}

// ActiveLocks returns how many maps currently have a lock entry.
func (m *Manager) ActiveLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Load retrieves a stored map.
func (m *Manager) Load(ctx context.Context, mapID string) (*domain.Node, error) {
	var root *domain.Node
	err := m.WithLock(ctx, mapID, func(ctx context.Context) error {
		var err error
		root, err = m.store.Load(ctx, mapID)
		return err
	})
	return root, err
}

// LoadOrEmpty retrieves a stored map, treating a missing map as empty.
func (m *Manager) LoadOrEmpty(ctx context.Context, mapID string) (*domain.Node, error) {
	root, err := m.store.Load(ctx, mapID)
	if errors.Is(err, domain.ErrMapNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load map %s: %w", mapID, err)
	}
	return root, nil
}

// Save persists a map.
func (m *Manager) Save(ctx context.Context, mapID string, root *domain.Node) error {
	return m.WithLock(ctx, mapID, func(ctx context.Context) error {
		return m.store.Save(ctx, mapID, root)
	})
}

// Update runs a read-modify-write cycle on mapID under its lock. fn receives
// the stored tree (nil for a new map) and returns the tree to save; returning
// save=false skips the write.
func (m *Manager) Update(ctx context.Context, mapID string, fn func(ctx context.Context, root *domain.Node) (next *domain.Node, save bool, err error)) error {
	return m.WithLock(ctx, mapID, func(ctx context.Context) error {
		root, err := m.LoadOrEmpty(ctx, mapID)
		if err != nil {
			return err
		}
		next, save, err := fn(ctx, root)
		if err != nil || !save {
			return err
		}
		if err := m.store.Save(ctx, mapID, next); err != nil {
			return fmt.Errorf("failed to save map %s: %w", mapID, err)
		}
		return nil
	})
}

// Delete removes the map from the store.
func (m *Manager) Delete(ctx context.Context, mapID string) error {
	return m.WithLock(ctx, mapID, func(ctx context.Context) error {
		return m.store.Delete(ctx, mapID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying map store.
func (m *Manager) Store() ports.MapStore {
	return m.store
}

// WithLock executes fn while holding the lock for the map.
func (m *Manager) WithLock(ctx context.Context, mapID string, fn func(context.Context) error) error {
	entry := m.acquire(mapID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(mapID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, mapID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"map_id", mapID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
