package session

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront-cart/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTTL is how long an untouched cart stays in memory.
	DefaultIdleTTL = 30 * time.Minute

	// CleanupInterval is how often idle carts are evicted
	CleanupInterval = time.Minute

	hydrateTimeout = 5 * time.Second
)

// Factory builds an empty, not yet hydrated cart for a session.
type Factory func(sessionID string) *service.CartStore

type entry struct {
	store    *service.CartStore
	lastSeen time.Time
}

// Manager keeps one CartStore per session. Carts are hydrated from
// persistence on first use and closed after IdleTTL without access.
type Manager struct {
	mu    sync.RWMutex
	carts map[string]*entry

	newStore Factory
	idleTTL  time.Duration
	sfg      singleflight.Group
	log      *zap.Logger
	now      func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewManager starts the idle eviction loop. Call Close to stop it.
func NewManager(factory Factory, idleTTL time.Duration, log *zap.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		carts:       make(map[string]*entry),
		newStore:    factory,
		idleTTL:     idleTTL,
		log:         log,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

// Get returns the cart of sessionID, loading it on first access.
// Concurrent first accesses share a single hydration.
func (m *Manager) Get(ctx context.Context, sessionID string) *service.CartStore {
	if store, ok := m.touch(sessionID); ok {
		return store
	}

	v, _, _ := m.sfg.Do(sessionID, func() (interface{}, error) {
		if store, ok := m.touch(sessionID); ok {
			return store, nil
		}

		store := m.newStore(sessionID)
		// a cancelled request must not leave behind an empty cart that
		// later overwrites the stored one
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
		defer cancel()
		store.Hydrate(hctx)

		m.mu.Lock()
		m.carts[sessionID] = &entry{store: store, lastSeen: m.now()}
		m.mu.Unlock()

		m.log.Debug("cart session loaded", zap.String("session_id", sessionID))
		return store, nil
	})
	return v.(*service.CartStore)
}

func (m *Manager) touch(sessionID string) (*service.CartStore, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.carts[sessionID]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.store, true
}

// Len returns the number of carts held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.carts)
}

// RefreshProduct re-resolves every loaded cart that holds productID and
// returns how many carts were refreshed.
func (m *Manager) RefreshProduct(ctx context.Context, productID string) int {
	m.mu.RLock()
	stores := make([]*service.CartStore, 0, len(m.carts))
	for _, e := range m.carts {
		stores = append(stores, e.store)
	}
	m.mu.RUnlock()

	refreshed := 0
	for _, store := range stores {
		if !store.HasProduct(productID) {
			continue
		}
		if err := store.RefreshItems(ctx); err != nil {
			m.log.Debug("skipping cart refresh",
				zap.String("session_id", store.ID()),
				zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCleanup:
			return
		}
	}
}

// evictIdle closes carts not accessed within idleTTL. An entry leaves the
// map only after its store is closed, so a replacement is never hydrated
// while the old store can still commit.
func (m *Manager) evictIdle() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.RLock()
	idle := make(map[string]*entry)
	for id, e := range m.carts {
		if e.lastSeen.Before(cutoff) {
			idle[id] = e
		}
	}
	m.mu.RUnlock()

	for _, e := range idle {
		e.store.Close()
	}

	m.mu.Lock()
	for id, e := range idle {
		if m.carts[id] == e {
			delete(m.carts, id)
		}
	}
	m.mu.Unlock()

	if len(idle) > 0 {
		m.log.Info("evicted idle carts", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Close stops eviction and closes every loaded cart.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCleanup)
		m.wg.Wait()

		m.mu.Lock()
		defer m.mu.Unlock()
		for id, e := range m.carts {
			e.store.Close()
			delete(m.carts, id)
		}
	})
}
