package cart

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joao-fontenele/storefront-otel/internal/storage"
)

// Manager keeps one Store per session, hydrating each lazily from storage.
// Idle stores can be swept; they are rebuilt from storage on next access.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*managedStore
	kv     storage.Store
	opts   Options
}

type managedStore struct {
	ready    chan struct{}
	store    *Store
	err      error
	lastUsed atomic.Int64
}

func NewManager(kv storage.Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		stores: make(map[string]*managedStore),
		kv:     kv,
		opts:   opts,
	}
}

// Get returns the cart of sessionID. Concurrent first calls share a single
// hydration.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Store, error) {
	m.mu.Lock()
	ms, ok := m.stores[sessionID]
	if !ok {
		ms = &managedStore{ready: make(chan struct{})}
		m.stores[sessionID] = ms
	}
	m.mu.Unlock()

	if !ok {
		ms.store, ms.err = Open(ctx, storage.NewScope(m.kv, sessionID), m.opts)
		close(ms.ready)
		if ms.err != nil {
			m.mu.Lock()
			if m.stores[sessionID] == ms {
				delete(m.stores, sessionID)
			}
			m.mu.Unlock()
		}
	}

	select {
	case <-ms.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ms.lastUsed.Store(m.opts.Now().UnixNano())
	return ms.store, ms.err
}

// Sweep drops stores not used for idle and reports how many were dropped.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.opts.Now().Add(-idle).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, ms := range m.stores {
		select {
		case <-ms.ready:
		default:
			continue
		}
		if ms.lastUsed.Load() < cutoff {
			delete(m.stores, id)
			dropped++
		}
	}
	return dropped
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval, idle time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(idle); n > 0 {
				logger.Info("swept idle carts", "count", n)
			}
		}
	}
}
