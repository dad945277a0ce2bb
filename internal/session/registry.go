package session

import (
	"sync"
	"time"
)

// Registry keeps one store and one wallet per session id
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	toastTTL time.Duration
	wallets  func() WalletAdapter
}

type entry struct {
	store  *Store
	wallet WalletAdapter
	seen   time.Time
}

// NewRegistry creates a registry. wallets builds the adapter of a new
// session; nil uses MockWallet.
func NewRegistry(toastTTL time.Duration, wallets func() WalletAdapter) *Registry {
	if wallets == nil {
		wallets = func() WalletAdapter { return NewMockWallet(nil) }
	}
	return &Registry{
		sessions: make(map[string]*entry),
		toastTTL: toastTTL,
		wallets:  wallets,
	}
}

// Get returns the store and wallet of id, creating them on first use
func (r *Registry) Get(id string) (*Store, WalletAdapter) {
	now := time.Now()

	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		r.touch(e, now)
		return e.store, e.wallet
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.seen = now
		return e.store, e.wallet
	}
	e = &entry{store: NewStore(r.toastTTL), wallet: r.wallets(), seen: now}
	r.sessions[id] = e
	return e.store, e.wallet
}

func (r *Registry) touch(e *entry, now time.Time) {
	r.mu.Lock()
	e.seen = now
	r.mu.Unlock()
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep expires toasts in every session and forgets sessions idle for
// longer than idle. It returns the number of sessions removed.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	stores := make([]*Store, 0, len(r.sessions))
	removed := 0
	for id, e := range r.sessions {
		if idle > 0 && e.seen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
			continue
		}
		stores = append(stores, e.store)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.Expire()
	}
	return removed
}
