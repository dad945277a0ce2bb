package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrConnectInProgress is returned when a wallet is already connecting
var ErrConnectInProgress = errors.New("wallet connection already in progress")

// Message shown when a wallet refuses to connect
const ConnectFailedMessage = "Failed to connect wallet. Please try again."

// Store serializes actions on one session and publishes each new snapshot
type Store struct {
	mu       sync.Mutex
	state    State
	subs     map[int]chan State
	nextSub  int
	toastTTL time.Duration
	now      func() time.Time
}

// NewStore creates a store with an empty state. ttl <= 0 uses DefaultToastTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &Store{
		state:    State{Toasts: []Toast{}},
		subs:     make(map[int]chan State),
		toastTTL: ttl,
		now:      time.Now,
	}
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and returns the new state
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(a)
}

func (s *Store) apply(a Action) State {
	s.state = Reduce(s.state, a)
	for _, ch := range s.subs {
		// keep only the newest snapshot for slow subscribers
		select {
		case <-ch:
		default:
		}
		ch <- s.state
	}
	return s.state
}

// Subscribe returns a channel that receives the newest snapshot after every
// dispatch, and a function that ends the subscription.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Notify adds a toast that auto-dismisses when its type allows it
func (s *Store) Notify(typ ToastType, title, message string) Toast {
	t := NewToast(typ, title, message, s.now(), s.toastTTL, true)
	s.Dispatch(ToastAdded{Toast: t})
	return t
}

// Dismiss removes a toast
func (s *Store) Dismiss(id string) State {
	return s.Dispatch(ToastDismissed{ID: id})
}

// Expire drops toasts whose time is up
func (s *Store) Expire() State {
	return s.Dispatch(ToastsExpired{Now: s.now()})
}

// ConnectWallet connects w. A refused connection leaves the wallet
// disconnected and adds an error toast.
func (s *Store) ConnectWallet(ctx context.Context, w WalletAdapter) (State, error) {
	s.mu.Lock()
	if s.state.Wallet.Connected {
		defer s.mu.Unlock()
		return s.state, nil
	}
	if s.state.Wallet.Connecting {
		s.mu.Unlock()
		return s.Snapshot(), ErrConnectInProgress
	}
	s.apply(ConnectRequested{})
	s.mu.Unlock()

	key, err := w.Connect(ctx)
	if err != nil {
		s.Dispatch(ConnectFailed{Err: err})
		s.Notify(ToastError, "Error", ConnectFailedMessage)
		return s.Snapshot(), err
	}
	return s.Dispatch(Connected{PublicKey: key}), nil
}

// DisconnectWallet disconnects w. The state is kept if the wallet refuses.
func (s *Store) DisconnectWallet(ctx context.Context, w WalletAdapter) (State, error) {
	if err := w.Disconnect(ctx); err != nil {
		return s.Snapshot(), err
	}
	return s.Dispatch(Disconnected{}), nil
}
