package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ZanzyTHEbar/research-token/internal/ledger"
)

// ErrWalletUnavailable is returned when no wallet can be reached
var ErrWalletUnavailable = errors.New("wallet not available")

// WalletAdapter is the capability a session needs from a wallet
type WalletAdapter interface {
	// Connect returns the base58 public key of the connected wallet
	Connect(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
}

// MockWallet generates a fresh key on first connect and keeps it until
// disconnected.
type MockWallet struct {
	mu     sync.Mutex
	random io.Reader
	key    string

	// Err, when set, is returned by Connect
	Err error
}

// NewMockWallet creates a mock wallet. A nil random uses crypto/rand.
func NewMockWallet(random io.Reader) *MockWallet {
	return &MockWallet{random: random}
}

func (w *MockWallet) Connect(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return "", w.Err
	}
	if w.key == "" {
		key, err := ledger.NewAddress(w.random)
		if err != nil {
			return "", err
		}
		w.key = key
	}
	return w.key, nil
}

func (w *MockWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.key = ""
	return nil
}
