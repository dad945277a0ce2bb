// Package session holds the per-visitor wallet connection and toast
// notifications. State is an immutable value and every change goes through
// Reduce.
package session

import "time"

// ToastType selects how a toast is rendered
type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
	ToastWarning ToastType = "warning"
	ToastInfo    ToastType = "info"
)

// DefaultToastTTL is how long success and info toasts stay visible
const DefaultToastTTL = 5 * time.Second

// Toast is a notification shown to the visitor
type Toast struct {
	ID        string     `json:"id"`
	Type      ToastType  `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the toast should be gone at now
func (t Toast) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Wallet is the wallet connection as seen by the session
type Wallet struct {
	PublicKey  string `json:"public_key,omitempty"`
	Connected  bool   `json:"connected"`
	Connecting bool   `json:"connecting"`
}

// State is a snapshot of a session
type State struct {
	Wallet Wallet  `json:"wallet"`
	Toasts []Toast `json:"toasts"`
}

// Action is a change applied by Reduce
type Action interface {
	action()
}

// ConnectRequested marks the wallet as connecting
type ConnectRequested struct{}

// Connected records the public key of a connected wallet
type Connected struct {
	PublicKey string
}

// ConnectFailed clears the connecting flag
type ConnectFailed struct {
	Err error
}

// Disconnected forgets the wallet
type Disconnected struct{}

// ToastAdded appends a toast
type ToastAdded struct {
	Toast Toast
}

// ToastDismissed removes the toast with ID
type ToastDismissed struct {
	ID string
}

// ToastsExpired drops every toast expired at Now
type ToastsExpired struct {
	Now time.Time
}

func (ConnectRequested) action() {}
func (Connected) action()        {}
func (ConnectFailed) action()    {}
func (Disconnected) action()     {}
func (ToastAdded) action()       {}
func (ToastDismissed) action()   {}
func (ToastsExpired) action()    {}

// Reduce returns the state that results from applying a to s. s is never
// modified.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case ConnectRequested:
		if s.Wallet.Connected || s.Wallet.Connecting {
			return s
		}
		s.Wallet.Connecting = true
	case Connected:
		if a.PublicKey == "" {
			s.Wallet.Connecting = false
			return s
		}
		s.Wallet = Wallet{PublicKey: a.PublicKey, Connected: true}
	case ConnectFailed:
		s.Wallet.Connecting = false
	case Disconnected:
		s.Wallet = Wallet{}
	case ToastAdded:
		for _, t := range s.Toasts {
			if t.ID == a.Toast.ID {
				return s
			}
		}
		toasts := make([]Toast, 0, len(s.Toasts)+1)
		toasts = append(toasts, s.Toasts...)
		s.Toasts = append(toasts, a.Toast)
	case ToastDismissed:
		s.Toasts = filterToasts(s.Toasts, func(t Toast) bool { return t.ID != a.ID })
	case ToastsExpired:
		s.Toasts = filterToasts(s.Toasts, func(t Toast) bool { return !t.Expired(a.Now) })
	}
	return s
}

func filterToasts(toasts []Toast, keep func(Toast) bool) []Toast {
	out := make([]Toast, 0, len(toasts))
	for _, t := range toasts {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
