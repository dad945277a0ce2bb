package session

import (
	"crypto/rand"
	"time"
)

const (
	toastIDLength = 8
	base36        = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewToast builds a toast. Success and info toasts expire after ttl unless
// autoDismiss is false; warnings and errors stay until dismissed.
func NewToast(typ ToastType, title, message string, now time.Time, ttl time.Duration, autoDismiss bool) Toast {
	t := Toast{
		ID:        newToastID(),
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
	if autoDismiss && ttl > 0 && (typ == ToastSuccess || typ == ToastInfo) {
		expires := now.Add(ttl)
		t.ExpiresAt = &expires
	}
	return t
}

func newToastID() string {
	buf := make([]byte, toastIDLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = base36[int(b)%len(base36)]
	}
	return string(buf)
}
