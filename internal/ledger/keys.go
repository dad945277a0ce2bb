package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// NewAddress derives a fresh ed25519 public key from r and returns it base58
// encoded. A nil reader uses crypto/rand.
func NewAddress(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, _, err := ed25519.GenerateKey(r)
	if err != nil {
		return "", fmt.Errorf("failed to generate keypair: %w", err)
	}
	return base58.Encode(pub), nil
}

// ValidAddress reports whether s decodes to a 32 byte public key
func ValidAddress(s string) bool {
	if s == "" {
		return false
	}
	b, err := base58.Decode(s)
	return err == nil && len(b) == ed25519.PublicKeySize
}
