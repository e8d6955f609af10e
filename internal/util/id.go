package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns an opaque 32-character hex identifier with 128 bits of
// randomness, used for all entity primary keys.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
