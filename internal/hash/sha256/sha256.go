// Package sha256 implements content addressing for archived report bodies.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements watch.Hasher with SHA-256 hex digests.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash digests data and returns the lowercase hex encoding.
func (Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
