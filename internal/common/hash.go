package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex hashes input to lowercase hex. Used to derive fixed-length
// idempotency fingerprints from request bodies.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
