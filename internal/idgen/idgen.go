// Package idgen generates sandbox IDs: a fixed prefix plus ~96 random
// bits (spec.md §4.6 "create-new" step 1), hex-encoded. The teacher
// generates its short IDs from a truncated uuid.New() (internal/sandbox
// manager.go, pty.go); spec.md's bit-count requirement needs more
// entropy than an 8-character truncation carries, so this reaches for
// crypto/rand directly instead of trimming a uuid.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SandboxID returns a fresh sandbox identifier: "sbx_" followed by 24
// hex characters (96 bits of randomness).
func SandboxID() string {
	return "sbx_" + randomHex(12)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, a condition this core cannot recover from.
		panic(fmt.Sprintf("idgen: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}
