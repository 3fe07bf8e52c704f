package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newReferenceCode builds a human-readable reference of the form
// PREFIX-YYYYMMDD-xxxxxxxx, where the suffix is 8 random hex characters.
// Uniqueness is enforced by the store; the caller retries on collision.
func newReferenceCode(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), randomHex(4))
}

// randomHex returns 2n hex characters from crypto/rand.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; a broken
		// entropy source is not recoverable here.
		panic(fmt.Sprintf("randomHex: reading entropy: %v", err))
	}
	return hex.EncodeToString(buf)
}
