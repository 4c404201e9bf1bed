package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable public identifier. Every record
// exposed over the API is keyed by one of these; internal row ids never
// leave the store.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Valid reports whether raw parses as a public identifier. Lookups with a
// malformed id short-circuit to not-found without touching the store.
func Valid(raw string) bool {
	raw = strings.TrimSpace(raw)
	if len(raw) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(raw)
	return err == nil
}
