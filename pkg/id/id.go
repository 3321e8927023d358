// Package id issues run identifiers for stored trade downloads.
//
// Ids are ULIDs: 26 characters of Crockford base32 that sort in the order
// they were generated, so listing runs by id lists them by age.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Monotonic keeps ids minted in the same millisecond increasing.
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a run id stamped with the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a run id stamped with t, truncated to the millisecond.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), entropy)
	if err != nil {
		// Only fails when the monotonic entropy overflows within one millisecond.
		panic(err)
	}
	return id.String()
}

// Time returns the creation time encoded in a run id.
func Time(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad run id %q: %w", s, err)
	}
	return ulid.Time(id.Time()).UTC(), nil
}

// Valid reports whether s is a well-formed run id.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
