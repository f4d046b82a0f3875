// Package ids generates sortable identifiers for request ids, medical record
// numbers and visit numbers.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID stamped with t. Calls within the same millisecond
// still yield strictly increasing values.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// MRN returns a medical record number such as MRN-2603-4Q7ZK2MD.
func MRN(now time.Time) string {
	id := NewAt(now)
	return "MRN-" + now.UTC().Format("0601") + "-" + id[len(id)-8:]
}

// VisitNumber returns a visit number such as V-20260314-K2X9AB.
func VisitNumber(now time.Time) string {
	id := NewAt(now)
	return "V-" + now.UTC().Format("20060102") + "-" + id[len(id)-6:]
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
