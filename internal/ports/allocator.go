// Package ports assigns host ports to new instances without colliding with
// anything already in the registry.
package ports

import (
	"errors"
	"fmt"
	"math/rand"

	"burrow/internal/registry"
)

// ErrPortSpaceExhausted means the allocator gave up after its attempt cap.
var ErrPortSpaceExhausted = errors.New("no free port found in allocation range")

// maxAttempts bounds the random draw so allocation never spins forever on a
// crowded range.
const maxAttempts = 64

// Allocator draws ports from a fixed candidate range.
type Allocator struct {
	start int
	end   int
}

// NewAllocator creates an allocator for the inclusive range [start, end].
func NewAllocator(start, end int) *Allocator {
	return &Allocator{start: start, end: end}
}

// Allocate picks a port from the candidate range that no registered entry
// holds. Draws are random so freed ports get reused eventually rather than
// the low end of the range churning.
func (a *Allocator) Allocate(snap *registry.Snapshot) (int, error) {
	// Explicitly assigned ports may lie outside the range; only entries
	// inside it consume allocation space.
	held := 0
	for _, e := range snap.Entries() {
		if e.Port >= a.start && e.Port <= a.end {
			held++
		}
	}
	if held >= a.end-a.start+1 {
		return 0, fmt.Errorf("%w (%d-%d)", ErrPortSpaceExhausted, a.start, a.end)
	}

	for i := 0; i < maxAttempts; i++ {
		candidate := a.start + rand.Intn(a.end-a.start+1)
		if !snap.PortInUse(candidate) {
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("%w after %d attempts (%d-%d)", ErrPortSpaceExhausted, maxAttempts, a.start, a.end)
}
