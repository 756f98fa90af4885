package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDs generates predictable run identifiers: "<prefix>-0001",
// "<prefix>-0002" and so on.
//
// This keeps log lines and golden files byte-identical across test runs,
// where production code uses UUIDv7.
//
// Thread-safety: Generate is safe for concurrent use.
type FixedRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedRunIDs creates a generator. An empty prefix defaults to "run".
func NewFixedRunIDs(prefix string) *FixedRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &FixedRunIDs{prefix: prefix}
}

// Generate returns the next identifier in sequence.
func (g *FixedRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
