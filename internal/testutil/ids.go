// Package testutil provides deterministic substitutes for the random and
// time-dependent pieces of routecast, so tests and golden traces come out
// byte-identical on every run.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates request ids "req-0001", "req-0002", ... in order.
//
// Implements client.RequestIDGenerator. Sequential ids make envelope
// traces stable for golden comparison, unlike production UUIDv7 ids.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator with the given prefix.
// An empty prefix defaults to "req".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence. After Reset the next id is "<prefix>-0001".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
