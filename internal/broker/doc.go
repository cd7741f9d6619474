// Package broker implements the coordinator that serializes all access to
// the analytical store.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The broker watches the request collection on the mediating store and
// processes envelopes in a single goroutine. Handlers therefore execute
// one at a time in observed-event order, which is the only locking the
// analytical store needs above its own file lock.
//
// Request Processing Flow:
//  1. Watch delivers added/modified envelope documents
//  2. Envelopes not in status pending are ignored
//  3. dispatch() routes by operation through a closed switch
//  4. The handler runs under a hard wall-clock budget (default 60s)
//  5. The terminal status (completed/error) is written back, unless the
//     client already marked the envelope timeout - a client-set terminal
//     status is never overwritten
//
// Request-level failures are isolated: a handler error, timeout, or panic
// turns into a terminal error envelope and the loop keeps draining. The
// broker process itself only exits on context cancellation or a failed
// watch stream.
//
// No cross-request ordering is promised beyond "each request is processed
// at most once to completion"; two identical requests legitimately run
// twice.
package broker
