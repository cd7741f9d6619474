// Package protocol defines the request/response envelope passed between
// client stubs and the broker through the mediating document store.
//
// One envelope describes one coordinated operation against the analytical
// store. The envelope lifecycle is strictly forward:
//
//	pending -> completed | error | timeout
//
// A terminal status is never rewritten. The broker writes completed/error;
// a client that gives up waiting writes timeout itself and leaves the
// envelope behind as an audit trail. Only clients delete envelopes, which
// removes the double-delete race between the two parties.
//
// Operations form a closed enum. Dispatch in the broker is a switch over
// Operation values, not an open string-keyed handler table, so an
// unhandled variant is a compile-visible gap rather than a runtime surprise.
package protocol
