package protocol

import (
	"errors"
	"fmt"
)

// FaultCode categorizes request failures.
type FaultCode string

const (
	// FaultValidation marks a malformed payload, rejected before it
	// reaches the analytical store.
	FaultValidation FaultCode = "VALIDATION"

	// FaultNotFound marks a requested entity that does not exist.
	FaultNotFound FaultCode = "NOT_FOUND"

	// FaultConflict marks a write that collides with an existing record
	// under the same idempotency key but with different content.
	FaultConflict FaultCode = "CONFLICT"

	// FaultHandlerTimeout marks a handler that exceeded its wall-clock
	// budget in the broker.
	FaultHandlerTimeout FaultCode = "HANDLER_TIMEOUT"

	// FaultClientTimeout marks a client that gave up waiting. This is the
	// only fault produced client-side; a broker that is down is observed
	// exclusively through it.
	FaultClientTimeout FaultCode = "CLIENT_TIMEOUT"

	// FaultEnvelopeGone marks an envelope that vanished mid-poll. Only
	// clients delete envelopes, so this indicates outside interference.
	FaultEnvelopeGone FaultCode = "ENVELOPE_GONE"

	// FaultOperation marks a generic handler failure that fits no more
	// specific category.
	FaultOperation FaultCode = "OPERATION"
)

// Fault is the typed error for protocol-level failures. The broker
// stores Fault messages in the envelope's error field; the client stub
// reconstructs operation errors and produces its own timeout faults.
type Fault struct {
	Code      FaultCode
	Message   string
	RequestID string
	Operation Operation
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.RequestID != "" {
		return fmt.Sprintf("%s: %s (request=%s, op=%s)", f.Code, f.Message, f.RequestID, f.Operation)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewValidationError builds a validation fault.
func NewValidationError(format string, args ...any) *Fault {
	return &Fault{Code: FaultValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError builds a not-found fault.
func NewNotFoundError(format string, args ...any) *Fault {
	return &Fault{Code: FaultNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError builds a conflict fault.
func NewConflictError(format string, args ...any) *Fault {
	return &Fault{Code: FaultConflict, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation fault.
func IsValidation(err error) bool { return hasCode(err, FaultValidation) }

// IsNotFound reports whether err is a not-found fault.
func IsNotFound(err error) bool { return hasCode(err, FaultNotFound) }

// IsConflict reports whether err is a conflict fault.
func IsConflict(err error) bool { return hasCode(err, FaultConflict) }

// IsClientTimeout reports whether err is a client-side timeout fault.
func IsClientTimeout(err error) bool { return hasCode(err, FaultClientTimeout) }

// IsEnvelopeGone reports whether err marks an envelope deleted out from
// under a polling client.
func IsEnvelopeGone(err error) bool { return hasCode(err, FaultEnvelopeGone) }

func hasCode(err error, code FaultCode) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code == code
	}
	return false
}
