package domain

import "errors"

// Error taxonomy. Callers classify failures with errors.Is so every layer can
// wrap with context while the transport still maps to a distinct reason.
var (
	// ErrAuthRequired means no usable credential exists and user consent is
	// needed; it always halts the requested operation.
	ErrAuthRequired = errors.New("authorization required")

	// ErrNotFound means the message or draft does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists means a draft for the message id is already present.
	ErrAlreadyExists = errors.New("draft already exists")

	// ErrInvalidState means the operation is illegal for the draft's current
	// lifecycle state, e.g. editing a SENT draft.
	ErrInvalidState = errors.New("invalid draft state")

	// ErrInvalidInput means the caller supplied unusable input, e.g. an
	// empty reply text.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream means a mail or generation provider call failed.
	ErrUpstream = errors.New("upstream provider failure")

	// ErrSendFailed means the provider rejected the irreversible send step.
	ErrSendFailed = errors.New("send failed")

	// ErrSendBlocked means the send policy refused to let the reply go out.
	ErrSendBlocked = errors.New("send blocked by policy")
)

// ErrorCode returns the wire code for an error, for clients that branch on
// the failure reason.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSendBlocked):
		return "send_blocked"
	case errors.Is(err, ErrSendFailed):
		return "send_failed"
	case errors.Is(err, ErrUpstream):
		return "upstream_failure"
	default:
		return "internal"
	}
}
