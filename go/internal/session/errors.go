package session

import "errors"

var (
	// ErrValidation marks malformed or disallowed input.
	ErrValidation = errors.New("validation failed")
	// ErrPrecondition marks an action attempted outside its valid phase or budget.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound marks a session code with no document behind it.
	ErrNotFound = errors.New("session not found")
	// ErrTimedOut marks a store that did not answer in time.
	ErrTimedOut = errors.New("session store timed out")
	// ErrPermission marks a non-host attempting a host-only action.
	ErrPermission = errors.New("only the host can do that")
	// ErrJoinFailed is what a player sees when a join lookup misses or times out.
	// It always wraps ErrNotFound or ErrTimedOut.
	ErrJoinFailed = errors.New("could not join session")
	// ErrOperationFailed wraps a store failure after validation passed.
	ErrOperationFailed = errors.New("operation failed")
)

// Kind names the error category for transports that cannot carry Go errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPrecondition):
		return "precondition"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrJoinFailed):
		return "join_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimedOut):
		return "timed_out"
	default:
		return "operation_failed"
	}
}
