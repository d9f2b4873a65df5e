package calls

import "errors"

var (
	ErrCallNotFound      = errors.New("calls: call not found")
	ErrUserNotFound      = errors.New("calls: user not found")
	ErrRoleMismatch      = errors.New("calls: only members may start calls and only creators may receive them")
	ErrAlreadyOnCall     = errors.New("calls: participant is already on a call")
	ErrNoActiveChat      = errors.New("calls: no active chat between participants")
	ErrInsufficientCoins = errors.New("calls: insufficient coin balance")
	ErrCoinLockFailed    = errors.New("calls: failed to lock coins")
	ErrAlreadyAnswered   = errors.New("calls: call already answered")
	ErrInvalidState      = errors.New("calls: call is not in a state that allows this transition")
	ErrRejoinUsed        = errors.New("calls: rejoin already used by this participant")
)

// Class buckets service errors for transport-layer mapping.
type Class int

const (
	ClassInternal Class = iota
	ClassNotFound
	ClassForbidden
	ClassBadRequest
)

// Classify maps a service error onto the error taxonomy. Unknown errors are
// internal (collaborator or persistence failures). A call in the wrong state
// for a transition classifies as not-found: from the caller's perspective the
// call they are addressing no longer exists in that state.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrCallNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrAlreadyAnswered),
		errors.Is(err, ErrInvalidState):
		return ClassNotFound
	case errors.Is(err, ErrRoleMismatch):
		return ClassForbidden
	case errors.Is(err, ErrAlreadyOnCall),
		errors.Is(err, ErrNoActiveChat),
		errors.Is(err, ErrInsufficientCoins),
		errors.Is(err, ErrCoinLockFailed),
		errors.Is(err, ErrRejoinUsed):
		return ClassBadRequest
	default:
		return ClassInternal
	}
}
