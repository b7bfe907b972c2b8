package protocol

const (
	// Registry/lookup.
	ErrNotFound      = "E_NOT_FOUND"
	ErrAlreadyExists = "E_ALREADY_EXISTS"

	// Capability layer.
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrTypeMismatch = "E_TYPE_MISMATCH"

	// Ledger/lifecycle.
	ErrInvalidState = "E_INVALID_STATE"
	ErrNoCapacity   = "E_NO_CAPACITY"

	// Fatal to the enclosing operation: a cascade finished with
	// unresolved worklist entries. No partial effects persist.
	ErrObligationUnresolved = "E_OBLIGATION_UNRESOLVED"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrNotFound:             {},
	ErrAlreadyExists:        {},
	ErrUnauthorized:         {},
	ErrTypeMismatch:         {},
	ErrInvalidState:         {},
	ErrNoCapacity:           {},
	ErrObligationUnresolved: {},
	ErrInternal:             {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
