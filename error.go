package redistruct

import "fmt"

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// MissingIdentifier signals a key-dependent operation attempted with an
	// empty/unset identifier.
	MissingIdentifier
	// RecordExists signals a create-if-absent operation that found an
	// existing record, or a unique-index guard that found another owner.
	RecordExists
	// OptimisticLockConflict signals a watched key changed during a
	// conditional transaction after retries were exhausted.
	OptimisticLockConflict
	// OperationModeConflict signals an operation incompatible with the
	// current connection-resolution context, e.g. Save inside an open
	// transaction block. Caller logic error, never transient.
	OperationModeConflict
	// KeyNotFound signals a refresh or direct-key load against a key that
	// does not exist.
	KeyNotFound
	// MethodConflict signals an accessor-name collision under the Raise
	// conflict policy, at definition time.
	MethodConflict
	// InvalidIdentifierSource signals identifier-field configuration that is
	// neither a declared field name nor a derivation function.
	InvalidIdentifierSource
	// StoreError wraps an underlying client/network error. Never swallowed.
	StoreError
)

func (c ErrorCode) String() string {
	switch c {
	case MissingIdentifier:
		return "missing identifier"
	case RecordExists:
		return "record exists"
	case OptimisticLockConflict:
		return "optimistic lock conflict"
	case OperationModeConflict:
		return "operation mode conflict"
	case KeyNotFound:
		return "key not found"
	case MethodConflict:
		return "method conflict"
	case InvalidIdentifierSource:
		return "invalid identifier source"
	case StoreError:
		return "store error"
	}
	return "unknown"
}

// Error is the module's custom error. Code classifies the failure, Err holds
// the underlying cause when there is one, UserData carries call-site detail
// (key, field or accessor name).
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %v", e.Code, e.UserData)
	}
	return fmt.Sprintf("%v: %v, details: %v", e.Code, e.UserData, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// Is matches any Error carrying the same code, so callers can use errors.Is
// with a bare Error{Code: ...} target.
func (e Error) Is(target error) bool {
	if t, ok := target.(Error); ok {
		return t.Code == e.Code
	}
	return false
}

// IsCode reports whether err (or anything it wraps) is an Error with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
