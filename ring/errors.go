package ring

import "errors"

// Programming errors: a panic carrying one of these sentinels signals an
// implementation bug (invalid operand shapes), not a recoverable condition.
// Request handlers recover them at the API boundary; the collection state
// remains usable afterwards.
var (
	// ErrInvalidNTTState is raised when an operation receives operands whose
	// NTT domains do not match its requirements.
	ErrInvalidNTTState = errors.New("invalid NTT state")

	// ErrInvalidModulus is raised when operand moduli do not match.
	ErrInvalidModulus = errors.New("invalid modulus")

	// ErrInvalidExtendedState is raised when a ciphertext operation receives
	// operands with mismatched extended (three-component) state.
	ErrInvalidExtendedState = errors.New("invalid extended state")

	// ErrInvalidRank is raised when a rank does not divide the degree or is
	// not a power of two.
	ErrInvalidRank = errors.New("invalid rank")

	// ErrSameDataReference is raised by shift and automorphism when the
	// result aliases the operand, which would corrupt the permutation.
	ErrSameDataReference = errors.New("the same data is referenced by op and res")
)
