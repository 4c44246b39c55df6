package seq

import "errors"

// Caller errors shared by every package that consumes sequences.
// They are detected at the API boundary and never retried.
var (
	// ErrInvalidSymbol is returned when text contains a character with no
	// code in the target alphabet, or a wildcard that cannot be resolved.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrAlphabetMismatch is returned when a sequence built from one alphabet
	// is handed to a structure built for another.
	ErrAlphabetMismatch = errors.New("alphabet mismatch")

	// ErrIndexOutOfBounds is returned (or carried by a panic) on an
	// out-of-range position.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrInvalidArgument is returned for malformed parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)
