package fuzzy

import "github.com/teranos/scholar/errors"

var (
	// ErrInvalidInput is returned for NaN, infinite, missing or unknown inputs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownTerm is returned when an expression or rule names a term
	// the variable does not define.
	ErrUnknownTerm = errors.New("unknown term")

	// ErrUnknownVariable is returned when an expression names an input
	// variable the engine does not define.
	ErrUnknownVariable = errors.New("unknown variable")
)
