package mrqfit

import "errors"

var (
	// ErrBadPermutation is returned when the active parameter list repeats an
	// index or does not fit the parameter vector.
	ErrBadPermutation = errors.New("mrqfit: bad parameter permutation")
	// ErrTooManyVariables is returned when a system exceeds MaxParams.
	ErrTooManyVariables = errors.New("mrqfit: too many variables")
	// ErrNoData is returned when the initial chi-square is not positive.
	ErrNoData = errors.New("mrqfit: no data")
	// ErrSingularMatrix is returned by GaussJordan for a singular system.
	ErrSingularMatrix = errors.New("mrqfit: singular matrix")
	// ErrFinalized is returned by Iterate after Finalize.
	ErrFinalized = errors.New("mrqfit: fit already finalized")

	// ErrSkip tells the fitter to ignore a data point (masked or bad pixel).
	ErrSkip = errors.New("mrqfit: skip data point")
	// ErrInvalidParams marks a parameter vector the model cannot evaluate.
	// Models wrap it; a trial step that hits it is rejected.
	ErrInvalidParams = errors.New("mrqfit: invalid parameters")
)
