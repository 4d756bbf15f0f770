package detection

import "errors"

// Domain errors for the detection package.
var (
	ErrRulePanicked   = errors.New("detection: rule panicked")
	ErrInvalidFinding = errors.New("detection: invalid finding")
)
