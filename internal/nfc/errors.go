package nfc

import "errors"

// Domain errors for the nfc package.
var (
	ErrTagNotFound   = errors.New("nfc: tag not found")
	ErrInvalidTagUID = errors.New("nfc: invalid tag uid")
)
