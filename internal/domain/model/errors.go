package model

import "errors"

// Sentinel kinds for model validation errors.
var (
	ErrUnknownStatus = errors.New("unknown game status")
	ErrInvalidScope  = errors.New("invalid scope")
)
