package app

import "errors"

var (
	// ErrEmptyPrompt indicates a submission without a usable prompt.
	ErrEmptyPrompt = errors.New("prompt is required")
)
