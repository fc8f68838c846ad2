package models

import "errors"

// Request failure taxonomy. Errors are wrapped with %w so callers can branch
// with errors.Is regardless of the detail attached.
var (
	ErrClientInput     = errors.New("invalid request")
	ErrMetadata        = errors.New("metadata retrieval failed")
	ErrToolExecution   = errors.New("external tool failed")
	ErrArtifactMissing = errors.New("download produced no artifact")
	ErrParse           = errors.New("unexpected tool output")
	ErrInternal        = errors.New("internal consistency failure")
)
