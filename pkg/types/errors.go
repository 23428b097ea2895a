package types

import "errors"

// Domain errors shared across components
var (
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrIndexingInProgress = errors.New("another indexing run is already in progress")
)
