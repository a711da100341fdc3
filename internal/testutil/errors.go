package testutil

import "errors"

// Common test errors
var (
	ErrStoreDown   = errors.New("store unavailable")
	ErrTaskFailure = errors.New("agent cannot accept task")
	ErrTestFailure = errors.New("test failure")
)
