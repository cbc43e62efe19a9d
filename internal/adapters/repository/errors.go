package repository

import "errors"

// Sentinel kinds for session store errors.
var (
	ErrNotFound     = errors.New("session not found")
	ErrExists       = errors.New("session already exists")
	ErrLimitReached = errors.New("session limit reached")
	ErrInvalidID    = errors.New("invalid session id")
)
