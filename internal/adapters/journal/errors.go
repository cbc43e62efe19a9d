package journal

import "errors"

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("journal closed")
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("journal path is empty")
)
