package service

import (
	"errors"

	"github.com/okian/anchordrift/internal/adapters/mq/queue"
	"github.com/okian/anchordrift/internal/adapters/repository"
)

// Errors returned by the service. The session errors are the store's own
// sentinels so callers need only this package.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrBackpressure     = errors.New("ingest queue full")
	ErrJournalDisabled  = errors.New("decision journal disabled")
	ErrSessionNotFound  = repository.ErrNotFound
	ErrSessionExists    = repository.ErrExists
	ErrSessionLimit     = repository.ErrLimitReached
	ErrInvalidSessionID = repository.ErrInvalidID
	ErrQueueClosed      = queue.ErrClosed
)
