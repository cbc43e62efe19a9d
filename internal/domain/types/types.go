// Package types contains the wire shapes shared by the HTTP API and its
// clients.
package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/anchordrift/internal/domain/location"
)

// ErrInvalidSample is returned by the request Validate methods.
var ErrInvalidSample = errors.New("invalid sample")

// CreateSessionRequest is the body of POST /sessions. An empty SessionID
// lets the server pick one.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// ARPoseRequest is one AR pose with an optional idempotency id.
type ARPoseRequest struct {
	ID string `json:"id,omitempty"`
	location.ARPose
}

// Validate rejects poses no tracker can produce.
func (r *ARPoseRequest) Validate() error {
	switch {
	case r.Timestamp < 0:
		return fmt.Errorf("%w: timestamp must not be negative", ErrInvalidSample)
	case r.Rotation != nil && *r.Rotation == (location.Quaternion{}):
		return fmt.Errorf("%w: rotation must not be the zero quaternion", ErrInvalidSample)
	}
	return nil
}

// IndoorFixRequest is one indoor fix with an optional idempotency id.
type IndoorFixRequest struct {
	ID string `json:"id,omitempty"`
	location.IndoorFix
}

// UnmarshalJSON keeps the id beside the fix, which has its own decoder.
func (r *IndoorFixRequest) UnmarshalJSON(data []byte) error {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var fix location.IndoorFix
	if err := json.Unmarshal(data, &fix); err != nil {
		return err
	}
	*r = IndoorFixRequest{ID: head.ID, IndoorFix: fix}
	return nil
}

// Validate rejects fixes with a negative timestamp or accuracy.
func (r *IndoorFixRequest) Validate() error {
	switch {
	case r.Timestamp < 0:
		return fmt.Errorf("%w: timestamp must not be negative", ErrInvalidSample)
	case r.Accuracy < 0:
		return fmt.Errorf("%w: accuracy must not be negative", ErrInvalidSample)
	}
	return nil
}

// Ack answers a single sample submission.
type Ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// BatchAck answers a batch submission.
type BatchAck struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack statuses.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
)
