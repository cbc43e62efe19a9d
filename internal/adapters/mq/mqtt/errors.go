package mqtt

import "errors"

var (
	// ErrBadTopic is returned for topics outside <prefix>/<session>/<ar|indoor>.
	ErrBadTopic = errors.New("mqtt: unexpected topic")
	// ErrBadPayload is returned when a message body is not a valid sample.
	ErrBadPayload = errors.New("mqtt: invalid payload")
	// ErrNotConnected is returned when publishing without a live client.
	ErrNotConnected = errors.New("mqtt: not connected")
)
