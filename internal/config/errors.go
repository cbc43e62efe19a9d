package config

import "errors"

var (
	// ErrInvalidConfig is wrapped by every Validate failure, including
	// drift tuning rejected by the monitor.
	ErrInvalidConfig = errors.New("invalid anchordrift service config")
	// ErrLoadConfig is wrapped when the YAML file or ANCHORDRIFT_ env
	// layer cannot be read.
	ErrLoadConfig = errors.New("cannot load anchordrift service config")
)
