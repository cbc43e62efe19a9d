package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/anchordrift/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initialises the logger, writing to stderr and, when logFile is
// set, to that file as well.
func SetupLogging(logFile string, verbose bool) error {
	level := "info"
	if verbose {
		level = "debug"
	}

	var out io.Writer = os.Stderr
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, file)
	}

	if err := logger.Init(logger.WithOutput(out), logger.WithLevel(level)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Anchor Drift Simulator
======================

Generates a synthetic indoor walk: an AR pose stream whose heading drifts
and may freeze, and an indoor positioning stream with noise and an optional
floor change. The walk is replayed through a drift monitor in-process, or
posted to a running service when -url is given.

Usage:
  go run cmd/drift-sim/main.go [options]

Options:
  -url string
        Base URL of a running service (default: run in-process)
  -session string
        Session id to create on the service (default: server generated)
  -steps int
        AR frames to generate (default 480)
  -step-ms int
        Milliseconds between AR frames (default 250)
  -indoor-every int
        AR frames per indoor fix (default 4)
  -drift float
        AR heading drift per frame in radians (default 0.002)
  -noise float
        Indoor position noise in metres (default 0.4)
  -freeze-at int
        First frozen AR frame, -1 disables (default 200)
  -freeze-frames int
        How many AR frames stay frozen (default 24)
  -floor-change-at int
        First frame on the second floor, -1 disables (default 360)
  -seed uint
        Random seed (default 1)
  -watch
        Follow the WebSocket decision stream while posting (remote only)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Write the JSON report to this file
  -log string
        Also write logs to this file
  -verbose
        Print every reset and enable debug logs
  -help
        Show this help message

Examples:
  # In-process run with the defaults
  go run cmd/drift-sim/main.go -verbose

  # Faster drift, no floor change
  go run cmd/drift-sim/main.go -drift 0.01 -floor-change-at -1

  # Against a running service, following the stream
  go run cmd/drift-sim/main.go -url http://localhost:9080 -watch
`)
}
