package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/anchordrift/internal/simulate"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	def := simulate.DefaultConfig()
	var (
		baseURL       = flag.String("url", "", "Base URL of a running service (default: run in-process)")
		sessionID     = flag.String("session", "", "Session id to create on the service")
		steps         = flag.Int("steps", def.Steps, "AR frames to generate")
		stepMS        = flag.Int64("step-ms", def.StepMS, "Milliseconds between AR frames")
		indoorEvery   = flag.Int("indoor-every", def.IndoorEvery, "AR frames per indoor fix")
		driftRate     = flag.Float64("drift", def.DriftRate, "AR heading drift per frame in radians")
		noise         = flag.Float64("noise", def.IndoorNoise, "Indoor position noise in metres")
		freezeAt      = flag.Int("freeze-at", def.FreezeAt, "First frozen AR frame, -1 disables")
		freezeFrames  = flag.Int("freeze-frames", def.FreezeFrames, "How many AR frames stay frozen")
		floorChangeAt = flag.Int("floor-change-at", def.FloorChangeAt, "First frame on the second floor, -1 disables")
		seed          = flag.Uint64("seed", def.Seed, "Random seed")
		watch         = flag.Bool("watch", false, "Follow the WebSocket decision stream (remote only)")
		timeout       = flag.Duration("timeout", def.Timeout, "HTTP request timeout")
		output        = flag.String("output", "", "Write the JSON report to this file")
		logFile       = flag.String("log", "", "Also write logs to this file")
		verbose       = flag.Bool("verbose", false, "Print every reset and enable debug logs")
		help          = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := def
	cfg.BaseURL = *baseURL
	cfg.SessionID = *sessionID
	cfg.Steps = *steps
	cfg.StepMS = *stepMS
	cfg.IndoorEvery = *indoorEvery
	cfg.DriftRate = *driftRate
	cfg.IndoorNoise = *noise
	cfg.FreezeAt = *freezeAt
	cfg.FreezeFrames = *freezeFrames
	cfg.FloorChangeAt = *floorChangeAt
	cfg.Seed = *seed
	cfg.Watch = *watch
	cfg.Timeout = *timeout
	cfg.Output = *output
	cfg.Verbose = *verbose

	report, err := simulate.Run(ctx, &cfg)
	if err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := report.Write(os.Stdout, *verbose); err != nil {
		os.Stderr.WriteString("Failed to write report: " + err.Error() + "\n")
		os.Exit(1)
	}
}
