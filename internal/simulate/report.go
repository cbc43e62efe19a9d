package simulate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/threshold"
)

const reportFilePermission = 0o600

// Step is one decision taken during a run.
type Step struct {
	Frame      int              `json:"frame"`
	EventID    string           `json:"event_id,omitempty"`
	Evaluation drift.Evaluation `json:"evaluation"`
}

// Report summarises a run.
type Report struct {
	Mode        string                 `json:"mode"`
	SessionID   string                 `json:"session_id,omitempty"`
	Frames      int                    `json:"frames"`
	IndoorFixes int                    `json:"indoor_fixes"`
	Resets      int                    `json:"resets"`
	Rules       map[threshold.Rule]int `json:"rules"`
	Streamed    int                    `json:"streamed,omitempty"`
	Duration    time.Duration          `json:"duration"`
	Steps       []Step                 `json:"steps"`
}

func newReport(mode string, frames []Frame) *Report {
	return &Report{
		Mode:        mode,
		Frames:      len(frames),
		IndoorFixes: IndoorCount(frames),
		Rules:       make(map[threshold.Rule]int),
	}
}

func (r *Report) add(step Step) {
	r.Steps = append(r.Steps, step)
	r.Rules[step.Evaluation.Rule]++
	if step.Evaluation.Reset {
		r.Resets++
	}
}

// FirstReset returns the first reset step with the given rule.
func (r *Report) FirstReset(rule threshold.Rule) (Step, bool) {
	for _, s := range r.Steps {
		if s.Evaluation.Reset && s.Evaluation.Rule == rule {
			return s, true
		}
	}
	return Step{}, false
}

// Write prints the summary, and every reset when verbose is set.
func (r *Report) Write(w io.Writer, verbose bool) error {
	if _, err := fmt.Fprintf(w, "mode=%s frames=%d indoor_fixes=%d decisions=%d resets=%d duration=%s\n",
		r.Mode, r.Frames, r.IndoorFixes, len(r.Steps), r.Resets, r.Duration.Round(time.Millisecond)); err != nil {
		return err
	}
	if r.Streamed > 0 {
		if _, err := fmt.Fprintf(w, "streamed=%d\n", r.Streamed); err != nil {
			return err
		}
	}

	rules := make([]string, 0, len(r.Rules))
	for rule := range r.Rules {
		rules = append(rules, string(rule))
	}
	sort.Strings(rules)
	for _, rule := range rules {
		if _, err := fmt.Fprintf(w, "  %-18s %d\n", rule, r.Rules[threshold.Rule(rule)]); err != nil {
			return err
		}
	}

	if !verbose {
		return nil
	}
	for _, s := range r.Steps {
		if !s.Evaluation.Reset {
			continue
		}
		c := s.Evaluation.Confidence
		if _, err := fmt.Fprintf(w, "  frame=%-5d rule=%-18s quality=%.3f ar=%.3f indoor=%.3f agreement=%.3f threshold=%.3f\n",
			s.Frame, s.Evaluation.Rule, c.Quality, c.ARConfidence, c.IndoorConfidence, c.Agreement,
			s.Evaluation.Threshold.Value); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the report as JSON.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, reportFilePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
