// Package doctor diagnoses the path from the config file to a live stream:
// config, SSH tunnel, REST backend and the system-stat websocket.
package doctor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/vpspilot/pilot/internal/errors"
)

// Categories, in the order they are reported.
const (
	CategoryConfig  = "CONFIG"
	CategoryTunnel  = "TUNNEL"
	CategoryBackend = "BACKEND"
	CategoryStream  = "STREAM"
)

// Categories returns the report order.
func Categories() []string {
	return []string{CategoryConfig, CategoryTunnel, CategoryBackend, CategoryStream}
}

// ErrSkipped marks a check that could not run because something it needs
// failed earlier. Wrap it with the reason.
var ErrSkipped = stderrors.New("skipped")

// CheckStatus represents the result status of a check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns a human-readable status string.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText writes the status by name in --json output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult contains the outcome of running a check.
type CheckResult struct {
	Name       string        `json:"name"`
	Category   string        `json:"category"`
	Status     CheckStatus   `json:"status"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
	Latency    time.Duration `json:"latency_ns,omitempty"`
}

// Check is one diagnostic step.
type Check interface {
	Name() string
	Category() string
	Run(ctx context.Context) CheckResult
}

// RunAll runs checks in order. Later checks usually depend on earlier ones,
// so they are not run in parallel.
func RunAll(ctx context.Context, checks []Check) []CheckResult {
	results := make([]CheckResult, len(checks))
	for i, check := range checks {
		results[i] = check.Run(ctx)
		if results[i].Name == "" {
			results[i].Name = check.Name()
		}
		if results[i].Category == "" {
			results[i].Category = check.Category()
		}
	}
	return results
}

// failure turns err into a failed result, or a warning when err wraps
// ErrSkipped. Structured errors contribute their message and suggestion.
func failure(c Check, err error) CheckResult {
	r := CheckResult{Name: c.Name(), Category: c.Category(), Status: StatusFail, Message: err.Error()}
	if stderrors.Is(err, ErrSkipped) {
		r.Status = StatusWarn
		r.Message = "Skipped: " + err.Error()
		return r
	}
	var pErr *errors.Error
	if stderrors.As(err, &pErr) {
		r.Message = pErr.Message
		if pErr.Cause != nil {
			r.Message += ": " + pErr.Cause.Error()
		}
		r.Suggestion = pErr.Suggestion
	}
	return r
}

// CountByStatus counts results by status.
func CountByStatus(results []CheckResult) map[CheckStatus]int {
	counts := make(map[CheckStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}

// HasFailures returns true if any result has a fail status.
func HasFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

// HasIssues returns true if any result has a fail or warn status.
func HasIssues(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == StatusFail || r.Status == StatusWarn {
			return true
		}
	}
	return false
}

// Summary returns a summary string of the check results.
func Summary(results []CheckResult) string {
	counts := CountByStatus(results)
	warn := counts[StatusWarn]
	fail := counts[StatusFail]

	if fail == 0 && warn == 0 {
		return "Everything looks good"
	}

	total := warn + fail
	return fmt.Sprintf("%d issue%s found", total, pluralize(total))
}

func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
