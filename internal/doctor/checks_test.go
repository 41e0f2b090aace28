package doctor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/vpspilot/pilot/internal/errors"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status   CheckStatus
		expected string
	}{
		{StatusPass, "pass"},
		{StatusWarn, "warn"},
		{StatusFail, "fail"},
		{CheckStatus(99), "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			if got := tc.status.String(); got != tc.expected {
				t.Errorf("got %q, want %q", got, tc.expected)
			}
		})
	}
}

// mockCheck is a test implementation of Check.
type mockCheck struct {
	name     string
	category string
	result   CheckResult
	runs     int
}

func (m *mockCheck) Name() string     { return m.name }
func (m *mockCheck) Category() string { return m.category }
func (m *mockCheck) Run(ctx context.Context) CheckResult {
	m.runs++
	return m.result
}

func TestRunAll(t *testing.T) {
	checks := []Check{
		&mockCheck{
			name:     "check1",
			category: "TEST",
			result:   CheckResult{Name: "check1", Status: StatusPass, Message: "OK"},
		},
		&mockCheck{
			name:     "check2",
			category: "TEST",
			result:   CheckResult{Name: "check2", Status: StatusFail, Message: "Failed"},
		},
	}

	results := RunAll(context.Background(), checks)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].Status != StatusPass {
		t.Errorf("expected first check to pass")
	}
	if results[1].Status != StatusFail {
		t.Errorf("expected second check to fail")
	}
}

func TestCountByStatus(t *testing.T) {
	results := []CheckResult{
		{Status: StatusPass},
		{Status: StatusPass},
		{Status: StatusWarn},
		{Status: StatusFail},
	}

	counts := CountByStatus(results)

	if counts[StatusPass] != 2 {
		t.Errorf("expected 2 pass, got %d", counts[StatusPass])
	}
	if counts[StatusWarn] != 1 {
		t.Errorf("expected 1 warn, got %d", counts[StatusWarn])
	}
	if counts[StatusFail] != 1 {
		t.Errorf("expected 1 fail, got %d", counts[StatusFail])
	}
}

func TestHasFailures(t *testing.T) {
	tests := []struct {
		name     string
		results  []CheckResult
		expected bool
	}{
		{
			name:     "all pass",
			results:  []CheckResult{{Status: StatusPass}, {Status: StatusPass}},
			expected: false,
		},
		{
			name:     "with warn only",
			results:  []CheckResult{{Status: StatusPass}, {Status: StatusWarn}},
			expected: false,
		},
		{
			name:     "with fail",
			results:  []CheckResult{{Status: StatusPass}, {Status: StatusFail}},
			expected: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasFailures(tc.results); got != tc.expected {
				t.Errorf("HasFailures() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestHasIssues(t *testing.T) {
	tests := []struct {
		name     string
		results  []CheckResult
		expected bool
	}{
		{
			name:     "all pass",
			results:  []CheckResult{{Status: StatusPass}, {Status: StatusPass}},
			expected: false,
		},
		{
			name:     "with warn",
			results:  []CheckResult{{Status: StatusPass}, {Status: StatusWarn}},
			expected: true,
		},
		{
			name:     "with fail",
			results:  []CheckResult{{Status: StatusPass}, {Status: StatusFail}},
			expected: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasIssues(tc.results); got != tc.expected {
				t.Errorf("HasIssues() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name     string
		results  []CheckResult
		contains string
	}{
		{
			name:     "all good",
			results:  []CheckResult{{Status: StatusPass}},
			contains: "Everything looks good",
		},
		{
			name:     "one issue",
			results:  []CheckResult{{Status: StatusFail}},
			contains: "1 issue found",
		},
		{
			name:     "multiple issues",
			results:  []CheckResult{{Status: StatusFail}, {Status: StatusWarn}},
			contains: "2 issues found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Summary(tc.results)
			if got != tc.contains {
				t.Errorf("Summary() = %q, want %q", got, tc.contains)
			}
		})
	}
}

func TestPluralize(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{0, "s"},
		{1, ""},
		{2, "s"},
		{10, "s"},
	}

	for _, tc := range tests {
		if got := pluralize(tc.n); got != tc.expected {
			t.Errorf("pluralize(%d) = %q, want %q", tc.n, got, tc.expected)
		}
	}
}

func TestRunAll_FillsNameAndCategory(t *testing.T) {
	check := &mockCheck{name: "probe", category: CategoryStream, result: CheckResult{Status: StatusPass}}

	results := RunAll(context.Background(), []Check{check})

	if results[0].Name != "probe" || results[0].Category != CategoryStream {
		t.Errorf("got name %q category %q", results[0].Name, results[0].Category)
	}
	if check.runs != 1 {
		t.Errorf("expected one run, got %d", check.runs)
	}
}

func TestFailure(t *testing.T) {
	check := &mockCheck{name: "rest_api", category: CategoryBackend}

	tests := []struct {
		name       string
		err        error
		status     CheckStatus
		message    string
		suggestion string
	}{
		{
			name:    "plain error",
			err:     fmt.Errorf("connection refused"),
			status:  StatusFail,
			message: "connection refused",
		},
		{
			name:       "structured error",
			err:        errors.New(errors.ErrAPI, "Backend returned 401 Unauthorized for nodes", "Set server.token"),
			status:     StatusFail,
			message:    "Backend returned 401 Unauthorized for nodes",
			suggestion: "Set server.token",
		},
		{
			name:    "structured error with cause",
			err:     errors.WrapWithCode(fmt.Errorf("dial tcp: refused"), errors.ErrAPI, "Couldn't list nodes", ""),
			status:  StatusFail,
			message: "Couldn't list nodes: dial tcp: refused",
		},
		{
			name:    "skipped",
			err:     fmt.Errorf("backend unavailable: %w", ErrSkipped),
			status:  StatusWarn,
			message: "Skipped: backend unavailable: skipped",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := failure(check, tc.err)
			if r.Status != tc.status {
				t.Errorf("status = %v, want %v", r.Status, tc.status)
			}
			if r.Message != tc.message {
				t.Errorf("message = %q, want %q", r.Message, tc.message)
			}
			if r.Suggestion != tc.suggestion {
				t.Errorf("suggestion = %q, want %q", r.Suggestion, tc.suggestion)
			}
			if r.Category != CategoryBackend {
				t.Errorf("category = %q", r.Category)
			}
		})
	}
}

func TestCheckStatus_MarshalText(t *testing.T) {
	b, err := StatusWarn.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "warn" {
		t.Errorf("got %q", b)
	}
}

func TestCategories_Order(t *testing.T) {
	got := strings.Join(Categories(), ",")
	if got != "CONFIG,TUNNEL,BACKEND,STREAM" {
		t.Errorf("got %s", got)
	}
}
