package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState represents the current state of a spinner.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const spinnerInterval = 80 * time.Millisecond

// Spinner draws an animated single-line status while a blocking step runs,
// e.g. waiting for the first frame of a stream.
type Spinner struct {
	mu        sync.Mutex
	out       io.Writer
	label     string
	state     SpinnerState
	frame     int
	startTime time.Time
	lastWidth int
	stop      chan struct{}
	done      chan struct{}
}

// NewSpinner creates a spinner that writes to stderr.
func NewSpinner(label string) *Spinner {
	return &Spinner{label: label, out: os.Stderr}
}

// SetOutput redirects the spinner.
func (s *Spinner) SetOutput(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
}

// Start begins the animation. Calling Start twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.state == SpinnerInProgress {
		s.mu.Unlock()
		return
	}
	s.state = SpinnerInProgress
	s.startTime = time.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.drawLocked()
	s.mu.Unlock()

	go s.animate()
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.drawLocked()
			s.mu.Unlock()
		}
	}
}

// Success stops the spinner and prints a completed line.
func (s *Spinner) Success() { s.finish(SpinnerSuccess) }

// Fail stops the spinner and prints a failed line.
func (s *Spinner) Fail() { s.finish(SpinnerFailed) }

func (s *Spinner) finish(state SpinnerState) {
	s.mu.Lock()
	if s.state != SpinnerInProgress {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state

	symbol, style := SymbolComplete, SuccessStyle()
	if state == SpinnerFailed {
		symbol, style = SymbolFail, ErrorStyle()
	}
	s.clearLocked()
	fmt.Fprintf(s.out, "%s %s %s\n",
		style.Render(symbol), s.label, MutedStyle().Render(formatDuration(time.Since(s.startTime))))
}

// State returns the current spinner state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Label returns the spinner's label.
func (s *Spinner) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// SetLabel updates the label; the next frame picks it up.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

func (s *Spinner) drawLocked() {
	color := GradientColors[(s.frame/2)%len(GradientColors)]
	line := fmt.Sprintf("%s %s...", lipgloss.NewStyle().Foreground(color).Render(spinnerFrames[s.frame]), s.label)
	s.clearLocked()
	fmt.Fprint(s.out, line)
	s.lastWidth = lipgloss.Width(line)
}

func (s *Spinner) clearLocked() {
	if s.lastWidth > 0 {
		fmt.Fprint(s.out, "\r"+strings.Repeat(" ", s.lastWidth)+"\r")
		s.lastWidth = 0
	}
}

// RunWithSpinner runs fn behind a spinner and reports its outcome.
func RunWithSpinner(w io.Writer, label string, fn func() error) error {
	s := NewSpinner(label)
	s.SetOutput(w)
	s.Start()
	if err := fn(); err != nil {
		s.Fail()
		return err
	}
	s.Success()
	return nil
}

// formatDuration formats a duration for display (e.g., "0.08s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
