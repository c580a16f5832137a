package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// errEmptyResponse marks a backend call that returned only whitespace
var errEmptyResponse = errors.New("empty response")

// Attempt records one backend invocation
type Attempt struct {
	Backend  string        `json:"backend"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the invocation errored, panicked or returned nothing
func (a Attempt) Failed() bool {
	return a.Err != ""
}

// Extraction is the outcome of running the waterfall over the backend list
type Extraction struct {
	OK       bool
	Backend  string
	Text     string
	Attempts []Attempt
}

// LastError returns the most recent attempt failure, or "" when none failed
func (e Extraction) LastError() string {
	for i := len(e.Attempts) - 1; i >= 0; i-- {
		if e.Attempts[i].Failed() {
			return fmt.Sprintf("%s: %s", e.Attempts[i].Backend, e.Attempts[i].Err)
		}
	}
	return ""
}

// Waterfall tries backends in priority order until one answers
type Waterfall struct {
	backends []string
	invoker  Invoker
}

// NewWaterfall creates a Waterfall over the given backend identifiers
func NewWaterfall(invoker Invoker, backends []string) *Waterfall {
	return &Waterfall{
		backends: append([]string(nil), backends...),
		invoker:  invoker,
	}
}

// Backends returns the backend identifiers in the order they are tried
func (w *Waterfall) Backends() []string {
	return append([]string(nil), w.backends...)
}

// Extract runs the prompt against each backend in turn and stops at the first
// non-empty response. It never returns an error; failures are in Attempts.
func (w *Waterfall) Extract(ctx context.Context, img Image, prompt string) Extraction {
	var result Extraction

	for _, backendID := range w.backends {
		start := time.Now()
		text, err := w.invoke(ctx, backendID, img, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyResponse
		}

		attempt := Attempt{Backend: backendID, Duration: time.Since(start)}
		if err != nil {
			attempt.Err = err.Error()
			result.Attempts = append(result.Attempts, attempt)
			slog.Warn("Extraction backend failed", "backend", backendID, "error", err, "duration", attempt.Duration)
			continue
		}

		result.Attempts = append(result.Attempts, attempt)
		result.OK = true
		result.Backend = backendID
		result.Text = text
		slog.Info("Extraction backend succeeded", "backend", backendID, "attempts", len(result.Attempts), "duration", attempt.Duration)
		return result
	}

	slog.Error("All extraction backends failed", "attempts", len(result.Attempts), "last_error", result.LastError())
	return result
}

// invoke calls one backend, turning a panic into an error
func (w *Waterfall) invoke(ctx context.Context, backendID string, img Image, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panicked: %v", r)
		}
	}()
	return w.invoker.Invoke(ctx, backendID, img, prompt)
}
