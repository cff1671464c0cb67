package genapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Throttled wraps a backend client with the shared request discipline: at
// most one in-flight request per model id, a hard per-request deadline, and
// a cool-down after every failed attempt. Gates are shared by every bot
// identity using the same model.
type Throttled struct {
	backend  Client
	timeout  time.Duration
	cooldown time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// NewThrottled wraps backend with per-model mutual exclusion, the given
// hard timeout, and failure cool-down.
func NewThrottled(backend Client, timeout, cooldown time.Duration, log *slog.Logger) *Throttled {
	return &Throttled{
		backend:  backend,
		timeout:  timeout,
		cooldown: cooldown,
		log:      log.With("component", "generation_gate"),
		gates:    make(map[string]*semaphore.Weighted),
	}
}

// gate returns the semaphore for a model id, creating it on first use.
// Gates are never destroyed.
func (t *Throttled) gate(modelID string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.gates[modelID]
	if !ok {
		g = semaphore.NewWeighted(1)
		t.gates[modelID] = g
	}
	return g
}

// Generate acquires the model's gate, issues the request under the hard
// deadline, and classifies the outcome.
//
// A timed-out request returns an error wrapping ErrTimeout after the
// cool-down. Any other backend failure is logged and degrades to an empty
// result; callers must treat "" as no reply available.
func (t *Throttled) Generate(ctx context.Context, modelID string, msgs []Message) (string, error) {
	g := t.gate(modelID)
	if err := g.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for model %s gate: %w", modelID, err)
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		// The gate stays held until the backend actually returns, even
		// past the deadline, so a stale in-flight request never overlaps
		// a fresh one on the same model.
		text, err := t.backend.Generate(callCtx, modelID, msgs)
		g.Release(1)
		cancel()
		done <- result{text, err}
	}()

	// The deadline holds even against a backend that ignores cancellation.
	var text string
	var err error
	select {
	case r := <-done:
		text, err = r.text, r.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	// A result that arrived at or past the deadline is stale; discard it.
	if err == nil && callCtx.Err() != nil {
		text, err = "", callCtx.Err()
	}

	if err == nil {
		t.log.DebugContext(ctx, "Generation succeeded",
			"model", modelID, "duration_ms", time.Since(start).Milliseconds(), "length", len(text))
		return text, nil
	}

	// Shutdown, not a backend failure: skip the cool-down.
	if ctx.Err() != nil {
		return "", fmt.Errorf("generation cancelled for model %s: %w", modelID, ctx.Err())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		t.log.WarnContext(ctx, "Generation request timed out",
			"model", modelID, "timeout", t.timeout)
		t.coolDown(ctx)
		return "", fmt.Errorf("model %s: %w", modelID, ErrTimeout)
	}

	t.log.ErrorContext(ctx, "Generation request failed",
		"model", modelID, "error", err, "duration_ms", time.Since(start).Milliseconds())
	t.coolDown(ctx)
	return "", nil
}

func (t *Throttled) coolDown(ctx context.Context) {
	if t.cooldown <= 0 {
		return
	}

	timer := time.NewTimer(t.cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
