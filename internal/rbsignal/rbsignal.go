// Package rbsignal implements the SIGINT/SIGTERM escalation loop
// (SPEC_FULL §12, ported from the teacher's agent.Signal/agent.Kill):
// deliver cancellation once, then wait out a grace period on a backoff
// tick and close the Forced channel once that hard deadline passes.
package rbsignal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/runbookhq/runbookengine/internal/backoff"
)

// Escalator watches for SIGINT/SIGTERM and cancels a context once,
// escalating via a constant-interval backoff re-check until MaxWait
// elapses, at which point Forced fires even if the run never stopped
// cooperatively (spec.md §4.6.4: "forces the Run to ABORTED").
type Escalator struct {
	MaxWait time.Duration

	once    sync.Once
	cancel  context.CancelFunc
	forced  chan struct{}
}

// Watch returns a context derived from parent that is cancelled on the
// first SIGINT/SIGTERM, plus the Escalator whose Forced channel closes
// once MaxWait has elapsed since that signal. Stop before any signal
// arrives keeps Forced open.
func Watch(parent context.Context) (context.Context, *Escalator) {
	ctx, cancel := context.WithCancel(parent)
	e := &Escalator{MaxWait: 30 * time.Second, cancel: cancel, forced: make(chan struct{})}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			e.trigger()
		case <-ctx.Done():
			signal.Stop(sigCh)
		}
	}()

	return ctx, e
}

// Forced returns a channel closed once escalation has run its course.
// The Engine does not read it: its dispatch loop moves the Run to ABORTED
// when the watched context is cancelled.
func (e *Escalator) Forced() <-chan struct{} { return e.forced }

func (e *Escalator) trigger() {
	e.once.Do(func() {
		e.cancel()
		go e.escalate()
	})
}

// escalate re-polls on a constant backoff tick (grounded in the teacher's
// internal/backoff.ConstantBackoffPolicy) until MaxWait has elapsed,
// giving in-flight Runners a full cooperative-shutdown window before
// Forced fires.
func (e *Escalator) escalate() {
	policy := backoff.NewConstantBackoffPolicy(e.MaxWait / 6)
	retrier := backoff.NewRetrier(policy)

	deadline := time.Now().Add(e.MaxWait)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	for time.Now().Before(deadline) {
		if err := retrier.Next(ctx, nil); err != nil {
			break
		}
	}
	close(e.forced)
}

// Stop disarms the watcher without waiting for a signal, for callers
// (tests, a clean run completion) that want Watch's goroutine to exit.
func (e *Escalator) Stop() { e.cancel() }
