// Package ciwait implements the bounded poll loop the CI_WAIT stage
// uses to wait for a pull request's checks to finish.
package ciwait

import (
	"context"
	"time"

	"github.com/flowforge/orchestrator/internal/adapters/codehost"
)

// Waiter polls a code-hosting client until a PR's checks resolve or
// timeout elapses.
type Waiter struct {
	client codehost.Client
	poll   time.Duration
}

// New builds a Waiter polling client every poll interval, clamped to
// between one second and five minutes.
func New(client codehost.Client, poll time.Duration) *Waiter {
	return &Waiter{client: client, poll: clampDuration(poll, time.Second, 5*time.Minute)}
}

// WaitForChecks polls CheckPRStatus until it returns a terminal status
// (green or red) or timeout elapses, whichever comes first. It returns
// true only if the checks resolved green within the timeout.
func (w *Waiter) WaitForChecks(ctx context.Context, repo string, prNumber int, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		status, err := w.client.CheckPRStatus(ctx, repo, prNumber)
		if err != nil {
			return false, err
		}
		switch status {
		case codehost.StatusGreen:
			return true, nil
		case codehost.StatusRed:
			return false, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// clampDuration bounds d to [min, max], the same guard the orchestrator
// engine applies to its own computed backoff durations.
func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
