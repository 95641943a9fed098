// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

type config struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   func(error) bool
	logger      *slog.Logger
}

// Option configures Do.
type Option func(*config)

// WithMaxAttempts sets the total number of attempts, including the first.
// Default is 3.
func WithMaxAttempts(n int) Option {
	return func(c *config) { c.maxAttempts = n }
}

// WithBaseDelay sets the delay before the second attempt. Each later delay
// doubles. Default is one second.
func WithBaseDelay(d time.Duration) Option {
	return func(c *config) { c.baseDelay = d }
}

// WithMaxDelay caps the delay between attempts. Zero means no cap.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) { c.maxDelay = d }
}

// If restricts retries to errors for which fn returns true. Other errors are
// returned immediately.
func If(fn func(error) bool) Option {
	return func(c *config) { c.retryable = fn }
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Do calls operation until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. The attempt number starts at 1.
// Returns the error from the last attempt if all attempts fail.
func Do(ctx context.Context, operation func(attempt int) error, opts ...Option) error {
	c := config{
		maxAttempts: 3,
		baseDelay:   time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(attempt)
		if lastErr == nil {
			if attempt > 1 {
				c.logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if c.retryable != nil && !c.retryable(lastErr) {
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt == c.maxAttempts {
			break
		}
		c.logger.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", c.maxAttempts, "err", lastErr)

		timer := time.NewTimer(c.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// delay returns baseDelay * 2^(attempt-1), capped at maxDelay.
func (c *config) delay(attempt int) time.Duration {
	d := c.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.maxDelay > 0 && d >= c.maxDelay {
			return c.maxDelay
		}
	}
	if c.maxDelay > 0 && d > c.maxDelay {
		return c.maxDelay
	}
	return d
}

// WithBackoff retries an operation with exponential backoff.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: base delay between retries (doubles on each retry)
func WithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	return Do(ctx, func(int) error { return operation() },
		WithMaxAttempts(maxAttempts), WithBaseDelay(baseDelay))
}
