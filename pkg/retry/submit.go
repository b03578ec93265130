// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package retry

import "time"

// SubmitPolicy implements the linear backoff the submit loop (§4.4) uses
// when retrying ERROR_ON_DESC_TO_RECORD_COPY and EAGAIN refusals: wait
// 1s, 2s, 3s, ... capped at 10s, for up to maxAttempts retries after the
// first try.
type SubmitPolicy struct {
	maxAttempts int
	minWait     time.Duration
	maxWait     time.Duration
}

// NewSubmitPolicy creates a submit retry policy allowing maxAttempts
// retries, waiting minWait after the first failure and minWait more after
// each later one, capped at maxWait. The allocation client uses 10, 1s, 10s.
func NewSubmitPolicy(maxAttempts int, minWait, maxWait time.Duration) *SubmitPolicy {
	return &SubmitPolicy{maxAttempts: maxAttempts, minWait: minWait, maxWait: maxWait}
}

// ShouldRetry reports whether attempt (0-indexed) is still within budget.
func (p *SubmitPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.maxAttempts
}

// WaitTime returns the linear backoff delay after failed attempt
// (0-indexed), before the next try.
func (p *SubmitPolicy) WaitTime(attempt int) time.Duration {
	wait := p.minWait + time.Duration(attempt)*p.minWait
	if wait > p.maxWait {
		wait = p.maxWait
	}
	return wait
}

// MaxRetries returns the configured attempt budget.
func (p *SubmitPolicy) MaxRetries() int {
	return p.maxAttempts
}
