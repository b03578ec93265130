// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerWaitReturnsOnDone(t *testing.T) {
	calls := 0
	p := &Poller[string]{
		Interval: time.Millisecond,
		Fetch: func(ctx context.Context) (string, error) {
			calls++
			if calls >= 3 {
				return "GRANTED", nil
			}
			return "PENDING", nil
		},
		Done: func(s string) bool { return s == "GRANTED" },
	}

	state, err := p.Wait(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "GRANTED", state)
	assert.Equal(t, 3, calls)
}

func TestPollerWaitPropagatesFetchError(t *testing.T) {
	wantErr := errors.New("controller unreachable")
	p := &Poller[string]{
		Fetch: func(ctx context.Context) (string, error) { return "", wantErr },
		Done:  func(s string) bool { return false },
	}

	_, err := p.Wait(context.Background(), 0)
	assert.ErrorIs(t, err, wantErr)
}

func TestPollerWaitRespectsDeadline(t *testing.T) {
	p := &Poller[string]{
		Interval: 5 * time.Millisecond,
		Fetch:    func(ctx context.Context) (string, error) { return "PENDING", nil },
		Done:     func(s string) bool { return false },
	}

	_, err := p.Wait(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPollerWaitRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller[string]{
		Interval: 10 * time.Millisecond,
		Fetch:    func(ctx context.Context) (string, error) { return "PENDING", nil },
		Done:     func(s string) bool { return false },
	}

	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	_, err := p.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
