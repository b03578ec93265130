// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"context"
	stderrors "errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapErrorPassesThroughAllocError(t *testing.T) {
	original := NewSubmitError(SubmitReasonNodesBusy, "nodes busy")
	assert.Same(t, original, WrapError(original))
}

func TestWrapErrorClassifiesContext(t *testing.T) {
	wrapped := WrapError(context.Canceled)
	assert.Equal(t, KindUserAbort, wrapped.Kind)

	wrapped = WrapError(context.DeadlineExceeded)
	assert.Equal(t, KindTransport, wrapped.Kind)
}

func TestWrapErrorClassifiesNetwork(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Err: stderrors.New("connection refused")}
	wrapped := WrapError(netErr)
	assert.Equal(t, KindTransport, wrapped.Kind)
}

func TestWrapErrorDefaultsToInternal(t *testing.T) {
	wrapped := WrapError(stderrors.New("something odd happened"))
	assert.Equal(t, KindInternal, wrapped.Kind)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewSubmitError(SubmitReasonEAgain, "retry me")))
	assert.False(t, IsRetryable(NewSubmitError(SubmitReasonQueueBusy, "no retry")))
	assert.False(t, IsRetryable(stderrors.New("plain error")))
}

func TestIsAlreadyDone(t *testing.T) {
	assert.True(t, IsAlreadyDone(NewAlreadyDoneError()))
	assert.False(t, IsAlreadyDone(NewTransportError("timeout", nil)))
}

func TestIsRevoked(t *testing.T) {
	assert.True(t, IsRevoked(NewRevokedError("node failure")))
	assert.False(t, IsRevoked(NewSubmitError(SubmitReasonTimeout, "timed out")))
}

func TestGetKind(t *testing.T) {
	assert.Equal(t, KindParse, GetKind(NewParseError("--mem", "bad value")))
	assert.Equal(t, Kind(""), GetKind(stderrors.New("not an alloc error")))
}
