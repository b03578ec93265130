// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitReasonRetryable(t *testing.T) {
	cases := []struct {
		reason SubmitReason
		want   bool
	}{
		{SubmitReasonDescToRecordCopy, true},
		{SubmitReasonEAgain, true},
		{SubmitReasonQueueBusy, false},
		{SubmitReasonConfigConflict, false},
		{SubmitReasonNotTopPriority, false},
		{SubmitReasonNodesBusy, false},
		{SubmitReasonTimeout, false},
		{SubmitReasonImmediate, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.reason.Retryable(), tc.reason)
	}
}

func TestAllocErrorError(t *testing.T) {
	tokenErr := &AllocError{Kind: KindParse, Token: "--mem=abc", Message: "bad memory spec"}
	assert.Contains(t, tokenErr.Error(), "bad memory spec")
	assert.Contains(t, tokenErr.Error(), "--mem=abc")

	fieldErr := &AllocError{Kind: KindValidation, Field: "nodes", Message: "min exceeds max"}
	assert.Contains(t, fieldErr.Error(), "field=nodes")

	submitErr := &AllocError{Kind: KindSubmit, Reason: SubmitReasonQueueBusy, Message: "queue full"}
	assert.Contains(t, submitErr.Error(), "SUBMIT/QUEUE_BUSY")

	plain := &AllocError{Kind: KindInternal, Message: "unexpected nil pointer"}
	assert.Equal(t, "[INTERNAL] unexpected nil pointer", plain.Error())
}

func TestAllocErrorIs(t *testing.T) {
	submitBusy := &AllocError{Kind: KindSubmit, Reason: SubmitReasonQueueBusy}
	target := &AllocError{Kind: KindSubmit, Reason: SubmitReasonQueueBusy}
	assert.True(t, stderrors.Is(submitBusy, target))

	other := &AllocError{Kind: KindSubmit, Reason: SubmitReasonNodesBusy}
	assert.False(t, stderrors.Is(submitBusy, other))

	anyKind := &AllocError{Kind: KindSubmit}
	assert.True(t, stderrors.Is(submitBusy, anyKind))
}

func TestAllocErrorRetryable(t *testing.T) {
	retryable := &AllocError{Kind: KindSubmit, Reason: SubmitReasonEAgain}
	assert.True(t, retryable.Retryable())

	notRetryable := &AllocError{Kind: KindSubmit, Reason: SubmitReasonQueueBusy}
	assert.False(t, notRetryable.Retryable())

	wrongKind := &AllocError{Kind: KindTransport, Reason: SubmitReasonEAgain}
	assert.False(t, wrongKind.Retryable())
}

func TestAllocErrorAlreadyDone(t *testing.T) {
	assert.True(t, NewAlreadyDoneError().AlreadyDone())
	assert.False(t, NewTransportError("connection reset", nil).AlreadyDone())
}

func TestAllocErrorUnwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	wrapped := NewTransportError("submit failed", cause)
	assert.Same(t, cause, stderrors.Unwrap(wrapped))
}
