// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package allocclient

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpcsched/alloc/internal/option"
	"github.com/hpcsched/alloc/internal/proto"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/hpcsched/alloc/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	submitCalls int32
	failUntil   int32
	readiness   proto.ReadinessResponse
	completed   int32
	completeErr error
}

func (f *fakeController) Submit(ctx context.Context, req proto.SubmitRequest) (proto.AllocResponse, error) {
	n := atomic.AddInt32(&f.submitCalls, 1)
	if n <= f.failUntil {
		return proto.AllocResponse{}, allocerrors.NewSubmitError(allocerrors.SubmitReasonEAgain, "busy")
	}
	return proto.AllocResponse{JobID: 42, NodeList: "node1", NumNodes: 1}, nil
}

func (f *fakeController) Readiness(ctx context.Context, req proto.ReadinessRequest) (proto.ReadinessResponse, error) {
	return f.readiness, nil
}

func (f *fakeController) Complete(ctx context.Context, req proto.CompleteRequest) (proto.CompleteResponse, error) {
	atomic.AddInt32(&f.completed, 1)
	return proto.CompleteResponse{}, f.completeErr
}

func descriptor(t *testing.T) option.RequestList {
	t.Helper()
	d, err := option.NewDefault()
	require.NoError(t, err)
	d.JobName = "test"
	return option.RequestList{d}
}

func TestSubmitSucceeds(t *testing.T) {
	ctrl := &fakeController{}
	c, err := New(ctrl, "127.0.0.1:0", logging.NewLogger(nil))
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Submit(context.Background(), descriptor(t), nil)
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, int64(42), resp[0].JobID)
	assert.Equal(t, Granted, c.State())
}

func TestSubmitRetriesOnEAgain(t *testing.T) {
	ctrl := &fakeController{failUntil: 2}
	c, err := New(ctrl, "127.0.0.1:0", logging.NewLogger(nil))
	require.NoError(t, err)
	defer c.Close()
	c.submitPolicy = retry.NewSubmitPolicy(5, time.Millisecond, time.Millisecond)

	_, err = c.Submit(context.Background(), descriptor(t), nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ctrl.submitCalls, int32(3))
}

func TestWaitReadySucceeds(t *testing.T) {
	ctrl := &fakeController{readiness: proto.ReadinessResponse{JobState: proto.JobStateRunning, NodesReady: true, AllNodesUp: true}}
	c, err := New(ctrl, "127.0.0.1:0", logging.NewLogger(nil))
	require.NoError(t, err)
	defer c.Close()

	ready := c.WaitReady(context.Background(), 42, true, time.Second, time.Second)
	assert.True(t, ready)
}

func TestWaitReadyFailsOnNodeFail(t *testing.T) {
	ctrl := &fakeController{readiness: proto.ReadinessResponse{JobState: proto.JobStateNodeFail}}
	c, err := New(ctrl, "127.0.0.1:0", logging.NewLogger(nil))
	require.NoError(t, err)
	defer c.Close()

	ready := c.WaitReady(context.Background(), 42, false, time.Second, time.Second)
	assert.False(t, ready)
}

func TestCompleteToleratesAlreadyDone(t *testing.T) {
	ctrl := &fakeController{completeErr: allocerrors.NewAlreadyDoneError()}
	c, err := New(ctrl, "127.0.0.1:0", logging.NewLogger(nil))
	require.NoError(t, err)
	defer c.Close()

	err = c.Complete(context.Background(), 42, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ctrl.completed)
}

func TestPortOf(t *testing.T) {
	assert.Equal(t, 1234, portOf("127.0.0.1:1234"))
	assert.Equal(t, 0, portOf("bogus"))
}
