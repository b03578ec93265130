// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package allocclient implements the allocation protocol client (§4.4): a
// listener thread that receives the controller's asynchronous back-channel
// notifications, and the submit/wait_ready/complete operations that drive
// one hetjob request through NOT_GRANTED → GRANTED → REVOKED.
package allocclient

import (
	"context"
	"sync"
	"time"

	"github.com/hpcsched/alloc/internal/option"
	"github.com/hpcsched/alloc/internal/proto"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/hpcsched/alloc/pkg/retry"
	"github.com/hpcsched/alloc/pkg/streaming"
	"github.com/hpcsched/alloc/pkg/watch"
)

// State is the allocation's lifecycle state from the client's viewpoint.
type State int

const (
	NotGranted State = iota
	Granted
	Revoked
)

// Controller is the narrow RPC surface the client needs from the
// controller connection; production wiring dials the controller's listen
// address, tests substitute a fake.
type Controller interface {
	Submit(ctx context.Context, req proto.SubmitRequest) (proto.AllocResponse, error)
	Readiness(ctx context.Context, req proto.ReadinessRequest) (proto.ReadinessResponse, error)
	Complete(ctx context.Context, req proto.CompleteRequest) (proto.CompleteResponse, error)
}

// PendingFunc is invoked by Submit with the job id once the submit RPC
// has returned, just before the allocation is marked GRANTED.
type PendingFunc func(jobID int64)

// Client drives one hetjob request's lifecycle: listener thread, submit,
// wait_ready, complete. One Client exists per allocation.
type Client struct {
	ctrl Controller
	log  logging.Logger

	listener *streaming.Listener

	mu          sync.Mutex
	cond        *sync.Cond
	state       State
	deadline    time.Time
	deadlineSet bool
	jobID       int64
	jobIDKnown  bool

	onJobComplete func(timeoutHit bool)

	submitPolicy *retry.SubmitPolicy
}

// New creates a Client and binds its back-channel listener to addr
// ("127.0.0.1:0" picks a free port). Call Serve before Submit so the
// listener is ready to receive the controller's pending/timeout/
// user-message/node-fail/job-complete notifications.
func New(ctrl Controller, addr string, log logging.Logger) (*Client, error) {
	ln, err := streaming.NewListener(addr)
	if err != nil {
		return nil, allocerrors.NewTransportError("cannot bind back-channel listener", err)
	}

	c := &Client{
		ctrl:         ctrl,
		log:          log,
		listener:     ln,
		submitPolicy: retry.NewSubmitPolicy(10, time.Second, 10*time.Second),
	}
	c.cond = sync.NewCond(&c.mu)

	ln.Handle(string(proto.MsgPending), c.handlePending)
	ln.Handle(string(proto.MsgTimeout), c.handleTimeout)
	ln.Handle(string(proto.MsgUserMessage), c.handleUserMessage)
	ln.Handle(string(proto.MsgNodeFail), c.handleNodeFail)
	ln.Handle(string(proto.MsgJobComplete), c.handleJobComplete)

	return c, nil
}

// Addr returns the back-channel listener's bound address, to embed as
// OtherPort in the submit request.
func (c *Client) Addr() string {
	return c.listener.Addr().String()
}

// Serve runs the listener's accept loop until ctx is canceled.
func (c *Client) Serve(ctx context.Context) error {
	return c.listener.Serve(ctx)
}

// Close stops the listener from accepting further connections.
func (c *Client) Close() error {
	return c.listener.Close()
}

// State returns the allocation's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnJobComplete registers the callback invoked when a job-complete
// notification arrives (§4.5's job-complete-during-child-life handling).
// Only one callback may be registered; later calls replace it.
func (c *Client) OnJobComplete(fn func(timeoutHit bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onJobComplete = fn
}

// Submit sends one hetjob request (first element's listener address
// copied onto every component) and blocks until the controller grants,
// denies, or the caller's context is canceled. pending is invoked with the
// job id after the submit RPC returns, before the state becomes GRANTED.
func (c *Client) Submit(ctx context.Context, rl option.RequestList, pending PendingFunc) ([]proto.AllocResponse, error) {
	if len(rl) == 0 {
		return nil, allocerrors.NewInternalError("empty request list", nil)
	}

	addr := c.Addr()
	reqs := make([]proto.SubmitRequest, len(rl))
	for i, d := range rl {
		reqs[i] = toSubmitRequest(d, i)
		reqs[i].OtherPort = portOf(addr)
	}

	c.mu.Lock()
	if c.state == Revoked {
		c.mu.Unlock()
		return nil, allocerrors.NewRevokedError("job-complete arrived before submit")
	}
	c.mu.Unlock()

	responses := make([]proto.AllocResponse, 0, len(reqs))
	for attempt := 0; ; attempt++ {
		resp, err := c.submitOnce(ctx, reqs)
		if err == nil {
			responses = resp
			break
		}

		allocErr := allocerrors.WrapError(err)
		if !allocErr.Retryable() || !c.submitPolicy.ShouldRetry(attempt) {
			return nil, allocErr
		}

		c.log.Warn("submit refused, retrying", "reason", allocErr.Reason, "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil, allocerrors.NewUserAbortError("canceled during submit retry")
		case <-time.After(c.submitPolicy.WaitTime(attempt)):
		}
	}

	if pending != nil {
		c.mu.Lock()
		known, id := c.jobIDKnown, c.jobID
		c.mu.Unlock()
		if known {
			pending(id)
		}
	}

	c.mu.Lock()
	if c.state != Revoked {
		c.state = Granted
	}
	c.cond.Broadcast()
	revoked := c.state == Revoked
	c.mu.Unlock()

	if revoked {
		return nil, allocerrors.NewRevokedError("job-complete arrived before grant was observed")
	}

	return responses, nil
}

func (c *Client) submitOnce(ctx context.Context, reqs []proto.SubmitRequest) ([]proto.AllocResponse, error) {
	out := make([]proto.AllocResponse, 0, len(reqs))
	for _, req := range reqs {
		resp, err := c.ctrl.Submit(ctx, req)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.jobID, c.jobIDKnown = resp.JobID, true
		c.mu.Unlock()
		out = append(out, resp)
	}
	return out, nil
}

// WaitGranted blocks until the allocation reaches GRANTED or REVOKED,
// matching §4.4's mutex/condvar gate: the supervisor must not fork before
// this returns Granted.
func (c *Client) WaitGranted(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == NotGranted {
		c.cond.Wait()
	}
	return c.state
}

// readinessBound is the wait_ready deadline formula: min(5*(suspend+resume
// timeout), 300s).
func readinessBound(suspendTimeout, resumeTimeout time.Duration) time.Duration {
	bound := 5 * (suspendTimeout + resumeTimeout)
	max := 300 * time.Second
	if bound > max {
		bound = max
	}
	return bound
}

// WaitReady polls the controller for node readiness, bounded by
// readinessBound. It naps 500µs before the first query; after each miss it
// waits 3s, doubling up to watch.MaxPollInterval (10s), so the interval is
// not fixed. Returns true when ready, false on fatal error, revocation, or
// bound exceeded.
func (c *Client) WaitReady(ctx context.Context, jobID int64, waitAllNodes bool, suspendTimeout, resumeTimeout time.Duration) bool {
	bound := readinessBound(suspendTimeout, resumeTimeout)
	first := true

	poller := &watch.Poller[proto.ReadinessResponse]{
		Fetch: func(ctx context.Context) (proto.ReadinessResponse, error) {
			if first {
				first = false
				time.Sleep(500 * time.Microsecond)
			}
			return c.ctrl.Readiness(ctx, proto.ReadinessRequest{JobID: jobID})
		},
		Done: func(r proto.ReadinessResponse) bool {
			if r.JobState == proto.JobStateFailed || r.JobState == proto.JobStateCancelled ||
				r.JobState == proto.JobStateNodeFail {
				return true
			}
			return r.NodesReady && (!waitAllNodes || r.AllNodesUp)
		},
		Interval: 3 * time.Second,
	}

	result, err := poller.Wait(ctx, bound)
	if err != nil {
		return false
	}
	if c.State() == Revoked {
		return false
	}
	switch result.JobState {
	case proto.JobStateFailed, proto.JobStateCancelled, proto.JobStateNodeFail:
		return false
	}
	return result.NodesReady && (!waitAllNodes || result.AllNodesUp)
}

// Complete calls the teardown RPC once per call, treating the idempotent
// ALREADY_DONE response as success (§4.4, §7).
func (c *Client) Complete(ctx context.Context, jobID int64, exitStatus int) error {
	_, err := c.ctrl.Complete(ctx, proto.CompleteRequest{JobID: jobID, ExitStatus: exitStatus})
	if err != nil {
		if allocerrors.IsAlreadyDone(err) {
			return nil
		}
		return err
	}
	return nil
}

func toSubmitRequest(d *option.Descriptor, index int) proto.SubmitRequest {
	return proto.SubmitRequest{
		ComponentIndex: index,
		JobName:        d.JobName,
		Partition:      d.Partition,
		Account:        d.Account,
		QOS:            d.QOS,
		MinNodes:       int32(d.MinNodes),
		MaxNodes:       int32(d.MaxNodes),
		NumTasks:       int32(d.NumTasks),
		CPUsPerTask:    int32(d.CPUsPerTask),
		MemPerNodeMB:   clampMem(d.MemPerNode),
		MemPerCPUMB:    clampMem(d.MemPerCPU),
		TimeLimitMin:   d.TimeLimit,
		RequiredNodes:  d.NodeList,
		ExcludedNodes:  d.ExcludeList,
		Immediate:      int32(d.Immediate),
	}
}

func clampMem(v int64) int64 {
	if v == option.NoVal {
		return 0
	}
	return v
}

// portOf extracts the numeric port from a "host:port" address string,
// returning 0 if it cannot be parsed (the submit request then carries no
// back-channel port, which the controller treats as "no notifications").
func portOf(addr string) int {
	i := len(addr) - 1
	for i >= 0 && addr[i] != ':' {
		i--
	}
	if i < 0 || i+1 >= len(addr) {
		return 0
	}
	port := 0
	for _, r := range addr[i+1:] {
		if r < '0' || r > '9' {
			return 0
		}
		port = port*10 + int(r-'0')
	}
	return port
}
