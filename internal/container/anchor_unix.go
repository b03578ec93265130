// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// anchorRequest is one call-response RPC sent over a container's unix
// socket, mirroring streaming.Envelope's kind/payload shape but for a
// request that expects a single reply rather than a dispatched stream.
type anchorRequest struct {
	Verb string          `json:"verb"`
	ID   string          `json:"id"`
	Args json.RawMessage `json:"args,omitempty"`
}

type anchorReply struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	JobID  int64  `json:"job_id,omitempty"`
	StepID int64  `json:"step_id,omitempty"`
	Status string `json:"status,omitempty"`
	Pid    int    `json:"pid,omitempty"`
}

// unixAnchor is the default Anchor: each call dials the container's
// per-container unix socket fresh, sends one request, and reads one
// reply. Short-lived connections match §4.6's "multiple clients may
// race" note; there is no persistent session to go stale.
type unixAnchor struct {
	socketPath string
	dialTO     time.Duration
}

// NewUnixAnchorDialer returns the anchorDialer NewStore expects: it
// derives each container's socket path from the deterministic
// keyed-hash scheme and returns an Anchor bound to it.
func NewUnixAnchorDialer(runtimeRoot, user string, key SocketHashKey) func(c *Container) (Anchor, error) {
	return func(c *Container) (Anchor, error) {
		path, err := SocketPath(runtimeRoot, user, c.ID, key)
		if err != nil {
			return nil, err
		}
		return &unixAnchor{socketPath: path, dialTO: 5 * time.Second}, nil
	}
}

func (a *unixAnchor) call(ctx context.Context, req anchorRequest) (anchorReply, error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, a.dialTO)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "unix", a.socketPath)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
			return anchorReply{}, allocerrors.NewTransportError("anchor gone", err)
		}
		return anchorReply{}, allocerrors.NewTransportError("cannot reach anchor socket", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return anchorReply{}, allocerrors.NewTransportError("cannot send anchor request", err)
	}

	var reply anchorReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return anchorReply{}, allocerrors.NewTransportError("cannot read anchor response", err)
	}
	if !reply.OK {
		return anchorReply{}, allocerrors.NewInternalError(fmt.Sprintf("anchor refused %s: %s", req.Verb, reply.Error), nil)
	}
	return reply, nil
}

func (a *unixAnchor) Start(ctx context.Context, id string) (jobID, stepID int64, err error) {
	reply, err := a.call(ctx, anchorRequest{Verb: "start", ID: id})
	if err != nil {
		return 0, 0, err
	}
	return reply.JobID, reply.StepID, nil
}

func (a *unixAnchor) State(ctx context.Context, id string) (status string, pid int, err error) {
	reply, err := a.call(ctx, anchorRequest{Verb: "state", ID: id})
	if err != nil {
		return "", 0, err
	}
	return reply.Status, reply.Pid, nil
}

func (a *unixAnchor) Kill(ctx context.Context, id string, sig syscall.Signal) error {
	args, err := json.Marshal(map[string]int{"signal": int(sig)})
	if err != nil {
		return allocerrors.NewInternalError("cannot encode kill signal", err)
	}
	_, err = a.call(ctx, anchorRequest{Verb: "kill", ID: id, Args: args})
	return err
}

func (a *unixAnchor) Delete(ctx context.Context, id string) error {
	_, err := a.call(ctx, anchorRequest{Verb: "delete", ID: id})
	return err
}
