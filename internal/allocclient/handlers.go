// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package allocclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hpcsched/alloc/internal/proto"
	"github.com/hpcsched/alloc/pkg/streaming"
)

func (c *Client) handlePending(_ context.Context, env streaming.Envelope) error {
	var msg proto.PendingMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.jobID, c.jobIDKnown = msg.JobID, true
	c.mu.Unlock()
	c.log.Info("job id assigned", "job_id", msg.JobID)
	return nil
}

// handleTimeout records the deadline and logs only when it changes from
// what was last observed (§4.4: "logs on change only").
func (c *Client) handleTimeout(_ context.Context, env streaming.Envelope) error {
	var msg proto.TimeoutMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	changed := !c.deadlineSet || !c.deadline.Equal(msg.Deadline)
	c.deadline, c.deadlineSet = msg.Deadline, true
	c.mu.Unlock()
	if changed {
		c.log.Info("job time limit", "job_id", msg.JobID, "deadline", msg.Deadline)
	}
	return nil
}

func (c *Client) handleUserMessage(_ context.Context, env streaming.Envelope) error {
	var msg proto.UserMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	c.log.Info(msg.Text, "job_id", msg.JobID)
	return nil
}

func (c *Client) handleNodeFail(_ context.Context, env streaming.Envelope) error {
	var msg proto.NodeFailMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	c.log.Warn("node failure in allocation", "job_id", msg.JobID, "node", msg.Node)
	return nil
}

// handleJobComplete transitions the allocation to REVOKED and invokes the
// registered kill-child callback, matching §4.5's handling of a
// job-complete notification arriving during the child's life: log
// "revoked" or "time-limit exceeded" depending on whether the previously
// recorded deadline has already passed, then let the supervisor decide how
// to signal the child.
func (c *Client) handleJobComplete(_ context.Context, env streaming.Envelope) error {
	var msg proto.JobCompleteMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}

	c.mu.Lock()
	timeoutHit := msg.TimeoutHit || (c.deadlineSet && c.deadline.Before(time.Now()))
	c.state = Revoked
	cb := c.onJobComplete
	c.cond.Broadcast()
	c.mu.Unlock()

	if timeoutHit {
		c.log.Info("time-limit exceeded", "job_id", msg.JobID)
	} else {
		c.log.Info("allocation revoked", "job_id", msg.JobID)
	}

	if cb != nil {
		cb(timeoutHit)
	}
	return nil
}
