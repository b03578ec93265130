// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package proto defines the wire messages exchanged with the controller:
// the submit/wait-ready/complete request-response envelopes and the five
// back-channel message kinds dispatched on the listener thread (§4.4).
package proto

import "time"

// JobState is the compact subset of controller job states this protocol
// needs to observe, trimmed from the full administrative state machine.
type JobState string

const (
	JobStatePending   JobState = "PENDING"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateCancelled JobState = "CANCELLED"
	JobStateFailed    JobState = "FAILED"
	JobStateTimeout   JobState = "TIMEOUT"
	JobStateNodeFail  JobState = "NODE_FAIL"
)

// NodeState is the readiness-relevant subset of node state.
type NodeState string

const (
	NodeStateUnknown NodeState = "UNKNOWN"
	NodeStateIdle    NodeState = "IDLE"
	NodeStateAlloc   NodeState = "ALLOCATED"
	NodeStateMixed   NodeState = "MIXED"
	NodeStateDown    NodeState = "DOWN"
)

// TRES is a generic trackable-resource tuple, reused for tres-per-{job,
// node,socket,task}, mem-per-tres and cpus-per-tres.
type TRES struct {
	Type  string // e.g. "gpu", "cpu", "mem"
	Name  string // optional sub-type, e.g. "gpu:a100"
	Count int64
}

// SubmitRequest is one hetjob component as sent to the controller. Field
// names mirror the allocation request descriptor (§3) but only carry what
// the wire protocol needs; the full descriptor lives in internal/option.
type SubmitRequest struct {
	ComponentIndex int    `json:"component_index"`
	JobName        string `json:"job_name"`
	Partition      string `json:"partition,omitempty"`
	Account        string `json:"account,omitempty"`
	QOS            string `json:"qos,omitempty"`
	MinNodes       int32  `json:"min_nodes"`
	MaxNodes       int32  `json:"max_nodes"`
	NumTasks       int32  `json:"num_tasks"`
	CPUsPerTask    int32  `json:"cpus_per_task"`
	MemPerNodeMB   int64  `json:"mem_per_node_mb,omitempty"`
	MemPerCPUMB    int64  `json:"mem_per_cpu_mb,omitempty"`
	TimeLimitMin   int64  `json:"time_limit_min"`
	RequiredNodes  string `json:"required_nodes,omitempty"`
	ExcludedNodes  string `json:"excluded_nodes,omitempty"`
	Immediate      int32  `json:"immediate_secs,omitempty"`
	OtherPort      int    `json:"other_port,omitempty"` // set on every component, the first included
}

// AllocResponse is the controller's grant response for one hetjob component.
type AllocResponse struct {
	JobID         int64    `json:"job_id"`
	NodeList      string   `json:"node_list"`
	NumNodes      int32    `json:"num_nodes"`
	CPUsPerNode   []int32  `json:"cpus_per_node"` // already expanded from the RLE wire form
	AliasList     string   `json:"alias_list,omitempty"`
	OtherPort     int      `json:"other_port"`
	GrantedAt     time.Time `json:"granted_at"`
}

// CompleteRequest is the teardown RPC the supervisor or listener issues
// exactly once per job on every exit path (§4.4, §7).
type CompleteRequest struct {
	JobID      int64 `json:"job_id"`
	ExitStatus int   `json:"exit_status"` // NO_VAL-equivalent: -1 means "unknown, controller decides"
}

// CompleteResponse reports success or the idempotent ALREADY_DONE case.
type CompleteResponse struct {
	AlreadyDone bool `json:"already_done"`
}

// ReadinessRequest polls whether a job's nodes have finished prolog setup.
type ReadinessRequest struct {
	JobID int64 `json:"job_id"`
}

// ReadinessResponse reports per-node readiness plus the aggregate job state.
type ReadinessResponse struct {
	JobState    JobState `json:"job_state"`
	NodesReady  bool     `json:"nodes_ready"`  // true iff every required node's prolog bit is set
	AllNodesUp  bool     `json:"all_nodes_up"` // wait-all-nodes criterion
}

// MessageKind names the five back-channel message kinds the listener
// thread dispatches (§4.4).
type MessageKind string

const (
	MsgPending     MessageKind = "pending"
	MsgTimeout     MessageKind = "timeout"
	MsgUserMessage MessageKind = "user-message"
	MsgNodeFail    MessageKind = "node-fail"
	MsgJobComplete MessageKind = "job-complete"
)

// PendingMessage announces that a submitted job id is now known while the
// allocation is still queued.
type PendingMessage struct {
	JobID int64 `json:"job_id"`
}

// TimeoutMessage records a deadline; the listener only logs this when the
// deadline value actually changes from what was last observed.
type TimeoutMessage struct {
	JobID    int64     `json:"job_id"`
	Deadline time.Time `json:"deadline"`
}

// UserMessage is free text the controller wants echoed to the user.
type UserMessage struct {
	JobID int64  `json:"job_id"`
	Text  string `json:"text"`
}

// NodeFailMessage names a node that failed within the allocation.
type NodeFailMessage struct {
	JobID int64  `json:"job_id"`
	Node  string `json:"node"`
}

// JobCompleteMessage is the asynchronous revocation notice: the allocation
// is gone, whether by normal completion, cancellation, preemption, or
// time-limit expiry.
type JobCompleteMessage struct {
	JobID       int64     `json:"job_id"`
	TimeoutHit  bool      `json:"timeout_hit"`
	DeadlineWas time.Time `json:"deadline_was,omitempty"`
}
