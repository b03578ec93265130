// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package option implements the allocation-request descriptor (§3) and its
// three-pass fill: defaults, environment overlay, argv overlay, followed
// by cross-field inference and validation (§4.2).
package option

import "github.com/hpcsched/alloc/internal/valparse"

// NoVal is the "unset" sentinel for numeric fields that are otherwise
// non-negative, matching the controller's own NO_VAL convention.
const NoVal int64 = -1

// BellPolicy selects when the terminal bell fires on grant (§7).
type BellPolicy string

const (
	BellAlways      BellPolicy = "always"
	BellNever       BellPolicy = "never"
	BellAfterDelay  BellPolicy = "after-delay"
)

// Descriptor is one hetjob component's allocation request, populated in
// three passes (defaults, env, argv) and frozen at submit (§3).
type Descriptor struct {
	// Identity
	UID, GID       int
	EffectiveUID   int64 // NoVal unless --uid given
	EffectiveGID   int64
	UserName       string
	SubmitHost     string
	SubmitDir      string

	// Sizing
	NumTasks          int64
	NumTasksSet       bool
	MinNodes, MaxNodes int64
	MinNodesSet       bool
	CPUsPerTask       int64
	TasksPerNode      int64
	TasksPerSocket    int64
	TasksPerCore      int64
	SocketsPerNode    int64
	CoresPerSocket    int64
	ThreadsPerCore    int64
	MinCPUsPerNode    int64

	// Memory/storage (all MB)
	MemPerNode int64
	MemPerCPU  int64
	TmpDiskMB  int64

	// Scheduling
	Partition   string
	QOS         string
	Account     string
	Reservation string
	WCKey       string
	Dependency  string
	Priority    int64
	Nice        int64
	BeginTime   string
	Deadline    string
	TimeLimit   int64 // minutes, valparse.TimeInfinite for none
	TimeMin     int64
	Immediate   int64 // seconds; 0 means not requested
	Hold        bool
	Requeue     bool

	// Topology
	Geometry      []int
	ConnType      []string
	NoRotate      bool
	Reboot        bool

	// Placement
	NodeList      string
	ExcludeList   string
	Contiguous    bool
	Constraint    string
	Licenses      string
	CoreSpec      int64
	ThreadSpec    bool
	Network       string
	GenericResources string // raw tres string after prefix formatting

	// Distribution
	Distribution valparse.Distribution

	// Command
	JobName    string
	Command    []string
	Chdir      string
	ExportEnv  []string
	SpankEnv   map[string]string

	// I/O
	Bell          BellPolicy
	KillSignal    valparse.Signal
	NoShell       bool
	WaitAllNodes  bool
	WaitAllNodesSet bool

	// Flags & diagnostics
	Quiet      bool
	Verbose    int
	Exclusive  bool
	Overcommit bool
	Hint       string
	MemBind    string
	CpuBind    string
	Profile    string

	// OtherPort is filled in by the allocation client once the listener is
	// bound; it is not part of the user-facing option surface.
	OtherPort int
}

// RequestList is the canonical data structure: an ordered list of
// descriptors, one per hetjob component. A plain (non-hetjob) allocation
// is "a list of one" (§9 design note).
type RequestList []*Descriptor

// JobName returns the effective job name for the list: the last
// component's name (§3 invariant 8).
func (rl RequestList) JobName() string {
	if len(rl) == 0 {
		return ""
	}
	return rl[len(rl)-1].JobName
}
