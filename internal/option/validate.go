// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package option

import (
	"path/filepath"

	"github.com/hpcsched/alloc/internal/hostlist"
	"github.com/hpcsched/alloc/internal/valparse"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// Finalize runs the cross-field inference and invariant checks that follow
// the three-pass fill (§4.2, §3). It mutates d in place and returns the
// first invariant violation encountered, if any.
func Finalize(d *Descriptor) error {
	if err := resolveNodeList(d); err != nil {
		return err
	}
	inferTaskCounts(d)
	inferMemory(d)

	if err := checkNodeRange(d); err != nil {
		return err
	}
	if err := checkMinCPUsPerNode(d); err != nil {
		return err
	}
	if err := checkMemoryReconciliation(d); err != nil {
		return err
	}
	if err := checkQuietVerbose(d); err != nil {
		return err
	}
	if err := checkNice(d); err != nil {
		return err
	}
	if err := checkPlaneDistribution(d); err != nil {
		return err
	}

	deriveJobName(d)

	return nil
}

// resolveNodeList recognises a node-list argument containing "/" as a
// hostfile path (invariant 7). It does not read or expand the file: the
// path is left in NodeList unchanged.
func resolveNodeList(d *Descriptor) error {
	if d.NodeList == "" || !hostlist.IsHostfilePath(d.NodeList) {
		return nil
	}
	// No file I/O happens here; the hostfile path stays as given.
	return nil
}

// niceOffset bounds the signed nice value (invariant 5), matching the
// controller's own NICE_OFFSET convention.
const niceOffset = 10000

// inferTaskCounts fills ntasks and the derived cpu-bind/cpus-per-task
// fields the §4.2 cross-field inference describes, applied in the order
// the spec lists them:
//
//  1. nodes set, task-count unset: task-count defaults to min-nodes times
//     any of {sockets-per-node, cores-per-socket, threads-per-core} that
//     were set, and is marked set if any multiplier applied.
//  2. task-count set, nodes unset, task-count < min-nodes: min-nodes
//     shrinks to task-count (there's no point reserving more nodes than
//     there are tasks to spread across them).
//  3. min-cpus-per-node > tasks-per-node: cpus-per-task becomes the
//     integer quotient (this package has no logger, so a remainder is
//     dropped without being logged).
//  4. ntasks-per-core set, threads-per-core unset: threads-per-core takes
//     ntasks-per-core's value and cpu-bind defaults to "cores".
//  5. ntasks-per-socket set, cores-per-socket unset: cores-per-socket
//     takes ntasks-per-socket's value and cpu-bind defaults to "sockets".
func inferTaskCounts(d *Descriptor) {
	if d.MinNodesSet && !d.NumTasksSet {
		multiplier := int64(1)
		applied := false
		for _, v := range []int64{d.SocketsPerNode, d.CoresPerSocket, d.ThreadsPerCore} {
			if v != NoVal {
				multiplier *= v
				applied = true
			}
		}
		d.NumTasks = d.MinNodes * multiplier
		if applied {
			d.NumTasksSet = true
		}
	}

	if d.NumTasksSet && !d.MinNodesSet && d.NumTasks < d.MinNodes {
		d.MinNodes = d.NumTasks
		if d.MinNodes > d.MaxNodes {
			d.MaxNodes = d.MinNodes
		}
	}

	if d.MinCPUsPerNode != NoVal && d.TasksPerNode != NoVal && d.MinCPUsPerNode > d.TasksPerNode {
		d.CPUsPerTask = d.MinCPUsPerNode / d.TasksPerNode
	}

	if d.TasksPerCore != NoVal && d.ThreadsPerCore == NoVal {
		d.ThreadsPerCore = d.TasksPerCore
		d.CpuBind = "cores"
	}

	if d.TasksPerSocket != NoVal && d.CoresPerSocket == NoVal {
		d.CoresPerSocket = d.TasksPerSocket
		d.CpuBind = "sockets"
	}
}

// inferMemory reconciles mem-per-node and mem-per-cpu: when both are set,
// mem-per-node takes priority and mem-per-cpu is cleared to avoid a
// double-counted request. When only one of the pair is set, nothing is
// derived for the other.
func inferMemory(d *Descriptor) {
	if d.MemPerNode != NoVal && d.MemPerCPU != NoVal {
		d.MemPerCPU = NoVal
	}
}

// checkNodeRange implements invariant 1: min-nodes must not exceed
// max-nodes.
func checkNodeRange(d *Descriptor) error {
	if d.MinNodes > d.MaxNodes {
		return allocerrors.NewValidationError("nodes", "minimum node count exceeds maximum")
	}
	return nil
}

// checkMinCPUsPerNode implements invariant 2: an explicit min-cpus-per-node
// must be at least cpus-per-task, since every task needs that many CPUs on
// whichever node it lands on.
func checkMinCPUsPerNode(d *Descriptor) error {
	if d.MinCPUsPerNode != NoVal && d.MinCPUsPerNode < d.CPUsPerTask {
		return allocerrors.NewValidationError("min-cpus-per-node",
			"must be at least cpus-per-task")
	}
	return nil
}

// checkMemoryReconciliation implements invariant 3: mem-per-node and
// mem-per-cpu are mutually exclusive on the wire. inferMemory already
// collapses the conflict before this runs.
func checkMemoryReconciliation(d *Descriptor) error {
	if d.MemPerNode != NoVal && d.MemPerCPU != NoVal {
		return allocerrors.NewValidationError("memory", "mem-per-node and mem-per-cpu are mutually exclusive")
	}
	return nil
}

// checkQuietVerbose implements invariant 4: quiet and verbose are mutually
// exclusive.
func checkQuietVerbose(d *Descriptor) error {
	if d.Quiet && d.Verbose > 0 {
		return allocerrors.NewValidationError("verbosity", "--quiet and --verbose are mutually exclusive")
	}
	return nil
}

// checkNice implements invariant 5: nice must fall within
// (-niceOffset, +niceOffset), and a negative value (raising priority)
// requires an effective uid of 0; unprivileged callers may only lower
// their own priority.
func checkNice(d *Descriptor) error {
	if d.Nice <= -niceOffset || d.Nice >= niceOffset {
		return allocerrors.NewValidationError("nice", "value out of range")
	}
	if d.Nice < 0 && d.EffectiveUID != 0 {
		return allocerrors.NewValidationError("nice", "negative nice value requires privilege")
	}
	return nil
}

// checkPlaneDistribution implements invariant 6 via valparse's shared
// layout check, applied only when a plane distribution was requested.
func checkPlaneDistribution(d *Descriptor) error {
	if d.Distribution.Node != valparse.DistPlane {
		return nil
	}
	return valparse.CheckPlaneLayout(d.MaxNodes, d.NumTasks, int64(d.Distribution.PlaneSize))
}

// deriveJobName implements the "no job name given" fallback: the basename
// of argv[0] of the command, matching the controller's own default.
func deriveJobName(d *Descriptor) {
	if d.JobName != "" || len(d.Command) == 0 {
		return
	}
	d.JobName = filepath.Base(d.Command[0])
}

// FinalizeList runs Finalize over every component of a hetjob request and
// then applies invariant 8 (job-name inheritance) across the whole list.
func FinalizeList(rl RequestList) error {
	for _, d := range rl {
		if err := Finalize(d); err != nil {
			return err
		}
	}
	if len(rl) == 0 {
		return nil
	}
	last := rl[len(rl)-1].JobName
	for _, d := range rl {
		if d.JobName == "" {
			d.JobName = last
		}
	}
	return nil
}
