// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package option

import (
	"strconv"
	"strings"

	"github.com/hpcsched/alloc/internal/valparse"
	"github.com/hpcsched/alloc/pkg/logging"
)

// envSetter applies one recognised SALLOC_*/SLURM_* environment variable
// to the descriptor. A non-nil error means the value was malformed; per
// §7 this is logged and the setter is skipped, never fatal.
type envSetter func(d *Descriptor, value string) error

// envTable maps each recognised variable to its typed setter, grouped by
// the classes named in §4.2 pass 2: string, int, boolean, debug, nodes,
// conn-type, no-rotate, geometry, bell, no-bell, immediate,
// exclusive, overcommit, hint, mem-bind, wckey, signal, kill-cmd,
// time-val, profile.
var envTable = map[string]envSetter{
	"SALLOC_ACCOUNT":      stringSetter(func(d *Descriptor, v string) { d.Account = v }),
	"SALLOC_PARTITION":    stringSetter(func(d *Descriptor, v string) { d.Partition = v }),
	"SALLOC_QOS":          stringSetter(func(d *Descriptor, v string) { d.QOS = v }),
	"SALLOC_RESERVATION":  stringSetter(func(d *Descriptor, v string) { d.Reservation = v }),
	"SALLOC_DEPENDENCY":   stringSetter(func(d *Descriptor, v string) { d.Dependency = v }),
	"SALLOC_CONSTRAINT":   stringSetter(func(d *Descriptor, v string) { d.Constraint = v }),
	"SALLOC_LICENSES":     stringSetter(func(d *Descriptor, v string) { d.Licenses = v }),
	"SALLOC_NETWORK":      stringSetter(func(d *Descriptor, v string) { d.Network = v }),
	"SALLOC_GRES":         stringSetter(func(d *Descriptor, v string) { d.GenericResources = v }),
	"SALLOC_JOB_NAME":     stringSetter(func(d *Descriptor, v string) { d.JobName = v }),
	"SLURM_WCKEY":         stringSetter(func(d *Descriptor, v string) { d.WCKey = v }),

	"SALLOC_NTASKS":            intSetter(func(d *Descriptor, n int64) { d.NumTasks = n; d.NumTasksSet = true }),
	"SALLOC_CPUS_PER_TASK":     intSetter(func(d *Descriptor, n int64) { d.CPUsPerTask = n }),
	"SALLOC_NTASKS_PER_NODE":   intSetter(func(d *Descriptor, n int64) { d.TasksPerNode = n }),
	"SALLOC_NTASKS_PER_SOCKET": intSetter(func(d *Descriptor, n int64) { d.TasksPerSocket = n }),
	"SALLOC_NTASKS_PER_CORE":   intSetter(func(d *Descriptor, n int64) { d.TasksPerCore = n }),
	"SALLOC_SOCKETS_PER_NODE":  intSetter(func(d *Descriptor, n int64) { d.SocketsPerNode = n }),
	"SALLOC_CORES_PER_SOCKET":  intSetter(func(d *Descriptor, n int64) { d.CoresPerSocket = n }),
	"SALLOC_THREADS_PER_CORE":  intSetter(func(d *Descriptor, n int64) { d.ThreadsPerCore = n }),
	"SALLOC_MEM_PER_CPU":       intSetter(func(d *Descriptor, n int64) { d.MemPerCPU = n }),
	"SALLOC_MEM_PER_NODE":      intSetter(func(d *Descriptor, n int64) { d.MemPerNode = n }),
	"SALLOC_PRIORITY":          intSetter(func(d *Descriptor, n int64) { d.Priority = n }),
	"SALLOC_CORE_SPEC":         intSetter(func(d *Descriptor, n int64) { d.CoreSpec = n }),

	"SALLOC_HOLD":       boolSetter(func(d *Descriptor, b bool) { d.Hold = b }),
	"SALLOC_REQUEUE":    boolSetter(func(d *Descriptor, b bool) { d.Requeue = b }),
	"SALLOC_CONTIGUOUS": boolSetter(func(d *Descriptor, b bool) { d.Contiguous = b }),

	"SALLOC_DEBUG": func(d *Descriptor, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		d.Verbose = n
		return nil
	},

	"SALLOC_NODES": func(d *Descriptor, v string) error {
		nc, err := valparse.ParseNodeCount(v)
		if err != nil {
			return err
		}
		d.MinNodes, d.MaxNodes = nc.Min, nc.Max
		d.MinNodesSet = true
		return nil
	},

	"SALLOC_CONN_TYPE": func(d *Descriptor, v string) error {
		d.ConnType = strings.Split(v, ",")
		return nil
	},

	"SALLOC_NO_ROTATE": func(d *Descriptor, v string) error {
		d.NoRotate = isTruthy(v)
		return nil
	},

	"SALLOC_GEOMETRY": func(d *Descriptor, v string) error {
		g, err := valparse.ParseGeometry(v)
		if err != nil {
			return err
		}
		d.Geometry = g
		return nil
	},

	"SALLOC_BELL": func(d *Descriptor, v string) error {
		d.Bell = BellAlways
		return nil
	},
	"SALLOC_NO_BELL": func(d *Descriptor, v string) error {
		d.Bell = BellNever
		return nil
	},

	"SALLOC_IMMEDIATE": func(d *Descriptor, v string) error {
		if v == "" {
			d.Immediate = 1
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		d.Immediate = n
		return nil
	},

	"SALLOC_EXCLUSIVE": func(d *Descriptor, v string) error {
		d.Exclusive = true
		return nil
	},
	"SALLOC_OVERCOMMIT": func(d *Descriptor, v string) error {
		d.Overcommit = true
		return nil
	},
	"SALLOC_HINT": stringSetter(func(d *Descriptor, v string) { d.Hint = v }),
	"SLURM_HINT":  stringSetter(func(d *Descriptor, v string) { d.Hint = v }),

	"SALLOC_MEM_BIND": stringSetter(func(d *Descriptor, v string) { d.MemBind = v }),

	"SALLOC_SIGNAL": func(d *Descriptor, v string) error {
		sig, err := valparse.ParseSignal(v)
		if err != nil {
			return err
		}
		d.KillSignal = sig
		return nil
	},

	"SALLOC_KILL_CMD": func(d *Descriptor, v string) error {
		sig, err := valparse.ParseSignal(v)
		if err != nil {
			return err
		}
		d.KillSignal = sig
		return nil
	},

	"SALLOC_TIMELIMIT": func(d *Descriptor, v string) error {
		mins, err := valparse.ParseTime(v)
		if err != nil {
			return err
		}
		resolved, err := valparse.ResolveTimeLimit(mins)
		if err != nil {
			return err
		}
		d.TimeLimit = resolved
		return nil
	},

	"SALLOC_PROFILE": stringSetter(func(d *Descriptor, v string) { d.Profile = v }),

	"SALLOC_WAIT_ALL_NODES": func(d *Descriptor, v string) error {
		d.WaitAllNodes = isTruthy(v)
		d.WaitAllNodesSet = true
		return nil
	},

	"SLURM_HOSTFILE": stringSetter(func(d *Descriptor, v string) { d.NodeList = v }),
}

func stringSetter(fn func(*Descriptor, string)) envSetter {
	return func(d *Descriptor, v string) error { fn(d, v); return nil }
}

func intSetter(fn func(*Descriptor, int64)) envSetter {
	return func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		fn(d, n)
		return nil
	}
}

func boolSetter(fn func(*Descriptor, bool)) envSetter {
	return func(d *Descriptor, v string) error { fn(d, isTruthy(v)); return nil }
}

// isTruthy implements the boolean class: set if present with an
// empty/missing value, or "yes", or a non-zero number.
func isTruthy(v string) bool {
	if v == "" {
		return true
	}
	if strings.EqualFold(v, "yes") {
		return true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n != 0
	}
	return false
}

// ApplyEnv is §4.2 pass 2: for every recognised variable present in
// environ, apply its typed setter. Setter failures are logged and
// skipped, never fatal.
func ApplyEnv(d *Descriptor, environ []string, log logging.Logger) {
	for _, kv := range environ {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		key, value := kv[:eq], kv[eq+1:]
		setter, ok := envTable[key]
		if !ok {
			continue
		}
		if err := setter(d, value); err != nil {
			if log != nil {
				log.Warn("ignoring malformed environment variable", "var", key, "value", value, "error", err)
			}
		}
	}
}
