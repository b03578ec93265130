// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package option

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hpcsched/alloc/internal/valparse"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// argFlag describes one recognised command-line option: its long name,
// optional short name, whether it takes a value, and the setter that
// applies a parsed value to the descriptor. Argv setters are fatal on
// parse failure, unlike the env overlay (§7).
type argFlag struct {
	long      string
	short     byte // 0 if none
	takesArg  bool
	optionalArg bool // value may be omitted (e.g. --immediate[=secs])
	apply     func(d *Descriptor, value string) error
}

func str(fn func(*Descriptor, string)) func(*Descriptor, string) error {
	return func(d *Descriptor, v string) error { fn(d, v); return nil }
}

func flagFlag(fn func(*Descriptor)) func(*Descriptor, string) error {
	return func(d *Descriptor, _ string) error { fn(d); return nil }
}

var argFlags = []argFlag{
	{long: "account", short: 'A', takesArg: true, apply: str(func(d *Descriptor, v string) { d.Account = v })},
	{long: "cpus-per-task", short: 'c', takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --cpus-per-task")
		}
		d.CPUsPerTask = n
		return nil
	}},
	{long: "constraint", short: 'C', takesArg: true, apply: str(func(d *Descriptor, v string) { d.Constraint = v })},
	{long: "dependency", short: 'd', takesArg: true, apply: str(func(d *Descriptor, v string) { d.Dependency = v })},
	{long: "chdir", short: 'D', takesArg: true, apply: str(func(d *Descriptor, v string) { d.Chdir = v })},
	{long: "nodefile", short: 'F', takesArg: true, apply: str(func(d *Descriptor, v string) { d.NodeList = v })},
	{long: "geometry", short: 'g', takesArg: true, apply: func(d *Descriptor, v string) error {
		g, err := valparse.ParseGeometry(v)
		if err != nil {
			return err
		}
		d.Geometry = g
		return nil
	}},
	{long: "hold", short: 'H', apply: flagFlag(func(d *Descriptor) { d.Hold = true })},
	{long: "immediate", short: 'I', takesArg: true, optionalArg: true, apply: func(d *Descriptor, v string) error {
		if v == "" {
			d.Immediate = 1
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --immediate")
		}
		d.Immediate = n
		return nil
	}},
	{long: "job-name", short: 'J', takesArg: true, apply: str(func(d *Descriptor, v string) { d.JobName = v })},
	{long: "licenses", short: 'L', takesArg: true, apply: str(func(d *Descriptor, v string) { d.Licenses = v })},
	{long: "distribution", short: 'm', takesArg: true, apply: func(d *Descriptor, v string) error {
		dist, err := valparse.ParseDistribution(v)
		if err != nil {
			return err
		}
		d.Distribution = dist
		return nil
	}},
	{long: "ntasks", short: 'n', takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --ntasks")
		}
		d.NumTasks, d.NumTasksSet = n, true
		return nil
	}},
	{long: "nodes", short: 'N', takesArg: true, apply: func(d *Descriptor, v string) error {
		nc, err := valparse.ParseNodeCount(v)
		if err != nil {
			return err
		}
		d.MinNodes, d.MaxNodes = nc.Min, nc.Max
		d.MinNodesSet = true
		return nil
	}},
	{long: "overcommit", short: 'O', apply: flagFlag(func(d *Descriptor) { d.Overcommit = true })},
	{long: "partition", short: 'p', takesArg: true, apply: str(func(d *Descriptor, v string) { d.Partition = v })},
	{long: "quiet", short: 'Q', apply: flagFlag(func(d *Descriptor) { d.Quiet = true })},
	{long: "no-rotate", short: 'R', apply: flagFlag(func(d *Descriptor) { d.NoRotate = true })},
	{long: "core-spec", short: 'S', takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --core-spec")
		}
		d.CoreSpec = n
		return nil
	}},
	{long: "time", short: 't', takesArg: true, apply: func(d *Descriptor, v string) error {
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
	}},
	{long: "verbose", short: 'v', apply: flagFlag(func(d *Descriptor) { d.Verbose++ })},
	{long: "nodelist", short: 'w', takesArg: true, apply: str(func(d *Descriptor, v string) { d.NodeList = v })},
	{long: "exclude", short: 'x', takesArg: true, apply: str(func(d *Descriptor, v string) { d.ExcludeList = v })},

	{long: "begin", takesArg: true, apply: str(func(d *Descriptor, v string) { d.BeginTime = v })},
	{long: "comment", takesArg: true, apply: str(func(d *Descriptor, v string) {})},
	{long: "conn-type", takesArg: true, apply: str(func(d *Descriptor, v string) { d.ConnType = strings.Split(v, ",") })},
	{long: "contiguous", apply: flagFlag(func(d *Descriptor) { d.Contiguous = true })},
	{long: "cores-per-socket", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --cores-per-socket")
		}
		d.CoresPerSocket = n
		return nil
	}},
	{long: "deadline", takesArg: true, apply: str(func(d *Descriptor, v string) { d.Deadline = v })},
	{long: "exclusive", apply: flagFlag(func(d *Descriptor) { d.Exclusive = true })},
	{long: "gres", takesArg: true, apply: str(func(d *Descriptor, v string) { d.GenericResources = v })},
	{long: "hint", takesArg: true, apply: str(func(d *Descriptor, v string) { d.Hint = v })},
	{long: "jobid", takesArg: true, apply: str(func(d *Descriptor, v string) {})},
	{long: "mail-type", takesArg: true, apply: str(func(d *Descriptor, v string) {})},
	{long: "mail-user", takesArg: true, apply: str(func(d *Descriptor, v string) {})},
	{long: "mem", takesArg: true, apply: func(d *Descriptor, v string) error {
		mb, err := valparse.ParseMemory(v, false)
		if err != nil {
			return err
		}
		d.MemPerNode = mb
		return nil
	}},
	{long: "mem-bind", takesArg: true, apply: str(func(d *Descriptor, v string) { d.MemBind = v })},
	{long: "mem-per-cpu", takesArg: true, apply: func(d *Descriptor, v string) error {
		mb, err := valparse.ParseMemory(v, false)
		if err != nil {
			return err
		}
		d.MemPerCPU = mb
		return nil
	}},
	{long: "network", takesArg: true, apply: str(func(d *Descriptor, v string) { d.Network = v })},
	{long: "nice", takesArg: true, optionalArg: true, apply: func(d *Descriptor, v string) error {
		if v == "" {
			d.Nice = 100
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --nice")
		}
		d.Nice = n
		return nil
	}},
	{long: "no-shell", apply: flagFlag(func(d *Descriptor) { d.NoShell = true })},
	{long: "ntasks-per-core", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --ntasks-per-core")
		}
		d.TasksPerCore = n
		return nil
	}},
	{long: "ntasks-per-node", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --ntasks-per-node")
		}
		d.TasksPerNode = n
		return nil
	}},
	{long: "ntasks-per-socket", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --ntasks-per-socket")
		}
		d.TasksPerSocket = n
		return nil
	}},
	{long: "priority", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --priority")
		}
		d.Priority = n
		return nil
	}},
	{long: "profile", takesArg: true, apply: str(func(d *Descriptor, v string) { d.Profile = v })},
	{long: "qos", takesArg: true, apply: str(func(d *Descriptor, v string) { d.QOS = v })},
	{long: "reboot", apply: flagFlag(func(d *Descriptor) { d.Reboot = true })},
	{long: "reservation", takesArg: true, apply: str(func(d *Descriptor, v string) { d.Reservation = v })},
	{long: "signal", takesArg: true, apply: func(d *Descriptor, v string) error {
		sig, err := valparse.ParseSignal(v)
		if err != nil {
			return err
		}
		d.KillSignal = sig
		return nil
	}},
	{long: "sockets-per-node", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --sockets-per-node")
		}
		d.SocketsPerNode = n
		return nil
	}},
	{long: "threads-per-core", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --threads-per-core")
		}
		d.ThreadsPerCore = n
		return nil
	}},
	{long: "time-min", takesArg: true, apply: func(d *Descriptor, v string) error {
		mins, err := valparse.ParseTime(v)
		if err != nil {
			return err
		}
		d.TimeMin = mins
		return nil
	}},
	{long: "tmp", takesArg: true, apply: func(d *Descriptor, v string) error {
		mb, err := valparse.ParseMemory(v, false)
		if err != nil {
			return err
		}
		d.TmpDiskMB = mb
		return nil
	}},
	{long: "uid", takesArg: true, apply: func(d *Descriptor, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed --uid")
		}
		d.EffectiveUID = n
		return nil
	}},
	{long: "wait-all-nodes", takesArg: true, apply: func(d *Descriptor, v string) error {
		d.WaitAllNodes = v == "1"
		d.WaitAllNodesSet = true
		return nil
	}},
	{long: "wckey", takesArg: true, apply: str(func(d *Descriptor, v string) { d.WCKey = v })},
	{long: "bell", apply: flagFlag(func(d *Descriptor) { d.Bell = BellAlways })},
	{long: "no-bell", apply: flagFlag(func(d *Descriptor) { d.Bell = BellNever })},
	{long: "get-user-env", takesArg: true, optionalArg: true, apply: str(func(d *Descriptor, v string) {})},
}

func lookupLong(name string) (argFlag, bool) {
	for _, f := range argFlags {
		if f.long == name {
			return f, true
		}
	}
	return argFlag{}, false
}

func lookupShort(c byte) (argFlag, bool) {
	for _, f := range argFlags {
		if f.short == c {
			return f, true
		}
	}
	return argFlag{}, false
}

// ApplyArgv is §4.2 pass 3: parses argv into one or more descriptors,
// splitting on bare ":" hetjob separators and restarting the loop with a
// shifted argv for each component. Unknown options are fatal. The
// non-option tokens that trail the final component (the user command and
// its arguments) are stored in the last descriptor's Command.
func ApplyArgv(base func() (*Descriptor, error), args []string) (RequestList, error) {
	var list RequestList
	d, err := base()
	if err != nil {
		return nil, err
	}
	list = append(list, d)

	i := 0
	for i < len(args) {
		tok := args[i]

		if tok == ":" {
			d, err = base()
			if err != nil {
				return nil, err
			}
			list = append(list, d)
			i++
			continue
		}

		if strings.HasPrefix(tok, "--") {
			name, value, hasValue := strings.Cut(tok[2:], "=")
			flag, ok := lookupLong(name)
			if !ok {
				return nil, allocerrors.NewParseError(tok, "unknown option")
			}
			if flag.takesArg && !hasValue && !flag.optionalArg {
				if i+1 >= len(args) {
					return nil, allocerrors.NewParseError(tok, "option requires a value")
				}
				i++
				value = args[i]
			}
			if err := flag.apply(list[len(list)-1], value); err != nil {
				return nil, err
			}
			i++
			continue
		}

		if strings.HasPrefix(tok, "-") && len(tok) > 1 && tok != "-" {
			c := tok[1]
			flag, ok := lookupShort(c)
			if !ok {
				return nil, allocerrors.NewParseError(tok, "unknown option")
			}
			value := ""
			if flag.takesArg {
				if len(tok) > 2 {
					value = tok[2:]
					if value[0] == '=' {
						value = value[1:]
					}
				} else if !flag.optionalArg {
					if i+1 >= len(args) {
						return nil, allocerrors.NewParseError(tok, "option requires a value")
					}
					i++
					value = args[i]
				}
			}
			if err := flag.apply(list[len(list)-1], value); err != nil {
				return nil, err
			}
			i++
			continue
		}

		// First non-option token of the final component: the command and
		// its arguments run to the end of argv.
		list[len(list)-1].Command = args[i:]
		break
	}

	return list, nil
}

// FlagUsageHint renders a short usage hint for an unrecognised-option
// error, matching §4.2's "unknown options abort with a usage hint".
func FlagUsageHint(badToken string) string {
	return fmt.Sprintf("salloc: unrecognized option %q; use --help for usage", badToken)
}
