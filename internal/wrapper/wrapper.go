// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package wrapper translates foreign batch-directive syntaxes (#BSUB,
// #PBS) embedded in a script body into updates on an allocation
// descriptor (§4.3).
package wrapper

import (
	"strconv"
	"strings"

	"github.com/hpcsched/alloc/internal/option"
	"github.com/hpcsched/alloc/internal/valparse"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// Kind selects which magic word and option grammar to translate.
type Kind int

const (
	KindBSUB Kind = iota
	KindPBS
)

func (k Kind) magicWord() string {
	if k == KindPBS {
		return "#PBS"
	}
	return "#BSUB"
}

// maxNonCommentLines bounds the scan: after this many consecutive lines
// that are neither magic-word directives nor comments, scanning stops.
const maxNonCommentLines = 100

// Translate scans body line by line for magic-word directives, tokenises
// each one with shell-like quoting, and applies the resulting options to
// d. found reports whether any directive line was seen.
func Translate(d *option.Descriptor, body string, kind Kind) (found bool, err error) {
	magic := kind.magicWord()
	nonComments := 0

	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, magic) {
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				nonComments = 0
			} else {
				nonComments++
			}
			if nonComments > maxNonCommentLines {
				break
			}
			continue
		}

		nonComments = 0
		found = true
		tokens, terr := tokenize(line[len(magic):])
		if terr != nil {
			return found, terr
		}

		if kind == KindPBS {
			err = applyPBS(d, tokens)
		} else {
			err = applyBSUB(d, tokens)
		}
		if err != nil {
			return found, err
		}
	}

	return found, nil
}

// tokenize splits a directive's remainder into shell-like words: runs of
// non-space characters, or single/double-quoted spans with the quotes
// stripped.
func tokenize(s string) ([]string, error) {
	var out []string
	i, n := 0, len(s)
	for i < n {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}
		if s[i] == '\'' || s[i] == '"' {
			quote := s[i]
			i++
			start := i
			for i < n && s[i] != quote {
				i++
			}
			if i >= n {
				return nil, allocerrors.NewParseError(s, "unterminated quote in wrapper directive")
			}
			out = append(out, s[start:i])
			i++
			continue
		}
		start := i
		for i < n && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		out = append(out, s[start:i])
	}
	return out, nil
}

// flagVal returns the value for a short-option token at position i in
// tokens: either the remainder of the same token (e.g. "-J") or the next
// token.
func flagVal(tokens []string, i int) (value string, consumed int) {
	tok := tokens[i]
	if len(tok) > 2 {
		return tok[2:], 1
	}
	if i+1 < len(tokens) {
		return tokens[i+1], 2
	}
	return "", 1
}

func applyBSUB(d *option.Descriptor, tokens []string) error {
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if len(tok) < 2 || tok[0] != '-' {
			i++
			continue
		}
		switch tok[1] {
		case 'c': // -c → chdir
			v, c := flagVal(tokens, i)
			d.Chdir = v
			i += c
		case 'e', 'o': // stdout/stderr path: recorded as a no-op placeholder (§9: not modelled as descriptor fields)
			_, c := flagVal(tokens, i)
			i += c
		case 'J':
			v, c := flagVal(tokens, i)
			d.JobName = v
			i += c
		case 'm':
			v, c := flagVal(tokens, i)
			d.NodeList = strings.ReplaceAll(v, " ", ",")
			i += c
		case 'M':
			v, c := flagVal(tokens, i)
			mb, err := valparse.ParseMemory(v, false)
			if err != nil {
				return err
			}
			d.MemPerCPU = mb
			i += c
		case 'n':
			v, c := flagVal(tokens, i)
			if comma := strings.IndexByte(v, ','); comma >= 0 {
				v = v[comma+1:]
				if v == "" {
					return allocerrors.NewParseError(tok, "#BSUB -n format not correct")
				}
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return allocerrors.NewParseError(v, "malformed #BSUB -n")
			}
			d.NumTasks, d.NumTasksSet = n, true
			i += c
		case 'q':
			v, c := flagVal(tokens, i)
			d.Partition = v
			i += c
		case 'W':
			v, c := flagVal(tokens, i)
			mins, err := valparse.ParseTime(v)
			if err != nil {
				return err
			}
			resolved, err := valparse.ResolveTimeLimit(mins)
			if err != nil {
				return err
			}
			d.TimeLimit = resolved
			i += c
		case 'x':
			d.Exclusive = true
			i++
		default:
			return allocerrors.NewParseError(tok, "unrecognized #BSUB option")
		}
	}
	return nil
}

func applyPBS(d *option.Descriptor, tokens []string) error {
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if len(tok) < 2 || tok[0] != '-' {
			i++
			continue
		}
		switch tok[1] {
		case 'a':
			v, c := flagVal(tokens, i)
			d.BeginTime = v
			i += c
		case 'A':
			v, c := flagVal(tokens, i)
			d.Account = v
			i += c
		case 'e', 'o':
			_, c := flagVal(tokens, i)
			i += c
		case 'N':
			v, c := flagVal(tokens, i)
			d.JobName = v
			i += c
		case 'J', 't': // PBS Pro uses -J, Torque uses -t, both mean array
			_, c := flagVal(tokens, i) // array expansion handled by the job-array front end, not the descriptor
			i += c
		case 'm':
			v, c := flagVal(tokens, i)
			_ = xlatePBSMailType(v) // recorded by the mail-notification layer, not a descriptor field
			i += c
		case 'M':
			_, c := flagVal(tokens, i)
			i += c
		case 'p':
			v, c := flagVal(tokens, i)
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return allocerrors.NewParseError(v, "malformed #PBS -p")
			}
			d.Nice = n
			i += c
		case 'q':
			v, c := flagVal(tokens, i)
			d.Partition = v
			i += c
		case 'v':
			v, c := flagVal(tokens, i)
			d.ExportEnv = append(d.ExportEnv, strings.Split(v, ",")...)
			i += c
		case 'l':
			v, c := flagVal(tokens, i)
			if err := applyPBSResourceList(d, v); err != nil {
				return err
			}
			i += c
		case 'W':
			v, c := flagVal(tokens, i)
			switch {
			case strings.HasPrefix(strings.ToLower(v), "depend="):
				d.Dependency = v[len("depend="):]
			}
			i += c
		case 'h', 'I', 'j', 'k', 'r', 'S', 'u', 'V', 'z':
			i++
		case 'c', 'C':
			_, c := flagVal(tokens, i)
			i += c
		default:
			return allocerrors.NewParseError(tok, "unrecognized #PBS option")
		}
	}
	return nil
}

// xlatePBSMailType maps PBS's single-letter mail codes to the mail-event
// name set (b→BEGIN, e→END, a→FAIL, n→NONE overrides everything else).
func xlatePBSMailType(arg string) string {
	if strings.ContainsAny(arg, "nN") {
		return "NONE"
	}
	var parts []string
	if strings.ContainsAny(arg, "bB") {
		parts = append(parts, "BEGIN")
	}
	if strings.ContainsAny(arg, "eE") {
		parts = append(parts, "END")
	}
	if strings.ContainsAny(arg, "aA") {
		parts = append(parts, "FAIL")
	}
	return strings.Join(parts, ",")
}

// stripByteSuffix removes a trailing "B" so "GB"/"MB" behave like "G"/"M".
func stripByteSuffix(s string) string {
	if s == "" {
		return s
	}
	last := s[len(s)-1]
	if last == 'b' || last == 'B' {
		return s[:len(s)-1]
	}
	return s
}

// rlKey describes one recognised -l resource_list key: its match prefix,
// the byte that terminates its value (PBS-Pro's select/ncpus/mpiprocs
// chunk syntax is colon-terminated; everything else is comma-terminated),
// and the handler applying the parsed value.
type rlKey struct {
	prefix string
	sep    byte
	apply  func(d *option.Descriptor, value string, pro *pbsProState) error
}

// pbsProState tracks the PBS-Pro select/ncpus/mpiprocs triple across a
// single -l parse so the post-pass cross-field inference (cpus-per-task)
// can run once all three have been seen.
type pbsProState struct {
	sawSelect, sawNCPUs, sawMPIProcs bool
	gpus                             int64
}

var rlKeys = []rlKey{
	{"cput", ',', func(d *option.Descriptor, v string, _ *pbsProState) error { return rlSetTime(d, v) }},
	{"pcput", ',', func(d *option.Descriptor, v string, _ *pbsProState) error { return rlSetTime(d, v) }},
	{"walltime", ',', func(d *option.Descriptor, v string, _ *pbsProState) error { return rlSetTime(d, v) }},
	{"file", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		mb, err := valparse.ParseMemory(stripByteSuffix(v), false)
		if err != nil {
			return err
		}
		d.TmpDiskMB = mb
		return nil
	}},
	{"mem", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		mb, err := valparse.ParseMemory(stripByteSuffix(v), false)
		if err != nil {
			return err
		}
		d.MemPerNode = mb
		return nil
	}},
	{"mpiprocs", ':', func(d *option.Descriptor, v string, pro *pbsProState) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed mpiprocs")
		}
		d.TasksPerNode = n
		pro.sawMPIProcs = true
		return nil
	}},
	{"mppdepth", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.CPUsPerTask = n
		}
		return nil
	}},
	{"mppnodes", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		d.NodeList = v
		return nil
	}},
	{"mppnppn", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.TasksPerNode = n
		}
		return nil
	}},
	{"mppwidth", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.NumTasks, d.NumTasksSet = n, true
		}
		return nil
	}},
	{"naccelerators", ',', func(d *option.Descriptor, v string, pro *pbsProState) error {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			pro.gpus = n
		}
		return nil
	}},
	{"ncpus", ':', func(d *option.Descriptor, v string, pro *pbsProState) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed ncpus")
		}
		d.MinCPUsPerNode = n
		pro.sawNCPUs = true
		return nil
	}},
	{"nice", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed nice")
		}
		d.Nice = n
		return nil
	}},
	{"nodes", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		return applyPBSNodesOpt(d, v)
	}},
	{"proc", ',', func(d *option.Descriptor, v string, _ *pbsProState) error {
		// §9 open question: append ordering relative to a pre-existing
		// constraint value (comma vs '&') is undocumented upstream.
		if d.Constraint != "" {
			v = v + "," + d.Constraint
		}
		d.Constraint = v
		return nil
	}},
	{"select", ':', func(d *option.Descriptor, v string, pro *pbsProState) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return allocerrors.NewParseError(v, "malformed select")
		}
		d.MinNodes, d.MaxNodes = n, n
		pro.sawSelect = true
		return nil
	}},
}

func rlSetTime(d *option.Descriptor, v string) error {
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
}

// applyPBSResourceList parses the -l resource_list sublanguage: a run of
// "key=value" terms, each terminated by its own delimiter (',' by
// default; ':' for the select/ncpus/mpiprocs chunk keys, matching PBS
// Pro's "select=N:ncpus=X:mpiprocs=Y" layout), plus the naccelerators/
// accelerator gres inference and the PBS-Pro triple cpus-per-task
// inference.
func applyPBSResourceList(d *option.Descriptor, rl string) error {
	var pro pbsProState
	n := len(rl)

	for i := 0; i < n; {
		lower := strings.ToLower(rl[i:])
		if strings.HasPrefix(lower, "accelerator=") {
			i += len("accelerator=")
			end := i
			for end < n && rl[end] != ',' {
				end++
			}
			if strings.EqualFold(rl[i:end], "true") && pro.gpus < 1 {
				pro.gpus = 1
			}
			i = end
			if i < n {
				i++
			}
			continue
		}

		matched := false
		for _, k := range rlKeys {
			if !strings.HasPrefix(lower, k.prefix+"=") {
				continue
			}
			i += len(k.prefix) + 1
			start := i
			for i < n && rl[i] != k.sep {
				i++
			}
			value := rl[start:i]
			if i < n {
				i++
			}
			if value != "" {
				if err := k.apply(d, value, &pro); err != nil {
					return err
				}
			}
			matched = true
			break
		}
		if matched {
			continue
		}

		// Unrecognised key: skip to the next comma-separated term.
		for i < n && rl[i] != ',' {
			i++
		}
		if i < n {
			i++
		}
	}

	if pro.sawSelect && pro.sawNCPUs && pro.sawMPIProcs &&
		d.MinCPUsPerNode != option.NoVal && d.TasksPerNode != option.NoVal &&
		d.TasksPerNode > 0 && d.MinCPUsPerNode > d.TasksPerNode &&
		d.MinCPUsPerNode%d.TasksPerNode == 0 {
		d.CPUsPerTask = d.MinCPUsPerNode / d.TasksPerNode
	}

	if pro.gpus > 0 {
		if d.GenericResources != "" {
			d.GenericResources += ","
		}
		d.GenericResources += "gpu:" + strconv.FormatInt(pro.gpus, 10)
	}

	return nil
}

// applyPBSNodesOpt parses the nodes=N[:ppn=M][+host[:ppn]] grammar: a
// numeric node count, optional processes-per-node, and/or explicit host
// names, any combination summed across '+'-separated parts.
func applyPBSNodesOpt(d *option.Descriptor, nodeOpts string) error {
	var nodeCount, ppn int64
	var hosts []string

	for _, part := range strings.Split(nodeOpts, "+") {
		for _, sub := range strings.Split(part, ":") {
			switch {
			case strings.HasPrefix(sub, "ppn="):
				n, err := strconv.ParseInt(sub[len("ppn="):], 10, 64)
				if err == nil {
					ppn += n
				}
			case sub == "":
			case isDigits(sub):
				n, _ := strconv.ParseInt(sub, 10, 64)
				nodeCount += n
			default:
				hosts = append(hosts, sub)
			}
		}
	}

	if nodeCount == 0 {
		nodeCount = 1
	} else {
		d.MinNodes, d.MaxNodes = nodeCount, nodeCount
	}

	if ppn > 0 {
		d.NumTasks, d.NumTasksSet = ppn*nodeCount, true
	}

	if len(hosts) > 0 {
		d.NodeList = strings.Join(hosts, ",")
	}

	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
