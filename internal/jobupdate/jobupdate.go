// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package jobupdate implements the narrowly-scoped `scontrol update`
// job-update argument parser (§4.7): key=value/key+=value/key-=value
// token parsing, job-name and job-array resolution, and translation into
// update-job RPCs.
package jobupdate

import (
	"context"
	"strconv"
	"strings"

	"github.com/hpcsched/alloc/internal/hostlist"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// Infinite is the sentinel value for an unbounded field (NumNodes=ALL).
const Infinite = -2

// Op is the assignment operator a token used.
type Op int

const (
	OpSet Op = iota
	OpAdd
	OpSub
)

// Token is one parsed `key<op>value` pair before it is resolved against
// the field table.
type Token struct {
	Key   string
	Op    Op
	Value string
}

// Update is the set of field changes to apply to a single job (or job
// array task), keyed by canonical field name.
type Update struct {
	JobID  string
	Fields map[string]FieldValue
}

// FieldValue carries a token's operator alongside its typed value so the
// RPC layer can implement the +=/-= semantics server-side fields require.
type FieldValue struct {
	Op    Op
	Raw   string
	Int   int64
	Bool  bool
	IsSet bool
}

// Controller is the narrow RPC surface the job-update client needs: job
// lookup by name, current time-limit lookup, and the update call itself.
type Controller interface {
	ResolveJobName(ctx context.Context, name string, uid int64, uidSet bool) ([]string, error)
	CurrentTimeLimit(ctx context.Context, jobID string) (int64, error)
	UpdateJob(ctx context.Context, u Update) error
}

type fieldSpec struct {
	name     string
	minLen   int
	kind     fieldKind
	readOnly bool
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindUint16
	kindUint32
	kindDuration
	kindMemory
	kindBool
	kindSignal
	kindMailType
	kindTimeOfDay
	kindJobID
	kindNodeList
)

// fieldTable lists the recognised scontrol-update keys with their
// minimum unambiguous prefix length (§4.7). Keys are matched
// case-insensitively against any prefix of at least minLen bytes.
var fieldTable = []fieldSpec{
	{name: "Account", minLen: 2, kind: kindString},
	{name: "AdminComment", minLen: 6, kind: kindString},
	{name: "ArrayTaskThrottle", minLen: 6, kind: kindUint32},
	{name: "Comment", minLen: 3, kind: kindString},
	{name: "Contiguous", minLen: 3, kind: kindBool},
	{name: "Dependency", minLen: 4, kind: kindString},
	{name: "EligibleTime", minLen: 3, kind: kindTimeOfDay},
	{name: "ExcNodeList", minLen: 4, kind: kindNodeList},
	{name: "Features", minLen: 3, kind: kindString},
	{name: "Gres", minLen: 2, kind: kindString},
	{name: "JobId", minLen: 3, kind: kindJobID, readOnly: true},
	{name: "MailType", minLen: 5, kind: kindMailType},
	{name: "MailUser", minLen: 5, kind: kindString},
	{name: "MinCPUsNode", minLen: 7, kind: kindUint32},
	{name: "MinMemoryCPU", minLen: 10, kind: kindMemory},
	{name: "MinMemoryNode", minLen: 10, kind: kindMemory},
	{name: "Name", minLen: 2, kind: kindString},
	{name: "Nice", minLen: 2, kind: kindInt},
	{name: "NodeList", minLen: 5, kind: kindNodeList},
	{name: "NumCPUs", minLen: 4, kind: kindUint32},
	{name: "NumNodes", minLen: 4, kind: kindString},
	{name: "NumTasks", minLen: 4, kind: kindUint32},
	{name: "Partition", minLen: 3, kind: kindString},
	{name: "Priority", minLen: 2, kind: kindUint32},
	{name: "QOS", minLen: 3, kind: kindString},
	{name: "ReqNodeList", minLen: 4, kind: kindNodeList},
	{name: "Reservation", minLen: 4, kind: kindString},
	{name: "Shared", minLen: 3, kind: kindBool},
	{name: "Signal", minLen: 3, kind: kindSignal},
	{name: "StartTime", minLen: 5, kind: kindTimeOfDay},
	{name: "TimeLimit", minLen: 5, kind: kindDuration},
	{name: "TimeMin", minLen: 5, kind: kindDuration},
	{name: "UserID", minLen: 4, kind: kindString},
	{name: "WCKey", minLen: 2, kind: kindString},
}

// ParseToken splits a single `key=value`/`key+=value`/`key-=value`
// command-line argument.
func ParseToken(arg string) (Token, error) {
	op := OpSet
	eq := strings.IndexByte(arg, '=')
	if eq < 0 {
		return Token{}, allocerrors.NewParseError(arg, "expected key=value, key+=value, or key-=value")
	}

	key := arg[:eq]
	value := arg[eq+1:]

	switch {
	case strings.HasSuffix(key, "+"):
		op = OpAdd
		key = key[:len(key)-1]
	case strings.HasSuffix(key, "-"):
		op = OpSub
		key = key[:len(key)-1]
	}

	if key == "" {
		return Token{}, allocerrors.NewParseError(arg, "empty key")
	}
	return Token{Key: key, Op: op, Value: value}, nil
}

// resolveField finds the unique field whose name the given key is an
// unambiguous, sufficiently-long, case-insensitive prefix of.
func resolveField(key string) (*fieldSpec, error) {
	lower := strings.ToLower(key)
	var match *fieldSpec
	for i := range fieldTable {
		f := &fieldTable[i]
		if !strings.HasPrefix(strings.ToLower(f.name), lower) {
			continue
		}
		if len(key) < f.minLen {
			continue
		}
		if match != nil {
			return nil, allocerrors.NewParseError(key, "ambiguous field prefix")
		}
		match = f
	}
	if match == nil {
		return nil, allocerrors.NewParseError(key, "unrecognised scontrol update field")
	}
	return match, nil
}

// Request is the parsed form of one `scontrol update` invocation: an
// identifier token (JobId= or Name=) plus the remaining field tokens.
type Request struct {
	JobIDExpr string
	NameExpr  string
	UID       int64
	UIDSet    bool
	Tokens    []Token
}

// ParseArgs parses scontrol-update's argv into a Request. `--uid=UID`
// sets the effective-uid override; `JobId=`
// and `Name=` set the job identifier; everything else accumulates as a
// field token to apply.
func ParseArgs(args []string) (Request, error) {
	var req Request
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--uid="); ok {
			uid, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Request{}, allocerrors.NewParseError(arg, "malformed --uid value")
			}
			req.UID, req.UIDSet = uid, true
			continue
		}

		tok, err := ParseToken(arg)
		if err != nil {
			return Request{}, err
		}

		switch strings.ToLower(tok.Key) {
		case "jobid":
			req.JobIDExpr = tok.Value
			continue
		case "name":
			req.NameExpr = tok.Value
			continue
		}

		req.Tokens = append(req.Tokens, tok)
	}

	if req.JobIDExpr == "" && req.NameExpr == "" {
		return Request{}, allocerrors.NewValidationError("JobId", "scontrol update requires JobId= or Name=")
	}
	return req, nil
}

// ResolveJobIDs expands req's identifier into the concrete list of job
// (or job-array-task) ids the update applies to: Name= is resolved
// through the controller, JobId= is expanded for array brackets via
// hostlist.ExpandJobArray (§4.7, §8 array-expansion property).
func ResolveJobIDs(ctx context.Context, ctrl Controller, req Request) ([]string, error) {
	if req.JobIDExpr != "" {
		return hostlist.ExpandJobArray(req.JobIDExpr)
	}
	return ctrl.ResolveJobName(ctx, req.NameExpr, req.UID, req.UIDSet)
}

// IsArrayExpr reports whether a job identifier is an array range
// expression (contains a `[...]` task-range suffix) as opposed to a bare
// job id or a single array task id, which gates the resize-reset script
// and other single-job-only operations.
func IsArrayExpr(expr string) bool {
	return strings.ContainsAny(expr, "[")
}
