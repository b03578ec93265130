// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobupdate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hpcsched/alloc/internal/valparse"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// ApplyResult reports what happened to one job id's update.
type ApplyResult struct {
	JobID   string
	Err     error
	Resized bool
}

// ApplyAll resolves req's job identifier(s) and issues one UpdateJob RPC
// per id. Every id is attempted independently: one failing does not
// prevent the others (§8 scenario 3, time-limit increment on an array).
func ApplyAll(ctx context.Context, ctrl Controller, req Request) []ApplyResult {
	ids, err := ResolveJobIDs(ctx, ctrl, req)
	if err != nil {
		return []ApplyResult{{Err: err}}
	}

	results := make([]ApplyResult, 0, len(ids))
	for _, id := range ids {
		u, resized, err := buildUpdate(ctx, ctrl, id, req.Tokens)
		if err == nil {
			err = ctrl.UpdateJob(ctx, u)
		}
		results = append(results, ApplyResult{JobID: id, Err: err, Resized: resized})
	}
	return results
}

// buildUpdate converts req's tokens into a typed Update for job id,
// applying the special-case rules of §4.7.
func buildUpdate(ctx context.Context, ctrl Controller, id string, tokens []Token) (Update, bool, error) {
	u := Update{JobID: id, Fields: make(map[string]FieldValue, len(tokens))}
	resized := false

	for _, tok := range tokens {
		if strings.EqualFold(tok.Key, "Gres") && (strings.EqualFold(tok.Value, "help") || strings.EqualFold(tok.Value, "list")) {
			return Update{}, false, errGresHelp
		}

		field, err := resolveField(tok.Key)
		if err != nil {
			return Update{}, false, err
		}
		if field.readOnly {
			return Update{}, false, allocerrors.NewValidationError(field.name, "field is not updatable")
		}

		fv, fieldResized, err := convertField(ctx, ctrl, id, field, tok)
		if err != nil {
			return Update{}, false, err
		}
		u.Fields[field.name] = fv
		resized = resized || fieldResized
	}

	return u, resized, nil
}

// errGresHelp is the sentinel ApplyAll's caller checks for to print help
// and exit 0 instead of reporting a failure (§4.7 "Gres=help|list").
var errGresHelp = allocerrors.NewValidationError("Gres", "help requested")

// IsGresHelp reports whether err is the Gres=help|list sentinel.
func IsGresHelp(err error) bool {
	return err == errGresHelp
}

func convertField(ctx context.Context, ctrl Controller, jobID string, field *fieldSpec, tok Token) (FieldValue, bool, error) {
	switch field.name {
	case "TimeLimit":
		return convertTimeLimit(ctx, ctrl, jobID, tok)
	case "AdminComment":
		if tok.Op == OpSub {
			return FieldValue{}, false, allocerrors.NewValidationError("AdminComment", "AdminComment is append-only; -= is rejected")
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, IsSet: true}, false, nil
	case "NumNodes":
		return convertNumNodes(tok)
	case "MinMemoryCPU":
		mb, err := valparse.ParseMemory(tok.Value, false)
		if err != nil {
			return FieldValue{}, false, err
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: mb, IsSet: true}, false, nil
	}

	switch field.kind {
	case kindInt:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return FieldValue{}, false, allocerrors.NewParseError(tok.Value, fmt.Sprintf("%s requires an integer", field.name))
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: n, IsSet: true}, false, nil
	case kindUint16:
		n, err := strconv.ParseUint(tok.Value, 10, 16)
		if err != nil {
			return FieldValue{}, false, allocerrors.NewParseError(tok.Value, fmt.Sprintf("%s requires a 16-bit unsigned integer", field.name))
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: int64(n), IsSet: true}, false, nil
	case kindUint32:
		n, err := strconv.ParseUint(tok.Value, 10, 32)
		if err != nil {
			return FieldValue{}, false, allocerrors.NewParseError(tok.Value, fmt.Sprintf("%s requires a 32-bit unsigned integer", field.name))
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: int64(n), IsSet: true}, false, nil
	case kindDuration:
		min, err := valparse.ParseTime(tok.Value)
		if err != nil {
			return FieldValue{}, false, err
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: min, IsSet: true}, false, nil
	case kindMemory:
		mb, err := valparse.ParseMemory(tok.Value, false)
		if err != nil {
			return FieldValue{}, false, err
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: mb, IsSet: true}, false, nil
	case kindBool:
		b, err := parseBool(tok.Value)
		if err != nil {
			return FieldValue{}, false, err
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Bool: b, IsSet: true}, false, nil
	case kindSignal:
		sig, err := valparse.ParseSignal(tok.Value)
		if err != nil {
			return FieldValue{}, false, err
		}
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: int64(sig.Num), IsSet: true}, false, nil
	case kindMailType:
		mt := valparse.ParseMailType(tok.Value)
		return FieldValue{Op: tok.Op, Raw: tok.Value, Int: int64(mt), IsSet: true}, false, nil
	case kindNodeList:
		return FieldValue{Op: tok.Op, Raw: tok.Value, IsSet: true}, true, nil
	default:
		return FieldValue{Op: tok.Op, Raw: tok.Value, IsSet: true}, false, nil
	}
}

// convertTimeLimit implements the TimeLimit+=/-= rule: fetch the job's
// current limit from the controller, reject a decrement past zero, and
// resolve the token to an absolute minute count (§4.7).
func convertTimeLimit(ctx context.Context, ctrl Controller, jobID string, tok Token) (FieldValue, bool, error) {
	delta, err := valparse.ParseTime(tok.Value)
	if err != nil {
		return FieldValue{}, false, err
	}

	if tok.Op == OpSet {
		return FieldValue{Op: OpSet, Raw: tok.Value, Int: delta, IsSet: true}, false, nil
	}

	current, err := ctrl.CurrentTimeLimit(ctx, jobID)
	if err != nil {
		return FieldValue{}, false, err
	}

	var result int64
	if tok.Op == OpAdd {
		result = current + delta
	} else {
		if delta > current {
			return FieldValue{}, false, allocerrors.NewValidationError("TimeLimit", "decrement exceeds current time limit")
		}
		result = current - delta
	}
	return FieldValue{Op: OpSet, Raw: tok.Value, Int: result, IsSet: true}, false, nil
}

// convertNumNodes implements NumNodes=0 (release all nodes) and
// NumNodes=ALL (INFINITE sentinel); anything else is a node-count range
// parsed the same way the allocation option parser does (§4.7).
func convertNumNodes(tok Token) (FieldValue, bool, error) {
	if strings.EqualFold(tok.Value, "ALL") {
		return FieldValue{Op: OpSet, Raw: tok.Value, Int: Infinite, IsSet: true}, true, nil
	}
	if tok.Value == "0" {
		return FieldValue{Op: OpSet, Raw: tok.Value, Int: 0, IsSet: true}, true, nil
	}

	nc, err := valparse.ParseNodeCount(tok.Value)
	if err != nil {
		return FieldValue{}, false, err
	}
	return FieldValue{Op: OpSet, Raw: tok.Value, Int: nc.Max, IsSet: true}, true, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	}
	return false, allocerrors.NewParseError(s, "expected yes/no/true/false/0/1")
}
