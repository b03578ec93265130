// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobupdate

import (
	"context"

	"github.com/hpcsched/alloc/pkg/logging"
)

// ResizeController extends Controller with the environment lookup a
// successful resize needs to render the reset scripts.
type ResizeController interface {
	Controller
	ResizedEnv(ctx context.Context, jobID string) (ResizeEnv, error)
}

// Client runs an scontrol-update request end to end: parse, resolve,
// apply, and — for a single non-array job whose update resized its node
// set — write the sh/csh reset scripts to dir.
type Client struct {
	ctrl ResizeController
	log  logging.Logger
	dir  string
}

// NewClient builds a Client. dir is the directory the resize-reset
// scripts are written to (normally the current working directory).
func NewClient(ctrl ResizeController, dir string, log logging.Logger) *Client {
	return &Client{ctrl: ctrl, log: log, dir: dir}
}

// Run parses args, applies every resulting update, and returns one
// ApplyResult per affected job id. A resize only fires the reset-script
// write when the request named exactly one non-array job (§4.7: "a
// resize... runs only when the identifier matches a single non-array
// job").
func (c *Client) Run(ctx context.Context, args []string) ([]ApplyResult, error) {
	req, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}

	results := ApplyAll(ctx, c.ctrl, req)

	singleJob := req.JobIDExpr != "" && !IsArrayExpr(req.JobIDExpr)
	if singleJob && len(results) == 1 && results[0].Err == nil && results[0].Resized {
		env, err := c.ctrl.ResizedEnv(ctx, results[0].JobID)
		if err != nil {
			c.log.Warn("resize succeeded but environment lookup failed; reset scripts not written", "job_id", results[0].JobID, "error", err)
		} else if _, _, err := WriteResetScripts(c.dir, env); err != nil {
			c.log.Warn("failed to write resize reset scripts", "job_id", results[0].JobID, "error", err)
		}
	}

	return results, nil
}
