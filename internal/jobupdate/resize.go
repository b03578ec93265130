// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobupdate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// ResizeEnv is the set of environment variables a resize changes, which
// the reset scripts re-export to bring an already-running shell's
// environment back in sync (§4.7).
type ResizeEnv struct {
	JobID       string
	NodeList    string
	NumNodes    int64
	NumTasks    int64
	CPUsPerNode string
}

// WriteResetScripts writes <dir>/slurm_<jobid>_resize.sh and .csh, each
// mode 0700, re-exporting the job's post-resize environment. Called only
// after a successful resize of a single non-array job (§4.7).
func WriteResetScripts(dir string, env ResizeEnv) (shPath, cshPath string, err error) {
	shPath = filepath.Join(dir, fmt.Sprintf("slurm_%s_resize.sh", env.JobID))
	cshPath = filepath.Join(dir, fmt.Sprintf("slurm_%s_resize.csh", env.JobID))

	if err := os.WriteFile(shPath, []byte(renderSh(env)), 0o700); err != nil {
		return "", "", allocerrors.NewInternalError("cannot write sh resize script", err)
	}
	if err := os.WriteFile(cshPath, []byte(renderCsh(env)), 0o700); err != nil {
		return "", "", allocerrors.NewInternalError("cannot write csh resize script", err)
	}
	return shPath, cshPath, nil
}

func renderSh(env ResizeEnv) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "export SLURM_JOB_ID=%s\n", env.JobID)
	fmt.Fprintf(&b, "export SLURM_JOB_NODELIST=%s\n", env.NodeList)
	fmt.Fprintf(&b, "export SLURM_NNODES=%d\n", env.NumNodes)
	fmt.Fprintf(&b, "export SLURM_JOB_NUM_NODES=%d\n", env.NumNodes)
	fmt.Fprintf(&b, "export SLURM_NTASKS=%d\n", env.NumTasks)
	fmt.Fprintf(&b, "export SLURM_NPROCS=%d\n", env.NumTasks)
	if env.CPUsPerNode != "" {
		fmt.Fprintf(&b, "export SLURM_JOB_CPUS_PER_NODE=%s\n", env.CPUsPerNode)
	}
	return b.String()
}

func renderCsh(env ResizeEnv) string {
	var b strings.Builder
	b.WriteString("#!/bin/csh\n")
	fmt.Fprintf(&b, "setenv SLURM_JOB_ID %s\n", env.JobID)
	fmt.Fprintf(&b, "setenv SLURM_JOB_NODELIST %s\n", env.NodeList)
	fmt.Fprintf(&b, "setenv SLURM_NNODES %d\n", env.NumNodes)
	fmt.Fprintf(&b, "setenv SLURM_JOB_NUM_NODES %d\n", env.NumNodes)
	fmt.Fprintf(&b, "setenv SLURM_NTASKS %d\n", env.NumTasks)
	fmt.Fprintf(&b, "setenv SLURM_NPROCS %d\n", env.NumTasks)
	if env.CPUsPerNode != "" {
		fmt.Fprintf(&b, "setenv SLURM_JOB_CPUS_PER_NODE %s\n", env.CPUsPerNode)
	}
	return b.String()
}
