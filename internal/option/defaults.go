// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package option

import (
	"os"
	"os/user"
	"strconv"

	"github.com/hpcsched/alloc/internal/valparse"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// NewDefault builds a descriptor with the default-fill values of §4.2
// pass 1: numeric sentinels, false booleans, null strings, bell-policy
// after-delay, kill-signal SIGTERM, one task, one CPU per task, one node,
// uid/gid from the process, user-name from the password database.
func NewDefault() (*Descriptor, error) {
	u, err := user.Current()
	if err != nil {
		return nil, allocerrors.NewInternalError("cannot resolve current user", err)
	}
	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)

	submitDir, err := os.Getwd()
	if err != nil {
		submitDir = ""
	}
	hostname, _ := os.Hostname()

	termSignal, _ := valparse.ParseSignal("TERM")

	return &Descriptor{
		UID:      uid,
		GID:      gid,
		UserName: u.Username,
		SubmitHost: hostname,
		SubmitDir:  submitDir,

		EffectiveUID: NoVal,
		EffectiveGID: NoVal,

		NumTasks:    1,
		MinNodes:    1,
		MaxNodes:    1,
		CPUsPerTask: 1,

		TasksPerNode:   NoVal,
		TasksPerSocket: NoVal,
		TasksPerCore:   NoVal,
		SocketsPerNode: NoVal,
		CoresPerSocket: NoVal,
		ThreadsPerCore: NoVal,
		MinCPUsPerNode: NoVal,

		MemPerNode: NoVal,
		MemPerCPU:  NoVal,
		TmpDiskMB:  NoVal,

		Priority: NoVal,
		Nice:     0,
		TimeLimit: NoVal,
		TimeMin:   NoVal,

		CoreSpec: NoVal,

		Bell:       BellAfterDelay,
		KillSignal: termSignal,

		Distribution: valparse.Distribution{Node: valparse.DistBlock, Socket: valparse.DistCyclic, Core: valparse.DistCyclic},

		SpankEnv: make(map[string]string),
	}, nil
}
