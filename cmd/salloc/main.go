// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command salloc is the interactive allocation front-end (§4.1-§4.5):
// parse the request descriptor from defaults/environment/argv, submit it
// to the controller, hand the terminal to the user's command once the
// allocation is granted, and propagate its exit status.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hpcsched/alloc/internal/allocclient"
	"github.com/hpcsched/alloc/internal/hostlist"
	"github.com/hpcsched/alloc/internal/option"
	"github.com/hpcsched/alloc/internal/proto"
	"github.com/hpcsched/alloc/internal/restcontroller"
	"github.com/hpcsched/alloc/internal/supervisor"
	"github.com/hpcsched/alloc/pkg/auth"
	allocconfig "github.com/hpcsched/alloc/pkg/config"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/hpcsched/alloc/pkg/metrics"
)

const (
	defaultExitError     = 1
	defaultExitImmediate = 1

	// suspendTimeout and resumeTimeout feed the wait_ready readiness
	// bound (§4.4); the controller config this module targets does not
	// expose per-partition suspend/resume timeouts to the client, so
	// these track slurm.conf's own defaults.
	suspendTimeout = 30 * time.Second
	resumeTimeout  = 30 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.NewLogger(logging.DefaultConfig())

	rl, err := parseRequest(os.Environ(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "salloc:", err)
		return exitError()
	}
	if len(rl) == 0 || len(rl[0].Command) == 0 {
		fmt.Fprintln(os.Stderr, "salloc: no command given")
		return exitError()
	}

	cfg := allocconfig.NewDefault()
	cfg.Load()

	collector := metrics.NewInMemoryCollector()
	ctrl, err := restcontroller.New(cfg, auth.NewNoAuth(), collector, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "salloc: cannot reach controller:", err)
		return exitError()
	}
	defer ctrl.Close()

	client, err := allocclient.New(ctrl, "127.0.0.1:0", log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "salloc: cannot start listener:", err)
		return exitError()
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	submitCtx := ctx
	if rl[0].Immediate > 0 {
		var submitCancel context.CancelFunc
		submitCtx, submitCancel = context.WithTimeout(ctx, time.Duration(rl[0].Immediate)*time.Second)
		defer submitCancel()
	}

	var firstJobID int64
	resps, err := client.Submit(submitCtx, rl, func(jobID int64) { firstJobID = jobID })
	if err != nil {
		wrapped := allocerrors.WrapError(err)
		if wrapped.Kind == allocerrors.KindSubmit && wrapped.Reason == allocerrors.SubmitReasonImmediate {
			fmt.Fprintln(os.Stderr, "salloc: resources not available, immediate mode")
			return exitImmediate()
		}
		fmt.Fprintln(os.Stderr, "salloc: submit failed:", err)
		return exitError()
	}

	if client.WaitGranted(ctx) == allocclient.Revoked {
		fmt.Fprintln(os.Stderr, "salloc: allocation revoked before grant")
		return exitError()
	}

	jobID := resps[0].JobID
	if firstJobID != 0 {
		jobID = firstJobID
	}

	if !client.WaitReady(ctx, jobID, rl[0].WaitAllNodes, suspendTimeout, resumeTimeout) {
		fmt.Fprintln(os.Stderr, "salloc: nodes did not become ready in time")
		_ = client.Complete(ctx, jobID, -1)
		return exitError()
	}

	env := buildChildEnv(rl, resps)

	var term *supervisor.Terminal
	if supervisor.IsInteractive(int(os.Stdin.Fd()), rl[0].NoShell) {
		if t, err := supervisor.OpenTerminal(int(os.Stdin.Fd())); err == nil {
			term = t
			defer term.Restore()
		}
	}

	// A job-complete notice may have already arrived while we were
	// waiting on readiness; in that case the supervisor must not fork
	// at all (§5 ordering guarantees).
	if client.State() == allocclient.Revoked {
		fmt.Fprintln(os.Stderr, "salloc: allocation ended before the command could start")
		return 1
	}

	child, err := supervisor.Spawn(rl[0].Command, env, rl[0].Chdir, term, syscall.SIGTERM, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "salloc: failed to launch command:", err)
		_ = client.Complete(ctx, jobID, -1)
		return exitError()
	}

	client.OnJobComplete(func(timeoutHit bool) {
		child.OnJobComplete(false)
	})

	exitCode := child.Wait(ctx)
	_ = client.Complete(context.Background(), jobID, int(exitCode))
	return int(exitCode)
}

// parseRequest runs the three-pass fill (§4.2): defaults, environment
// overlay, argv overlay, then cross-field validation.
func parseRequest(environ, args []string) (option.RequestList, error) {
	base := func() (*option.Descriptor, error) {
		d, err := option.NewDefault()
		if err != nil {
			return nil, err
		}
		option.ApplyEnv(d, environ, logging.NewLogger(nil))
		return d, nil
	}
	rl, err := option.ApplyArgv(base, args)
	if err != nil {
		return nil, err
	}
	if err := option.FinalizeList(rl); err != nil {
		return nil, err
	}
	return rl, nil
}

// buildChildEnv assembles the user command's environment: the inherited
// process environment plus the SLURM_* variables the controller's grant
// establishes (§6 "Environment output").
func buildChildEnv(rl option.RequestList, resps []proto.AllocResponse) []string {
	env := os.Environ()
	first := resps[0]

	set := func(k, v string) {
		env = append(env, k+"="+v)
	}

	set("SLURM_JOB_ID", strconv.FormatInt(first.JobID, 10))
	set("SLURM_NNODES", strconv.FormatInt(int64(first.NumNodes), 10))
	set("SLURM_JOB_NUM_NODES", strconv.FormatInt(int64(first.NumNodes), 10))
	set("SLURM_JOB_NODELIST", first.NodeList)
	set("SLURM_NODELIST", first.NodeList)
	set("SLURM_JOB_CPUS_PER_NODE", hostlist.FormatCPUsPerNode(first.CPUsPerNode))
	set("SLURM_NTASKS", strconv.FormatInt(rl[0].NumTasks, 10))
	set("SLURM_NPROCS", strconv.FormatInt(rl[0].NumTasks, 10))
	if rl[0].TasksPerNode > 0 {
		set("SLURM_NTASKS_PER_NODE", strconv.FormatInt(rl[0].TasksPerNode, 10))
	}
	if wd, err := os.Getwd(); err == nil {
		set("SLURM_SUBMIT_DIR", wd)
	}
	if host, err := os.Hostname(); err == nil {
		set("SLURM_SUBMIT_HOST", host)
	}
	if rl[0].MemBind != "" {
		set("SLURM_MEM_BIND", rl[0].MemBind)
	}
	if rl[0].Profile != "" {
		set("SLURM_PROFILE", rl[0].Profile)
	}
	if len(rl) > 1 {
		set("SLURM_HET_SIZE", strconv.Itoa(len(rl)))
		set("SLURM_PACK_SIZE", strconv.Itoa(len(rl)))
	}

	return env
}

func exitError() int {
	if v := os.Getenv("SLURM_EXIT_ERROR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultExitError
}

func exitImmediate() int {
	if v := os.Getenv("SLURM_EXIT_IMMEDIATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultExitImmediate
}
