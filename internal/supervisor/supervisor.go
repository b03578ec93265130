// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package supervisor implements interactive job control (§4.5): terminal
// handoff, foreground process-group transfer, fork/exec of the user
// command, signal forwarding, and the waitpid loop that derives the
// process's final exit code.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/hpcsched/alloc/pkg/logging"
	"golang.org/x/sys/unix"
)

// forwardedSignals is the set the parent catches while it waits on the
// child, so none of them terminates the parent; of these, Wait forwards
// only SIGHUP to the child's process group.
var forwardedSignals = []os.Signal{
	unix.SIGHUP, unix.SIGINT, unix.SIGQUIT, unix.SIGTTIN, unix.SIGTTOU,
	unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2,
}

// userDrivenSignals are the signals whose WIFSIGNALED termination is
// treated as a clean exit (exit code 0), matching the controlling
// terminal's own SIGHUP/SIGINT/SIGQUIT/SIGKILL set.
var userDrivenSignals = map[syscall.Signal]bool{
	syscall.SIGHUP:  true,
	syscall.SIGINT:  true,
	syscall.SIGQUIT: true,
	syscall.SIGKILL: true,
}

// IsInteractive implements §4.5's interactive-mode detection: stdin is a
// terminal, the foreground pgrp is non-negative, no-shell is false, the
// process's pgrp equals its pid, and the foreground pgrp equals the pid.
// The upstream source's alternate "platform allows background execution"
// branch is not carried here — §9 records this as the deliberate "require
// foreground pgrp == pid" variant.
func IsInteractive(stdinFd int, noShell bool) bool {
	if noShell {
		return false
	}
	if _, err := unix.IoctlGetTermios(stdinFd, ioctlGetTermios); err != nil {
		return false
	}
	fgpgrp, err := unix.IoctlGetInt(stdinFd, unix.TIOCGPGRP)
	if err != nil || fgpgrp < 0 {
		return false
	}
	pid := unix.Getpid()
	pgrp, err := unix.Getpgid(pid)
	if err != nil {
		return false
	}
	return pgrp == pid && fgpgrp == pid
}

// Terminal holds the saved attributes and controlling-terminal file
// descriptor needed to restore the shell's terminal state at exit.
type Terminal struct {
	fd    int
	saved *unix.Termios
}

// OpenTerminal captures the current terminal attributes of fd for restore
// on exit, and installs SIG_IGN for SIGTSTP/SIGTTIN/SIGTTOU in the parent
// before fork, matching §4.5's "terminal handoff" sequence.
func OpenTerminal(fd int) (*Terminal, error) {
	saved, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return nil, err
	}
	signal.Ignore(unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	return &Terminal{fd: fd, saved: saved}, nil
}

// TakeForeground writes pid to the terminal's foreground process group,
// blocking SIGTTIN/SIGTTOU around the ioctl so the caller (which may not
// yet be in the foreground group) isn't stopped by the call itself.
func (t *Terminal) TakeForeground(pid int) error {
	unblock := blockTTYSignals()
	defer unblock()
	return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pid)
}

// Restore reapplies the saved terminal attributes; intended to run from an
// at-exit hook.
func (t *Terminal) Restore() error {
	unblock := blockTTYSignals()
	defer unblock()
	return unix.IoctlSetTermios(t.fd, ioctlSetTermios, t.saved)
}

// blockTTYSignals ignores SIGTTIN/SIGTTOU for the duration of a terminal
// ioctl, returning a func that restores the previous disposition. Signals
// delivered to a background-group process attempting terminal I/O would
// otherwise stop this process before the ioctl completes.
func blockTTYSignals() func() {
	wasIgnored := signal.Ignored(unix.SIGTTIN) && signal.Ignored(unix.SIGTTOU)
	signal.Ignore(unix.SIGTTIN, unix.SIGTTOU)
	return func() {
		if !wasIgnored {
			signal.Reset(unix.SIGTTIN, unix.SIGTTOU)
		}
	}
}

// ExitCode is the derived process exit status, computed by the waitpid
// loop's WIFEXITED/WIFSIGNALED/stop handling (§4.5).
type ExitCode int

// Child wraps the forked-and-exec'd user command, carrying the pieces of
// state the waitpid loop and job-complete handler both need: its pid,
// pgrp, and the kill-signal policy.
type Child struct {
	cmd  *exec.Cmd
	term *Terminal
	log  logging.Logger

	killSignal syscall.Signal
}

// Spawn forks and execs argv[0] with argv[1:] and env, placing the child
// in its own process group and resetting SIGINT/SIGQUIT/SIGTTIN/SIGTTOU to
// default (SIGTSTP stays ignored so the child's own shell can install its
// handler). term may be nil for a non-interactive allocation.
func Spawn(argv, env []string, chdir string, term *Terminal, killSignal syscall.Signal, log logging.Logger) (*Child, error) {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		path = argv[0]
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = env
	cmd.Dir = chdir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	if term != nil {
		if err := term.TakeForeground(cmd.Process.Pid); err != nil {
			log.Warn("failed to hand foreground to child", "error", err)
		}
	}

	return &Child{cmd: cmd, term: term, log: log, killSignal: killSignal}, nil
}

// Pid returns the child's process id.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Signal sends sig to the child's process group, prefixing with SIGCONT
// when resume is true (a prior suspend was outstanding).
func (c *Child) Signal(sig syscall.Signal, resume bool) error {
	if resume {
		_ = unix.Kill(-c.Pid(), unix.SIGCONT)
	}
	return unix.Kill(-c.Pid(), sig)
}

// ForegroundPgrp returns the terminal's current foreground process group,
// or -1 if there is no controlling terminal.
func (c *Child) ForegroundPgrp() int {
	if c.term == nil {
		return -1
	}
	pgrp, err := unix.IoctlGetInt(c.term.fd, unix.TIOCGPGRP)
	if err != nil {
		return -1
	}
	return pgrp
}

// OnJobComplete implements §4.5's "job-complete arriving during the
// child's life" handling: if the foreground pgrp has moved below the
// child (it forked deeper), SIGHUP that group first; then forward the
// configured kill signal to the child's own pgrp, resuming it with
// SIGCONT if it was suspended.
func (c *Child) OnJobComplete(suspended bool) {
	fg := c.ForegroundPgrp()
	if fg > 0 && fg != c.Pid() {
		_ = unix.Kill(-fg, unix.SIGHUP)
	}
	if err := c.Signal(c.killSignal, suspended); err != nil {
		c.log.Warn("failed to signal child on job-complete", "error", err)
	}
}

// Wait runs the waitpid loop with WUNTRACED, restarting on EINTR, and
// returns the derived exit code per §4.5's table. A SIGHUP arriving while
// waiting is forwarded to the child's pgrp; no flag is recorded for it and
// it does not itself end the loop. A stopped child is killed with SIGKILL
// sent to its process group and the loop continues until the resulting
// termination is reaped, at which point exit code 1 is reported
// regardless of the terminating signal.
func (c *Child) Wait(ctx context.Context) ExitCode {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, forwardedSignals...)
	defer signal.Stop(sigCh)

	done := make(chan ExitCode, 1)
	errCh := make(chan error, 1)
	go func() {
		pid := c.Pid()
		killedDueToStop := false
		for {
			var ws unix.WaitStatus
			_, err := unix.Wait4(pid, &ws, unix.WUNTRACED, nil)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				errCh <- err
				return
			}
			if ws.Stopped() {
				c.log.Warn("child stopped, killing process group", "pid", pid, "stop_signal", ws.StopSignal())
				killedDueToStop = true
				_ = unix.Kill(-pid, unix.SIGKILL)
				continue
			}
			if killedDueToStop {
				done <- ExitCode(1)
				return
			}
			done <- exitCodeFromWaitStatus(ws)
			return
		}
	}()

	for {
		select {
		case sig := <-sigCh:
			if s, ok := sig.(syscall.Signal); ok {
				if s == syscall.SIGHUP {
					_ = unix.Kill(-c.Pid(), unix.SIGHUP)
				}
			}
		case err := <-errCh:
			c.log.Warn("wait failed", "error", err)
			return ExitCode(1)
		case code := <-done:
			return code
		case <-ctx.Done():
			_ = unix.Kill(-c.Pid(), unix.SIGKILL)
		}
	}
}

func exitCodeFromWaitStatus(ws unix.WaitStatus) ExitCode {
	switch {
	case ws.Exited():
		return ExitCode(ws.ExitStatus())
	case ws.Signaled():
		if userDrivenSignals[ws.Signal()] {
			return 0
		}
		return 1
	default:
		return 1
	}
}
