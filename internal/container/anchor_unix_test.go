// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDialTimeout = 2 * time.Second

func serveOneAnchorReply(t *testing.T, sockPath string, reply anchorReply) {
	t.Helper()
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req anchorRequest
		if err := json.NewDecoder(conn).Decode(&req); err != nil {
			return
		}
		json.NewEncoder(conn).Encode(reply)
	}()
}

func TestUnixAnchorStartSucceeds(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "anchor.sock")
	serveOneAnchorReply(t, sock, anchorReply{OK: true, JobID: 77, StepID: 1})

	a := &unixAnchor{socketPath: sock, dialTO: testDialTimeout}
	jobID, stepID, err := a.Start(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(77), jobID)
	assert.Equal(t, int64(1), stepID)
}

func TestUnixAnchorRefusalSurfacesError(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "anchor.sock")
	serveOneAnchorReply(t, sock, anchorReply{OK: false, Error: "busy"})

	a := &unixAnchor{socketPath: sock, dialTO: testDialTimeout}
	_, _, err := a.Start(context.Background(), "c-1")
	assert.Error(t, err)
}

func TestUnixAnchorGoneIsTransportError(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "missing.sock")

	a := &unixAnchor{socketPath: sock, dialTO: testDialTimeout}
	err := a.Delete(context.Background(), "c-1")
	assert.Error(t, err)
}

func TestUnixAnchorKillEncodesSignal(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "anchor.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	gotSig := make(chan int, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req anchorRequest
		json.NewDecoder(conn).Decode(&req)
		var args struct {
			Signal int `json:"signal"`
		}
		json.Unmarshal(req.Args, &args)
		gotSig <- args.Signal
		json.NewEncoder(conn).Encode(anchorReply{OK: true})
	}()

	a := &unixAnchor{socketPath: sock, dialTO: testDialTimeout}
	require.NoError(t, a.Kill(context.Background(), "c-1", syscall.SIGTERM))
	assert.Equal(t, int(syscall.SIGTERM), <-gotSig)
}

func init() {
	// Ensure the temp-dir-based socket paths used in these tests stay
	// under the platform's sun_path length limit.
	if len(os.TempDir()) > 80 {
		panic("TMPDIR too long for unix socket tests")
	}
}
