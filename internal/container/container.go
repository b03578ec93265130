// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package container implements the OCI runtime front-end (§4.6): the
// create/start/state/kill/delete/version verb dispatch, socket-path
// hashing, and status projection that let an allocation be driven through
// the same protocol as an interactive job.
package container

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Status is the OCI container lifecycle state reported by `state`.
type Status string

const (
	StatusCreating Status = "creating"
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
)

// internalStatus is the anchor process's own state vocabulary, distinct
// from the OCI set and projected onto it by ProjectStatus.
type internalStatus string

const (
	internalStarting internalStatus = "starting"
	internalRunning  internalStatus = "running"
	internalStopping internalStatus = "stopping"
	internalStopped  internalStatus = "stopped"
	internalUnknown  internalStatus = "unknown"
)

// ProjectStatus maps the anchor's internal status onto the OCI set:
// starting→creating, {stopping,unknown,anything at or past stopped}→
// stopped, everything else passes through lowercased (§4.6).
func ProjectStatus(s string) Status {
	switch internalStatus(strings.ToLower(s)) {
	case internalStarting:
		return StatusCreating
	case internalStopping, internalUnknown, internalStopped:
		return StatusStopped
	case internalRunning:
		return StatusRunning
	default:
		return Status(strings.ToLower(s))
	}
}

// State is the JSON document `state <id>` emits (§4.6).
type State struct {
	OCIVersion  string            `json:"ociVersion"`
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	Pid         int               `json:"pid,omitempty"`
	Bundle      string            `json:"bundle"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Spec is the subset of an OCI bundle's config.json this front-end reads.
type Spec struct {
	OCIVersion  string            `json:"ociVersion"`
	Root        SpecRoot          `json:"root"`
	Process     SpecProcess       `json:"process"`
	Annotations map[string]string `json:"annotations"`
}

type SpecRoot struct {
	Path string `json:"path"`
}

type SpecProcess struct {
	Terminal bool     `json:"terminal"`
	Env      []string `json:"env"`
}

// envPrefixes names the environment-variable prefixes propagated from the
// bundle spec into the anchor process's environment (§4.6).
var envPrefixes = []string{"SCRUN_", "SLURM_"}

// Container holds everything `create` learns about a bundle before the
// anchor process is spawned.
type Container struct {
	ID          string
	Bundle      string
	Root        string
	OCIVersion  string
	Annotations map[string]string
	Terminal    bool
	Env         []string
	SpoolDir    string
	Pid         int
	Status      internalStatus
}

// LoadSpec reads and parses <bundle>/config.json.
func LoadSpec(bundle string) (*Spec, error) {
	data, err := os.ReadFile(filepath.Join(bundle, "config.json"))
	if err != nil {
		return nil, allocerrors.NewInternalError("cannot read bundle config", err)
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, allocerrors.NewParseError(bundle, "malformed config.json")
	}
	return &spec, nil
}

// Create builds a Container from a loaded spec: resolves the root path
// (absolute, or relative to the bundle), filters the propagated
// environment, and creates the per-container spool directory under
// runtimeRoot with mode 0700.
func Create(id, bundle, runtimeRoot string, spec *Spec) (*Container, error) {
	root := spec.Root.Path
	if !filepath.IsAbs(root) {
		root = filepath.Join(bundle, root)
	}

	var env []string
	for _, kv := range spec.Process.Env {
		for _, prefix := range envPrefixes {
			if strings.HasPrefix(kv, prefix) {
				env = append(env, kv)
				break
			}
		}
	}

	spool := filepath.Join(runtimeRoot, id)
	if err := os.MkdirAll(spool, 0o700); err != nil {
		return nil, allocerrors.NewInternalError("cannot create container spool directory", err)
	}

	return &Container{
		ID:          id,
		Bundle:      bundle,
		Root:        root,
		OCIVersion:  spec.OCIVersion,
		Annotations: spec.Annotations,
		Terminal:    spec.Process.Terminal,
		Env:         env,
		SpoolDir:    spool,
		Status:      internalStarting,
	}, nil
}

// containerMeta is the on-disk record of a Container's identity,
// persisted to <spoolDir>/meta.json by Create. Every OCI engine invokes
// create/start/state/kill/delete as separate processes, so later verbs
// rehydrate a Container from this file rather than from the in-memory
// state the original create call built (§4.6).
type containerMeta struct {
	ID          string            `json:"id"`
	Bundle      string            `json:"bundle"`
	Root        string            `json:"root"`
	OCIVersion  string            `json:"ociVersion"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Terminal    bool              `json:"terminal"`
	Env         []string          `json:"env,omitempty"`
	SpoolDir    string            `json:"spoolDir"`
	Pid         int               `json:"pid,omitempty"`
	Status      internalStatus    `json:"status"`
}

func metaPath(spoolDir string) string {
	return filepath.Join(spoolDir, "meta.json")
}

// SaveMeta persists c's current identity and status so a later process
// can reconstruct it with LoadMeta.
func (c *Container) SaveMeta() error {
	data, err := json.Marshal(containerMeta{
		ID:          c.ID,
		Bundle:      c.Bundle,
		Root:        c.Root,
		OCIVersion:  c.OCIVersion,
		Annotations: c.Annotations,
		Terminal:    c.Terminal,
		Env:         c.Env,
		SpoolDir:    c.SpoolDir,
		Pid:         c.Pid,
		Status:      c.Status,
	})
	if err != nil {
		return allocerrors.NewInternalError("cannot encode container metadata", err)
	}
	if err := os.WriteFile(metaPath(c.SpoolDir), data, 0o600); err != nil {
		return allocerrors.NewInternalError("cannot persist container metadata", err)
	}
	return nil
}

// LoadMeta reconstructs a Container from the metadata a prior process's
// Create persisted under runtimeRoot/<id>/meta.json.
func LoadMeta(runtimeRoot, id string) (*Container, error) {
	spool := filepath.Join(runtimeRoot, id)
	data, err := os.ReadFile(metaPath(spool))
	if err != nil {
		return nil, allocerrors.NewValidationError("id", fmt.Sprintf("no such container %q", id))
	}
	var m containerMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, allocerrors.NewInternalError("cannot decode container metadata", err)
	}
	return &Container{
		ID:          m.ID,
		Bundle:      m.Bundle,
		Root:        m.Root,
		OCIVersion:  m.OCIVersion,
		Annotations: m.Annotations,
		Terminal:    m.Terminal,
		Env:         m.Env,
		SpoolDir:    m.SpoolDir,
		Pid:         m.Pid,
		Status:      m.Status,
	}, nil
}

// ToState projects a Container into the JSON document `state` emits.
func (c *Container) ToState() State {
	return State{
		OCIVersion:  c.OCIVersion,
		ID:          c.ID,
		Status:      ProjectStatus(string(c.Status)),
		Pid:         c.Pid,
		Bundle:      c.Bundle,
		Annotations: c.Annotations,
	}
}

// IsTerminal reports whether the container has reached a terminal OCI
// state, used by kill/delete to short-circuit an RPC.
func (c *Container) IsTerminal() bool {
	return ProjectStatus(string(c.Status)) == StatusStopped
}

// SocketHashKey is the keyed-hash key used to derive per-container socket
// paths; callers supply a per-runtime-install secret (§4.6 names the
// scheme but leaves key management to the deployment).
type SocketHashKey [32]byte

// SocketPath computes a deterministic path under runtimeRoot by hashing
// "scrun-<user>-anchor-<id>" with a keyed BLAKE2b hash and formatting the
// first nine bytes as lower-case hex, collapsing an arbitrarily long OCI
// container id into a path that fits the platform's unix-socket length
// limit (§4.6).
func SocketPath(runtimeRoot, user, id string, key SocketHashKey) (string, error) {
	h, err := blake2b.New(9, key[:])
	if err != nil {
		return "", allocerrors.NewInternalError("cannot initialize socket hash", err)
	}
	fmt.Fprintf(h, "scrun-%s-anchor-%s", user, id)
	sum := h.Sum(nil)
	return filepath.Join(runtimeRoot, hex.EncodeToString(sum)), nil
}

// RuntimeRoot selects the runtime root directory when none is passed on
// the CLI: the first writable+readable candidate among $XDG_RUNTIME_DIR,
// /run/user/$UID, $TMPDIR/$UID wins. Running as uid 0 inside what looks
// like a user namespace is a fatal error requiring an explicit --root.
func RuntimeRoot(uid int, insideUserNS bool) (string, error) {
	if uid == 0 && insideUserNS {
		return "", allocerrors.NewValidationError("root",
			"refusing to guess runtime root as uid 0 in a user namespace; pass --root explicitly")
	}

	candidates := []string{
		os.Getenv("XDG_RUNTIME_DIR"),
		fmt.Sprintf("/run/user/%d", uid),
		filepath.Join(envOr("TMPDIR", "/tmp"), fmt.Sprintf("%d", uid)),
	}

	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if isWritableDir(dir) {
			return dir, nil
		}
	}

	return "", allocerrors.NewInternalError("no writable runtime root candidate found", nil)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func isWritableDir(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".scrun-write-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// Anchor is the narrow RPC surface the container verbs need from the
// per-container anchor process.
type Anchor interface {
	Start(ctx context.Context, id string) (jobID, stepID int64, err error)
	State(ctx context.Context, id string) (internalStatus string, pid int, err error)
	Kill(ctx context.Context, id string, sig syscall.Signal) error
	Delete(ctx context.Context, id string) error
}
