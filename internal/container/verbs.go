// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
	"github.com/hpcsched/alloc/pkg/logging"
)

// RuntimeVersion is reported by the `version` verb.
const RuntimeVersion = "1.0.0"

// SpecVersion is the OCI runtime-spec version this front-end implements.
const SpecVersion = "1.0.2-dev"

// Store tracks the set of containers this runtime root knows about,
// keyed by OCI container id. Unlike runc's in-memory state, every OCI
// engine invokes create/start/state/kill/delete as separate processes,
// so a Store is rebuilt from scratch on each invocation: a lookup miss
// against the in-memory map falls back to the spool directory's
// persisted metadata (§4.6) rather than failing outright.
type Store struct {
	mu     sync.Mutex
	byID   map[string]*entry
	root   string
	anchor func(c *Container) (Anchor, error)
	log    logging.Logger
}

type entry struct {
	container *Container
	anchor    Anchor
}

// NewStore builds a Store rooted at runtimeRoot. anchorDialer opens (or
// reuses) the RPC connection to a container's anchor process once it
// needs one; it is called lazily by Start, State, Kill and Delete, not by
// Create.
func NewStore(runtimeRoot string, anchorDialer func(c *Container) (Anchor, error), log logging.Logger) *Store {
	return &Store{byID: make(map[string]*entry), root: runtimeRoot, anchor: anchorDialer, log: log}
}

// Create loads the bundle's config.json, reserves the spool directory,
// persists the container's metadata so a later invocation can find it,
// and registers the container under id. It is an error to create an id
// that already exists.
func (s *Store) Create(id, bundle string) (*Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[id]; exists {
		return nil, allocerrors.NewValidationError("id", fmt.Sprintf("container %q already exists", id))
	}
	if _, err := LoadMeta(s.root, id); err == nil {
		return nil, allocerrors.NewValidationError("id", fmt.Sprintf("container %q already exists", id))
	}

	spec, err := LoadSpec(bundle)
	if err != nil {
		return nil, err
	}
	c, err := Create(id, bundle, s.root, spec)
	if err != nil {
		return nil, err
	}
	if err := c.SaveMeta(); err != nil {
		return nil, err
	}

	s.byID[id] = &entry{container: c}
	return c, nil
}

// Start submits the anchor's allocation request and transitions the
// container to running. The anchor connection is dialed on first use.
func (s *Store) Start(ctx context.Context, id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	anc, err := s.anchorFor(e)
	if err != nil {
		return err
	}

	jobID, _, err := anc.Start(ctx, id)
	if err != nil {
		s.setStatus(e, internalStopped)
		return allocerrors.WrapError(err)
	}

	s.mu.Lock()
	e.container.Pid = int(jobID)
	e.container.Status = internalRunning
	s.mu.Unlock()
	if err := e.container.SaveMeta(); err != nil {
		s.log.Warn("cannot persist container metadata after start", "id", id, "error", err)
	}
	return nil
}

// State returns the current state document for id, refreshing it from
// the anchor. The anchor is reachable from any process via the
// deterministic socket-path hash, so this dials (or reuses) the
// connection rather than requiring Start to have run earlier in the same
// process.
func (s *Store) State(ctx context.Context, id string) (State, error) {
	e, err := s.lookup(id)
	if err != nil {
		return State{}, err
	}

	anc, ancErr := s.anchorFor(e)
	if ancErr != nil {
		s.log.Warn("cannot reach container anchor, reporting last known status", "id", id, "error", ancErr)
	} else {
		status, pid, err := anc.State(ctx, id)
		if err == nil {
			s.mu.Lock()
			e.container.Status = internalStatus(status)
			e.container.Pid = pid
			s.mu.Unlock()
			if err := e.container.SaveMeta(); err != nil {
				s.log.Warn("cannot persist refreshed container metadata", "id", id, "error", err)
			}
		} else {
			s.log.Warn("state refresh failed, reporting last known status", "id", id, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return e.container.ToState(), nil
}

// StateJSON renders State as the indented JSON document the OCI runtime
// contract expects on stdout.
func StateJSON(st State) ([]byte, error) {
	return json.MarshalIndent(st, "", "  ")
}

// Kill delivers sig to the container. If the anchor is reachable the
// signal is routed through it (the anchor forwards to the job); otherwise
// it is sent directly to the recorded pid as a fallback for a container
// whose anchor already exited.
func (s *Store) Kill(ctx context.Context, id string, sig syscall.Signal) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if e.container.IsTerminal() {
		return allocerrors.NewValidationError("id", fmt.Sprintf("container %q is not running", id))
	}

	if anc, ancErr := s.anchorFor(e); ancErr == nil {
		if err := anc.Kill(ctx, id, sig); err == nil {
			return nil
		}
		s.log.Warn("anchor kill failed, falling back to direct signal", "id", id)
	} else {
		s.log.Warn("cannot reach container anchor, falling back to direct signal", "id", id, "error", ancErr)
	}

	s.mu.Lock()
	pid := e.container.Pid
	s.mu.Unlock()

	if pid <= 0 {
		return allocerrors.NewInternalError("no pid recorded for container", nil)
	}
	return syscall.Kill(pid, sig)
}

// Delete removes a container's bookkeeping and spool directory. A
// container that is still running is refused unless force is set, in
// which case it is killed with SIGKILL first.
func (s *Store) Delete(ctx context.Context, id string, force bool) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	if !e.container.IsTerminal() {
		if !force {
			return allocerrors.NewValidationError("id", fmt.Sprintf("container %q is still running, use --force", id))
		}
		if err := s.Kill(ctx, id, syscall.SIGKILL); err != nil {
			s.log.Warn("force-delete kill failed", "id", id, "error", err)
		}
	}

	anc, ancErr := s.anchorFor(e)

	s.mu.Lock()
	spool := e.container.SpoolDir
	delete(s.byID, id)
	s.mu.Unlock()

	if ancErr == nil {
		if err := anc.Delete(ctx, id); err != nil {
			s.log.Warn("anchor delete failed", "id", id, "error", err)
		}
	} else {
		s.log.Warn("cannot reach container anchor for delete", "id", id, "error", ancErr)
	}

	if spool != "" {
		if err := os.RemoveAll(spool); err != nil {
			return allocerrors.NewInternalError("cannot remove spool directory", err)
		}
	}
	return nil
}

// Version reports the runtime and spec versions, matching the document
// `scrun --version`/`version` emits.
func Version() map[string]string {
	return map[string]string{
		"runtime": RuntimeVersion,
		"spec":    SpecVersion,
	}
}

// lookup finds id's entry in the in-memory map, falling back to the
// spool directory's persisted metadata on a miss: the process that ran
// Create is almost never the process running the later verb.
func (s *Store) lookup(id string) (*entry, error) {
	s.mu.Lock()
	if e, ok := s.byID[id]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	c, err := LoadMeta(s.root, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		return e, nil
	}
	e := &entry{container: c}
	s.byID[id] = e
	return e, nil
}

func (s *Store) anchorFor(e *entry) (Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.anchor != nil {
		return e.anchor, nil
	}
	anc, err := s.anchor(e.container)
	if err != nil {
		return nil, allocerrors.NewTransportError("cannot reach container anchor", err)
	}
	e.anchor = anc
	return anc, nil
}

func (s *Store) setStatus(e *entry, st internalStatus) {
	s.mu.Lock()
	e.container.Status = st
	s.mu.Unlock()
	if err := e.container.SaveMeta(); err != nil {
		s.log.Warn("cannot persist container metadata", "id", e.container.ID, "error", err)
	}
}
