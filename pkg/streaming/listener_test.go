// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerDispatchesByKind(t *testing.T) {
	ln, err := NewListener("127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var received []string
	done := make(chan struct{}, 1)

	ln.Handle("granted", func(ctx context.Context, env Envelope) error {
		mu.Lock()
		received = append(received, env.Kind)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- ln.Serve(ctx) }()

	conn, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send("granted", map[string]int{"job_id": 42}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	assert.Equal(t, []string{"granted"}, received)
	mu.Unlock()
}

func TestListenerIgnoresUnregisteredKind(t *testing.T) {
	ln, err := NewListener("127.0.0.1:0")
	require.NoError(t, err)

	hit := make(chan struct{}, 1)
	ln.Handle("granted", func(ctx context.Context, env Envelope) error {
		hit <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	conn, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send("unknown-kind", map[string]string{}))
	require.NoError(t, conn.Send("granted", map[string]string{}))

	select {
	case <-hit:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the registered kind to still be dispatched")
	}
}

func TestEnvelopePayloadRoundTrip(t *testing.T) {
	type grantedMsg struct {
		JobID uint32 `json:"job_id"`
	}
	raw, err := json.Marshal(grantedMsg{JobID: 7})
	require.NoError(t, err)

	env := Envelope{Kind: "granted", Payload: raw}
	var decoded grantedMsg
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, uint32(7), decoded.JobID)
}
