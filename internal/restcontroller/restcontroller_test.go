// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package restcontroller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hpcsched/alloc/internal/jobupdate"
	"github.com/hpcsched/alloc/internal/proto"
	"github.com/hpcsched/alloc/pkg/auth"
	allocconfig "github.com/hpcsched/alloc/pkg/config"
	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/hpcsched/alloc/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &allocconfig.Config{
		ControllerAddr: strings.TrimPrefix(srv.URL, "http://"),
		Timeout:        5 * time.Second,
	}
	c, err := New(cfg, auth.NewNoAuth(), metrics.NewInMemoryCollector(), logging.NewLogger(nil))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSubmitDecodesGrantResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slurm/v1/job/submit", r.URL.Path)
		json.NewEncoder(w).Encode(proto.AllocResponse{JobID: 99, NodeList: "node1", NumNodes: 1})
	})

	resp, err := c.Submit(context.Background(), proto.SubmitRequest{JobName: "demo"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), resp.JobID)
}

func TestSubmitConflictMapsToQueueBusy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("busy"))
	})

	_, err := c.Submit(context.Background(), proto.SubmitRequest{})
	assert.Error(t, err)
}

func TestCompleteNotFoundIsAlreadyDone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	resp, err := c.Complete(context.Background(), proto.CompleteRequest{JobID: 1, ExitStatus: 0})
	require.Error(t, err)
	assert.True(t, resp.AlreadyDone)
}

func TestResolveJobNameCachesSecondLookup(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(jobLookupResponse{JobIDs: []string{"7", "8"}})
	})

	ids, err := c.ResolveJobName(context.Background(), "demo", 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, ids)

	ids, err = c.ResolveJobName(context.Background(), "demo", 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, ids)
	assert.Equal(t, 1, calls, "second lookup should be served from cache")
}

func TestDoWrapsContextDeadlineExceeded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	})
	c.timeout = 0

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	_, err := c.Submit(ctx, proto.SubmitRequest{})
	assert.Error(t, err)
}

func TestUpdateJobSendsFields(t *testing.T) {
	var gotBody updateJobBody
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	})

	u := jobupdate.Update{JobID: "42", Fields: map[string]jobupdate.FieldValue{
		"Priority": {Op: jobupdate.OpSet, Int: 10, IsSet: true},
	}}
	require.NoError(t, c.UpdateJob(context.Background(), u))
	assert.Equal(t, "42", gotBody.JobID)
	assert.Equal(t, int64(10), gotBody.Fields["Priority"].Int)
}
