// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package restcontroller implements the allocclient.Controller and
// jobupdate.ResizeController interfaces against a slurmrestd-style HTTP
// API, reusing the teacher's pooled-transport, middleware, auth, and
// metrics stack instead of hand-rolling a bespoke HTTP client.
package restcontroller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hpcsched/alloc/internal/jobupdate"
	"github.com/hpcsched/alloc/internal/proto"
	"github.com/hpcsched/alloc/pkg/auth"
	allocconfig "github.com/hpcsched/alloc/pkg/config"
	apictx "github.com/hpcsched/alloc/pkg/context"
	allocerrors "github.com/hpcsched/alloc/pkg/errors"
	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/hpcsched/alloc/pkg/metrics"
	"github.com/hpcsched/alloc/pkg/middleware"
	"github.com/hpcsched/alloc/pkg/performance"
	"github.com/hpcsched/alloc/pkg/pool"
)

// Client implements allocclient.Controller and jobupdate.ResizeController
// by issuing REST calls to the controller's job-submission API.
type Client struct {
	base      *url.URL
	http      *http.Client
	auth      auth.Provider
	metrics   metrics.Collector
	nameCache *performance.ResponseCache
	log       logging.Logger
	timeout   time.Duration
}

// New builds a Client from cfg, authenticating with authProvider
// (auth.NewNoAuth() is acceptable for a controller with no auth
// configured). The HTTP transport comes from a pooled client keyed by
// cfg.ControllerAddr, wrapped in a timeout/logging middleware chain
// (§4.4, §4.7).
func New(cfg *allocconfig.Config, authProvider auth.Provider, collector metrics.Collector, log logging.Logger) (*Client, error) {
	base, err := url.Parse(fmt.Sprintf("http://%s", cfg.ControllerAddr))
	if err != nil {
		return nil, allocerrors.NewInternalError("malformed controller address", err)
	}

	clientPool := pool.NewHTTPClientPool(pool.DefaultPoolConfig(), log)
	transport := clientPool.GetClient(cfg.ControllerAddr).Transport

	chain := middleware.Chain(
		middleware.WithTimeout(cfg.Timeout),
		middleware.WithRequestID(func() string { return uuid.New().String() }),
		middleware.WithLogging(log),
	)
	httpClient := &http.Client{
		Transport: chain(transport),
		Timeout:   cfg.Timeout,
	}

	return &Client{
		base:      base,
		http:      httpClient,
		auth:      authProvider,
		metrics:   collector,
		nameCache: performance.NewResponseCache(performance.DefaultCacheConfig()),
		log:       log,
		timeout:   cfg.Timeout,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := apictx.EnsureTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return allocerrors.NewInternalError("cannot encode request body", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return allocerrors.NewInternalError("cannot build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.auth != nil {
		if err := c.auth.Authenticate(ctx, req); err != nil {
			return allocerrors.NewTransportError("authentication failed", err)
		}
	}

	c.metrics.RecordRequest(method, path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordError(method, path, err)
		if apictx.IsContextError(err) {
			return allocerrors.WrapError(apictx.WrapContextError(err, method+" "+path, c.timeout))
		}
		return allocerrors.WrapError(err)
	}
	defer resp.Body.Close()
	c.metrics.RecordResponse(method, path, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return allocerrors.NewTransportError("cannot read response body", err)
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, string(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return allocerrors.NewInternalError("cannot decode response body", err)
		}
	}
	return nil
}

func classifyStatus(status int, body string) error {
	switch status {
	case http.StatusConflict:
		return allocerrors.NewSubmitError(allocerrors.SubmitReasonQueueBusy, body)
	case http.StatusTooManyRequests:
		return allocerrors.NewSubmitError(allocerrors.SubmitReasonEAgain, body)
	case http.StatusNotFound:
		return allocerrors.NewValidationError("job_id", "job not found")
	default:
		return allocerrors.NewTransportError(fmt.Sprintf("controller returned status %d", status), nil)
	}
}

// Submit implements allocclient.Controller.
func (c *Client) Submit(ctx context.Context, req proto.SubmitRequest) (proto.AllocResponse, error) {
	var resp proto.AllocResponse
	err := c.do(ctx, http.MethodPost, "/slurm/v1/job/submit", req, &resp)
	return resp, err
}

// Readiness implements allocclient.Controller.
func (c *Client) Readiness(ctx context.Context, req proto.ReadinessRequest) (proto.ReadinessResponse, error) {
	var resp proto.ReadinessResponse
	path := fmt.Sprintf("/slurm/v1/job/%d/readiness", req.JobID)
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// Complete implements allocclient.Controller. A 404 from the controller
// means the job was already reaped; that is the idempotent ALREADY_DONE
// case the caller tolerates (§4.4), not a failure.
func (c *Client) Complete(ctx context.Context, req proto.CompleteRequest) (proto.CompleteResponse, error) {
	var resp proto.CompleteResponse
	path := fmt.Sprintf("/slurm/v1/job/%d/complete", req.JobID)
	err := c.do(ctx, http.MethodPost, path, req, &resp)
	if err != nil {
		if allocerrors.GetKind(err) == allocerrors.KindValidation {
			return proto.CompleteResponse{AlreadyDone: true}, allocerrors.NewAlreadyDoneError()
		}
		return resp, err
	}
	return resp, nil
}

type jobLookupResponse struct {
	JobIDs []string `json:"job_ids"`
}

// ResolveJobName implements jobupdate.Controller, caching lookups for the
// cache's default TTL since a burst of array-task updates for the same
// name resolves it repeatedly in quick succession.
func (c *Client) ResolveJobName(ctx context.Context, name string, uid int64, uidSet bool) ([]string, error) {
	params := map[string]any{"name": name, "uid": uid, "uid_set": uidSet}
	if cached, ok := c.nameCache.Get("resolve-job-name", params); ok {
		c.metrics.RecordCacheHit(name)
		var ids []string
		if err := json.Unmarshal(cached, &ids); err == nil {
			return ids, nil
		}
	}
	c.metrics.RecordCacheMiss(name)

	path := fmt.Sprintf("/slurm/v1/jobs?name=%s", url.QueryEscape(name))
	if uidSet {
		path += fmt.Sprintf("&uid=%d", uid)
	}

	var resp jobLookupResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp.JobIDs); err == nil {
		c.nameCache.Set("resolve-job-name", params, data)
	}
	return resp.JobIDs, nil
}

type timeLimitResponse struct {
	TimeLimitMinutes int64 `json:"time_limit_minutes"`
}

// CurrentTimeLimit implements jobupdate.Controller. The result is not
// cached: TimeLimit+=/-= must see the value as of right before the
// update, and performance.OpJobTimeLimit's short TTL exists for readers
// that can tolerate staleness, which this one cannot.
func (c *Client) CurrentTimeLimit(ctx context.Context, jobID string) (int64, error) {
	var resp timeLimitResponse
	path := fmt.Sprintf("/slurm/v1/job/%s", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.TimeLimitMinutes, err
}

type updateJobBody struct {
	JobID  string                          `json:"job_id"`
	Fields map[string]jobupdate.FieldValue `json:"fields"`
}

// UpdateJob implements jobupdate.Controller.
func (c *Client) UpdateJob(ctx context.Context, u jobupdate.Update) error {
	path := fmt.Sprintf("/slurm/v1/job/%s", url.PathEscape(u.JobID))
	return c.do(ctx, http.MethodPatch, path, updateJobBody{JobID: u.JobID, Fields: u.Fields}, nil)
}

type resizedEnvResponse struct {
	NodeList    string `json:"node_list"`
	NumNodes    int64  `json:"num_nodes"`
	NumTasks    int64  `json:"num_tasks"`
	CPUsPerNode string `json:"cpus_per_node"`
}

// ResizedEnv implements jobupdate.ResizeController.
func (c *Client) ResizedEnv(ctx context.Context, jobID string) (jobupdate.ResizeEnv, error) {
	var resp resizedEnvResponse
	path := fmt.Sprintf("/slurm/v1/job/%s/environment", url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return jobupdate.ResizeEnv{}, err
	}
	return jobupdate.ResizeEnv{
		JobID:       jobID,
		NodeList:    resp.NodeList,
		NumNodes:    resp.NumNodes,
		NumTasks:    resp.NumTasks,
		CPUsPerNode: resp.CPUsPerNode,
	}, nil
}

// Close releases the name-resolution cache's background cleanup goroutine.
func (c *Client) Close() {
	c.nameCache.Close()
}
