// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobupdate

import (
	"context"
	"testing"

	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	timeLimits map[string]int64
	updates    []Update
	names      map[string][]string
	resizeEnv  ResizeEnv
}

func (f *fakeController) ResolveJobName(ctx context.Context, name string, uid int64, uidSet bool) ([]string, error) {
	return f.names[name], nil
}

func (f *fakeController) CurrentTimeLimit(ctx context.Context, jobID string) (int64, error) {
	return f.timeLimits[jobID], nil
}

func (f *fakeController) UpdateJob(ctx context.Context, u Update) error {
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeController) ResizedEnv(ctx context.Context, jobID string) (ResizeEnv, error) {
	return f.resizeEnv, nil
}

func TestParseTokenOperators(t *testing.T) {
	tok, err := ParseToken("TimeLimit+=01:00:00")
	require.NoError(t, err)
	assert.Equal(t, "TimeLimit", tok.Key)
	assert.Equal(t, OpAdd, tok.Op)
	assert.Equal(t, "01:00:00", tok.Value)

	tok, err = ParseToken("AdminComment-=x")
	require.NoError(t, err)
	assert.Equal(t, OpSub, tok.Op)

	_, err = ParseToken("garbage")
	assert.Error(t, err)
}

func TestResolveFieldPrefixMatch(t *testing.T) {
	f, err := resolveField("TimeL")
	require.NoError(t, err)
	assert.Equal(t, "TimeLimit", f.name)

	_, err = resolveField("Time")
	assert.Error(t, err, "prefix shorter than minLen must be rejected")

	f, err = resolveField("Pri")
	require.NoError(t, err)
	assert.Equal(t, "Priority", f.name)
}

func TestArrayExpansionOnTimeLimitIncrement(t *testing.T) {
	ctrl := &fakeController{timeLimits: map[string]int64{
		"100_1": 60, "100_2": 60, "100_3": 60,
	}}
	req, err := ParseArgs([]string{"JobId=100_[1-3]", "TimeLimit+=01:00:00"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	require.Len(t, ctrl.updates, 3)
	for _, u := range ctrl.updates {
		assert.Equal(t, int64(120), u.Fields["TimeLimit"].Int)
	}
}

func TestTimeLimitDecrementPastZeroRejected(t *testing.T) {
	ctrl := &fakeController{timeLimits: map[string]int64{"42": 30}}
	req, err := ParseArgs([]string{"JobId=42", "TimeLimit-=01:00:00"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestAdminCommentSubtractionRejected(t *testing.T) {
	ctrl := &fakeController{}
	req, err := ParseArgs([]string{"JobId=42", "AdminComment-=oops"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestNumNodesZeroReleasesAll(t *testing.T) {
	ctrl := &fakeController{}
	req, err := ParseArgs([]string{"JobId=42", "NumNodes=0"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(0), ctrl.updates[0].Fields["NumNodes"].Int)
	assert.True(t, results[0].Resized)
}

func TestNumNodesAllIsInfinite(t *testing.T) {
	ctrl := &fakeController{}
	req, err := ParseArgs([]string{"JobId=42", "NumNodes=ALL"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(Infinite), ctrl.updates[0].Fields["NumNodes"].Int)
}

func TestGresHelpSentinel(t *testing.T) {
	ctrl := &fakeController{}
	req, err := ParseArgs([]string{"JobId=42", "Gres=help"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.Len(t, results, 1)
	assert.True(t, IsGresHelp(results[0].Err))
}

func TestNameWithoutJobIDResolvesViaController(t *testing.T) {
	ctrl := &fakeController{names: map[string][]string{"demo": {"7", "8"}}}
	req, err := ParseArgs([]string{"Name=demo", "Priority=10"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestMinMemoryCPUSetsPerCPUField(t *testing.T) {
	ctrl := &fakeController{}
	req, err := ParseArgs([]string{"JobId=42", "MinMemoryCPU=2G"})
	require.NoError(t, err)

	results := ApplyAll(context.Background(), ctrl, req)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(2048), ctrl.updates[0].Fields["MinMemoryCPU"].Int)
}

func TestClientRunWritesResizeScriptsForSingleNonArrayJob(t *testing.T) {
	dir := t.TempDir()
	ctrl := &fakeController{resizeEnv: ResizeEnv{JobID: "42", NodeList: "node[1-2]", NumNodes: 2, NumTasks: 2}}
	c := NewClient(ctrl, dir, logging.NewLogger(nil))

	results, err := c.Run(context.Background(), []string{"JobId=42", "NumNodes=2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	assert.FileExists(t, dir+"/slurm_42_resize.sh")
	assert.FileExists(t, dir+"/slurm_42_resize.csh")
}

func TestClientRunSkipsResizeScriptsForArrayExpr(t *testing.T) {
	dir := t.TempDir()
	ctrl := &fakeController{}
	c := NewClient(ctrl, dir, logging.NewLogger(nil))

	_, err := c.Run(context.Background(), []string{"JobId=100_[1-2]", "NumNodes=2"})
	require.NoError(t, err)
}
