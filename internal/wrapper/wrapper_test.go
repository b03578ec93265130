// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package wrapper

import (
	"testing"

	"github.com/hpcsched/alloc/internal/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDescriptor(t *testing.T) *option.Descriptor {
	t.Helper()
	d, err := option.NewDefault()
	require.NoError(t, err)
	return d
}

func TestTranslateBSUBBasic(t *testing.T) {
	d := newDescriptor(t)
	body := "#!/bin/sh\n#BSUB -J myjob -q batch -W 01:00 -n 2,8 -x\necho hi\n"
	found, err := Translate(d, body, KindBSUB)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "myjob", d.JobName)
	assert.Equal(t, "batch", d.Partition)
	assert.Equal(t, int64(8), d.NumTasks)
	assert.True(t, d.Exclusive)
}

func TestTranslateBSUBHostSpaces(t *testing.T) {
	d := newDescriptor(t)
	body := "#BSUB -m \"node1 node2 node3\"\n"
	found, err := Translate(d, body, KindBSUB)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "node1,node2,node3", d.NodeList)
}

func TestTranslatePBSBasic(t *testing.T) {
	d := newDescriptor(t)
	body := "#PBS -N myjob -A acct -q batch -p -5\n"
	found, err := Translate(d, body, KindPBS)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "myjob", d.JobName)
	assert.Equal(t, "acct", d.Account)
	assert.Equal(t, "batch", d.Partition)
	assert.Equal(t, int64(-5), d.Nice)
}

func TestTranslatePBSResourceList(t *testing.T) {
	d := newDescriptor(t)
	body := "#PBS -l walltime=01:00:00,mem=4gb,file=2gb\n"
	found, err := Translate(d, body, KindPBS)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(60), d.TimeLimit)
	assert.Equal(t, int64(4096), d.MemPerNode)
	assert.Equal(t, int64(2048), d.TmpDiskMB)
}

func TestTranslatePBSProTriple(t *testing.T) {
	d := newDescriptor(t)
	body := "#PBS -l select=2:ncpus=8:mpiprocs=4\n"
	found, err := Translate(d, body, KindPBS)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), d.MinNodes)
	assert.Equal(t, int64(4), d.TasksPerNode)
	assert.Equal(t, int64(2), d.CPUsPerTask)
}

func TestTranslatePBSNodesOpt(t *testing.T) {
	d := newDescriptor(t)
	body := "#PBS -l nodes=4:ppn=2\n"
	found, err := Translate(d, body, KindPBS)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(4), d.MinNodes)
	assert.Equal(t, int64(8), d.NumTasks)
}

func TestTranslateNoDirectiveLines(t *testing.T) {
	d := newDescriptor(t)
	found, err := Translate(d, "#!/bin/sh\necho hi\n", KindBSUB)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestXlatePBSMailType(t *testing.T) {
	assert.Equal(t, "NONE", xlatePBSMailType("n"))
	assert.Equal(t, "BEGIN,END,FAIL", xlatePBSMailType("bea"))
}
