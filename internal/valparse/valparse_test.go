// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeCountSingle(t *testing.T) {
	for _, n := range []string{"1", "5", "128"} {
		nc, err := ParseNodeCount(n)
		require.NoError(t, err)
		assert.Equal(t, nc.Min, nc.Max)
	}
}

func TestParseNodeCountRange(t *testing.T) {
	nc, err := ParseNodeCount("2-8")
	require.NoError(t, err)
	assert.Equal(t, int64(2), nc.Min)
	assert.Equal(t, int64(8), nc.Max)
}

func TestParseNodeCountSuffix(t *testing.T) {
	nc, err := ParseNodeCount("2k")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), nc.Min)
}

func TestParseNodeCountRejectsWhitespace(t *testing.T) {
	_, err := ParseNodeCount(" 2")
	assert.Error(t, err)
}

func TestParseNodeCountHostfilePath(t *testing.T) {
	_, err := ParseNodeCount("/tmp/hosts")
	assert.Error(t, err)
}

func TestParseNodeCountMaxLessThanMin(t *testing.T) {
	_, err := ParseNodeCount("8-2")
	assert.Error(t, err)
}

func TestParseTimeRoundTrip(t *testing.T) {
	cases := []struct {
		d, h, m, s int64
	}{
		{0, 0, 0, 0}, {1, 2, 3, 4}, {99, 23, 59, 59}, {0, 1, 0, 0}, {0, 0, 1, 30},
	}
	for _, c := range cases {
		s := timeString(c.d, c.h, c.m, c.s)
		got, err := ParseTime(s)
		require.NoError(t, err)
		want := 60*24*c.d + 60*c.h + c.m
		if c.s > 0 {
			want++
		}
		assert.Equal(t, want, got, "input %q", s)
	}
}

func timeString(d, h, m, s int64) string {
	return itoa(d) + "-" + itoa(h) + ":" + itoa(m) + ":" + itoa(s)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestParseTimeInfinite(t *testing.T) {
	got, err := ParseTime("INFINITE")
	require.NoError(t, err)
	assert.Equal(t, TimeInfinite, got)

	got, err = ParseTime("")
	require.NoError(t, err)
	assert.Equal(t, TimeInfinite, got)
}

func TestResolveTimeLimitZeroIsInfinite(t *testing.T) {
	got, err := ResolveTimeLimit(0)
	require.NoError(t, err)
	assert.Equal(t, TimeInfinite, got)
}

func TestResolveTimeLimitNegativeFatal(t *testing.T) {
	_, err := ResolveTimeLimit(-5)
	assert.Error(t, err)
}

func TestParseMemoryLaw(t *testing.T) {
	cases := []struct {
		suffix string
		scale  func(int64) int64
	}{
		{"K", func(n int64) int64 { return ceilDiv(n, 1024) }},
		{"M", func(n int64) int64 { return n }},
		{"G", func(n int64) int64 { return 1024 * n }},
		{"T", func(n int64) int64 { return 1024 * 1024 * n }},
	}
	for _, c := range cases {
		for _, n := range []int64{0, 1, 1024, 999999} {
			got, err := ParseMemory(itoa(n)+c.suffix, false)
			require.NoError(t, err)
			assert.Equal(t, c.scale(n), got)
		}
	}
}

func TestParseMemoryDefaultGBytes(t *testing.T) {
	got, err := ParseMemory("4", true)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), got)
}

func TestSignalRoundTrip(t *testing.T) {
	for name := range signalNumbers {
		n1, err := SignalNameToNum(name)
		require.NoError(t, err)
		n2, err := SignalNameToNum("SIG" + name)
		require.NoError(t, err)
		assert.Equal(t, n1, n2)
	}
}

func TestSignalNumericRoundTrip(t *testing.T) {
	n, err := SignalNameToNum("9")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestSignalWithBatchAndLeadTime(t *testing.T) {
	sig, err := ParseSignal("B:TERM@30")
	require.NoError(t, err)
	assert.True(t, sig.Batch)
	assert.Equal(t, int64(30), sig.LeadTime)
	assert.Equal(t, 15, sig.Num)
}

func TestParseDistributionDefaults(t *testing.T) {
	d, err := ParseDistribution("*")
	require.NoError(t, err)
	assert.Equal(t, DistBlock, d.Node)
	assert.Equal(t, DistCyclic, d.Socket)
}

func TestParseDistributionMultiLevel(t *testing.T) {
	d, err := ParseDistribution("cyclic:block:fcyclic,nopack")
	require.NoError(t, err)
	assert.Equal(t, DistCyclic, d.Node)
	assert.Equal(t, DistBlock, d.Socket)
	assert.Equal(t, DistFcyclic, d.Core)
	assert.True(t, d.PackSet)
	assert.False(t, d.Pack)
}

func TestParseDistributionUnknownToken(t *testing.T) {
	_, err := ParseDistribution("bogus")
	assert.Error(t, err)
}

func TestCheckPlaneLayout(t *testing.T) {
	err := CheckPlaneLayout(4, 2, 1)
	assert.Error(t, err)

	err = CheckPlaneLayout(2, 8, 4)
	assert.NoError(t, err)
}

func TestParseGeometry(t *testing.T) {
	g, err := ParseGeometry("2:3:4")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, g)
}

func TestParseGeometryRejectsZero(t *testing.T) {
	_, err := ParseGeometry("2:0")
	assert.Error(t, err)
}

func TestParseResourceTuple(t *testing.T) {
	rt, err := ParseResourceTuple("2:4:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rt.Sockets.Min)
	assert.Equal(t, int64(4), rt.Cores.Min)
	assert.Equal(t, int64(1), rt.Threads.Min)
}

func TestParseResourceTupleWildcard(t *testing.T) {
	rt, err := ParseResourceTuple("*:4")
	require.NoError(t, err)
	assert.False(t, rt.SocketsSet)
	assert.True(t, rt.CoresSet)
}

func TestParseMailType(t *testing.T) {
	assert.Equal(t, MailNone, ParseMailType("NONE"))
	assert.Equal(t, MailBegin|MailEnd, ParseMailType("BEGIN,END"))
	assert.Equal(t, MailNone, ParseMailType("BOGUS"))
}

func TestParseMailTypeAll(t *testing.T) {
	mask := ParseMailType("ALL")
	assert.NotZero(t, mask&MailBegin)
	assert.NotZero(t, mask&MailEnd)
	assert.NotZero(t, mask&MailFail)
}

func TestParseCompression(t *testing.T) {
	algo, warn := ParseCompression("")
	assert.Equal(t, DefaultCompression, algo)
	assert.False(t, warn)

	algo, warn = ParseCompression("bogus")
	assert.Equal(t, CompressionNone, algo)
	assert.True(t, warn)

	algo, warn = ParseCompression("LZ4")
	assert.Equal(t, CompressionLZ4, algo)
	assert.False(t, warn)
}

func TestFormatTRESList(t *testing.T) {
	assert.Equal(t, "gpu:a,gpu:b=2,gpu:c:3", FormatTRESList("gpu", "a,b=2,c:3"))
	assert.Equal(t, "", FormatTRESList("gpu", ""))
}
