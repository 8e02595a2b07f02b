package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baselineOutput = `goos: linux
goarch: amd64
pkg: github.com/MrEthical07/stagepass
BenchmarkValidateAccessToken-8   	  200000	      5000 ns/op	    2100 B/op	      30 allocs/op
BenchmarkValidateAccessToken-8   	  200000	      5200 ns/op	    2100 B/op	      30 allocs/op
BenchmarkRefreshSession-8        	   10000	    100000 ns/op	   12000 B/op	     180 allocs/op
BenchmarkMetricsInc-8            	100000000	        10 ns/op	       0 B/op	       0 allocs/op
BenchmarkLogin-8                 	     100	  12000000 ns/op
PASS
`

func TestParseKeepsTrackedBenchmarks(t *testing.T) {
	got, err := parse(strings.NewReader(baselineOutput))
	require.NoError(t, err)

	assert.Equal(t, []float64{5000, 5200}, got["BenchmarkValidateAccessToken"]["ns/op"])
	assert.Equal(t, []float64{30, 30}, got["BenchmarkValidateAccessToken"]["allocs/op"])
	assert.NotContains(t, got, "BenchmarkLogin")
}

func TestParseRejectsEmptyOutput(t *testing.T) {
	_, err := parse(strings.NewReader("PASS\n"))
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	baseline, err := parse(strings.NewReader(baselineOutput))
	require.NoError(t, err)

	t.Run("within threshold", func(t *testing.T) {
		rows, failures := compare(baseline, baseline, defaultThreshold)
		assert.Empty(t, failures)
		assert.Len(t, rows, 5)
		assert.Equal(t, "BenchmarkMetricsInc", rows[0].benchmark)
	})

	t.Run("regression", func(t *testing.T) {
		slower := strings.ReplaceAll(baselineOutput, "100000 ns/op", "200000 ns/op")
		candidate, err := parse(strings.NewReader(slower))
		require.NoError(t, err)

		_, failures := compare(baseline, candidate, defaultThreshold)
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0], "BenchmarkRefreshSession ns/op regressed")
	})

	t.Run("allocation appears", func(t *testing.T) {
		allocating := strings.ReplaceAll(baselineOutput, "0 B/op	       0 allocs/op", "8 B/op	       1 allocs/op")
		candidate, err := parse(strings.NewReader(allocating))
		require.NoError(t, err)

		_, failures := compare(baseline, candidate, defaultThreshold)
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0], "rose from 0")
	})

	t.Run("missing", func(t *testing.T) {
		_, failures := compare(baseline, samples{}, defaultThreshold)
		assert.Len(t, failures, 5)
	})
}

func TestNormalizeNameAndMedian(t *testing.T) {
	assert.Equal(t, "BenchmarkX", normalizeName("BenchmarkX-16"))
	assert.Equal(t, "BenchmarkX-y", normalizeName("BenchmarkX-y"))
	assert.Equal(t, 2.5, median([]float64{4, 1, 2, 3}))
	assert.Zero(t, median(nil))
}
