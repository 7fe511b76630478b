package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentCDF(t *testing.T) {
	// Symmetry around zero.
	for _, df := range []float64{1, 2, 5, 10, 30, 100} {
		assert.InDelta(t, 0.5, StudentCDF(0, df), 1e-12, "df=%v", df)
		assert.InDelta(t, 1.0, StudentCDF(2.0, df)+StudentCDF(-2.0, df), 1e-12, "df=%v", df)
	}

	// Known value: P(T <= 2.0) with df=10 is 0.96330 (two-tailed p 0.0734).
	assert.InDelta(t, 0.96330, StudentCDF(2.0, 10), 1e-4)

	// With huge df the t-distribution converges to the standard normal.
	assert.InDelta(t, 0.975, StudentCDF(1.959964, 1e6), 1e-4)

	// Infinite statistics are saturated, not NaN.
	assert.Equal(t, 1.0, StudentCDF(math.Inf(1), 5))
	assert.Equal(t, 0.0, StudentCDF(math.Inf(-1), 5))
	assert.True(t, math.IsNaN(StudentCDF(1, 0)))
}

func TestWelchKnownSamples(t *testing.T) {
	// [1,2,3,4,5] vs [2,4,6,8,10]: scipy reports t=-1.8974, p=0.1073.
	tStat, p := Welch(3.0, 1.5811388, 5, 6.0, 3.1622777, 5)
	assert.InDelta(t, -1.8974, tStat, 1e-3)
	assert.InDelta(t, 0.1073, p, 2e-3)
}

func TestWelchIdenticalDistributions(t *testing.T) {
	// baseline=[1,1] vs candidate=[1,1]: no difference, no significance.
	tStat, p := Welch(1.0, 0, 2, 1.0, 0, 2)
	assert.Equal(t, 0.0, tStat)
	assert.Equal(t, 1.0, p)
}

func TestWelchZeroVarianceDifferentMeans(t *testing.T) {
	// baseline=[1,1,1] vs candidate=[0,0,0]: deterministic difference.
	tStat, p := Welch(1.0, 0, 3, 0.0, 0, 3)
	assert.True(t, math.IsInf(tStat, 1))
	assert.Equal(t, 0.0, p)

	tStat, p = Welch(0.0, 0, 3, 1.0, 0, 3)
	assert.True(t, math.IsInf(tStat, -1))
	assert.Equal(t, 0.0, p)
}

func TestWelchTooFewSamples(t *testing.T) {
	tStat, p := Welch(1.0, 0, 1, 0.0, 0, 1)
	assert.Equal(t, 0.0, tStat)
	assert.Equal(t, 1.0, p)

	tStat, p = Welch(1.0, 0.5, 5, 0.0, 0, 1)
	assert.Equal(t, 0.0, tStat)
	assert.Equal(t, 1.0, p)
}

func TestSatterthwaite(t *testing.T) {
	// Equal variances and sizes reduce to n1+n2-2.
	df := satterthwaite(1.0, 5, 1.0, 5)
	assert.InDelta(t, 8.0, df, 1e-9)

	// Known mixed case from the Welch sample test.
	df = satterthwaite(1.5811388, 5, 3.1622777, 5)
	assert.InDelta(t, 5.882, df, 1e-2)
}

func TestConfidenceInterval(t *testing.T) {
	lo, hi := ConfidenceInterval(6.0, 3.1622777, 5, 3.0, 1.5811388, 5, 0.05)
	require.Less(t, lo, hi)
	// Interval must straddle the point estimate and, at p=0.107, zero too.
	assert.Less(t, lo, 3.0)
	assert.Greater(t, hi, 3.0)
	assert.Less(t, lo, 0.0)

	// Degenerate inputs collapse to the point difference.
	lo, hi = ConfidenceInterval(1.0, 0, 1, 0.0, 0, 1, 0.05)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestStudentQuantile(t *testing.T) {
	// Round trip through the CDF.
	for _, df := range []float64{3, 10, 50} {
		q := studentQuantile(0.975, df)
		assert.InDelta(t, 0.975, StudentCDF(q, df), 1e-6, "df=%v", df)
	}
	// df=10, 97.5th percentile is 2.2281.
	assert.InDelta(t, 2.2281, studentQuantile(0.975, 10), 1e-3)
}

func TestComputeStats(t *testing.T) {
	cs := ComputeStats("c", []float64{1, 2, 3, math.NaN(), math.Inf(1)})
	assert.Equal(t, 3, cs.N)
	assert.InDelta(t, 2.0, cs.Mean, 1e-9)
	assert.InDelta(t, 1.0, cs.Stddev, 1e-9)

	empty := ComputeStats("e", nil)
	assert.Equal(t, 0, empty.N)
	assert.Zero(t, empty.Mean)

	single := ComputeStats("s", []float64{0.7})
	assert.Equal(t, 1, single.N)
	assert.InDelta(t, 0.7, single.Mean, 1e-9)
	assert.Zero(t, single.Stddev)
}
