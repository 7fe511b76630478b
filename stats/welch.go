// Package stats compares groups of evaluation runs. It implements Welch's
// t-test with a self-contained Student-t distribution so the module carries
// no external numerical dependency.
package stats

import "math"

const varianceEps = 1e-15

// Welch performs Welch's unequal-variance t-test on two summarized samples.
// It returns the t statistic and the two-tailed p-value.
//
// Groups with fewer than two samples cannot be tested: the result is (0, 1).
// Two zero-variance groups are a degenerate case: differing means are a
// deterministic difference (t = ±Inf, p = 0), equal means are no difference.
func Welch(mean1, sd1 float64, n1 int, mean2, sd2 float64, n2 int) (t, p float64) {
	if n1 < 2 || n2 < 2 {
		return 0, 1
	}
	if sd1 < varianceEps && sd2 < varianceEps {
		if math.Abs(mean1-mean2) < varianceEps {
			return 0, 1
		}
		if mean1 > mean2 {
			return math.Inf(1), 0
		}
		return math.Inf(-1), 0
	}

	se := math.Sqrt(sd1*sd1/float64(n1) + sd2*sd2/float64(n2))
	if se == 0 {
		return 0, 1
	}
	t = (mean1 - mean2) / se

	df := satterthwaite(sd1, n1, sd2, n2)
	if df < 1 {
		return t, 1
	}

	p = 2 * (1 - StudentCDF(math.Abs(t), df))
	return t, clamp01(p)
}

// ConfidenceInterval returns the (1-alpha) confidence interval for the
// difference in means (mean1 - mean2). For untestable or zero-variance
// inputs the interval collapses to the point difference.
func ConfidenceInterval(mean1, sd1 float64, n1 int, mean2, sd2 float64, n2 int, alpha float64) (lo, hi float64) {
	diff := mean1 - mean2
	if n1 < 2 || n2 < 2 {
		return diff, diff
	}
	if sd1 < varianceEps && sd2 < varianceEps {
		return diff, diff
	}

	se := math.Sqrt(sd1*sd1/float64(n1) + sd2*sd2/float64(n2))
	df := satterthwaite(sd1, n1, sd2, n2)
	if df < 1 {
		return diff, diff
	}

	margin := studentQuantile(1-alpha/2, df) * se
	return diff - margin, diff + margin
}

// satterthwaite computes the Welch-Satterthwaite approximation of the
// degrees of freedom.
func satterthwaite(sd1 float64, n1 int, sd2 float64, n2 int) float64 {
	if n1 < 2 || n2 < 2 {
		return 0
	}
	v1 := sd1 * sd1 / float64(n1)
	v2 := sd2 * sd2 / float64(n2)
	num := (v1 + v2) * (v1 + v2)
	denom := v1*v1/float64(n1-1) + v2*v2/float64(n2-1)
	if denom == 0 {
		return 0
	}
	return num / denom
}

// StudentCDF evaluates P(T <= t) for a Student-t distribution with df degrees
// of freedom, via the regularized incomplete beta function.
func StudentCDF(t, df float64) float64 {
	if df <= 0 {
		return math.NaN()
	}
	if math.IsInf(t, 1) {
		return 1
	}
	if math.IsInf(t, -1) {
		return 0
	}
	x := df / (df + t*t)
	tail := 0.5 * regIncompleteBeta(df/2, 0.5, x)
	if t >= 0 {
		return 1 - tail
	}
	return tail
}

// studentQuantile inverts StudentCDF by bisection. Accuracy is far beyond
// what a confidence-interval margin needs.
func studentQuantile(p, df float64) float64 {
	if p <= 0.5 {
		return 0
	}
	lo, hi := 0.0, 1e3
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if StudentCDF(mid, df) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// regIncompleteBeta evaluates the regularized incomplete beta function
// I_x(a, b) using the continued-fraction expansion, switching to the
// symmetric form where the fraction converges fastest.
func regIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	front := math.Exp(lab - la - lb + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}
	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction evaluates the continued fraction for the incomplete
// beta function by the modified Lentz method.
func betaContinuedFraction(a, b, x float64) float64 {
	const (
		maxIterations = 300
		tiny          = 1e-30
		epsilon       = 1e-14
	)

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		// Even step.
		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		// Odd step.
		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
