package sampler

import (
	"math"
	"testing"
)

func TestBetaMeanMatchesExpectation(t *testing.T) {
	cases := []struct {
		alpha, beta float64
	}{
		{1, 1},
		{2, 5},
		{5, 2},
		{10, 10},
		{0.5, 0.5},
		{30, 3},
	}

	s := New(42)
	for _, tc := range cases {
		sum := 0.0
		const n = 10000
		for i := 0; i < n; i++ {
			v := s.Beta(tc.alpha, tc.beta)
			if v < 0 || v >= 1.0000001 {
				t.Fatalf("Beta(%v,%v) out of range: %v", tc.alpha, tc.beta, v)
			}
			sum += v
		}
		mean := sum / n
		want := tc.alpha / (tc.alpha + tc.beta)
		if math.Abs(mean-want) > 0.02*1.0 {
			t.Fatalf("Beta(%v,%v) mean=%v want=%v", tc.alpha, tc.beta, mean, want)
		}
	}
}

func TestBetaClampsDegenerateParams(t *testing.T) {
	s := New(7)
	for i := 0; i < 100; i++ {
		v := s.Beta(0, -3)
		if math.IsNaN(v) || v < 0 || v > 1 {
			t.Fatalf("degenerate params produced %v", v)
		}
	}
}

func TestUniformRange(t *testing.T) {
	s := New(99)
	for i := 0; i < 10000; i++ {
		u := s.Uniform()
		if u < 0 || u >= 1 {
			t.Fatalf("uniform out of range: %v", u)
		}
	}
}

func TestGammaMean(t *testing.T) {
	s := New(1234)
	for _, shape := range []float64{0.5, 1, 2.5, 9} {
		sum := 0.0
		const n = 20000
		for i := 0; i < n; i++ {
			sum += s.Gamma(shape)
		}
		mean := sum / n
		if math.Abs(mean-shape) > 0.05*math.Max(shape, 1) {
			t.Fatalf("Gamma(%v) mean=%v", shape, mean)
		}
	}
}

func TestZeroSeedStillProducesDraws(t *testing.T) {
	s := New(0)
	a := s.Uniform()
	b := s.Uniform()
	if a == b {
		t.Fatalf("stream is stuck: %v", a)
	}
}
