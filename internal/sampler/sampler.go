package sampler

import (
	"math"
	"sync"
	"time"
)

const minShape = 0.01

// Sampler draws from uniform, normal, gamma and beta distributions
// over a private xorshift64 stream. Safe for concurrent use.
type Sampler struct {
	mu    sync.Mutex
	state uint64
}

// New creates a sampler with an explicit seed. A zero seed is
// replaced with a fixed constant since xorshift64 cannot leave
// the all-zero state.
func New(seed uint64) *Sampler {
	if seed == 0 {
		seed = 0xDEADBEEF
	}
	return &Sampler{state: seed}
}

// NewFromClock creates a sampler seeded from the wall and monotonic clocks.
func NewFromClock() *Sampler {
	now := time.Now()
	return New(uint64(now.UnixNano()) ^ uint64(now.Unix()))
}

func (s *Sampler) next() uint64 {
	x := s.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.state = x
	return x
}

// Uniform returns a draw in [0,1).
func (s *Sampler) Uniform() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniform()
}

func (s *Sampler) uniform() float64 {
	return float64(s.next()>>11) / (1 << 53)
}

// Normal returns a standard normal draw (Box-Muller).
func (s *Sampler) Normal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.normal()
}

func (s *Sampler) normal() float64 {
	u1 := s.uniform()
	for u1 <= 0 {
		u1 = s.uniform()
	}
	u2 := s.uniform()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Gamma returns a Gamma(shape,1) draw using the Marsaglia-Tsang
// method for shape >= 1 and the power transform for shape < 1.
// Non-positive shapes are clamped rather than rejected.
func (s *Sampler) Gamma(shape float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gamma(shape)
}

func (s *Sampler) gamma(shape float64) float64 {
	if shape < minShape {
		shape = minShape
	}

	if shape < 1 {
		u := s.uniform()
		for u <= 0 {
			u = s.uniform()
		}
		return s.gamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := s.normal()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.uniform()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// Beta returns a Beta(alpha,beta) draw as a ratio of two gamma draws.
func (s *Sampler) Beta(alpha, beta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	x := s.gamma(alpha)
	y := s.gamma(beta)
	if x+y <= 0 {
		return 0.5
	}
	return x / (x + y)
}
