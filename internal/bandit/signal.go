package bandit

import "sort"

const (
	signalWindow     = 10
	signalEwmaFactor = 0.3
	signalInitLevel  = -50.0
)

// SignalTracker smooths noisy RSSI samples for one target. A 3-sample
// median filter feeds an EWMA, while the MAD of the raw window yields a
// robustness weight used to scale bandit prior updates.
type SignalTracker struct {
	samples [signalWindow]float64
	head    int
	count   int
	ewma    float64
}

// NewSignalTracker returns a tracker at the neutral signal level.
func NewSignalTracker() *SignalTracker {
	return &SignalTracker{ewma: signalInitLevel}
}

// Update folds one raw RSSI sample in and returns the current robustness.
func (t *SignalTracker) Update(rssi float64) float64 {
	t.samples[t.head] = rssi
	t.head = (t.head + 1) % signalWindow
	if t.count < signalWindow {
		t.count++
	}

	t.ewma = signalEwmaFactor*t.medianOf3() + (1-signalEwmaFactor)*t.ewma
	return t.Robustness()
}

// Smoothed returns the EWMA-filtered signal level.
func (t *SignalTracker) Smoothed() float64 {
	return t.ewma
}

// Robustness returns 1/(1+MAD) over the raw window, in (0,1].
// With fewer than 3 samples there is no basis for distrust yet.
func (t *SignalTracker) Robustness() float64 {
	if t.count < 3 {
		return 1.0
	}
	mad := t.mad()
	if mad < 1.0 {
		mad = 1.0
	}
	return 1.0 / (1.0 + mad)
}

// medianOf3 filters the 3 most recent samples.
func (t *SignalTracker) medianOf3() float64 {
	if t.count < 3 {
		return t.latest()
	}
	a := t.samples[(t.head+signalWindow-3)%signalWindow]
	b := t.samples[(t.head+signalWindow-2)%signalWindow]
	c := t.samples[(t.head+signalWindow-1)%signalWindow]
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}
	return b
}

func (t *SignalTracker) latest() float64 {
	if t.count == 0 {
		return signalInitLevel
	}
	return t.samples[(t.head+signalWindow-1)%signalWindow]
}

func (t *SignalTracker) mad() float64 {
	window := make([]float64, t.count)
	copy(window, t.samples[:t.count])
	med := median(window)
	for i, v := range window {
		if v >= med {
			window[i] = v - med
		} else {
			window[i] = med - v
		}
	}
	return median(window)
}

// median sorts in place.
func median(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
