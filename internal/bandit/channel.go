package bandit

import (
	"sync"
	"time"

	"airbrain/internal/sampler"
)

// MaxChannel is the highest channel number tracked (5GHz ch 165).
const MaxChannel = 165

var channels5GHz = []int{
	36, 40, 44, 48, 52, 56, 60, 64,
	100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144,
	149, 153, 157, 161, 165,
}

type channelArm struct {
	alpha       float64
	beta        float64
	visits      int
	handshakes  int
	apsSeen     int
	lastVisited time.Time
}

// ChannelBandit learns which RF channels yield handshakes, replacing a
// static most-APs-first hop order.
type ChannelBandit struct {
	mu               sync.Mutex
	rng              *sampler.Sampler
	arms             [MaxChannel + 1]channelArm
	explorationBonus float64
	current          int
	now              func() time.Time
}

// NewChannelBandit returns a bandit with neutral priors on every
// 2.4GHz and standard 5GHz channel.
func NewChannelBandit(rng *sampler.Sampler) *ChannelBandit {
	if rng == nil {
		rng = sampler.NewFromClock()
	}
	c := &ChannelBandit{
		rng:              rng,
		explorationBonus: 0.2,
		now:              time.Now,
	}
	for ch := 1; ch <= 14; ch++ {
		c.arms[ch].alpha = 1
		c.arms[ch].beta = 1
	}
	for _, ch := range channels5GHz {
		c.arms[ch].alpha = 1
		c.arms[ch].beta = 1
	}
	return c
}

// score samples one channel. Recency drives exploration: a channel
// unvisited for 2h earns the full bonus, a never-visited one always does.
func (c *ChannelBandit) score(ch, apCount int, now time.Time) float64 {
	arm := &c.arms[ch]
	prob := c.rng.Beta(arm.alpha, arm.beta)
	apFactor := 1.0 + 0.1*float64(apCount)

	explore := c.explorationBonus
	if !arm.lastVisited.IsZero() {
		hours := now.Sub(arm.lastVisited).Hours()
		if hours > 2 {
			hours = 2
		}
		explore = c.explorationBonus * hours / 2
	}

	return (prob + explore) * apFactor
}

// Select picks one channel from the visible set. apCounts maps channel
// number to the number of APs seen there.
func (c *ChannelBandit) Select(visible []int, apCounts map[int]int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectLocked(visible, apCounts)
}

func (c *ChannelBandit) selectLocked(visible []int, apCounts map[int]int) int {
	if len(visible) == 0 {
		return 0
	}
	if len(visible) == 1 {
		return visible[0]
	}

	now := c.now()
	best := visible[0]
	bestScore := -1.0
	for _, ch := range visible {
		if ch < 1 || ch > MaxChannel {
			continue
		}
		if s := c.score(ch, apCounts[ch], now); s > bestScore {
			bestScore = s
			best = ch
		}
	}
	return best
}

// Rank orders the visible channels by iteratively selecting a winner
// and re-sampling over the remainder. Each visible channel appears
// exactly once.
func (c *ChannelBandit) Rank(visible []int, apCounts map[int]int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := make([]int, len(visible))
	copy(remaining, visible)
	order := make([]int, 0, len(visible))

	for len(remaining) > 0 {
		win := c.selectLocked(remaining, apCounts)
		if win == 0 {
			break
		}
		order = append(order, win)
		next := remaining[:0]
		for _, ch := range remaining {
			if ch != win {
				next = append(next, ch)
			}
		}
		remaining = next
	}
	return order
}

// Observe records the outcome of a dwell on a channel. Failure is
// cheap so quiet channels still get revisited.
func (c *ChannelBandit) Observe(channel int, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 1 || channel > MaxChannel {
		return
	}
	arm := &c.arms[channel]
	if success {
		arm.alpha++
		arm.handshakes++
	} else {
		arm.beta += 0.2
	}
	arm.visits++
	arm.lastVisited = c.now()
}

// UpdateStats records the AP count seen on a channel hop.
func (c *ChannelBandit) UpdateStats(channel, apCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 1 || channel > MaxChannel {
		return
	}
	c.arms[channel].apsSeen = apCount
	c.arms[channel].lastVisited = c.now()
	c.current = channel
}

// Current returns the channel last recorded by UpdateStats.
func (c *ChannelBandit) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
