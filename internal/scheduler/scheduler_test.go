package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"airbrain/internal/bandit"
	"airbrain/internal/env"
	"airbrain/internal/mood"
	"airbrain/internal/sampler"
	"airbrain/pkg/models"
)

type fakeEnv struct {
	mu       sync.Mutex
	aps      []models.AccessPoint
	hops     []int
	failSync bool
}

func (f *fakeEnv) AccessPoints(ctx context.Context) ([]models.AccessPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSync {
		return nil, context.DeadlineExceeded
	}
	return append([]models.AccessPoint(nil), f.aps...), nil
}

func (f *fakeEnv) Stations(ctx context.Context) ([]models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Station
	for _, ap := range f.aps {
		out = append(out, ap.Clients...)
	}
	return out, nil
}

func (f *fakeEnv) SetChannel(ctx context.Context, ch int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hops = append(f.hops, ch)
	return nil
}

type dispatch struct {
	phase models.AttackPhase
	mac   string
}

type fakeRunner struct {
	mu         sync.Mutex
	dispatches []dispatch
}

func (f *fakeRunner) Perform(ctx context.Context, phase models.AttackPhase, ap models.AccessPoint, stations []models.Station) (env.AttackReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, dispatch{phase: phase, mac: ap.MAC})

	var rep env.AttackReport
	switch phase {
	case models.PhaseDeauth, models.PhaseDisassoc:
		rep.Deauths = len(stations)
		if rep.Deauths == 0 {
			rep.Associations = 1
		}
	case models.PhasePassive:
	default:
		rep.Associations = 1
	}
	return rep, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatches)
}

type fakeStore struct {
	mu      sync.Mutex
	quality map[string]models.HandshakeQuality
	total   int64
	rescans int
}

func (f *fakeStore) Scan() error   { return nil }
func (f *fakeStore) Rescan() error { f.mu.Lock(); f.rescans++; f.mu.Unlock(); return nil }

func (f *fakeStore) Quality(bssid string) models.HandshakeQuality {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quality[bssid]
}

func (f *fakeStore) TotalBytes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func testAP(mac string, ch, rssi, clients int) models.AccessPoint {
	ap := models.AccessPoint{
		MAC:        mac,
		SSID:       "net-" + mac[len(mac)-2:],
		Channel:    ch,
		RSSI:       rssi,
		Encryption: "WPA2",
	}
	for i := 0; i < clients; i++ {
		ap.Clients = append(ap.Clients, models.Station{MAC: "11:22:33:44:55:66", RSSI: rssi - 5})
	}
	return ap
}

// forceActiveMode drills the mode bandit until active targeting wins
// deterministically.
func forceActiveMode(t *testing.T, b *bandit.Brain) {
	t.Helper()
	for i := 0; i < 200; i++ {
		b.ObserveMode(bandit.ModeActiveTargeting, true)
		b.ObserveMode(bandit.ModePassiveDiscovery, false)
		b.ObserveMode(bandit.ModeCooldown, false)
		b.ObserveMode(bandit.ModeSyncWindow, false)
	}
	for i := 0; i < 100; i++ {
		if b.SelectMode() == bandit.ModeActiveTargeting {
			return
		}
	}
	t.Fatalf("mode bandit never settled on active targeting")
}

type fixture struct {
	s      *Scheduler
	env    *fakeEnv
	runner *fakeRunner
	store  *fakeStore
	brain  *bandit.Brain
	attack *bandit.AttackBandit
}

func newFixture(t *testing.T, seed uint64, cfg Config, aps ...models.AccessPoint) *fixture {
	t.Helper()
	rng := sampler.New(seed)
	brain := bandit.NewBrain(bandit.Config{}, rng)
	channels := bandit.NewChannelBandit(rng)
	attacks := bandit.NewAttackBandit(bandit.AttackConfig{}, rng)
	epoch := mood.NewEpoch()
	machine := mood.NewMachine(mood.Config{})
	machine.SetReady()

	fe := &fakeEnv{aps: aps}
	fr := &fakeRunner{}
	fs := &fakeStore{quality: make(map[string]models.HandshakeQuality)}

	s := New(cfg, brain, channels, attacks, epoch, machine, fs, fe, fr, nil, nil)
	s.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }
	forceActiveMode(t, brain)

	return &fixture{s: s, env: fe, runner: fr, store: fs, brain: brain, attack: attacks}
}

func TestCycleEngagesVisibleTarget(t *testing.T) {
	f := newFixture(t, 41, Config{}, testAP("aa:bb:cc:dd:ee:01", 6, -45, 1))

	f.s.cycle(context.Background())

	if f.runner.count() == 0 {
		t.Fatalf("no attack dispatched")
	}
	f.runner.mu.Lock()
	d := f.runner.dispatches[0]
	f.runner.mu.Unlock()
	if d.mac != "aa:bb:cc:dd:ee:01" {
		t.Fatalf("attacked %s, want aa:bb:cc:dd:ee:01", d.mac)
	}
	if f.s.epoch.Num != 1 {
		t.Fatalf("epoch = %d, want 1 after a full cycle", f.s.epoch.Num)
	}
	if _, ok := f.s.history["aa:bb:cc:dd:ee:01"]; !ok {
		t.Fatalf("engagement not recorded in history")
	}
	if f.brain.EntityCount() != 1 {
		t.Fatalf("entities = %d, want 1", f.brain.EntityCount())
	}
}

func TestBlindCycleGoesLonely(t *testing.T) {
	f := newFixture(t, 42, Config{})

	f.s.cycle(context.Background())

	if f.runner.count() != 0 {
		t.Fatalf("dispatched %d attacks with nothing visible", f.runner.count())
	}
	if got := f.s.machine.Mood(); got != mood.Lonely {
		t.Fatalf("mood = %s, want lonely", got)
	}
	if f.s.epoch.BlindFor != 1 {
		t.Fatalf("blind streak = %d, want 1", f.s.epoch.BlindFor)
	}
}

func TestEnvironmentFailureTracksMiss(t *testing.T) {
	f := newFixture(t, 43, Config{})
	f.env.failSync = true

	f.s.cycle(context.Background())

	if f.s.epoch.Num != 1 {
		t.Fatalf("epoch did not advance on sync failure")
	}
	if f.s.epoch.InactiveFor != 1 {
		t.Fatalf("inactive streak = %d, want 1", f.s.epoch.InactiveFor)
	}
}

func TestFullyCapturedTargetSkipped(t *testing.T) {
	f := newFixture(t, 44, Config{}, testAP("aa:bb:cc:dd:ee:02", 6, -40, 2))
	f.store.quality["aa:bb:cc:dd:ee:02"] = models.QualityFull

	f.s.cycle(context.Background())

	if f.runner.count() != 0 {
		t.Fatalf("attacked a fully captured target %d times", f.runner.count())
	}
}

func TestWeakSignalFiltered(t *testing.T) {
	f := newFixture(t, 45, Config{FilterWeakSignal: true, MinRSSI: -75},
		testAP("aa:bb:cc:dd:ee:03", 11, -85, 1))

	f.s.cycle(context.Background())

	if f.runner.count() != 0 {
		t.Fatalf("attacked a target below the signal floor")
	}
}

func TestBlacklistedTargetSkipped(t *testing.T) {
	f := newFixture(t, 46, Config{}, testAP("aa:bb:cc:dd:ee:04", 1, -50, 1))

	// Recreate the attack bandit with a hair-trigger blacklist and trip it.
	f.attack = bandit.NewAttackBandit(bandit.AttackConfig{BlacklistThreshold: 2, BlacklistTTL: time.Hour}, sampler.New(46))
	f.s.attacks = f.attack
	f.attack.TrackDeauth("aa:bb:cc:dd:ee:04")
	if !f.attack.TrackDeauth("aa:bb:cc:dd:ee:04") {
		t.Fatalf("target not blacklisted by setup")
	}

	f.s.cycle(context.Background())

	if f.runner.count() != 0 {
		t.Fatalf("attacked a blacklisted target %d times", f.runner.count())
	}
}

func TestHistoryThrottleSuppressesReattack(t *testing.T) {
	f := newFixture(t, 47, Config{}, testAP("aa:bb:cc:dd:ee:05", 6, -45, 1))

	f.s.cycle(context.Background())
	n := f.runner.count()
	if n == 0 {
		t.Fatalf("first cycle dispatched nothing")
	}

	f.s.cycle(context.Background())
	if f.runner.count() != n {
		t.Fatalf("re-attacked within the history TTL: %d -> %d", n, f.runner.count())
	}
}

func TestCaptureDeltaRewardsBandits(t *testing.T) {
	f := newFixture(t, 48, Config{}, testAP("aa:bb:cc:dd:ee:06", 6, -45, 1))
	f.store.total = 4096 // capture material appears during the cycle

	f.s.cycle(context.Background())

	if f.runner.count() == 0 {
		t.Fatalf("no attack to reward")
	}
	if got := f.brain.TotalHandshakes(); got != 1 {
		t.Fatalf("handshakes credited = %d, want 1", got)
	}
	if f.store.rescans != 1 {
		t.Fatalf("capture store not rescanned after a handshake")
	}
	if f.s.modeHandshakes != 1 {
		t.Fatalf("mode window handshakes = %d, want 1", f.s.modeHandshakes)
	}
	if f.s.bytesBefore != 4096 {
		t.Fatalf("byte watermark = %d, want 4096", f.s.bytesBefore)
	}

	h, ok := f.brain.Find("aa:bb:cc:dd:ee:06")
	if !ok {
		t.Fatalf("target entity missing")
	}
	e, _ := f.brain.View(h)
	if e.Alpha <= 1 {
		t.Fatalf("target prior not rewarded: alpha = %v", e.Alpha)
	}
}

func TestNoDeltaPenalizesLastPhase(t *testing.T) {
	f := newFixture(t, 49, Config{}, testAP("aa:bb:cc:dd:ee:07", 6, -45, 1))

	f.s.cycle(context.Background())

	if f.runner.count() == 0 {
		t.Fatalf("no attack dispatched")
	}
	if got := f.brain.TotalHandshakes(); got != 0 {
		t.Fatalf("handshakes credited = %d, want 0", got)
	}
	if f.s.pendingMAC != "" {
		t.Fatalf("pending attack not cleared")
	}
}

func TestPassiveModeObservesWithoutAttacking(t *testing.T) {
	f := newFixture(t, 50, Config{})

	h := f.brain.Touch("aa:bb:cc:dd:ee:08")
	c := candidate{handle: h, ap: testAP("aa:bb:cc:dd:ee:08", 6, -45, 1)}

	if f.s.engage(context.Background(), c, bandit.ModePassiveDiscovery) {
		t.Fatalf("passive mode reported an attack")
	}
	if f.runner.count() != 0 {
		t.Fatalf("passive mode dispatched %d attacks", f.runner.count())
	}
}

func TestEscalationBurstHitsClientfulTargets(t *testing.T) {
	aps := []models.AccessPoint{
		testAP("aa:bb:cc:dd:ee:09", 1, -40, 3),
		testAP("aa:bb:cc:dd:ee:0a", 6, -50, 0), // no clients, nothing to deauth
	}
	f := newFixture(t, 51, Config{}, aps...)

	f.s.escalationBurst(context.Background(), aps)

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if len(f.runner.dispatches) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(f.runner.dispatches))
	}
	if d := f.runner.dispatches[0]; d.phase != models.PhaseDeauth || d.mac != "aa:bb:cc:dd:ee:09" {
		t.Fatalf("dispatch = %+v, want deauth on aa:bb:cc:dd:ee:09", d)
	}
	if f.s.epoch.Deauths != 3 {
		t.Fatalf("deauths tracked = %d, want 3", f.s.epoch.Deauths)
	}
}

func TestEscalationBurstSkipsWhenNoStations(t *testing.T) {
	// The snapshot claims clients, but a fresh station query sees none;
	// the burst must not fire on stale data.
	f := newFixture(t, 57, Config{})

	stale := []models.AccessPoint{testAP("aa:bb:cc:dd:ee:16", 1, -40, 2)}
	f.s.escalationBurst(context.Background(), stale)

	if f.runner.count() != 0 {
		t.Fatalf("dispatched %d deauths with no stations visible", f.runner.count())
	}
	if f.s.epoch.Deauths != 0 {
		t.Fatalf("deauths tracked = %d, want 0", f.s.epoch.Deauths)
	}
}

func TestSnapshotSavedOnInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f := newFixture(t, 52, Config{StatePath: path, SaveIntervalEpochs: 1},
		testAP("aa:bb:cc:dd:ee:0b", 6, -45, 1))

	f.s.cycle(context.Background())

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state snapshot not written: %v", err)
	}
}

func TestChannelAllowList(t *testing.T) {
	f := newFixture(t, 53, Config{Channels: []int{1, 6, 11}},
		testAP("aa:bb:cc:dd:ee:0c", 6, -45, 1),
		testAP("aa:bb:cc:dd:ee:0d", 36, -40, 1))

	f.s.cycle(context.Background())

	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	for _, ch := range f.env.hops {
		if ch == 36 {
			t.Fatalf("hopped to channel 36 outside the allow-list")
		}
	}
	if len(f.env.hops) == 0 || f.env.hops[0] != 6 {
		t.Fatalf("hops = %v, want [6]", f.env.hops)
	}
}

func TestAdaptDwell(t *testing.T) {
	f := newFixture(t, 54, Config{})

	cases := []struct {
		aps  int
		want int
	}{
		{25, 2}, {12, 3}, {7, 5}, {3, 8}, {0, 10},
	}
	for _, tc := range cases {
		if got := f.s.adaptDwell(tc.aps); got != tc.want {
			t.Fatalf("adaptDwell(%d) = %d, want %d", tc.aps, got, tc.want)
		}
	}

	// Capture momentum shortens the dwell, inactivity stretches it.
	f.s.epoch.TrackHandshake(1)
	if got := f.s.adaptDwell(3); got != 5 {
		t.Fatalf("dwell with momentum = %d, want 5", got)
	}
	f.s.epoch.Reset()
	f.s.epoch.InactiveFor = 12
	if got := f.s.adaptDwell(25); got != 5 {
		t.Fatalf("dwell while inactive = %d, want 5", got)
	}
}

func TestCandidateCapRespectsStrongestSignals(t *testing.T) {
	aps := []models.AccessPoint{
		testAP("aa:bb:cc:dd:ee:11", 6, -80, 0),
		testAP("aa:bb:cc:dd:ee:12", 6, -40, 0),
		testAP("aa:bb:cc:dd:ee:13", 6, -55, 0),
		testAP("aa:bb:cc:dd:ee:14", 6, -60, 0),
		testAP("aa:bb:cc:dd:ee:15", 6, -45, 0),
	}
	f := newFixture(t, 55, Config{MaxTargetsPerChannel: 3}, aps...)

	got := f.s.buildCandidates(6, aps)
	if len(got) != 3 {
		t.Fatalf("candidates = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ap.RSSI > got[i-1].ap.RSSI {
			t.Fatalf("candidates not sorted by signal: %d before %d", got[i-1].ap.RSSI, got[i].ap.RSSI)
		}
	}
	if got[0].ap.MAC != "aa:bb:cc:dd:ee:12" {
		t.Fatalf("strongest AP missing from candidates")
	}
}

func TestRunStopsOnCancelAndSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f := newFixture(t, 56, Config{StatePath: path, SaveIntervalEpochs: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("shutdown snapshot not written: %v", err)
	}
}
