package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"airbrain/config"
	"airbrain/internal/bandit"
	"airbrain/internal/env"
	"airbrain/internal/events"
	"airbrain/internal/handshake"
	"airbrain/internal/logger"
	"airbrain/internal/metrics"
	"airbrain/internal/mood"
	"airbrain/internal/output/eventclickhouse"
	"airbrain/internal/output/eventhttp"
	"airbrain/internal/output/eventjson"
	"airbrain/internal/output/eventredis"
	"airbrain/internal/sampler"
	"airbrain/internal/scheduler"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("airbrain.yml"); err == nil {
		return "airbrain.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "airbrain.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "airbrain.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.Airbrain.Env.APIURL == "" {
		cfg.Airbrain.Env.APIURL = "http://127.0.0.1:8081"
	}
	if cfg.Airbrain.Env.Username == "" {
		cfg.Airbrain.Env.Username = "user"
	}
	if cfg.Airbrain.Env.Password == "" {
		cfg.Airbrain.Env.Password = "pass"
	}
	if cfg.Airbrain.Env.Timeout <= 0 {
		cfg.Airbrain.Env.Timeout = 10 * time.Second
	}

	if cfg.Airbrain.Scan.HandshakesDir == "" {
		cfg.Airbrain.Scan.HandshakesDir = "handshakes"
	}
	if cfg.Airbrain.Scan.MinReconTime <= 0 {
		cfg.Airbrain.Scan.MinReconTime = 2 * time.Second
	}
	if cfg.Airbrain.Scan.MaxReconTime <= 0 {
		cfg.Airbrain.Scan.MaxReconTime = 10 * time.Second
	}
	if cfg.Airbrain.Scan.CacheTTL <= 0 {
		cfg.Airbrain.Scan.CacheTTL = 5 * time.Minute
	}

	if cfg.Airbrain.Attacks.MinRSSI == 0 {
		cfg.Airbrain.Attacks.MinRSSI = -75
	}
	if cfg.Airbrain.Attacks.MaxTargetsPerChan <= 0 {
		cfg.Airbrain.Attacks.MaxTargetsPerChan = 3
	}
	if cfg.Airbrain.Attacks.Cooldown <= 0 {
		cfg.Airbrain.Attacks.Cooldown = 5 * time.Second
	}
	if cfg.Airbrain.Attacks.BlacklistDeauths <= 0 {
		cfg.Airbrain.Attacks.BlacklistDeauths = 20
	}
	if cfg.Airbrain.Attacks.BlacklistTTL <= 0 {
		cfg.Airbrain.Attacks.BlacklistTTL = time.Hour
	}
	if cfg.Airbrain.Attacks.HistoryTTL <= 0 {
		cfg.Airbrain.Attacks.HistoryTTL = 60 * time.Second
	}

	if cfg.Airbrain.State.Path == "" {
		cfg.Airbrain.State.Path = "airbrain_state.bin"
	}
	if cfg.Airbrain.State.SaveIntervalEpochs <= 0 {
		cfg.Airbrain.State.SaveIntervalEpochs = 10
	}

	if cfg.Airbrain.Events.Mode == "" {
		cfg.Airbrain.Events.Mode = "file"
	}
	if cfg.Airbrain.Events.File.Path == "" {
		cfg.Airbrain.Events.File.Path = "output/events.jsonl"
	}
	if cfg.Airbrain.Events.Redis.Addr == "" {
		cfg.Airbrain.Events.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Airbrain.Events.Redis.Key == "" {
		cfg.Airbrain.Events.Redis.Key = "airbrain_events"
	}
	if cfg.Airbrain.Events.ClickHouse.Database == "" {
		cfg.Airbrain.Events.ClickHouse.Database = "airbrain"
	}
	if cfg.Airbrain.Events.ClickHouse.Table == "" {
		cfg.Airbrain.Events.ClickHouse.Table = "airbrain_events"
	}

	if cfg.Airbrain.Metrics.Listen == "" {
		cfg.Airbrain.Metrics.Listen = ":9090"
	}

	if cfg.Airbrain.Logging.Level == "" {
		cfg.Airbrain.Logging.Level = "info"
	}
}

func runBrain(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Airbrain.Logging.Enabled, cfg.Airbrain.Logging.Level, cfg.Airbrain.Logging.File, cfg.Airbrain.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("Airbrain starting")
	logger.Infof("Config loaded from: %s", configPath)

	client, err := env.NewClient(env.ClientConfig{
		BaseURL:  cfg.Airbrain.Env.APIURL,
		Username: cfg.Airbrain.Env.Username,
		Password: cfg.Airbrain.Env.Password,
		Timeout:  cfg.Airbrain.Env.Timeout,
	})
	if err != nil {
		logger.Errorf("Failed to create environment client: %v", err)
		log.Fatalf("Failed to create environment client: %v", err)
	}
	runner := env.NewRunner(client)

	store := handshake.NewStore(cfg.Airbrain.Scan.HandshakesDir, cfg.Airbrain.Scan.CacheTTL)

	brain := bandit.NewBrain(bandit.Config{}, sampler.NewFromClock())
	if err := brain.Load(cfg.Airbrain.State.Path); err != nil {
		logger.Warnf("Failed to load brain state: %v", err)
	}
	channels := bandit.NewChannelBandit(sampler.NewFromClock())
	attacks := bandit.NewAttackBandit(bandit.AttackConfig{
		BlacklistThreshold: cfg.Airbrain.Attacks.BlacklistDeauths,
		BlacklistTTL:       cfg.Airbrain.Attacks.BlacklistTTL,
	}, sampler.NewFromClock())

	epoch := mood.NewEpoch()
	machine := mood.NewMachine(mood.Config{
		BoredNumEpochs:   cfg.Airbrain.Personality.BoredNumEpochs,
		SadNumEpochs:     cfg.Airbrain.Personality.SadNumEpochs,
		ExcitedNumEpochs: cfg.Airbrain.Personality.ExcitedNumEpochs,
		MaxMisses:        cfg.Airbrain.Personality.MaxMisses,
		FilterWeakSignal: cfg.Airbrain.Attacks.FilterWeakSignal,
		MinRSSI:          cfg.Airbrain.Attacks.MinRSSI,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var bus *events.Bus
	switch cfg.Airbrain.Events.Mode {
	case "none":
	case "file":
		w, err := eventjson.NewWriter(cfg.Airbrain.Events.File.Path)
		if err != nil {
			logger.Errorf("Failed to create event file writer: %v", err)
			log.Fatalf("Failed to create event file writer: %v", err)
		}
		bus = events.NewBus(0, w)
		logger.Infof("Event output mode: file (%s)", cfg.Airbrain.Events.File.Path)
	case "redis":
		w, err := eventredis.NewWriter(eventredis.Config{
			Addr:     cfg.Airbrain.Events.Redis.Addr,
			Password: cfg.Airbrain.Events.Redis.Password,
			DB:       cfg.Airbrain.Events.Redis.DB,
			Key:      cfg.Airbrain.Events.Redis.Key,
			MaxLen:   cfg.Airbrain.Events.Redis.MaxLen,
		})
		if err != nil {
			logger.Errorf("Failed to create event Redis writer: %v", err)
			log.Fatalf("Failed to create event Redis writer: %v", err)
		}
		bus = events.NewBus(0, w)
		logger.Infof("Event output mode: redis (%s/%s)", cfg.Airbrain.Events.Redis.Addr, cfg.Airbrain.Events.Redis.Key)
	case "http":
		w, err := eventhttp.NewWriter(eventhttp.Config{
			URL:     cfg.Airbrain.Events.HTTP.URL,
			Timeout: cfg.Airbrain.Events.HTTP.Timeout,
			Headers: cfg.Airbrain.Events.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create event HTTP writer: %v", err)
			log.Fatalf("Failed to create event HTTP writer: %v", err)
		}
		bus = events.NewBus(0, w)
		logger.Infof("Event output mode: http (%s)", cfg.Airbrain.Events.HTTP.URL)
	case "clickhouse":
		w, err := eventclickhouse.NewWriter(eventclickhouse.Config{
			URL:      cfg.Airbrain.Events.ClickHouse.URL,
			Database: cfg.Airbrain.Events.ClickHouse.Database,
			Table:    cfg.Airbrain.Events.ClickHouse.Table,
			Username: cfg.Airbrain.Events.ClickHouse.Username,
			Password: cfg.Airbrain.Events.ClickHouse.Password,
			Timeout:  cfg.Airbrain.Events.ClickHouse.Timeout,
			Headers:  cfg.Airbrain.Events.ClickHouse.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create event ClickHouse writer: %v", err)
			log.Fatalf("Failed to create event ClickHouse writer: %v", err)
		}
		bus = events.NewBus(0, w)
		logger.Infof("Event output mode: clickhouse (%s.%s)", cfg.Airbrain.Events.ClickHouse.Database, cfg.Airbrain.Events.ClickHouse.Table)
	default:
		log.Fatalf("Unknown event output mode: %s", cfg.Airbrain.Events.Mode)
	}
	if bus != nil {
		go bus.Run(ctx)
	}

	met := metrics.New()
	if cfg.Airbrain.Metrics.Enabled {
		go func() {
			if err := met.Serve(ctx, cfg.Airbrain.Metrics.Listen); err != nil {
				logger.Errorf("Metrics endpoint error: %v", err)
			}
		}()
	}

	if err := client.StartRecon(ctx); err != nil {
		logger.Warnf("Failed to start recon: %v", err)
	}

	sched := scheduler.New(scheduler.Config{
		Channels:             cfg.Airbrain.Scan.Channels,
		MinRSSI:              cfg.Airbrain.Attacks.MinRSSI,
		FilterWeakSignal:     cfg.Airbrain.Attacks.FilterWeakSignal,
		MaxTargetsPerChannel: cfg.Airbrain.Attacks.MaxTargetsPerChan,
		Cooldown:             cfg.Airbrain.Attacks.Cooldown,
		HistoryTTL:           cfg.Airbrain.Attacks.HistoryTTL,
		MinReconTime:         int(cfg.Airbrain.Scan.MinReconTime / time.Second),
		MaxReconTime:         int(cfg.Airbrain.Scan.MaxReconTime / time.Second),
		StatePath:            cfg.Airbrain.State.Path,
		SaveIntervalEpochs:   cfg.Airbrain.State.SaveIntervalEpochs,
	}, brain, channels, attacks, epoch, machine, store, client, runner, bus, met)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil {
			logger.Errorf("Scheduler error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	<-done

	if bus != nil {
		if err := bus.Close(); err != nil {
			logger.Errorf("Error closing event sinks: %v", err)
		}
	}

	logger.Infof("Airbrain stopped")
}

// runValidate grades capture files from the command line, the quickest
// way to check what a session actually collected.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "Print per-message detail")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: airbrain validate [-v] <capture.pcap> ...")
		return 2
	}

	exit := 0
	for _, path := range fs.Args() {
		res, err := handshake.Validate(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exit = 1
			continue
		}
		fmt.Printf("%s: quality=%s eapol=%d crackable=%v validated=%v\n",
			path, res.Quality, res.EAPOLCount, res.Crackable, res.Validated)
		if *verbose {
			fmt.Printf("  m1=%v m2=%v m3=%v m4=%v pmkid=%v replay_valid=%v nonce_valid=%v nonce_correction=%v temporal=%v\n",
				res.HasM1, res.HasM2, res.HasM3, res.HasM4, res.HasPMKID,
				res.ReplayValid, res.NonceValid, res.NonceCorrection, res.TemporalValid)
		}
	}
	return exit
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runBrain(os.Args[2:])
			return
		case "validate":
			os.Exit(runValidate(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runBrain(os.Args[1:])
			return
		}
	}

	runBrain(nil)
}
