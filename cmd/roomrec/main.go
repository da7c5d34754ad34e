// Package main implements the roomrec daemon, the core monitor-record
// supervisor service.
//
// roomrec is designed for unattended operation, probing every room in the
// configured URL list on a governed schedule and recording whichever rooms
// are live, with automatic recovery and graceful shutdown.
//
// Usage:
//
//	roomrec [options]
//
// Options:
//
//	--config=PATH      Path to the recording config file (default: /etc/roomrec/config.ini)
//	--urls=PATH        Path to the monitored URL list (default: /etc/roomrec/urls.txt)
//	--lock-dir=PATH    Directory for lock files (default: /var/run/roomrec)
//	--log-level=LEVEL  Log level: debug, info, warn, error (default: info)
//	--health-addr=ADDR Address for the /healthz and /metrics endpoints (disabled if empty)
//	--domestic-hosts   Comma-separated hostnames routed with the domestic timeout class
//	--overseas-hosts   Comma-separated hostnames routed with the overseas timeout class
//	--muxer-path       Path to the external muxer binary (default: ffmpeg)
//	--probe-path       Path to the external probe binary, used for post-processing (default: ffprobe)
//	--help             Show this help message
//
// The daemon automatically:
//   - Parses and canonicalizes the URL list, auto-disabling unrecognized hosts
//   - Probes every room under the adaptive concurrency governor
//   - Records live rooms and post-processes finished files
//   - Prompts on stdin for one room URL when the URL list is missing or empty
//   - Backs up the config file and the URL list on every detected change
//   - Handles SIGINT/SIGTERM for graceful shutdown
//   - Exits with code 1 if the muxer binary cannot be found at startup
//   - Exits with code -1 if free disk space is below the configured floor at
//     startup, or, if it drops below the floor while running, once the
//     supervision tree has shut the room tasks down
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/roomrec/roomrec/internal/diskprobe"
	"github.com/roomrec/roomrec/internal/governor"
	"github.com/roomrec/roomrec/internal/health"
	"github.com/roomrec/roomrec/internal/notify"
	"github.com/roomrec/roomrec/internal/resolver"
	"github.com/roomrec/roomrec/internal/roomconfig"
	"github.com/roomrec/roomrec/internal/roomlock"
	"github.com/roomrec/roomrec/internal/roomsupervisor"
	"github.com/roomrec/roomrec/internal/status"
	"github.com/roomrec/roomrec/internal/supervisortree"
	"github.com/roomrec/roomrec/internal/urlregistry"
)

// Build information (set by ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath    = flag.String("config", roomconfig.DefaultConfigPath, "Path to the recording config file")
	urlsPath      = flag.String("urls", "/etc/roomrec/urls.txt", "Path to the monitored URL list")
	lockDir       = flag.String("lock-dir", "/var/run/roomrec", "Directory for lock files")
	logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	healthAddr    = flag.String("health-addr", "", "Address for /healthz and /metrics (disabled if empty)")
	domesticHosts = flag.String("domestic-hosts", "", "Comma-separated hostnames using the domestic timeout class")
	overseasHosts = flag.String("overseas-hosts", "", "Comma-separated hostnames using the overseas timeout class")
	muxerPath     = flag.String("muxer-path", "ffmpeg", "Path to the external muxer binary")
	probePath     = flag.String("probe-path", "ffprobe", "Path to the external probe binary, used for post-processing")
	showHelp      = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := newLogger(*logLevel)
	logger.Info("starting roomrec", "version", Version, "commit", Commit, "built", BuildTime)

	if err := os.MkdirAll(*lockDir, 0750); err != nil { //nolint:gosec // lock directory needs group read for service monitoring
		logger.Error("failed to create lock directory", "error", err)
		os.Exit(1)
	}

	lock, err := roomlock.New(filepath.Join(*lockDir, "roomrec.lock"))
	if err != nil {
		logger.Error("failed to create file lock", "error", err)
		os.Exit(1)
	}
	defer lock.Close()

	cfgStore, err := roomconfig.Open(*configPath, lock)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	cfg := cfgStore.Snapshot()
	logger.Info("loaded configuration", "path", *configPath)

	saveRoot := cfg.ResolvedSavePath(".")
	if err := diskprobe.Check(diskprobe.Statfs{}, saveRoot, cfg.RecordingSettings.DiskSpaceFloorGiB); err != nil {
		logger.Error("disk space below configured floor at startup", "path", saveRoot, "error", err)
		os.Exit(-1)
	}

	if _, err := exec.LookPath(*muxerPath); err != nil {
		logger.Error("muxer binary not found", "path", *muxerPath, "error", err)
		os.Exit(1)
	}

	if info, err := os.Stat(*urlsPath); err != nil || info.Size() == 0 {
		fmt.Print("The URL list is empty. Enter a room URL to monitor: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if url := strings.TrimSpace(line); url != "" {
			if err := os.WriteFile(*urlsPath, []byte(url+"\n"), 0644); err != nil { //nolint:gosec // the URL list is not secret
				logger.Error("failed to write URL list", "path", *urlsPath, "error", err)
			}
		}
	}

	registry := urlregistry.New(*urlsPath, lock, splitHosts(*domesticHosts), splitHosts(*overseasHosts), logger)

	gov := governor.New(cfg.RecordingSettings.ConcurrencyPreset)

	proxy := resolver.ProxyPolicy{
		ProxyURL:     "", // global proxy auto-detection is deployment-specific and not wired here
		PrimaryHosts: splitHosts(cfg.RecordingSettings.ProxyHosts),
		ExtraHosts:   splitHosts(cfg.RecordingSettings.ProxyExtraHosts),
	}
	router := resolver.NewRouter(proxy, splitHosts(*domesticHosts))
	// Platform-specific StreamResolver implementations are out of scope;
	// a deployment registers them here via router.Register before Run.

	hub := buildNotifyHub(cfg)

	reporter := status.NewReporter(os.Stdout, status.GlobalSnapshot{
		CurrentLimit:   gov.CurrentLimit(),
		PresetLimit:    gov.PresetLimit(),
		ProxyEnabled:   proxy.ProxyURL != "",
		SegmentEnabled: cfg.RecordingSettings.SegmentEnabled,
		Container:      cfg.RecordingSettings.Container,
		Quality:        cfg.RecordingSettings.Quality,
		StartedAt:      time.Now(),
	})

	backupDir := filepath.Join(filepath.Dir(*configPath), "backups")
	fingerprinter := roomconfig.NewFingerprinter(*configPath, backupDir)
	urlsFingerprinter := roomconfig.NewFingerprinter(*urlsPath, backupDir)

	tree := supervisortree.New(logger)
	tree.AddFixed("governor", gov.Run)
	tree.AddFixed("status-reporter", func(ctx context.Context) error {
		reporter.Run(ctx, 5*time.Second)
		return nil
	})
	tree.AddFixed("config-backup", fingerprinter.Run)
	tree.AddFixed("urls-backup", urlsFingerprinter.Run)
	tree.AddFixed("url-registry", registry.Run)

	if *healthAddr != "" {
		handler := health.NewHandler(health.StatusAdapter{Reporter: reporter}).
			WithGovernor(health.GovernorAdapter{Governor: gov})
		tree.AddFixed("health", func(ctx context.Context) error {
			return health.ListenAndServe(ctx, *healthAddr, handler)
		})
		logger.Info("health endpoint enabled", "addr", *healthAddr)
	}

	deps := roomsupervisor.Deps{
		Resolver:  router,
		Governor:  gov,
		Config:    cfgStore,
		Anchors:   registry,
		NotifyHub: hub,
		Status:    reporter,
		Logger:    logger,
		MuxerPath: *muxerPath,
		ProbePath: *probePath,
	}
	loopBase := time.Duration(cfg.RecordingSettings.LoopSeconds) * time.Second

	factory := supervisortree.RoomFactory(func(room urlregistry.Room) func(ctx context.Context) error {
		sup := roomsupervisor.New(roomsupervisor.StaticRoom{R: room}, deps, loopBase)
		return sup.Run
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	diskTick := make(chan struct{})
	go func() {
		defer close(diskTick)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case diskTick <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	var diskExhausted atomic.Bool
	go func() {
		for err := range diskprobe.Watch(ctx, diskprobe.Statfs{}, saveRoot, cfg.RecordingSettings.DiskSpaceFloorGiB, diskTick) {
			logger.Error("disk space below configured floor, shutting down room tasks", "path", saveRoot, "error", err)
			diskExhausted.Store(true)
			cancel()
		}
	}()

	go func() {
		if err := tree.RunRegistryEvents(ctx, registry.Events(), factory); err != nil && err != context.Canceled {
			logger.Warn("registry event loop stopped", "error", err)
		}
	}()

	logger.Info("supervision tree running")
	if err := tree.Serve(ctx); err != nil && err != context.Canceled {
		logger.Error("supervision tree exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
	if diskExhausted.Load() {
		os.Exit(-1)
	}
}

// buildNotifyHub wires the configured webhook channel, if any, into a Hub.
// Only one webhook destination is configurable per the PushSettings section;
// additional Channel implementations can be appended here as they're added.
func buildNotifyHub(cfg roomconfig.Config) *notify.Hub {
	if cfg.PushSettings.WebhookURL == "" {
		return notify.NewHub()
	}
	return notify.NewHub(notify.NewWebhookChannel("webhook", cfg.PushSettings.WebhookURL, cfg.PushSettings.Template))
}

func splitHosts(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printUsage() {
	fmt.Println("roomrec - live-stream monitor/record daemon")
	fmt.Printf("Version: %s (%s)\n\n", Version, Commit)
	fmt.Println("Usage: roomrec [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("The daemon probes every room in the URL list and records live rooms.")
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
}
