// SPDX-License-Identifier: MIT

// Package roomsupervisor runs one outer loop per monitored room: probe for
// liveness under a governor permit, record when live, post-process when the
// recording finishes, and stop gracefully when the room is commented out of
// the URL list. It is the direct generalization of the teacher's
// stream.Manager — the same state-enum-plus-Run-loop shape, the same
// slog-based structured event logging, the same atomic.Value-held state for
// lock-free reads from Metrics() — retargeted from one fixed ALSA capture
// command to the per-room, per-platform probe/record/post-process cycle.
package roomsupervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/roomrec/roomrec/internal/filenamer"
	"github.com/roomrec/roomrec/internal/governor"
	"github.com/roomrec/roomrec/internal/notify"
	"github.com/roomrec/roomrec/internal/postprocess"
	"github.com/roomrec/roomrec/internal/recorder"
	"github.com/roomrec/roomrec/internal/resolver"
	"github.com/roomrec/roomrec/internal/roomconfig"
	"github.com/roomrec/roomrec/internal/roomerrors"
	"github.com/roomrec/roomrec/internal/status"
	"github.com/roomrec/roomrec/internal/urlregistry"
)

// Lifecycle is the state a RoomSupervisor's room is currently in.
type Lifecycle string

const (
	LifecycleIdle           Lifecycle = "idle"
	LifecycleProbing        Lifecycle = "probing"
	LifecycleWaitingLive    Lifecycle = "waiting_live"
	LifecycleRecording      Lifecycle = "recording"
	LifecyclePostProcessing Lifecycle = "post_processing"
	LifecycleStopping       Lifecycle = "stopping"
)

// State is the room's point-in-time FSM state, read lock-free via Metrics().
type State struct {
	Current            Lifecycle
	CurrentFilePath    string
	RecordingStartedAt time.Time
	RetryCounter       int
	LastErrorKind      roomerrors.Kind
	NotifiedLive       bool
}

// RoomProvider supplies the latest known view of the supervised room,
// letting the registry's ongoing scans flip Commented without the
// supervisor re-reading the file itself.
type RoomProvider interface {
	Room() urlregistry.Room
}

// StaticRoom is the simplest RoomProvider: a room that never changes after
// construction, useful for tests and for rooms discovered via a one-shot
// listing rather than a live registry feed.
type StaticRoom struct{ R urlregistry.Room }

func (s StaticRoom) Room() urlregistry.Room { return s.R }

// AnchorRecorder persists the resolved anchor name back to the URL list the
// first time a room is confirmed live. urlregistry.Registry implements it.
type AnchorRecorder interface {
	AppendAnchor(ctx context.Context, canonicalURL, anchor string) error
}

// ConfigProvider supplies the current recording settings snapshot.
// roomconfig.Store implements it.
type ConfigProvider interface {
	Snapshot() roomconfig.Config
}

// Deps bundles a RoomSupervisor's collaborators. Fields left nil are
// treated as disabled features (e.g. a nil NotifyHub skips notification).
type Deps struct {
	Resolver  *resolver.Router
	Governor  *governor.Governor
	Config    ConfigProvider
	Anchors   AnchorRecorder
	NotifyHub *notify.Hub
	Status    *status.Reporter
	Logger    *slog.Logger
	MuxerPath string
	ProbePath string // probe companion binary, handed to postprocess.Run as a CLIProber (which Run does not call)
}

// RoomSupervisor owns one room's full probe/record/post-process cycle.
type RoomSupervisor struct {
	provider RoomProvider
	deps     Deps
	backoff  *BackoffPolicy

	state atomic.Value // State

	retryCounter int
	notifiedLive bool
	sessionID    string
}

// New builds a RoomSupervisor for the room provider's initial room. loopBase
// is the configured LoopSeconds at construction time.
func New(provider RoomProvider, deps Deps, loopBase time.Duration) *RoomSupervisor {
	rs := &RoomSupervisor{
		provider: provider,
		deps:     deps,
		backoff:  NewBackoffPolicy(loopBase),
	}
	rs.setState(State{Current: LifecycleIdle})
	return rs
}

func (rs *RoomSupervisor) setState(s State) {
	rs.state.Store(s)
	if rs.deps.Status != nil {
		room := rs.provider.Room()
		rs.deps.Status.Update(room.URL, status.RoomSnapshot{
			Anchor:           room.Anchor,
			URL:              room.URL,
			State:            status.RoomState(s.Current),
			RequestedQuality: qualityName(room.RequestedQuality),
			RecordingSince:   s.RecordingStartedAt,
			ErrorCount:       s.RetryCounter,
		})
	}
}

// Metrics returns a lock-free snapshot of the room's current FSM state.
func (rs *RoomSupervisor) Metrics() State {
	if v := rs.state.Load(); v != nil {
		return v.(State)
	}
	return State{}
}

func (rs *RoomSupervisor) logf(level slog.Level, msg string, args ...any) {
	if rs.deps.Logger == nil {
		return
	}
	room := rs.provider.Room()
	allArgs := append([]any{"room", room.URL, "anchor", room.Anchor}, args...)
	rs.deps.Logger.Log(context.Background(), level, msg, allArgs...)
}

// Run executes the outer loop until ctx is cancelled or the room is
// observed Commented, implementing §4.5 steps 1-7.
func (rs *RoomSupervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			rs.setState(State{Current: LifecycleStopping})
			return ctx.Err()
		}

		room := rs.provider.Room()
		if room.Commented {
			rs.setState(State{Current: LifecycleStopping})
			rs.logf(slog.LevelInfo, "room commented out, stopping supervisor")
			return nil
		}

		live, resolution, err := rs.probe(ctx, room)
		if err != nil {
			rs.recordFailure(err)
			if waitErr := rs.sleep(ctx, rs.nextDelay(false)); waitErr != nil {
				return waitErr
			}
			continue
		}

		if !live {
			rs.transitionOffline()
			if waitErr := rs.sleep(ctx, rs.nextDelay(false)); waitErr != nil {
				return waitErr
			}
			continue
		}

		cfg := rs.snapshotConfig()
		rs.transitionLive(ctx, room, resolution)

		if cfg.RecordingSettings.PushOnly {
			interval := time.Duration(cfg.RecordingSettings.PushCheckIntervalSec) * time.Second
			if waitErr := rs.sleep(ctx, interval); waitErr != nil {
				return waitErr
			}
			continue
		}

		runTime, ppErr := rs.recordAndPostProcess(ctx, room, resolution, cfg)
		shortRun := runTime > 0 && runTime < shortRunThreshold
		if ppErr != nil {
			rs.recordFailure(ppErr)
		}
		if waitErr := rs.sleep(ctx, rs.nextDelay(shortRun)); waitErr != nil {
			return waitErr
		}
	}
}

func (rs *RoomSupervisor) snapshotConfig() roomconfig.Config {
	if rs.deps.Config == nil {
		return *roomconfig.Default()
	}
	return rs.deps.Config.Snapshot()
}

// probe acquires a governor permit, resolves the room, and releases the
// permit before returning — the permit must not be held across recording.
func (rs *RoomSupervisor) probe(ctx context.Context, room urlregistry.Room) (bool, resolver.Resolution, error) {
	rs.setState(State{Current: LifecycleProbing, RetryCounter: rs.retryCounter, NotifiedLive: rs.notifiedLive})

	if rs.deps.Governor != nil {
		if err := rs.deps.Governor.Acquire(ctx); err != nil {
			return false, resolver.Resolution{}, err
		}
	}
	resolution, err := rs.deps.Resolver.Resolve(ctx, resolver.Room{
		URL:      room.URL,
		Quality:  room.RequestedQuality,
		Platform: room.Platform,
	})
	if rs.deps.Governor != nil {
		rs.deps.Governor.Release()
	}

	if err != nil {
		return false, resolver.Resolution{}, err
	}
	if !resolution.IsLive {
		return false, resolution, nil
	}

	if rs.deps.Anchors != nil && resolution.AnchorName != "" && room.Anchor == "" {
		_ = rs.deps.Anchors.AppendAnchor(ctx, room.URL, resolution.AnchorName)
	}
	return true, resolution, nil
}

func (rs *RoomSupervisor) recordFailure(err error) {
	rs.retryCounter++
	kind := roomerrors.KindUnknown
	var re *roomerrors.Error
	if errors.As(err, &re) {
		kind = re.Kind
		if rs.deps.Governor != nil && kind.CountsTowardGovernor() {
			rs.deps.Governor.RecordError()
		}
	}
	rs.setState(State{Current: LifecycleProbing, RetryCounter: rs.retryCounter, LastErrorKind: kind, NotifiedLive: rs.notifiedLive})
	rs.logf(slog.LevelWarn, "probe or recording failed", "error", err, "kind", kind.String(), "retry", rs.retryCounter)
}

// transitionOffline enters WaitingLive, emitting a WentOffline notification
// exactly once per live session.
func (rs *RoomSupervisor) transitionOffline() {
	room := rs.provider.Room()
	if rs.notifiedLive {
		rs.notify(room, "went offline")
	}
	rs.notifiedLive = false
	rs.sessionID = ""
	rs.setState(State{Current: LifecycleWaitingLive, RetryCounter: rs.retryCounter, NotifiedLive: rs.notifiedLive})
}

// transitionLive emits a WentLive notification exactly once per live
// session; NotifiedLive guards both call sites so the FSM cannot double-fire.
// A fresh sessionID is minted per live session so the eventual "went
// offline" notification and every log line in between can be correlated.
func (rs *RoomSupervisor) transitionLive(ctx context.Context, room urlregistry.Room, res resolver.Resolution) {
	if !rs.notifiedLive {
		rs.sessionID = uuid.NewString()
		rs.notify(room, "went live")
		rs.notifiedLive = true
	}
	rs.retryCounter = 0
	rs.setState(State{Current: LifecycleRecording, NotifiedLive: rs.notifiedLive})
}

func (rs *RoomSupervisor) notify(room urlregistry.Room, verb string) {
	if rs.deps.NotifyHub == nil {
		return
	}
	results := rs.deps.NotifyHub.Notify(context.Background(), notify.Event{
		AnchorName: room.Anchor,
		RoomURL:    room.URL,
		Title:      verb,
		Time:       time.Now(),
		SessionID:  rs.sessionID,
	})
	for _, r := range results {
		if r.Err != nil {
			rs.logf(slog.LevelWarn, "notification channel failed", "channel", r.Channel, "error", r.Err, "session_id", rs.sessionID)
		}
	}
}

// recordAndPostProcess builds the output directory, reserves a file name,
// runs the recorder to completion, and schedules post-processing. It
// returns the recording's on-air duration so the caller can apply the
// short-run back-off rule.
func (rs *RoomSupervisor) recordAndPostProcess(ctx context.Context, room urlregistry.Room, res resolver.Resolution, cfg roomconfig.Config) (time.Duration, error) {
	rec := cfg.RecordingSettings
	dir := outputDir(cfg.ResolvedSavePath("."), room, rec, time.Now())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("roomsupervisor: mkdir %s: %w", dir, err)
	}

	container := recorder.Container(rec.Container)
	if res.PreferredContainer != "" {
		container = recorder.Container(res.PreferredContainer)
	}
	base := filenamer.BaseName(room.Anchor, res.Title, rec.FolderByTitle, time.Now())

	var outPath, template string
	var startIndex int
	var err error
	if rec.SegmentEnabled {
		template, startIndex, err = filenamer.ReserveSegment(dir, base, container.Extension())
	} else {
		outPath, err = filenamer.Reserve(dir, base, container.Extension())
	}
	if err != nil {
		return 0, fmt.Errorf("roomsupervisor: reserve file name: %w", err)
	}
	outputPath := outPath
	if rec.SegmentEnabled {
		outputPath = template
	}

	startedAt := time.Now()
	rs.setState(State{Current: LifecycleRecording, CurrentFilePath: filepath.Join(dir, outputPath), RecordingStartedAt: startedAt, NotifiedLive: rs.notifiedLive})

	proc := &recorder.Process{}
	args := recorder.BuildArgs{
		MediaURL:     res.MediaURL,
		OutputPath:   filepath.Join(dir, outputPath),
		Container:    container,
		Overseas:     room.Platform == "overseas",
		Segment:      rec.SegmentEnabled,
		SegmentSecs:  rec.SegmentSeconds,
		SegmentStart: startIndex,
		ReencodeH264: rec.ReencodeH264,
		MuxerPath:    rs.deps.MuxerPath,
	}
	if err := proc.Start(ctx, rs.deps.MuxerPath, args, nil); err != nil {
		return 0, err
	}

	class, waitErr := proc.Wait(ctx)
	runTime := time.Since(startedAt)

	if class == recorder.ExitCancelled {
		_ = proc.Stop(10 * time.Second)
		return runTime, waitErr
	}
	if class == recorder.ExitError {
		return runTime, roomerrors.New(roomerrors.KindRecorderExitNonZero, waitErr)
	}

	rs.setState(State{Current: LifecyclePostProcessing, NotifiedLive: rs.notifiedLive})
	if !rec.SegmentEnabled && rec.ConvertToMP4 && container != recorder.ContainerMP4 {
		rs.postProcess(ctx, filepath.Join(dir, outputPath), rec)
	}
	return runTime, nil
}

// postProcess converts a finished, non-segmented recording to MP4 when
// configured. Segmentation itself already happened live (the muxer's own
// segment output) per §4.6, so there is no segment-after-the-fact case here.
func (rs *RoomSupervisor) postProcess(ctx context.Context, sourcePath string, rec roomconfig.RecordingSettings) {
	var prober postprocess.DurationProber
	if rs.deps.ProbePath != "" {
		prober = postprocess.CLIProber{ProbePath: rs.deps.ProbePath}
	}
	_, err := postprocess.Run(ctx, postprocess.Options{
		MuxerPath:    rs.deps.MuxerPath,
		SourcePath:   sourcePath,
		Container:    recorder.ContainerMP4,
		ReencodeH264: rec.ReencodeH264,
		DeleteSource: rec.DeleteSource,
	}, prober)
	if err != nil {
		rs.logf(slog.LevelWarn, "post-processing failed", "error", err)
	}
}

func (rs *RoomSupervisor) nextDelay(shortRun bool) time.Duration {
	penalty := rs.deps.Governor != nil && rs.deps.Governor.Penalty()
	return rs.backoff.Next(penalty, shortRun)
}

func (rs *RoomSupervisor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// outputDir builds <root>/<platform>[/<anchor>][/<date>] per §4.5 step 4.
func outputDir(root string, room urlregistry.Room, rec roomconfig.RecordingSettings, now time.Time) string {
	parts := []string{root, platformOrDefault(room.Platform)}
	if rec.FolderByAuthor {
		parts = append(parts, filenamer.Clean(room.Anchor))
	}
	if rec.FolderByTime {
		parts = append(parts, now.Format("20060102"))
	}
	return filepath.Join(parts...)
}

func platformOrDefault(p string) string {
	if p == "" {
		return "custom"
	}
	return p
}

func qualityName(q resolver.Quality) string {
	switch q {
	case resolver.QualityOriginal:
		return "Original"
	case resolver.QualityBluray:
		return "Bluray"
	case resolver.QualityUHD:
		return "UHD"
	case resolver.QualityHD:
		return "HD"
	case resolver.QualitySD:
		return "SD"
	case resolver.QualityLD:
		return "LD"
	default:
		return "Original"
	}
}
