// SPDX-License-Identifier: MIT

// Package postprocess runs the muxer a second time over a file that has
// already landed on disk: segmenting a raw TS recording after the fact with
// the muxer's segment output, or converting TS to MP4. No MP4 faststart pass
// is applied to the converted file. It reuses
// recorder.BuildArgs/BuildArgv so the container flags never drift between
// the live-recording path and this post-hoc path.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/roomrec/roomrec/internal/filenamer"
	"github.com/roomrec/roomrec/internal/recorder"
	"github.com/roomrec/roomrec/internal/roomerrors"
)

// DurationProber reports a media file's duration. Run accepts one but does
// not call it: segmenting is a single muxer run with the segment output, so
// no segment count is computed from the source duration. Implementations
// typically shell out to the muxer's own probe companion binary.
type DurationProber interface {
	Duration(ctx context.Context, path string) (seconds float64, err error)
}

// CLIProber runs an external probe binary and parses its stdout as a bare
// floating point seconds value, using the `-show_entries format=duration
// -of default=noprint_wrappers=1:nokey=1` probe invocation.
type CLIProber struct {
	ProbePath string
}

func (p CLIProber) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ProbePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("postprocess: probe %s: %w", path, err)
	}
	var seconds float64
	if _, err := fmt.Sscanf(string(out), "%f", &seconds); err != nil {
		return 0, fmt.Errorf("postprocess: parse probe output %q: %w", out, err)
	}
	return seconds, nil
}

// Options configures a post-processing run over one already-closed recording.
type Options struct {
	MuxerPath      string
	SourcePath     string
	Container      recorder.Container // target container
	SegmentEnabled bool
	SegmentSecs    int
	ReencodeH264   bool
	DeleteSource   bool
}

// Result describes what post-processing produced.
type Result struct {
	OutputPaths []string // one entry unless segmented
}

// Run converts and/or segments SourcePath per opts, deleting the source
// afterward only when opts.DeleteSource and the muxer exited cleanly.
func Run(ctx context.Context, opts Options, prober DurationProber) (Result, error) {
	dir := filepath.Dir(opts.SourcePath)
	base := filenamer.Clean(strings.TrimSuffix(filepath.Base(opts.SourcePath), filepath.Ext(opts.SourcePath)))

	var result Result
	var err error
	if opts.SegmentEnabled {
		result, err = runSegment(ctx, opts, dir, base)
	} else {
		result, err = runConvert(ctx, opts, dir, base)
	}
	if err != nil {
		return Result{}, err
	}

	if opts.DeleteSource {
		if rmErr := os.Remove(opts.SourcePath); rmErr != nil && !os.IsNotExist(rmErr) {
			return result, fmt.Errorf("postprocess: delete source %s: %w", opts.SourcePath, rmErr)
		}
	}
	return result, nil
}

func runConvert(ctx context.Context, opts Options, dir, base string) (Result, error) {
	name, err := filenamer.Reserve(dir, base, opts.Container.Extension())
	if err != nil {
		return Result{}, fmt.Errorf("postprocess: reserve output name: %w", err)
	}
	outPath := filepath.Join(dir, name)

	args := recorder.BuildArgs{
		MediaURL:     opts.SourcePath,
		OutputPath:   outPath,
		Container:    opts.Container,
		ReencodeH264: opts.ReencodeH264,
	}
	if err := runMuxer(ctx, opts.MuxerPath, args); err != nil {
		_ = os.Remove(outPath)
		return Result{}, err
	}
	return Result{OutputPaths: []string{outPath}}, nil
}

func runSegment(ctx context.Context, opts Options, dir, base string) (Result, error) {
	template, startIndex, err := filenamer.ReserveSegment(dir, base, opts.Container.Extension())
	if err != nil {
		return Result{}, fmt.Errorf("postprocess: reserve segment template: %w", err)
	}
	templatePath := filepath.Join(dir, template)

	args := recorder.BuildArgs{
		MediaURL:     opts.SourcePath,
		OutputPath:   templatePath,
		Container:    opts.Container,
		Segment:      true,
		SegmentSecs:  opts.SegmentSecs,
		SegmentStart: startIndex,
		ReencodeH264: opts.ReencodeH264,
	}
	if err := runMuxer(ctx, opts.MuxerPath, args); err != nil {
		return Result{}, err
	}

	matches, globErr := filepath.Glob(filepath.Join(dir, base+"-*"+opts.Container.Extension()))
	if globErr != nil {
		return Result{}, fmt.Errorf("postprocess: glob segment outputs: %w", globErr)
	}
	return Result{OutputPaths: matches}, nil
}

func runMuxer(ctx context.Context, muxerPath string, args recorder.BuildArgs) error {
	p := &recorder.Process{}
	if err := p.Start(ctx, muxerPath, args, nil); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return roomerrors.New(roomerrors.KindMuxerMissing, err)
		}
		return err
	}
	class, err := p.Wait(ctx)
	if class == recorder.ExitError {
		return roomerrors.New(roomerrors.KindRecorderExitNonZero, err)
	}
	return err
}
