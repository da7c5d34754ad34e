// SPDX-License-Identifier: MIT

// Package diskprobe checks free space against the configured floor before
// the daemon starts recording, and again while a room is live so a full
// disk is detected without having to wait for the muxer to fail.
package diskprobe

import (
	"context"
	"fmt"
	"syscall"

	"github.com/roomrec/roomrec/internal/roomerrors"
)

// Prober reports free and total bytes available under root.
type Prober interface {
	FreeBytes(root string) (free, total uint64, err error)
}

// Statfs is the default Prober, backed by syscall.Statfs.
type Statfs struct{}

// FreeBytes implements Prober.
func (Statfs) FreeBytes(root string) (free, total uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(root, &stat); err != nil {
		return 0, 0, fmt.Errorf("diskprobe: statfs %s: %w", root, err)
	}
	// #nosec G115 -- Bsize is always positive on Linux filesystems
	free = stat.Bavail * uint64(stat.Bsize)
	// #nosec G115 -- Bsize is always positive on Linux filesystems
	total = stat.Blocks * uint64(stat.Bsize)
	return free, total, nil
}

const bytesPerGiB = 1024 * 1024 * 1024

// Check returns an error if the free space under root is below floorGiB.
// It is called once at startup (the DiskFull error kind is fatal there) and
// may be polled periodically while recordings are in flight.
func Check(p Prober, root string, floorGiB float64) error {
	free, _, err := p.FreeBytes(root)
	if err != nil {
		return err
	}
	floorBytes := uint64(floorGiB * bytesPerGiB)
	if free < floorBytes {
		return roomerrors.New(roomerrors.KindDiskFull,
			fmt.Errorf("%.2f GiB free, floor is %.2f GiB", float64(free)/bytesPerGiB, floorGiB))
	}
	return nil
}

// Watch calls Check each time a value arrives on tick and reports failures
// on the returned channel; it stops when ctx is done or tick is closed.
// cmd/roomrec cancels the supervision tree on the first reported failure
// and exits with code -1 once the tree has shut down.
func Watch(ctx context.Context, p Prober, root string, floorGiB float64, tick <-chan struct{}) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-tick:
				if !ok {
					return
				}
				if err := Check(p, root, floorGiB); err != nil {
					select {
					case out <- err:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}
