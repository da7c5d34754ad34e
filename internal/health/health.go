// SPDX-License-Identifier: MIT

// Package health serves the same /healthz + Prometheus /metrics surface the
// teacher's own internal/health package exposed for its stream services,
// retargeted from per-ALSA-device ServiceInfo to per-room RoomInfo fed by
// status.Reporter, and from disk/NTP SystemInfo to the governor's current
// concurrency ceiling plus the configured disk floor.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// RoomInfo mirrors one room's reported state for the health/metrics surface.
type RoomInfo struct {
	Anchor     string `json:"anchor"`
	URL        string `json:"url"`
	State      string `json:"state"`
	Recording  bool   `json:"recording"`
	ErrorCount int    `json:"error_count,omitempty"`
}

// GovernorInfo surfaces the concurrency governor's current state.
type GovernorInfo struct {
	CurrentLimit int  `json:"current_limit"`
	PresetLimit  int  `json:"preset_limit"`
	Penalty      bool `json:"penalty"`
}

// SystemInfo surfaces the disk-floor check's current reading.
type SystemInfo struct {
	DiskFreeBytes  uint64 `json:"disk_free_bytes"`
	DiskTotalBytes uint64 `json:"disk_total_bytes"`
	DiskLowWarning bool   `json:"disk_low_warning,omitempty"`
}

// RoomProvider returns the current health status of all monitored rooms.
// The daemon wires status.Reporter to satisfy this.
type RoomProvider interface {
	Rooms() []RoomInfo
}

// GovernorProvider returns the governor's current state.
type GovernorProvider interface {
	GovernorStatus() GovernorInfo
}

// SystemInfoProvider returns disk-space data for the health response.
type SystemInfoProvider interface {
	SystemInfo() SystemInfo
}

// Response is the JSON body returned by /healthz.
type Response struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Rooms     []RoomInfo    `json:"rooms"`
	Governor  *GovernorInfo `json:"governor,omitempty"`
	System    *SystemInfo   `json:"system,omitempty"`
}

// Handler serves /healthz and /metrics.
type Handler struct {
	provider    RoomProvider
	govProvider GovernorProvider
	sysProvider SystemInfoProvider
}

// NewHandler creates a health check HTTP handler over provider.
func NewHandler(provider RoomProvider) *Handler {
	return &Handler{provider: provider}
}

// WithGovernor attaches a governor status provider.
func (h *Handler) WithGovernor(p GovernorProvider) *Handler {
	h.govProvider = p
	return h
}

// WithSystemInfo attaches a disk-space provider.
func (h *Handler) WithSystemInfo(p SystemInfoProvider) *Handler {
	h.sysProvider = p
	return h
}

// ServeHTTP implements http.Handler, routing to /healthz and /metrics.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/metrics":
		h.serveMetrics(w, r)
	default:
		h.serveHealth(w, r)
	}
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := Response{Timestamp: time.Now(), Status: "healthy"}

	var rooms []RoomInfo
	if h.provider != nil {
		rooms = h.provider.Rooms()
	}
	resp.Rooms = rooms

	if h.govProvider != nil {
		gi := h.govProvider.GovernorStatus()
		resp.Governor = &gi
	}

	degraded := false
	if h.sysProvider != nil {
		si := h.sysProvider.SystemInfo()
		resp.System = &si
		if si.DiskLowWarning {
			degraded = true
		}
	}

	if degraded {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if degraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// serveMetrics writes a Prometheus text-format metrics response without any
// external dependency, matching the teacher's hand-rolled exposition writer.
func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var sb strings.Builder

	var rooms []RoomInfo
	if h.provider != nil {
		rooms = h.provider.Rooms()
	}

	if len(rooms) > 0 {
		fmt.Fprintln(&sb, "# HELP roomrec_room_recording 1 when the room is currently recording.")
		fmt.Fprintln(&sb, "# TYPE roomrec_room_recording gauge")
		for _, rm := range rooms {
			v := 0
			if rm.Recording {
				v = 1
			}
			fmt.Fprintf(&sb, "roomrec_room_recording{anchor=%q} %d\n", rm.Anchor, v)
		}

		fmt.Fprintln(&sb, "# HELP roomrec_room_errors_total Retry count since the room's last successful probe.")
		fmt.Fprintln(&sb, "# TYPE roomrec_room_errors_total counter")
		for _, rm := range rooms {
			fmt.Fprintf(&sb, "roomrec_room_errors_total{anchor=%q} %d\n", rm.Anchor, rm.ErrorCount)
		}
	}

	if h.govProvider != nil {
		gi := h.govProvider.GovernorStatus()
		fmt.Fprintln(&sb, "# HELP roomrec_governor_current_limit The governor's current soft concurrency ceiling.")
		fmt.Fprintln(&sb, "# TYPE roomrec_governor_current_limit gauge")
		fmt.Fprintf(&sb, "roomrec_governor_current_limit %d\n", gi.CurrentLimit)

		penalty := 0
		if gi.Penalty {
			penalty = 1
		}
		fmt.Fprintln(&sb, "# HELP roomrec_governor_penalty 1 when the last tick saw an error burst.")
		fmt.Fprintln(&sb, "# TYPE roomrec_governor_penalty gauge")
		fmt.Fprintf(&sb, "roomrec_governor_penalty %d\n", penalty)
	}

	if h.sysProvider != nil {
		si := h.sysProvider.SystemInfo()
		fmt.Fprintln(&sb, "# HELP roomrec_disk_free_bytes Free bytes on the recording filesystem.")
		fmt.Fprintln(&sb, "# TYPE roomrec_disk_free_bytes gauge")
		fmt.Fprintf(&sb, "roomrec_disk_free_bytes %d\n", si.DiskFreeBytes)
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// ListenAndServe starts the health server on addr, shutting down gracefully
// when ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	return ListenAndServeReady(ctx, addr, handler, nil)
}

// ListenAndServeReady binds synchronously so port-in-use errors surface
// immediately, then signals readiness via ready (if non-nil) once listening.
func ListenAndServeReady(ctx context.Context, addr string, handler http.Handler, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if ready != nil {
		close(ready)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
