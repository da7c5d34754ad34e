// SPDX-License-Identifier: MIT

// Package notify fans a room going live out to every enabled notification
// channel concurrently, collecting a per-channel result without letting one
// channel's failure block or cancel the others. The HTTP scaffolding —
// functional options, a timeout-bound client, status-code/body error
// wrapping — is carried over from the teacher's mediamtx.Client, rewritten
// from an API-polling GET client into a single-shot POST pusher.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roomrec/roomrec/internal/roomerrors"
)

// DefaultTimeout bounds a single channel's delivery attempt.
const DefaultTimeout = 10 * time.Second

// Event is the payload describing the room state change being announced.
type Event struct {
	AnchorName string
	RoomURL    string
	Title      string
	Time       time.Time
	// SessionID correlates the "went live" and "went offline" notifications
	// for the same recording session across channels and log lines.
	SessionID string
}

// Channel delivers one Event to one destination.
type Channel interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// ChannelResult records the outcome of one channel's delivery attempt.
type ChannelResult struct {
	Channel string
	Err     error
}

// Hub fans an Event out to every registered Channel concurrently.
type Hub struct {
	channels []Channel
}

// NewHub builds a Hub over the given channels, skipping nil entries so a
// partially-configured channel list never panics.
func NewHub(channels ...Channel) *Hub {
	h := &Hub{}
	for _, c := range channels {
		if c != nil {
			h.channels = append(h.channels, c)
		}
	}
	return h
}

// Notify delivers ev to every channel, returning one ChannelResult per
// channel regardless of individual failures. It never returns a non-nil
// error itself; a channel failure is reported in its ChannelResult instead,
// so one unreachable webhook never suppresses delivery to the others.
func (h *Hub) Notify(ctx context.Context, ev Event) []ChannelResult {
	results := make([]ChannelResult, len(h.channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range h.channels {
		i, c := i, c
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, DefaultTimeout)
			defer cancel()
			err := c.Notify(cctx, ev)
			if err != nil {
				err = roomerrors.New(roomerrors.KindNotificationFailure, err)
			}
			results[i] = ChannelResult{Channel: c.Name(), Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// WebhookChannel posts a JSON payload built from a text template to a fixed
// URL, the generic push-notification shape most self-hosted chat bridges
// (Bark, ntfy, a custom relay) accept.
type WebhookChannel struct {
	name       string
	url        string
	template   string
	httpClient *http.Client
}

// NewWebhookChannel builds a channel named name that posts to url, rendering
// template as the message body. template may use the placeholders
// [直播間名稱] (anchor name) and [時間] (formatted time).
func NewWebhookChannel(name, url, template string) *WebhookChannel {
	return &WebhookChannel{
		name:     name,
		url:      url,
		template: template,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

func (w *WebhookChannel) Name() string { return w.name }

// Render substitutes ev's fields into the channel's template.
func (w *WebhookChannel) Render(ev Event) string {
	replacer := strings.NewReplacer(
		"[直播間名稱]", ev.AnchorName,
		"[時間]", ev.Time.Format("2006-01-02 15:04:05"),
	)
	return replacer.Replace(w.template)
}

type webhookBody struct {
	Text string `json:"text"`
}

// Notify posts the rendered template to the channel's webhook URL.
func (w *WebhookChannel) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(webhookBody{Text: w.Render(ev)})
	if err != nil {
		return fmt.Errorf("notify: encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("notify: webhook returned status %d (failed to read body: %v)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("notify: webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
