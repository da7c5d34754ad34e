package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roomrec/roomrec/internal/roomerrors"
)

type stubChannel struct {
	name string
	err  error
}

func (s stubChannel) Name() string { return s.name }
func (s stubChannel) Notify(ctx context.Context, ev Event) error { return s.err }

func TestHubNotifyCollectsAllResultsDespiteFailures(t *testing.T) {
	hub := NewHub(
		stubChannel{name: "ok"},
		stubChannel{name: "broken", err: context.DeadlineExceeded},
	)
	results := hub.Notify(context.Background(), Event{AnchorName: "Alice"})
	if len(results) != 2 {
		t.Fatalf("Notify() returned %d results, want 2", len(results))
	}
	byName := map[string]ChannelResult{}
	for _, r := range results {
		byName[r.Channel] = r
	}
	if byName["ok"].Err != nil {
		t.Errorf("channel %q should have succeeded, got %v", "ok", byName["ok"].Err)
	}
	if byName["broken"].Err == nil {
		t.Error("channel \"broken\" should have failed")
	}
	if !roomerrors.As(byName["broken"].Err, roomerrors.KindNotificationFailure) {
		t.Errorf("broken channel error should be KindNotificationFailure, got %v", byName["broken"].Err)
	}
}

func TestWebhookChannelRenderSubstitutesPlaceholders(t *testing.T) {
	w := NewWebhookChannel("test", "http://unused", "[直播間名稱] 開播了 [時間]")
	rendered := w.Render(Event{AnchorName: "Alice", Time: time.Date(2025, 3, 18, 20, 0, 0, 0, time.UTC)})
	want := "Alice 開播了 2025-03-18 20:00:00"
	if rendered != want {
		t.Errorf("Render() = %q, want %q", rendered, want)
	}
}

func TestWebhookChannelNotifyPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhookChannel("test", srv.URL, "[直播間名稱] is live")
	if err := w.Notify(context.Background(), Event{AnchorName: "Alice"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
}

func TestWebhookChannelNotifyErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhookChannel("test", srv.URL, "x")
	if err := w.Notify(context.Background(), Event{}); err == nil {
		t.Error("Notify() should error on a 500 response")
	}
}
