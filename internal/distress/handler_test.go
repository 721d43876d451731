package distress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/caresignal/triage-platform/internal/triage"
)

func newTestServer(t *testing.T, emit EmitFunc) (*httptest.Server, *Registry) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Debounce = 20 * time.Millisecond
	cfg.Cooldown = time.Minute
	registry := NewRegistry(cfg, MeanEnergyClassifier, emit, nil)
	t.Cleanup(registry.Close)

	h := NewHandler(registry, nil)
	r := chi.NewRouter()
	r.Get("/v1/distress/stream", h.HandleStream)
	r.Get("/v1/distress/{sessionID}", h.Status)
	r.Post("/v1/distress/{sessionID}/dismiss", h.Dismiss)
	r.Post("/v1/distress/{sessionID}/help", h.RequestHelp)
	r.Delete("/v1/distress/{sessionID}", h.CloseSession)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dialStream(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/distress/stream?session=" + sessionID + "&patient=patient-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamFeedsMonitor(t *testing.T) {
	srv, registry := newTestServer(t, nil)
	conn := dialStream(t, srv, "session-1")

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := frameMessage{Features: []float64{0.3, 0.4}, At: base.Add(time.Duration(i) * 100 * time.Millisecond)}
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		monitor, err := registry.Get("session-1")
		if err == nil && monitor.Status().Score > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("monitor never scored the streamed frames")
}

func TestStreamRejectsMalformedFrameAndStaysOpen(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	conn := dialStream(t, srv, "session-2")

	if err := conn.WriteJSON(frameMessage{Features: nil}); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp streamError
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != "error" {
		t.Fatalf("expected error message, got %+v", resp)
	}

	// The stream is still usable for valid frames.
	if err := conn.WriteJSON(frameMessage{Features: []float64{0.5}, At: time.Now()}); err != nil {
		t.Fatalf("write after rejection: %v", err)
	}
}

func TestStreamRequiresSession(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/v1/distress/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without session, got %d", resp.StatusCode)
	}
}

func TestStatusAndCommands(t *testing.T) {
	emitted := make(chan Signal, 1)
	srv, registry := newTestServer(t, func(_ context.Context, sig Signal) {
		select {
		case emitted <- sig:
		default:
		}
	})
	registry.Open("session-3", "patient-3")

	resp, err := http.Get(srv.URL + "/v1/distress/session-3")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.BannerActive {
		t.Fatal("fresh session must not show a banner")
	}

	// "Yes, I need help" emits a confirmed signal immediately.
	helpResp, err := http.Post(srv.URL+"/v1/distress/session-3/help", "application/json", nil)
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	helpResp.Body.Close()
	if helpResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", helpResp.StatusCode)
	}
	select {
	case sig := <-emitted:
		if sig.Decision != triage.DistressConfirmed || sig.SessionID != "session-3" {
			t.Fatalf("unexpected signal: %+v", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("help request never emitted a signal")
	}

	// "I'm okay" clears the banner.
	dismissResp, err := http.Post(srv.URL+"/v1/distress/session-3/dismiss", "application/json", nil)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	dismissResp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		monitor, _ := registry.Get("session-3")
		if s := monitor.Status(); !s.BannerActive && s.Decision == triage.DistressNone {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("dismiss never cleared the banner")
}

func TestStatusUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/v1/distress/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCloseSessionEndpoint(t *testing.T) {
	srv, registry := newTestServer(t, nil)
	registry.Open("session-4", "patient-4")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/distress/session-4", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, err := registry.Get("session-4"); err == nil {
		t.Fatal("session must be forgotten after close")
	}
}
