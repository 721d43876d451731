package distress

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/caresignal/triage-platform/pkg/logging"
)

// Handler exposes distress monitoring over HTTP: a WebSocket feature-frame
// stream plus banner status and user response endpoints.
type Handler struct {
	registry *Registry
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the distress HTTP handler.
func NewHandler(registry *Registry, logger *logging.Logger) *Handler {
	if registry == nil {
		panic("distress: registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// Browser capture widgets connect cross-origin; auth happens
			// at the middleware layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// frameMessage is one inbound WebSocket message on the stream.
type frameMessage struct {
	Features []float64 `json:"features"`
	At       time.Time `json:"at"`
}

type streamError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// HandleStream upgrades to WebSocket and feeds feature frames into the
// session's monitor. The monitor outlives the connection so capture can
// reconnect without losing debounce or cooldown state.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session parameter is required")
		return
	}
	patientID := r.URL.Query().Get("patient")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("distress stream upgrade failed", "error", err, "session_id", sessionID)
		return
	}
	defer conn.Close()

	monitor := h.registry.Open(sessionID, patientID)
	h.logger.Info("distress stream connected", "session_id", sessionID)

	for {
		var msg frameMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("distress stream closed unexpectedly", "error", err, "session_id", sessionID)
			}
			return
		}
		frame := FeatureFrame{SessionID: sessionID, Features: msg.Features, At: msg.At}
		if err := monitor.Offer(frame); err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				// Reject the frame, keep the stream open.
				_ = conn.WriteJSON(streamError{Type: "error", Error: "malformed frame"})
				continue
			}
			h.logger.Error("frame handoff failed", "error", err, "session_id", sessionID)
			return
		}
	}
}

// Status handles GET /distress/{sessionID}: the banner view.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	monitor, ok := h.monitor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, monitor.Status())
}

// Dismiss handles POST /distress/{sessionID}/dismiss ("I'm okay").
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	monitor, ok := h.monitor(w, r)
	if !ok {
		return
	}
	monitor.Dismiss()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dismissed"})
}

// RequestHelp handles POST /distress/{sessionID}/help ("Yes, I need help").
func (h *Handler) RequestHelp(w http.ResponseWriter, r *http.Request) {
	monitor, ok := h.monitor(w, r)
	if !ok {
		return
	}
	monitor.RequestHelp()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "help-requested"})
}

// CloseSession handles DELETE /distress/{sessionID}: the audio session ended.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	h.registry.CloseSession(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) monitor(w http.ResponseWriter, r *http.Request) (*Monitor, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return nil, false
	}
	monitor, err := h.registry.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "unknown session")
			return nil, false
		}
		h.logger.Error("monitor lookup failed", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return nil, false
	}
	return monitor, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
