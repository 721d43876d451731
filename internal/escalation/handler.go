package escalation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caresignal/triage-platform/internal/http/middleware"
	"github.com/caresignal/triage-platform/pkg/logging"
)

// Handler exposes escalation acknowledgment and inspection endpoints.
type Handler struct {
	dispatcher *Dispatcher
	logger     *logging.Logger
}

// NewHandler creates the escalation HTTP handler.
func NewHandler(dispatcher *Dispatcher, logger *logging.Logger) *Handler {
	if dispatcher == nil {
		panic("escalation: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: dispatcher, logger: logger}
}

// AckRequest is the optional POST body for acknowledgments from clients that
// do not carry an authenticated actor.
type AckRequest struct {
	By string `json:"by"`
}

// Acknowledge handles POST /escalations/{eventID}/ack. The acknowledging
// caregiver comes from the authenticated actor, falling back to the body.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	by := ""
	if actor, ok := middleware.ActorFromContext(r.Context()); ok {
		by = actor.ID
	}
	if by == "" {
		var req AckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			by = req.By
		}
	}
	if by == "" {
		writeError(w, http.StatusBadRequest, "acknowledging caregiver is required")
		return
	}

	if err := h.dispatcher.Acknowledge(eventID, by); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "escalation not found")
			return
		}
		h.logger.Error("acknowledge failed", "error", err, "event_id", eventID)
		writeError(w, http.StatusInternalServerError, "acknowledge failed")
		return
	}

	snap, err := h.dispatcher.Snapshot(eventID)
	if err != nil {
		writeError(w, http.StatusNotFound, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Get handles GET /escalations/{eventID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	snap, err := h.dispatcher.Snapshot(eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "escalation not found")
			return
		}
		h.logger.Error("escalation lookup failed", "error", err, "event_id", eventID)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
