package assessment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caresignal/triage-platform/internal/triage"
	"github.com/caresignal/triage-platform/pkg/logging"
)

// Handler exposes the triage assessment API.
type Handler struct {
	orchestrator *Orchestrator
	store        Store
	logger       *logging.Logger
}

// NewHandler creates the assessment HTTP handler.
func NewHandler(orchestrator *Orchestrator, store Store, logger *logging.Logger) *Handler {
	if orchestrator == nil {
		panic("assessment: orchestrator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		logger:       logger,
	}
}

// CheckRequest is the POST /assessments request body.
type CheckRequest struct {
	PatientID string   `json:"patient_id"`
	SessionID string   `json:"session_id"`
	Symptoms  []string `json:"symptoms"`
	Note      string   `json:"note"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
}

// Check handles POST /assessments.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	report := &triage.SymptomReport{
		PatientID:  req.PatientID,
		SessionID:  req.SessionID,
		Symptoms:   req.Symptoms,
		Note:       req.Note,
		Age:        req.Age,
		Gender:     req.Gender,
		ReportedAt: time.Now(),
	}

	assessment, err := h.orchestrator.Check(r.Context(), report)
	if err != nil {
		if errors.Is(err, triage.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("assessment check failed", "error", err, "patient_id", req.PatientID)
		writeError(w, http.StatusInternalServerError, "assessment failed")
		return
	}

	writeJSON(w, http.StatusCreated, assessment)
}

// Get handles GET /assessments/{assessmentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid assessment id")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusNotFound, "assessment history is not enabled")
		return
	}

	assessment, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAssessmentNotFound) {
			writeError(w, http.StatusNotFound, "assessment not found")
			return
		}
		h.logger.Error("assessment lookup failed", "error", err, "assessment_id", id)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// History handles GET /patients/{patientID}/assessments.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient id is required")
		return
	}
	if h.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"assessments": []any{}})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}

	history, err := h.store.History(r.Context(), patientID, limit)
	if err != nil {
		h.logger.Error("assessment history query failed", "error", err, "patient_id", patientID)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if history == nil {
		history = []*triage.TriageAssessment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": history})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
