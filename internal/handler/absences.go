package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/service"
)

// AbsenceHandler serves absence requests
type AbsenceHandler struct {
	absences  *service.AbsenceService
	directory *service.Directory
	logger    *slog.Logger
}

// NewAbsenceHandler creates a new absence handler
func NewAbsenceHandler(absences *service.AbsenceService, directory *service.Directory, logger *slog.Logger) *AbsenceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AbsenceHandler{absences: absences, directory: directory, logger: logger}
}

// CreateAbsenceRequest is the body of POST /api/absences
type CreateAbsenceRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Reason    string `json:"reason"`
}

// List handles GET /api/absences
func (h *AbsenceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	absences, err := h.absences.ListAbsences(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	labels := h.directory.Labels(r.Context())
	out := make([]AbsenceView, 0, len(absences))
	for _, a := range absences {
		out = append(out, newAbsenceView(a, labels))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/absences
func (h *AbsenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req CreateAbsenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	end, err := domain.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	absence, err := h.absences.CreateAbsence(r.Context(), actor, start, end, req.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAbsenceView(absence, h.directory.Labels(r.Context())))
}

// Approve handles POST /api/absences/{id}/approve
func (h *AbsenceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.absences.ApproveAbsence)
}

// Reject handles POST /api/absences/{id}/reject
func (h *AbsenceHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.absences.RejectAbsence)
}

type decision func(ctx context.Context, actor domain.Actor, id string) (*domain.Absence, error)

func (h *AbsenceHandler) decide(w http.ResponseWriter, r *http.Request, fn decision) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	absence, err := fn(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAbsenceView(absence, h.directory.Labels(r.Context())))
}
