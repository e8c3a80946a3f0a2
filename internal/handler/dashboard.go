package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/service"
)

// DashboardHandler serves GET /api/dashboard and member profiles
type DashboardHandler struct {
	dashboard *service.DashboardService
	directory *service.Directory
	logger    *slog.Logger
	now       func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, directory *service.Directory, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{dashboard: dashboard, directory: directory, logger: logger, now: time.Now}
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	summary, err := h.dashboard.Summary(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ProfileView is a member's orders grouped by their progress status
type ProfileView struct {
	UserID    string        `json:"userId"`
	Username  string        `json:"username"`
	User      *UserView     `json:"user,omitempty"`
	Active    []OrderView   `json:"active"`
	Submitted []OrderView   `json:"submitted"`
	Confirmed []OrderView   `json:"confirmed"`
	Absences  []AbsenceView `json:"absences"`
}

// Profile handles GET /api/users/{id}/profile
func (h *DashboardHandler) Profile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.dashboard.Profile(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	labels := h.directory.Labels(r.Context())
	now := h.now()
	orders := func(list []*domain.Order) []OrderView {
		out := make([]OrderView, 0, len(list))
		for _, o := range list {
			out = append(out, newOrderView(o, labels, now))
		}
		return out
	}
	v := ProfileView{
		UserID:    p.UserID,
		Username:  p.Username,
		Active:    orders(p.Active),
		Submitted: orders(p.Submitted),
		Confirmed: orders(p.Confirmed),
		Absences:  make([]AbsenceView, 0, len(p.Absences)),
	}
	if p.User != nil {
		u := newUserView(p.User)
		v.User = &u
	}
	for _, a := range p.Absences {
		v.Absences = append(v.Absences, newAbsenceView(a, labels))
	}
	writeJSON(w, http.StatusOK, v)
}
