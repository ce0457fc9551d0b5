package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/booking"
	"github.com/aluna-estetica/backend/internal/xano"
)

type appointmentView struct {
	ID       string `json:"id"`
	Date     string `json:"appointment_date"`
	Service  string `json:"service"`
	Zone     string `json:"zone,omitempty"`
	Sessions int    `json:"sessions,omitempty"`
	Status   string `json:"status"`
	Comments string `json:"comments,omitempty"`
}

func (a *API) appointmentView(appt xano.Appointment) appointmentView {
	return appointmentView{
		ID:       appt.ID,
		Date:     appt.Date.UTC().Format(time.RFC3339),
		Service:  appt.Service,
		Zone:     appt.Zone,
		Sessions: appt.Sessions,
		Status:   appt.Status,
		Comments: appt.Comments,
	}
}

func (a *API) appointmentViews(appts []xano.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(appts))
	for _, appt := range appts {
		out = append(out, a.appointmentView(appt))
	}
	return out
}

type createAppointmentRequest struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Treatment string `json:"treatment"`
	Zone      string `json:"zone"`
	Sessions  int    `json:"sessions"`
	Comments  string `json:"comments"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (a *API) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	token := auth.TokenFromContext(r.Context())
	draft := booking.Draft{
		Date:         strings.TrimSpace(req.Date),
		Time:         strings.TrimSpace(req.Time),
		Treatment:    strings.TrimSpace(req.Treatment),
		Zone:         strings.TrimSpace(req.Zone),
		RequiresZone: a.treatmentRequiresZone(r, req.Treatment),
		Sessions:     req.Sessions,
		Comments:     strings.TrimSpace(req.Comments),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
	}

	taken := a.aggregatorFor(r, a.cfg.Location).Taken(r.Context(), draft.Date)
	appt, err := a.submitter.Create(r.Context(), token, draft, taken)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, a.appointmentView(appt))
}

// treatmentRequiresZone consults the cached treatment catalog; an unknown or
// unreachable catalog means no zone requirement is enforced.
func (a *API) treatmentRequiresZone(r *http.Request, treatment string) bool {
	treatments, err := a.caches.Treatments.GetOrFill(r.Context(), "all", func(ctx context.Context) ([]xano.Treatment, error) {
		return a.upstream.ListTreatments(ctx)
	})
	if err != nil {
		a.logger.Warn("treatment catalog unavailable", "err", err)
		return false
	}
	for _, t := range treatments {
		if strings.EqualFold(t.Name, treatment) || t.ID == treatment {
			return t.RequiresZone
		}
	}
	return false
}

func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	appts, err := a.upstream.ListAppointments(r.Context(), token, strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.appointmentViews(appts))
}

func (a *API) userAppointments(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	appts, err := a.caches.UserAppointments.GetOrFill(r.Context(), token, func(ctx context.Context) ([]xano.Appointment, error) {
		return a.upstream.ListUserAppointments(ctx, token)
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.appointmentViews(appts))
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	appt, err := a.upstream.GetAppointment(r.Context(), token, mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.appointmentView(appt))
}

type patchAppointmentRequest struct {
	Action string `json:"action"` // confirm | cancel | reschedule
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

func (a *API) patchAppointment(w http.ResponseWriter, r *http.Request) {
	var req patchAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	token := auth.TokenFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var (
		appt xano.Appointment
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "confirm":
		appt, err = a.submitter.Confirm(r.Context(), token, id)
	case "cancel":
		appt, err = a.submitter.Cancel(r.Context(), token, id, strings.TrimSpace(req.Reason))
	case "reschedule":
		appt, err = a.submitter.Reschedule(r.Context(), token, id, strings.TrimSpace(req.Date), strings.TrimSpace(req.Time))
	default:
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "action must be confirm, cancel, or reschedule"})
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.appointmentView(appt))
}

// deleteAppointment hard-deletes upstream. The booking flows only ever
// cancel; this exists for the admin panel.
func (a *API) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	if err := a.upstream.DeleteAppointment(r.Context(), token, mux.Vars(r)["id"]); err != nil {
		a.writeError(w, err)
		return
	}
	a.caches.UserAppointments.Invalidate(token)
	a.writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
