package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/booking"
	"github.com/aluna-estetica/backend/internal/schedule"
)

type slotView struct {
	Time  string `json:"time"`
	Taken bool   `json:"taken"`
	Past  bool   `json:"past"`
}

type availabilityResponse struct {
	Date           string     `json:"date"`
	Slots          []slotView `json:"slots"`
	Taken          []string   `json:"taken"`
	MissingSources []string   `json:"missing_sources,omitempty"`
}

// availability returns the slot grid for a date with taken and past slots
// marked. It works for anonymous visitors too; the user source then simply
// contributes nothing.
func (a *API) availability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "date is required"})
		return
	}
	if _, err := time.Parse(schedule.DateLayout, date); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "date must be YYYY-MM-DD"})
		return
	}

	loc := a.cfg.Location
	if tz := strings.TrimSpace(r.URL.Query().Get("tz")); tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}

	agg := a.aggregatorFor(r, loc)
	av := agg.Taken(r.Context(), date)

	now := time.Now().In(loc)
	grid := schedule.DaySlots(date, a.cfg.Hours)
	slots := make([]slotView, 0, len(grid))
	for _, t := range grid {
		slots = append(slots, slotView{
			Time:  t,
			Taken: av.Contains(t),
			Past:  schedule.IsPast(date, t, now),
		})
	}

	a.writeJSON(w, http.StatusOK, availabilityResponse{
		Date:           date,
		Slots:          slots,
		Taken:          av.Taken,
		MissingSources: av.MissingSources,
	})
}

// aggregatorFor assembles the three taken-slot sources for one request:
// the client-held cart, the caller's own appointments, and (behind the
// feature flag) the global availability query.
func (a *API) aggregatorFor(r *http.Request, loc *time.Location) *booking.Aggregator {
	sources := []booking.Source{
		booking.CartSource{Lines: cartFromRequest(r)},
		booking.UserSource{
			API:   a.upstream,
			Cache: a.caches.UserAppointments,
			Token: auth.TokenFromRequest(r),
			Loc:   loc,
		},
	}
	if a.cfg.GlobalAvailability {
		sources = append(sources, booking.GlobalSource{
			API:       a.upstream,
			TZ:        a.cfg.TZName,
			ServiceID: strings.TrimSpace(r.URL.Query().Get("service_id")),
		})
	}
	return booking.NewAggregator(a.logger, sources...)
}

func cartFromRequest(r *http.Request) []booking.CartLine {
	if c, err := r.Cookie("cart"); err == nil && c.Value != "" {
		return booking.ParseCart(c.Value)
	}
	return nil
}
