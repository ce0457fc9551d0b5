// Package handlers is the HTTP boundary. Every handler returns a JSON body
// with an explicit status; upstream and validation failures are mapped here
// and nothing leaks as an unhandled panic (the recovery wrapper in main is
// the backstop).
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/booking"
	"github.com/aluna-estetica/backend/internal/cache"
	"github.com/aluna-estetica/backend/internal/payments"
	"github.com/aluna-estetica/backend/internal/runtime"
	"github.com/aluna-estetica/backend/internal/schedule"
	"github.com/aluna-estetica/backend/internal/xano"
)

type Config struct {
	Hours              schedule.Config
	Location           *time.Location
	TZName             string
	GlobalAvailability bool
	CookieTTL          time.Duration
	SecureCookies      bool
	ServiceToken       string // server-side upstream token for webhook paths
}

// Caches are the injected TTL caches for the list endpoints. They are owned
// by main and shared with the submitter, so writes can invalidate reads.
type Caches struct {
	UserAppointments *cache.TTL[[]xano.Appointment]
	Products         *cache.TTL[[]xano.Product]
	Orders           *cache.TTL[[]xano.Order]
	Users            *cache.TTL[[]xano.User]
	Treatments       *cache.TTL[[]xano.Treatment]
}

func NewCaches(appointmentTTL, listTTL time.Duration) *Caches {
	return &Caches{
		UserAppointments: cache.New[[]xano.Appointment](appointmentTTL),
		Products:         cache.New[[]xano.Product](listTTL),
		Orders:           cache.New[[]xano.Order](listTTL),
		Users:            cache.New[[]xano.User](listTTL),
		Treatments:       cache.New[[]xano.Treatment](listTTL),
	}
}

type API struct {
	logger    *slog.Logger
	upstream  *xano.Client
	submitter *booking.Submitter
	payments  *payments.Client // nil when checkout is not configured
	caches    *Caches
	cfg       Config
}

func New(logger *slog.Logger, upstream *xano.Client, submitter *booking.Submitter, pay *payments.Client, caches *Caches, cfg Config) *API {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = 7 * 24 * time.Hour
	}
	return &API{
		logger:    logger,
		upstream:  upstream,
		submitter: submitter,
		payments:  pay,
		caches:    caches,
		cfg:       cfg,
	}
}

func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	runtime.RegisterHealth(func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		r.HandleFunc(pattern, handler)
	}, runtime.ReadyCheck{Name: "upstream", Check: a.upstream.Ready})

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", a.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/signup", a.signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", a.logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", a.me).Methods(http.MethodGet)

	api.HandleFunc("/availability", a.availability).Methods(http.MethodGet)

	api.Handle("/appointment", a.protected(a.listAppointments)).Methods(http.MethodGet)
	api.Handle("/appointment", a.protected(a.createAppointment)).Methods(http.MethodPost)
	// Registered before {id} so "user" is not swallowed as an id.
	api.Handle("/appointment/user", a.protected(a.userAppointments)).Methods(http.MethodGet)
	api.Handle("/appointment/{id}", a.protected(a.getAppointment)).Methods(http.MethodGet)
	api.Handle("/appointment/{id}", a.protected(a.patchAppointment)).Methods(http.MethodPatch)
	api.Handle("/appointment/{id}", a.protected(a.deleteAppointment)).Methods(http.MethodDelete)

	api.Handle("/order", a.protected(a.listOrders)).Methods(http.MethodGet)
	api.Handle("/order", a.protected(a.createOrder)).Methods(http.MethodPost)
	api.Handle("/order", a.protected(a.updateOrder)).Methods(http.MethodPatch)

	api.HandleFunc("/inventory", a.listInventory).Methods(http.MethodGet)
	api.Handle("/inventory", a.protected(a.adjustInventory)).Methods(http.MethodPost)

	api.Handle("/users", a.protected(a.listUsers)).Methods(http.MethodGet)

	api.Handle("/checkout", a.protected(a.checkout)).Methods(http.MethodPost)
	// The payment provider calls this; its auth is the payment lookup itself.
	api.HandleFunc("/payments/webhook", a.paymentWebhook).Methods(http.MethodPost)

	return r
}

func (a *API) protected(h http.HandlerFunc) http.Handler {
	return auth.RequireToken(h)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encode response", "err", err)
	}
}

// writeError maps the error taxonomy onto statuses. Unexpected upstream
// bodies are passed through under "raw" so the admin panel can show what
// the backend actually said.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var upstream *xano.UpstreamError
	switch {
	case errors.Is(err, xano.ErrUnauthenticated):
		a.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "authentication required"})
	case errors.Is(err, xano.ErrInvalidID),
		errors.Is(err, booking.ErrMissingField),
		errors.Is(err, booking.ErrPastSlot),
		errors.Is(err, booking.ErrZoneRequired):
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, booking.ErrSlotTaken), errors.Is(err, booking.ErrTransition):
		a.writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, xano.ErrNotFound):
		a.writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, xano.ErrRateLimited):
		a.writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": err.Error()})
	case errors.Is(err, xano.ErrNoEndpoint):
		a.writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
	case errors.As(err, &upstream):
		a.logger.Warn("unexpected upstream response", "status", upstream.Status)
		a.writeJSON(w, http.StatusBadGateway, map[string]any{"error": "unexpected upstream response", "raw": upstream.Raw})
	default:
		a.logger.Error("unhandled error", "err", err)
		a.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
