package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluna-estetica/backend/internal/booking"
	"github.com/aluna-estetica/backend/internal/schedule"
	"github.com/aluna-estetica/backend/internal/xano"
)

// fakeBackend stands in for the hosted upstream workspace, with call
// counters so the cache assertions can see how often it was actually hit.
type fakeBackend struct {
	mu            sync.Mutex
	nextID        int
	appointments  map[string]map[string]any
	userListCalls int
	productCalls  int
	orders        []map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextID: 1, appointments: map[string]map[string]any{}}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	write := func(v any) { _ = json.NewEncoder(w).Encode(v) }

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/treatment":
		write([]map[string]any{
			{"id": "t1", "name": "Limpieza facial", "price": 100, "requires_zone": false},
			{"id": "t2", "name": "Depilación", "price": 80, "requires_zone": true},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/appointment/user":
		f.userListCalls++
		out := []map[string]any{}
		for _, rec := range f.appointments {
			out = append(out, rec)
		}
		write(out)
	case r.Method == http.MethodPost && r.URL.Path == "/appointment":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := fmt.Sprintf("%d", f.nextID)
		f.nextID++
		body["id"] = id
		f.appointments[id] = body
		write(body)
	case r.Method == http.MethodGet && r.URL.Path == "/appointment":
		out := []map[string]any{}
		for _, rec := range f.appointments {
			out = append(out, rec)
		}
		write(out)
	case strings.HasPrefix(r.URL.Path, "/appointment/"):
		id := strings.TrimPrefix(r.URL.Path, "/appointment/")
		rec, ok := f.appointments[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			write(rec)
		case http.MethodPatch:
			var patch map[string]any
			_ = json.NewDecoder(r.Body).Decode(&patch)
			for k, v := range patch {
				rec[k] = v
			}
			write(rec)
		case http.MethodDelete:
			delete(f.appointments, id)
			write(map[string]any{})
		}
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		write(map[string]any{"authToken": "tok-1"})
	case r.Method == http.MethodGet && r.URL.Path == "/auth/me":
		write(map[string]any{"id": 1, "name": "Ana", "email": "ana@example.com", "role": "client"})
	case r.Method == http.MethodGet && r.URL.Path == "/product":
		f.productCalls++
		write([]map[string]any{{"id": "p1", "name": "Serum", "price": 99.5, "stock": 5}})
	case r.Method == http.MethodPost && r.URL.Path == "/order":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := fmt.Sprintf("o-%d", f.nextID)
		f.nextID++
		body["id"] = id
		f.orders = append(f.orders, body)
		write(body)
	case r.Method == http.MethodGet && r.URL.Path == "/order":
		write(f.orders)
	default:
		http.NotFound(w, r)
	}
}

func newTestAPI(t *testing.T, backend http.Handler) *API {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return apiForUpstream(t, srv.URL)
}

func apiForUpstream(t *testing.T, baseURL string) *API {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	upstream := xano.New(xano.Options{BaseURL: baseURL, Logger: logger})
	caches := NewCaches(time.Minute, time.Minute)
	submitter := booking.NewSubmitter(upstream, schedule.DefaultConfig(), time.UTC, caches.UserAppointments, nil, logger)
	return New(logger, upstream, submitter, nil, caches, Config{
		Hours:        schedule.DefaultConfig(),
		Location:     time.UTC,
		TZName:       "UTC",
		CookieTTL:    time.Hour,
		ServiceToken: "service-token",
	})
}

func doRequest(t *testing.T, api *API, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// A future weekday, so slot validation never trips on "past".
const futureDate = "2100-09-01"

func TestProtectedRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	for _, c := range []struct{ method, target string }{
		{http.MethodPost, "/api/appointment"},
		{http.MethodGet, "/api/appointment/user"},
		{http.MethodGet, "/api/order"},
		{http.MethodPost, "/api/checkout"},
		{http.MethodGet, "/api/users"},
	} {
		rec := doRequest(t, api, c.method, c.target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", c.method, c.target)
	}
}

func TestCreateAppointment_DefaultsToPending(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/appointment", "tok", map[string]any{
		"date": futureDate, "time": "10:00", "treatment": "Limpieza facial",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeResponse(t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["id"])
}

func TestCreateAppointment_ZoneRequiredByCatalog(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/appointment", "tok", map[string]any{
		"date": futureDate, "time": "10:00", "treatment": "Depilación",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = doRequest(t, api, http.MethodPost, "/api/appointment", "tok", map[string]any{
		"date": futureDate, "time": "10:00", "treatment": "Depilación", "zone": "piernas",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateAppointment_SlotTakenByOwnBooking(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	first := doRequest(t, api, http.MethodPost, "/api/appointment", "tok", map[string]any{
		"date": futureDate, "time": "10:00", "treatment": "Limpieza facial",
	})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := doRequest(t, api, http.MethodPost, "/api/appointment", "tok", map[string]any{
		"date": futureDate, "time": "10:00", "treatment": "Limpieza facial",
	})
	assert.Equal(t, http.StatusConflict, second.Code, second.Body.String())
}

func TestAvailability_ValidatesDate(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodGet, "/api/availability", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, api, http.MethodGet, "/api/availability?date=01-09-2100", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailability_AnonymousGrid(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodGet, "/api/availability?date="+futureDate, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Date           string                  `json:"date"`
		Slots          []struct{ Time string } `json:"slots"`
		Taken          []string                `json:"taken"`
		MissingSources []string                `json:"missing_sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, futureDate, resp.Date)
	assert.Len(t, resp.Slots, 10)
	assert.Empty(t, resp.Taken)
	assert.Empty(t, resp.MissingSources)
}

func TestAvailability_CartCookieMarksTaken(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	cart := url.QueryEscape(`[{"treatment":"Limpieza facial","date":"` + futureDate + `","time":"10:00"}]`)
	req := httptest.NewRequest(http.MethodGet, "/api/availability?date="+futureDate, nil)
	req.AddCookie(&http.Cookie{Name: "cart", Value: cart})
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Taken []string `json:"taken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"10:00"}, resp.Taken)
}

func TestAvailability_UpstreamDownReportsMissingSources(t *testing.T) {
	// Point at a server that is already gone, then ask with a token so the
	// user-appointments source actually tries the upstream.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	api := apiForUpstream(t, srv.URL)

	rec := doRequest(t, api, http.MethodGet, "/api/availability?date="+futureDate, "tok", nil)
	require.Equal(t, http.StatusOK, rec.Code, "availability must not fail when a source is down")

	var resp struct {
		Slots          []struct{ Time string } `json:"slots"`
		Taken          []string                `json:"taken"`
		MissingSources []string                `json:"missing_sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Slots, 10)
	assert.Empty(t, resp.Taken)
	assert.Contains(t, resp.MissingSources, "user_appointments")
}

func TestUserAppointments_CachedWithinTTL(t *testing.T) {
	backend := newFakeBackend()
	api := newTestAPI(t, backend)

	for i := 0; i < 3; i++ {
		rec := doRequest(t, api, http.MethodGet, "/api/appointment/user", "tok", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, backend.userListCalls, "repeated reads within the TTL must hit the cache")
}

func TestCancel_InvalidatesUserAppointmentsCache(t *testing.T) {
	backend := newFakeBackend()
	api := newTestAPI(t, backend)

	created := doRequest(t, api, http.MethodPost, "/api/appointment", "tok", map[string]any{
		"date": futureDate, "time": "10:00", "treatment": "Limpieza facial",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodeResponse(t, created)["id"].(string)

	// Prime the cache, cancel, then read again: the second read must refetch.
	doRequest(t, api, http.MethodGet, "/api/appointment/user", "tok", nil)
	calls := backend.userListCalls

	rec := doRequest(t, api, http.MethodPatch, "/api/appointment/"+id, "tok", map[string]any{"action": "cancel", "reason": "test"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeResponse(t, rec)["status"])

	doRequest(t, api, http.MethodGet, "/api/appointment/user", "tok", nil)
	assert.Equal(t, calls+1, backend.userListCalls, "cancel must drop the cached list")
}

func TestPatchAppointment_UnknownAction(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPatch, "/api/appointment/1", "tok", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "ana@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "authToken", cookies[0].Name)
	assert.Equal(t, "tok-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	body := decodeResponse(t, rec)
	assert.Equal(t, "Ana", body["name"])
}

func TestLogin_ValidatesInput(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "authToken", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestMe_Unauthenticated(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInventory_PublicAndCached(t *testing.T) {
	backend := newFakeBackend()
	api := newTestAPI(t, backend)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, api, http.MethodGet, "/api/inventory", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, backend.productCalls)
}

func TestCreateOrder_ComputesDeposit(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/order", "tok", map[string]any{
		"lines": []map[string]any{
			{"treatment": "Limpieza facial", "date": futureDate, "time": "10:00", "price": 100.0},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeResponse(t, rec)
	assert.Equal(t, 100.0, body["total"])
	assert.Equal(t, 50.0, body["deposit"])
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["reference"])
}

func TestCreateOrder_RequiresLines(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/order", "tok", map[string]any{"lines": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrder_RejectsUnknownStatus(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPatch, "/api/order?id=1", "tok", map[string]any{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_NotConfigured(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/checkout", "tok", map[string]any{
		"lines": []map[string]any{{"treatment": "x", "price": 10.0}},
	})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestWebhook_NotConfigured(t *testing.T) {
	api := newTestAPI(t, newFakeBackend())

	rec := doRequest(t, api, http.MethodPost, "/api/payments/webhook?type=payment&data.id=1", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestUpstreamErrorSurfacesRawBody(t *testing.T) {
	api := apiForUpstream(t, func() string {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"workspace exploded"}`))
		}))
		t.Cleanup(srv.Close)
		return srv.URL
	}())

	rec := doRequest(t, api, http.MethodGet, "/api/appointment", "tok", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeResponse(t, rec)
	assert.Contains(t, body["raw"], "workspace exploded")
}
