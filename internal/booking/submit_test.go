package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluna-estetica/backend/internal/cache"
	"github.com/aluna-estetica/backend/internal/schedule"
	"github.com/aluna-estetica/backend/internal/xano"
)

// fakeUpstream is a minimal in-memory stand-in for the hosted backend,
// covering just the appointment endpoints the submitter touches.
type fakeUpstream struct {
	mu      sync.Mutex
	nextID  int
	records map[string]map[string]any
	creates int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{nextID: 1, records: map[string]map[string]any{}}
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/appointment":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id := fmt.Sprintf("%d", f.nextID)
		f.nextID++
		f.creates++
		body["id"] = id
		f.records[id] = body
		_ = json.NewEncoder(w).Encode(body)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/appointment/"):
		id := strings.TrimPrefix(r.URL.Path, "/appointment/")
		rec, ok := f.records[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(rec)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/appointment/"):
		id := strings.TrimPrefix(r.URL.Path, "/appointment/")
		rec, ok := f.records[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for k, v := range patch {
			rec[k] = v
		}
		_ = json.NewEncoder(w).Encode(rec)
	default:
		http.NotFound(w, r)
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) CancellationNotice(_ context.Context, appt xano.Appointment, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, appt.ID+":"+reason)
}

func newTestSubmitter(t *testing.T, upstream http.Handler, notifier Notifier) (*Submitter, *cache.TTL[[]xano.Appointment]) {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	api := xano.New(xano.Options{BaseURL: srv.URL, Logger: discardLogger()})
	userCache := cache.New[[]xano.Appointment](time.Minute)
	s := NewSubmitter(api, schedule.DefaultConfig(), time.UTC, userCache, notifier, discardLogger())
	s.now = func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) }
	return s, userCache
}

func validDraft() Draft {
	return Draft{Date: "2026-09-01", Time: "10:00", Treatment: "Limpieza facial"}
}

func TestCreate_DefaultsToPending(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	appt, err := s.Create(context.Background(), "tok", validDraft(), Availability{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusPending {
		t.Fatalf("status = %q, want pending", appt.Status)
	}
	if appt.ID == "" {
		t.Fatal("created appointment has no id")
	}
}

func TestCreate_RequiresToken(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	_, err := s.Create(context.Background(), "", validDraft(), Availability{})
	if !errors.Is(err, xano.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestCreate_RequiresTreatment(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	d := validDraft()
	d.Treatment = ""
	_, err := s.Create(context.Background(), "tok", d, Availability{})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestCreate_RejectsPastSlot(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	d := validDraft()
	d.Time = "07:00" // now is 08:00 on the same day
	_, err := s.Create(context.Background(), "tok", d, Availability{})
	if !errors.Is(err, ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot, got %v", err)
	}
}

func TestCreate_ZoneRequired(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	d := validDraft()
	d.RequiresZone = true
	_, err := s.Create(context.Background(), "tok", d, Availability{})
	if !errors.Is(err, ErrZoneRequired) {
		t.Fatalf("expected ErrZoneRequired, got %v", err)
	}

	d.Zone = "rostro"
	if _, err := s.Create(context.Background(), "tok", d, Availability{}); err != nil {
		t.Fatalf("zone provided, expected success: %v", err)
	}
}

func TestCreate_SlotTaken(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	taken := Availability{Taken: []string{"10:00"}}
	_, err := s.Create(context.Background(), "tok", validDraft(), taken)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestCreate_InvalidatesUserCache(t *testing.T) {
	s, userCache := newTestSubmitter(t, newFakeUpstream(), nil)
	userCache.Set("tok", []xano.Appointment{{ID: "stale"}})

	if _, err := s.Create(context.Background(), "tok", validDraft(), Availability{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := userCache.Get("tok"); ok {
		t.Fatal("user cache should have been invalidated after create")
	}
}

func TestCreate_ConcurrentSameSlotBothSucceed(t *testing.T) {
	upstream := newFakeUpstream()
	s, _ := newTestSubmitter(t, upstream, nil)

	// The taken check is read-then-write with no lock upstream; both
	// submissions see the slot as free.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Create(context.Background(), "tok", validDraft(), Availability{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}
	if upstream.creates != 2 {
		t.Fatalf("expected 2 upstream creates, got %d", upstream.creates)
	}
}

func TestConfirm_FromPending(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	created, err := s.Create(context.Background(), "tok", validDraft(), Availability{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	appt, err := s.Confirm(context.Background(), "tok", created.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Fatalf("status = %q", appt.Status)
	}
}

func TestCancel_IsTerminalAndIdempotent(t *testing.T) {
	notifier := &recordingNotifier{}
	s, _ := newTestSubmitter(t, newFakeUpstream(), notifier)

	created, err := s.Create(context.Background(), "tok", validDraft(), Availability{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	appt, err := s.Cancel(context.Background(), "tok", created.ID, "client request")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if appt.Status != StatusCancelled {
		t.Fatalf("status = %q", appt.Status)
	}
	if len(notifier.notices) != 1 {
		t.Fatalf("notices = %v", notifier.notices)
	}

	// Second cancel is a no-op and must not notify again.
	if _, err := s.Cancel(context.Background(), "tok", created.ID, "again"); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if len(notifier.notices) != 1 {
		t.Fatalf("repeat cancel notified: %v", notifier.notices)
	}

	// Cancelled is terminal: confirming afterwards is a transition error.
	if _, err := s.Confirm(context.Background(), "tok", created.ID); !errors.Is(err, ErrTransition) {
		t.Fatalf("expected ErrTransition, got %v", err)
	}
}

func TestCancel_InvalidatesUserCache(t *testing.T) {
	s, userCache := newTestSubmitter(t, newFakeUpstream(), nil)

	created, err := s.Create(context.Background(), "tok", validDraft(), Availability{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	userCache.Set("tok", []xano.Appointment{created})

	if _, err := s.Cancel(context.Background(), "tok", created.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := userCache.Get("tok"); ok {
		t.Fatal("user cache should have been invalidated after cancel")
	}
}

func TestReschedule(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeUpstream(), nil)

	created, err := s.Create(context.Background(), "tok", validDraft(), Availability{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	appt, err := s.Reschedule(context.Background(), "tok", created.ID, "2026-09-02", "11:00")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if appt.DateOnly(time.UTC) != "2026-09-02" || appt.TimeOfDay(time.UTC) != "11:00" {
		t.Fatalf("moved to %s %s", appt.DateOnly(time.UTC), appt.TimeOfDay(time.UTC))
	}

	if _, err := s.Reschedule(context.Background(), "tok", created.ID, "2026-08-01", "10:00"); !errors.Is(err, ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot, got %v", err)
	}

	if _, err := s.Cancel(context.Background(), "tok", created.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.Reschedule(context.Background(), "tok", created.ID, "2026-09-03", "10:00"); !errors.Is(err, ErrTransition) {
		t.Fatalf("expected ErrTransition after cancel, got %v", err)
	}
}
