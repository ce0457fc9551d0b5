package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluna-estetica/backend/internal/cache"
	"github.com/aluna-estetica/backend/internal/schedule"
	"github.com/aluna-estetica/backend/internal/xano"
)

var (
	ErrPastSlot     = errors.New("slot is in the past")
	ErrZoneRequired = errors.New("treatment requires a zone selection")
	ErrSlotTaken    = errors.New("slot is already taken")
	ErrMissingField = errors.New("missing required field")
)

// Notifier receives a best-effort cancellation notice. Failures are logged,
// never surfaced to the caller.
type Notifier interface {
	CancellationNotice(ctx context.Context, appt xano.Appointment, reason string)
}

// Draft is a fully specified booking request from the client, pre-upstream.
type Draft struct {
	Date         string
	Time         string
	Treatment    string
	Zone         string
	RequiresZone bool
	Sessions     int
	Comments     string
	Name         string
	Email        string
	Phone        string
}

// Submitter validates drafts against the slot policy and issues the
// create/update/cancel calls upstream. It owns invalidation of the
// user-appointments cache so reads after a write reflect the change before
// the TTL would.
type Submitter struct {
	api       *xano.Client
	hours     schedule.Config
	loc       *time.Location
	userCache *cache.TTL[[]xano.Appointment]
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewSubmitter(api *xano.Client, hours schedule.Config, loc *time.Location, userCache *cache.TTL[[]xano.Appointment], notifier Notifier, logger *slog.Logger) *Submitter {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		api:       api,
		hours:     hours,
		loc:       loc,
		userCache: userCache,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates the draft against the merged taken set and books it.
// The taken check is read-then-write with no upstream lock: two concurrent
// submissions for the same slot can both pass it and both be created.
func (s *Submitter) Create(ctx context.Context, token string, d Draft, taken Availability) (xano.Appointment, error) {
	if token == "" {
		return xano.Appointment{}, xano.ErrUnauthenticated
	}
	if d.Treatment == "" {
		return xano.Appointment{}, fmt.Errorf("%w: treatment", ErrMissingField)
	}
	at, err := schedule.At(d.Date, d.Time, s.loc)
	if err != nil {
		return xano.Appointment{}, fmt.Errorf("%w: date/time", ErrMissingField)
	}
	if at.Before(s.now().In(s.loc)) {
		return xano.Appointment{}, ErrPastSlot
	}
	if d.RequiresZone && d.Zone == "" {
		return xano.Appointment{}, ErrZoneRequired
	}
	if taken.Contains(d.Time) {
		return xano.Appointment{}, ErrSlotTaken
	}

	appt, err := s.api.CreateAppointment(ctx, token, xano.AppointmentPayload{
		Date:     at,
		Service:  d.Treatment,
		Zone:     d.Zone,
		Sessions: d.Sessions,
		Status:   StatusPending,
		Comments: d.Comments,
		Name:     d.Name,
		Email:    d.Email,
		Phone:    d.Phone,
	})
	if err != nil {
		return xano.Appointment{}, err
	}
	s.userCache.Invalidate(token)
	return appt, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Submitter) Confirm(ctx context.Context, token, id string) (xano.Appointment, error) {
	return s.transition(ctx, token, id, StatusConfirmed)
}

// Cancel is terminal. On success the user-appointments cache is dropped so
// the freed slot stops counting as taken immediately, and the cancellation
// workflow webhook is notified best-effort.
func (s *Submitter) Cancel(ctx context.Context, token, id, reason string) (xano.Appointment, error) {
	current, err := s.api.GetAppointment(ctx, token, id)
	if err != nil {
		return xano.Appointment{}, err
	}
	if current.Status == StatusCancelled {
		// Cancelling twice is a no-op, not an error.
		return current, nil
	}
	if !CanTransition(current.Status, StatusCancelled) {
		return xano.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrTransition, current.Status, StatusCancelled)
	}

	fields := map[string]any{"status": StatusCancelled}
	if reason != "" {
		fields["cancellation_reason"] = reason
	}
	appt, err := s.api.UpdateAppointment(ctx, token, id, fields)
	if err != nil {
		return xano.Appointment{}, err
	}
	s.userCache.Invalidate(token)
	if s.notifier != nil {
		s.notifier.CancellationNotice(ctx, appt, reason)
	}
	return appt, nil
}

// Reschedule moves the appointment to a new non-past slot, keeping status.
func (s *Submitter) Reschedule(ctx context.Context, token, id, date, clock string) (xano.Appointment, error) {
	current, err := s.api.GetAppointment(ctx, token, id)
	if err != nil {
		return xano.Appointment{}, err
	}
	if current.Status == StatusCancelled {
		return xano.Appointment{}, fmt.Errorf("%w: cancelled appointments cannot be rescheduled", ErrTransition)
	}
	at, err := schedule.At(date, clock, s.loc)
	if err != nil {
		return xano.Appointment{}, fmt.Errorf("%w: date/time", ErrMissingField)
	}
	if at.Before(s.now().In(s.loc)) {
		return xano.Appointment{}, ErrPastSlot
	}

	appt, err := s.api.UpdateAppointment(ctx, token, id, map[string]any{
		"appointment_date": at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return xano.Appointment{}, err
	}
	s.userCache.Invalidate(token)
	return appt, nil
}

func (s *Submitter) transition(ctx context.Context, token, id, to string) (xano.Appointment, error) {
	current, err := s.api.GetAppointment(ctx, token, id)
	if err != nil {
		return xano.Appointment{}, err
	}
	if !CanTransition(current.Status, to) {
		return xano.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrTransition, current.Status, to)
	}
	appt, err := s.api.UpdateAppointment(ctx, token, id, map[string]any{"status": to})
	if err != nil {
		return xano.Appointment{}, err
	}
	s.userCache.Invalidate(token)
	return appt, nil
}
