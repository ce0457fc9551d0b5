package booking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aluna-estetica/backend/internal/cache"
	"github.com/aluna-estetica/backend/internal/xano"
)

// Source contributes taken time-of-day values for a date. Sources are
// independent and any of them may be down; a failing source is reported by
// name rather than treated as "no exclusions".
type Source interface {
	Name() string
	Taken(ctx context.Context, date string) ([]string, error)
}

// Availability is the merged exclusion set for one date. MissingSources
// names the sources that could not answer, so callers can warn the user
// that conflicts may be under-reported instead of silently allowing a
// double booking.
type Availability struct {
	Date           string   `json:"date"`
	Taken          []string `json:"taken"`
	MissingSources []string `json:"missing_sources,omitempty"`
}

func (a Availability) Contains(clock string) bool {
	for _, t := range a.Taken {
		if t == clock {
			return true
		}
	}
	return false
}

type Aggregator struct {
	sources []Source
	logger  *slog.Logger
}

func NewAggregator(logger *slog.Logger, sources ...Source) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{sources: sources, logger: logger}
}

// Taken fans out to every source concurrently and unions the results. It
// never fails: source errors become MissingSources entries. The result is
// deduplicated and sorted for deterministic display.
func (a *Aggregator) Taken(ctx context.Context, date string) Availability {
	type result struct {
		name  string
		times []string
		err   error
	}

	results := make([]result, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			times, err := src.Taken(ctx, date)
			results[i] = result{name: src.Name(), times: times, err: err}
		}(i, src)
	}
	wg.Wait()

	seen := map[string]struct{}{}
	out := Availability{Date: date, Taken: []string{}}
	for _, res := range results {
		if res.err != nil {
			a.logger.Warn("availability source failed", "source", res.name, "date", date, "err", res.err)
			out.MissingSources = append(out.MissingSources, res.name)
			continue
		}
		for _, t := range res.times {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out.Taken = append(out.Taken, t)
		}
	}
	sort.Strings(out.Taken)
	return out
}

// CartSource reads exclusions out of the client-held cart for the request.
type CartSource struct {
	Lines []CartLine
}

func (s CartSource) Name() string { return "cart" }

func (s CartSource) Taken(_ context.Context, date string) ([]string, error) {
	var times []string
	for _, line := range s.Lines {
		if line.Date == date && line.Time != "" {
			times = append(times, line.Time)
		}
	}
	return times, nil
}

// UserSource lists the requesting user's own non-cancelled appointments,
// through the shared TTL cache so repeated date clicks don't refetch.
type UserSource struct {
	API   *xano.Client
	Cache *cache.TTL[[]xano.Appointment]
	Token string
	Loc   *time.Location
}

func (s UserSource) Name() string { return "user_appointments" }

func (s UserSource) Taken(ctx context.Context, date string) ([]string, error) {
	if s.Token == "" {
		// Anonymous visitor: nothing to exclude, and nothing missing either.
		return nil, nil
	}
	appts, err := s.Cache.GetOrFill(ctx, s.Token, func(ctx context.Context) ([]xano.Appointment, error) {
		return s.API.ListUserAppointments(ctx, s.Token)
	})
	if err != nil {
		return nil, err
	}

	loc := s.Loc
	if loc == nil {
		loc = time.UTC
	}
	var times []string
	for _, appt := range appts {
		if appt.Status == StatusCancelled {
			continue
		}
		if appt.DateOnly(loc) == date {
			times = append(times, appt.TimeOfDay(loc))
		}
	}
	return times, nil
}

// GlobalSource queries the upstream cross-user availability aggregate. It is
// feature-flagged off by default; when disabled it is simply not wired in.
type GlobalSource struct {
	API       *xano.Client
	TZ        string
	ServiceID string
}

func (s GlobalSource) Name() string { return "global_availability" }

func (s GlobalSource) Taken(ctx context.Context, date string) ([]string, error) {
	return s.API.TakenTimes(ctx, date, s.TZ, s.ServiceID)
}
