// Package booking holds the conflict policy around appointment slots: which
// times count as taken for a date, and whether a submission or status change
// is allowed to go through to the upstream backend.
package booking

import "errors"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

var ErrTransition = errors.New("illegal status transition")

// transitions is the full status machine. Cancelled is terminal; pending and
// confirmed flip both ways. Reschedules keep the current status and are not
// transitions.
var transitions = map[string]map[string]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPending: true, StatusCancelled: true},
	StatusCancelled: {},
}

func CanTransition(from, to string) bool {
	return transitions[from][to]
}
