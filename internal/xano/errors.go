package xano

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrUnauthenticated: upstream rejected the forwarded bearer token.
	ErrUnauthenticated = errors.New("upstream rejected credentials")
	// ErrNotFound: a record lookup answered but the record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoEndpoint: every configured endpoint candidate answered 404.
	ErrNoEndpoint = errors.New("no upstream endpoint answered")
	// ErrRateLimited: upstream kept answering 429 after the single delayed retry.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrInvalidID: record ids are upstream-assigned integers.
	ErrInvalidID = errors.New("invalid id format")
)

// UpstreamError carries a response this service could not interpret, raw, so
// the boundary can surface it as {"raw": text} instead of guessing.
type UpstreamError struct {
	Status int
	Raw    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("unexpected upstream response (status %d): %s", e.Status, e.Raw)
}

var idPattern = regexp.MustCompile(`^[0-9]{1,18}$`)

func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
