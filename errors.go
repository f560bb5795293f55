package civicscreen

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch matches any *FetchError via errors.Is.
	ErrFetch = errors.New("civicscreen: image fetch failed")
	// ErrDecode matches any *DecodeError via errors.Is.
	ErrDecode = errors.New("civicscreen: image decode failed")
	// ErrClassificationUnavailable is returned by classifiers with no model loaded.
	ErrClassificationUnavailable = errors.New("civicscreen: classification unavailable")
	// ErrInvalidCoordinates is suppressed by the location check for non-finite input.
	ErrInvalidCoordinates = errors.New("civicscreen: invalid coordinates")
)

// FetchError reports a failed or timed-out image download.
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// DecodeError reports image bytes that could not be decoded or hashed.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
