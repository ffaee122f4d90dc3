package identify

import (
	"errors"
	"fmt"
)

var (
	// ErrRecognitionUnavailable wraps every failure of the recognition service.
	// It is distinct from an empty result, which means nobody was recognized.
	ErrRecognitionUnavailable = errors.New("face recognition unavailable")

	// ErrNoMatch is returned by flows that need exactly one recognized attendee and found none.
	ErrNoMatch = errors.New("no attendee recognized")

	// ErrEmptyBatch is returned when a batch attendance request names no attendees.
	ErrEmptyBatch = errors.New("no attendees given")
)

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
}
