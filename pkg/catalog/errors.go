package catalog

import "errors"

// Sentinel errors specific to the catalog layer. Stream-name validation
// reuses dlogerr.ErrInvalidStreamName since it's shared with the rest of the
// module's naming rules.
var (
	// ErrStreamNotFound is returned when no catalog entry exists for a
	// given stream name.
	ErrStreamNotFound = errors.New("catalog: stream not found")

	// ErrDuplicateStream is returned by CreateStream when a stream with
	// the same name already exists.
	ErrDuplicateStream = errors.New("catalog: stream already exists")
)
