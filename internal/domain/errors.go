package domain

import "errors"

// Domain errors.
var (
	// ErrRecordingNotFound is returned when a recording cannot be found.
	ErrRecordingNotFound = errors.New("recording not found")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrInvalidBaseURL is returned when the segment base URL is missing or malformed.
	ErrInvalidBaseURL = errors.New("invalid segment base URL")

	// ErrInvalidRange is returned when the segment index range is invalid.
	ErrInvalidRange = errors.New("invalid segment index range")

	// ErrPatternNotFound is returned when no segment naming pattern could be
	// detected before the consecutive-failure budget ran out.
	ErrPatternNotFound = errors.New("segment naming pattern not found")

	// ErrNoSegments is returned when acquisition ends with zero downloaded segments.
	ErrNoSegments = errors.New("no segments downloaded")

	// ErrMergeFailed is returned when the media engine fails to concatenate segments.
	ErrMergeFailed = errors.New("segment merge failed")

	// ErrDurationUnavailable is returned when the container duration cannot be probed.
	ErrDurationUnavailable = errors.New("container duration unavailable")

	// ErrClipFailed is returned when an individual clip cannot be cut.
	// Non-fatal to the run; remaining clips are still attempted.
	ErrClipFailed = errors.New("clip creation failed")

	// ErrRateLimited is returned when rate limited by external services.
	ErrRateLimited = errors.New("rate limited")

	// ErrMediaNotFound is returned when a media file cannot be found.
	ErrMediaNotFound = errors.New("media file not found")
)

// RecordingError wraps an error with recording context.
type RecordingError struct {
	RecordingID RecordingID
	Op          string
	Err         error
}

func (e *RecordingError) Error() string {
	if e.RecordingID != "" {
		return e.Op + " [" + e.RecordingID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *RecordingError) Unwrap() error {
	return e.Err
}

// NewRecordingError creates a new RecordingError.
func NewRecordingError(id RecordingID, op string, err error) *RecordingError {
	return &RecordingError{
		RecordingID: id,
		Op:          op,
		Err:         err,
	}
}
