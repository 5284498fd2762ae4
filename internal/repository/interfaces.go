package repository

import (
	"context"

	"github.com/iconidentify/lectura/internal/domain"
)

// RecordingRepository handles recording persistence.
type RecordingRepository interface {
	// Create persists a new recording.
	Create(ctx context.Context, recording *domain.Recording) error

	// Get retrieves a recording by ID.
	Get(ctx context.Context, id domain.RecordingID) (*domain.Recording, error)

	// List returns recordings, newest first, optionally filtered by status.
	List(ctx context.Context, status *domain.RecordingStatus, limit, offset int) ([]*domain.Recording, error)

	// Count returns the number of recordings.
	Count(ctx context.Context, status *domain.RecordingStatus) (int, error)

	// Update persists the recording's mutable fields.
	Update(ctx context.Context, recording *domain.Recording) error

	// UpdateStatus changes recording status.
	UpdateStatus(ctx context.Context, id domain.RecordingID, status domain.RecordingStatus, errMsg string) error

	// Delete removes a recording row. Files on disk are not touched.
	Delete(ctx context.Context, id domain.RecordingID) error
}

// JobRepository manages the processing job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// GetByRecordingID finds the job associated with a recording.
	GetByRecordingID(ctx context.Context, recordingID domain.RecordingID) (*domain.Job, error)

	// ListPending returns all pending/retrying jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Retrying   int
}
